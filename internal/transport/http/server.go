// Package httptransport serves the operational endpoints of a long-running sync client.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/engine"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StatusFunc reports the local store summary served at /status.
type StatusFunc func(ctx context.Context) (engine.Status, error)

// NewServer creates *http.Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Address,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// NewHandler serves NewMux behind bearer authentication. /metrics and /healthz stay open,
// and /status is only answered for the device owner.
func NewHandler(status StatusFunc, authCfg auth.Config, owner auth.UserFunc) http.Handler {
	mux := NewMux(func(ctx context.Context) (engine.Status, error) {
		caller, _ := auth.ContextUser()(ctx)
		ownerID, err := auth.RequireUser(ctx, withoutClaims(owner))
		if err != nil {
			return engine.Status{}, err
		}
		if caller != ownerID {
			return engine.Status{}, errForbidden
		}
		return status(ctx)
	})
	return auth.NewMiddleware(authCfg, isPublic).Wrap(mux)
}

// NewMux exposes Prometheus metrics, a liveness probe and, when status is set, the store summary.
func NewMux(status StatusFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if status != nil {
		mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
			report, err := status(r.Context())
			switch {
			case errors.Is(err, errForbidden):
				writeError(w, http.StatusForbidden, "forbidden", "status is only available to the device owner")
				return
			case errors.Is(err, domain.ErrNotAuthenticated):
				writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
				return
			case err != nil:
				writeError(w, http.StatusServiceUnavailable, "local_storage", err.Error())
				return
			}
			writeJSON(w, http.StatusOK, report)
		})
	}
	return mux
}

var errForbidden = errors.New("forbidden")

func isPublic(r *http.Request) bool {
	return r.URL.Path == "/metrics" || r.URL.Path == "/healthz"
}

// withoutClaims resolves owner ignoring request claims, so a caller's token cannot stand in for the owner.
func withoutClaims(owner auth.UserFunc) auth.UserFunc {
	if owner == nil {
		return nil
	}
	return func(context.Context) (string, bool) {
		return owner(context.Background())
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
