package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/engine"
)

func TestStatusEndpoint(t *testing.T) {
	mux := NewMux(func(context.Context) (engine.Status, error) {
		return engine.Status{
			Total:   3,
			Pending: 1,
			Synced:  2,
			ByType:  map[domain.ActivityType]int{domain.ActivityGymSession: 3},
		}, nil
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.EqualValues(t, 3, body["total"])
	require.EqualValues(t, 1, body["pending"])
	require.NotContains(t, body, "lastPull")
}

func TestStatusEndpointReportsStorageFailure(t *testing.T) {
	mux := NewMux(func(context.Context) (engine.Status, error) {
		return engine.Status{}, errors.New("disk I/O error")
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"type":"local_storage","detail":"disk I/O error"}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	mux := NewMux(nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRequiresOwnerToken(t *testing.T) {
	cfg := auth.Config{Secret: "test-secret", Issuer: "trainingsync.test"}
	bearer := func(sub string) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub, "iss": cfg.Issuer}).SignedString([]byte(cfg.Secret))
		require.NoError(t, err)
		return "Bearer " + token
	}
	handler := NewHandler(func(context.Context) (engine.Status, error) {
		return engine.Status{Total: 1}, nil
	}, cfg, auth.StaticUser("owner"))

	serve := func(path, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, serve("/healthz", "").Code)
	require.Equal(t, http.StatusOK, serve("/metrics", "").Code)
	require.Equal(t, http.StatusUnauthorized, serve("/status", "").Code)
	require.Equal(t, http.StatusForbidden, serve("/status", bearer("intruder")).Code)

	rec := serve("/status", bearer("owner"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":1`)
}

func TestHandlerWithoutSignedInOwner(t *testing.T) {
	cfg := auth.Config{Secret: "test-secret"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "owner"}).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	handler := NewHandler(func(context.Context) (engine.Status, error) {
		return engine.Status{}, nil
	}, cfg, auth.StaticUser(""))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
