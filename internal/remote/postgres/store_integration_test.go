//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-softwarelab/common/pkg/optional"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/trainingsync/internal/auth"
	"example.com/trainingsync/internal/domain"
	"example.com/trainingsync/internal/remote"
)

func TestStoreDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)

	st := New(pool, auth.StaticUser("user-1"))
	doc := remote.Document{
		"activityType": json.RawMessage(`"gym_session"`),
		"date":         json.RawMessage(`"2024-02-14"`),
		"name":         json.RawMessage(`"Leg Day"`),
	}

	id, err := st.Create(ctx, "Gym_Sessions", "2024-02-14_20-00_Leg_Day", doc)
	require.NoError(t, err)
	require.Equal(t, "2024-02-14_20-00_Leg_Day", id)

	_, err = st.Create(ctx, "Gym_Sessions", id, remote.Document{"bodyweight": json.RawMessage(`72.5`)})
	require.NoError(t, err)

	records, err := st.List(ctx, "Gym_Sessions", optional.Empty[time.Time]())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, domain.ActivityGymSession, records[0].ActivityType)
	name, _ := records[0].Fields.String("name")
	require.Equal(t, "Leg Day", name, "upsert merges into the existing payload")
	require.Equal(t, json.RawMessage(`72.5`), records[0].Fields["bodyweight"])

	mark := records[0].UpdatedAt
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, st.Update(ctx, "Gym_Sessions", id, remote.Document{"notes": json.RawMessage(`"heavy"`)}))

	delta, err := st.List(ctx, "Gym_Sessions", optional.Some(mark))
	require.NoError(t, err)
	require.Len(t, delta, 1)

	err = st.Update(ctx, "Gym_Sessions", "missing", remote.Document{})
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, st.Delete(ctx, "Gym_Sessions", id))
	err = st.Delete(ctx, "Gym_Sessions", id)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)

	owner := New(pool, auth.StaticUser("owner"))
	other := New(pool, auth.StaticUser("other"))

	_, err := owner.Create(ctx, "Fingerboarding", "k1", remote.Document{"date": json.RawMessage(`"2024-01-01"`)})
	require.NoError(t, err)

	records, err := other.List(ctx, "Fingerboarding", optional.Empty[time.Time]())
	require.NoError(t, err)
	require.Empty(t, records)

	err = other.Delete(ctx, "Fingerboarding", "k1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreRequiresUser(t *testing.T) {
	ctx := context.Background()
	pool := startPostgres(t, ctx)

	_, err := New(pool, auth.StaticUser("")).Create(ctx, "Fingerboarding", "k1", remote.Document{})
	require.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("trainingsync"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, EnsureSchema(ctx, pool))
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
