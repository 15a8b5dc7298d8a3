//go:build integration

package presence

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/fieldpresence/internal/domain"
)

func TestPostgresStoreKeepsLatestRowPerAgent(t *testing.T) {
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("presence"),
		postgrescontainer.WithUsername("field"),
		postgrescontainer.WithPassword("field"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runMigrations(t, ctx, pool)

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store := NewPostgresStore(pool)
	require.NoError(t, store.Publish(ctx, Snapshot{Records: []domain.PresenceRecord{
		{AgentID: "1", Username: "asha", Latitude: 10, Longitude: 20, LastSeenAt: base},
		{AgentID: "2", Latitude: 11, Longitude: 21, LastSeenAt: base},
	}}))
	require.NoError(t, store.Publish(ctx, Snapshot{Records: []domain.PresenceRecord{
		{AgentID: "1", Username: "asha", Latitude: 10.001, Longitude: 20, LastSeenAt: base.Add(5 * time.Second)},
	}}))

	// A second writer holding an older fix must not move the row backwards.
	stale := NewPostgresStore(pool)
	require.NoError(t, stale.Publish(ctx, Snapshot{Records: []domain.PresenceRecord{
		{AgentID: "1", Latitude: 9, Longitude: 19, LastSeenAt: base},
	}}))

	records, err := NewPostgresStore(pool).Load(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "1", records[0].AgentID)
	require.Equal(t, 10.001, records[0].Latitude)
	require.Equal(t, "asha", records[0].Username)
	require.True(t, records[0].LastSeenAt.Equal(base.Add(5*time.Second)))
}

func runMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	path := filepath.Join(filepath.Dir(file), "../../db/migrations/0001_agent_presence.up.sql")

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)
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
