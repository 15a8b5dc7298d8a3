package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/fieldpresence/internal/domain"
)

// PostgresStore keeps one latest row per agent in agent_presence. It never
// stores history: an older sample never overwrites a newer one.
type PostgresStore struct {
	pool    *pgxpool.Pool
	changes *changeSet
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, changes: newChangeSet()}
}

// Name implements Sink.
func (s *PostgresStore) Name() string { return "postgres" }

const upsertPresence = `INSERT INTO agent_presence (agent_id, username, latitude, longitude, last_seen_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW())
        ON CONFLICT (agent_id) DO UPDATE SET
            username = EXCLUDED.username,
            latitude = EXCLUDED.latitude,
            longitude = EXCLUDED.longitude,
            last_seen_at = EXCLUDED.last_seen_at,
            updated_at = NOW()
        WHERE agent_presence.last_seen_at <= EXCLUDED.last_seen_at`

// Publish implements Sink by upserting every changed record in one transaction.
func (s *PostgresStore) Publish(ctx context.Context, snap Snapshot) error {
	records := s.changes.pending(snap)
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertPresence, rec.AgentID, rec.Username, rec.Latitude, rec.Longitude, rec.LastSeenAt.UTC())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.changes.commit(records)
	return nil
}

// Load returns every persisted record, most recent first, limited to limit rows.
func (s *PostgresStore) Load(ctx context.Context, limit int) ([]domain.PresenceRecord, error) {
	const query = `SELECT agent_id, username, latitude, longitude, last_seen_at
        FROM agent_presence
        ORDER BY last_seen_at DESC, agent_id
        LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.PresenceRecord, 0)
	for rows.Next() {
		var (
			rec      domain.PresenceRecord
			lastSeen time.Time
		)
		if err := rows.Scan(&rec.AgentID, &rec.Username, &rec.Latitude, &rec.Longitude, &lastSeen); err != nil {
			return nil, err
		}
		rec.LastSeenAt = lastSeen.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.changes.commit(records)
	return records, nil
}
