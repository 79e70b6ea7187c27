package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/event"
	"github.com/relayline/frontdesk/pkg/store"
)

// Compile-time interface checks.
//
// ConfigStore and VariableStore both define a method named Load with
// different signatures, so one struct cannot implement both. The variable
// side is exposed as a sub-type via [Store.Variables].
var (
	_ store.ConfigStore   = (*Store)(nil)
	_ store.EventSink     = (*Store)(nil)
	_ store.UsageLogger   = (*Store)(nil)
	_ store.VariableStore = (*VariableStoreImpl)(nil)
)

// Store is the PostgreSQL persistence layer. It implements the pkg/store
// interfaces on one shared pool. All methods are safe for concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	variables *VariableStoreImpl

	// defaults is the platform default bundle merged under every
	// company's stored overrides.
	defaults *config.CompanyConfig
}

// New connects to dsn, registers pgvector types on every connection, and
// runs [Migrate]. embeddingDimensions must match the embedding model used
// for the scenarios table.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Vector columns scan into and insert from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:      pool,
		variables: &VariableStoreImpl{pool: pool},
	}, nil
}

// Variables returns the trigger-variable implementation satisfying
// store.VariableStore.
func (s *Store) Variables() *VariableStoreImpl { return s.variables }

// SetDefaults installs the platform default bundle merged under every
// loaded company config. Call once at startup, before serving.
func (s *Store) SetDefaults(defaults *config.CompanyConfig) {
	s.defaults = defaults
}

// Pool exposes the shared pool for the scenario selector.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases all pooled connections.
func (s *Store) Close() { s.pool.Close() }

// Load implements store.ConfigStore. The stored YAML payload is parsed,
// validated, and resolved over the platform defaults; the row version
// becomes the bundle's monotonic version marker.
func (s *Store) Load(ctx context.Context, companyID string) (*config.CompanyConfig, error) {
	const q = `SELECT payload, version FROM company_configs WHERE company_id = $1`

	var payload string
	var version int64
	if err := s.pool.QueryRow(ctx, q, companyID).Scan(&payload, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres store: load config %q: %w", companyID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("postgres store: load config %q: %w", companyID, err)
	}

	override, err := config.LoadFromReader(strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse config %q: %w", companyID, err)
	}

	resolved := config.Resolve(s.defaults, override)
	resolved.CompanyID = companyID
	resolved.Version = version
	return resolved, nil
}

// SaveConfig upserts a company's raw YAML payload and bumps the version.
// Used by the admin surface, never by turns.
func (s *Store) SaveConfig(ctx context.Context, companyID, payload string) error {
	const q = `
		INSERT INTO company_configs (company_id, payload, version, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (company_id) DO UPDATE SET
		    payload    = EXCLUDED.payload,
		    version    = company_configs.version + 1,
		    updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, companyID, payload); err != nil {
		return fmt.Errorf("postgres store: save config %q: %w", companyID, err)
	}
	return nil
}

// Write implements store.EventSink. The turn's events go in as one batch.
func (s *Store) Write(ctx context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const q = `
		INSERT INTO turn_events
		    (id, call_id, turn_index, event_type, severity, config_hash, payload, emitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
	for _, e := range events {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			payload = []byte(`{}`)
		}
		batch.Queue(q,
			e.ID,
			e.CallID,
			e.TurnIndex,
			string(e.Type),
			string(e.Severity),
			e.ConfigHash,
			payload,
			time.UnixMilli(e.TimestampMillis),
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres store: write events: %w", err)
	}
	return nil
}

// Log implements store.UsageLogger.
func (s *Store) Log(ctx context.Context, rec store.UsageRecord) error {
	const q = `
		INSERT INTO llm_usage
		    (call_id, company_id, turn_index, mode, model, tokens_in, tokens_out, latency_ms, accepted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.pool.Exec(ctx, q,
		rec.CallID,
		rec.CompanyID,
		rec.TurnIndex,
		rec.Mode,
		rec.Model,
		rec.TokensIn,
		rec.TokensOut,
		rec.Latency.Milliseconds(),
		rec.Accepted,
		rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres store: log usage: %w", err)
	}
	return nil
}

// VariableStoreImpl implements store.VariableStore over the
// trigger_variables table. Obtain one via [Store.Variables].
type VariableStoreImpl struct {
	pool *pgxpool.Pool
}

// Load implements store.VariableStore.
func (v *VariableStoreImpl) Load(ctx context.Context, companyID string) (map[string]string, error) {
	const q = `SELECT name, value FROM trigger_variables WHERE company_id = $1`

	rows, err := v.pool.Query(ctx, q, companyID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load variables %q: %w", companyID, err)
	}
	defer rows.Close()

	vars := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("postgres store: scan variable: %w", err)
		}
		vars[name] = value
	}
	return vars, rows.Err()
}
