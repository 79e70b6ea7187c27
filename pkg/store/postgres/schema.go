// Package postgres provides the PostgreSQL-backed implementations of the
// pkg/store interfaces plus the scenarios table used by the semantic
// fallback. One [pgxpool.Pool] is shared by everything, with pgvector
// types registered on every connection.
//
// Usage:
//
//	st, err := postgres.New(ctx, dsn, 1536)
//	if err != nil { … }
//	defer st.Close()
//
//	cfg, _ := st.Load(ctx, "acme-hvac")
//	_ = st.Write(ctx, bus.Events())
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCompanyConfigs = `
CREATE TABLE IF NOT EXISTS company_configs (
    company_id  TEXT         PRIMARY KEY,
    version     BIGINT       NOT NULL DEFAULT 1,
    payload     TEXT         NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlTurnEvents = `
CREATE TABLE IF NOT EXISTS turn_events (
    id           TEXT         PRIMARY KEY,
    call_id      TEXT         NOT NULL,
    turn_index   INT          NOT NULL,
    event_type   TEXT         NOT NULL,
    severity     TEXT         NOT NULL,
    config_hash  TEXT         NOT NULL,
    payload      JSONB        NOT NULL DEFAULT '{}',
    emitted_at   TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_turn_events_call
    ON turn_events (call_id, turn_index);

CREATE INDEX IF NOT EXISTS idx_turn_events_type
    ON turn_events (event_type);
`

const ddlLLMUsage = `
CREATE TABLE IF NOT EXISTS llm_usage (
    id          BIGSERIAL    PRIMARY KEY,
    call_id     TEXT         NOT NULL,
    company_id  TEXT         NOT NULL,
    turn_index  INT          NOT NULL,
    mode        TEXT         NOT NULL,
    model       TEXT         NOT NULL,
    tokens_in   INT          NOT NULL,
    tokens_out  INT          NOT NULL,
    latency_ms  BIGINT       NOT NULL,
    accepted    BOOLEAN      NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_llm_usage_company
    ON llm_usage (company_id, created_at);
`

const ddlTriggerVariables = `
CREATE TABLE IF NOT EXISTS trigger_variables (
    company_id  TEXT  NOT NULL,
    name        TEXT  NOT NULL,
    value       TEXT  NOT NULL,
    PRIMARY KEY (company_id, name)
);
`

// ddlScenarios needs the embedding dimension of the configured model.
func ddlScenarios(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS scenarios (
    id             TEXT         PRIMARY KEY,
    company_id     TEXT         NOT NULL,
    scenario_type  TEXT         NOT NULL,
    description    TEXT         NOT NULL,
    response       TEXT         NOT NULL,
    embedding      VECTOR(%d)   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scenarios_company
    ON scenarios (company_id);

CREATE INDEX IF NOT EXISTS idx_scenarios_embedding
    ON scenarios USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate ensures all tables, indexes, and the pgvector extension exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlCompanyConfigs,
		ddlTurnEvents,
		ddlLLMUsage,
		ddlTriggerVariables,
		ddlScenarios(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
