// Package scenario implements the optional semantic fallback: when no
// trigger card matched, the caller utterance is embedded and compared
// against pre-embedded scenario descriptions in Postgres (pgvector). The
// branch is off by default and every failure degrades silently to the
// next pipeline stage.
package scenario

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/pkg/provider/embeddings"
)

// Match is a scenario accepted as a response source.
type Match struct {
	ScenarioID string  `json:"scenario_id"`
	Type       string  `json:"type"`
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
}

// Selector looks up the nearest scenario for an utterance.
type Selector interface {
	// Select returns the best allow-listed scenario at or above the
	// confidence threshold, or nil. An error means the lookup itself
	// failed; callers treat it like nil and move on.
	Select(ctx context.Context, companyID, utterance string, cfg config.ScenarioConfig) (*Match, error)
}

// PGSelector implements Selector over a scenarios table with a pgvector
// embedding column. Safe for concurrent use.
type PGSelector struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

var _ Selector = (*PGSelector)(nil)

// NewPGSelector builds a selector over pool using embedder for the query
// vector. The pool must have pgvector types registered.
func NewPGSelector(pool *pgxpool.Pool, embedder embeddings.Provider) *PGSelector {
	return &PGSelector{pool: pool, embedder: embedder}
}

// Select implements Selector. Similarity is 1 minus cosine distance.
func (s *PGSelector) Select(ctx context.Context, companyID, utterance string, cfg config.ScenarioConfig) (*Match, error) {
	vec, err := s.embedder.Embed(ctx, utterance)
	if err != nil {
		return nil, err
	}

	const q = `
		SELECT id, scenario_type, response, 1 - (embedding <=> $1) AS similarity
		FROM scenarios
		WHERE company_id = $2
		ORDER BY embedding <=> $1
		LIMIT 5`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[t] = struct{}{}
	}

	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ScenarioID, &m.Type, &m.Response, &m.Confidence); err != nil {
			return nil, err
		}
		if m.Confidence < cfg.MinConfidence {
			// Ordered by distance; nothing further can qualify.
			break
		}
		if _, ok := allowed[m.Type]; !ok {
			continue
		}
		return &m, nil
	}
	return nil, rows.Err()
}

// Upsert stores a scenario with a freshly computed embedding. Used by the
// admin ingest path, not by turns.
func (s *PGSelector) Upsert(ctx context.Context, companyID, id, scenarioType, description, response string) error {
	vec, err := s.embedder.Embed(ctx, description)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO scenarios (id, company_id, scenario_type, description, response, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
		    scenario_type = EXCLUDED.scenario_type,
		    description   = EXCLUDED.description,
		    response      = EXCLUDED.response,
		    embedding     = EXCLUDED.embedding`
	_, err = s.pool.Exec(ctx, q, id, companyID, scenarioType, description, response, pgvector.NewVector(vec))
	return err
}

// Try wraps a Select call with the swallow-errors contract of the turn
// pipeline: failures log and return nil.
func Try(ctx context.Context, sel Selector, companyID, utterance string, cfg config.ScenarioConfig) *Match {
	if sel == nil || !cfg.Enabled {
		return nil
	}
	m, err := sel.Select(ctx, companyID, utterance, cfg)
	if err != nil {
		slog.Warn("scenario lookup failed", "company_id", companyID, "error", err)
		return nil
	}
	return m
}
