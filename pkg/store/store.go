// Package store defines the persistence interfaces the turn pipeline
// consumes: configuration source, audit event sink, LLM usage log, and
// trigger-variable source. Implementations live in subpackages
// ([github.com/relayline/frontdesk/pkg/store/postgres] for production,
// [github.com/relayline/frontdesk/pkg/store/memstore] for tests and
// single-node development).
//
// Implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/event"
)

// ErrNotFound is returned (wrapped) by lookups for companies that have no
// stored configuration.
var ErrNotFound = errors.New("not found")

// ConfigStore loads per-company configuration bundles. Load returns a
// read-only snapshot; implementations may cache and must return the merged
// (defaults + overrides) bundle.
type ConfigStore interface {
	Load(ctx context.Context, companyID string) (*config.CompanyConfig, error)
}

// EventSink receives the full ordered event list of a turn, exactly once,
// at turn end. Errors are logged and swallowed by the caller; a failing sink
// never affects a turn.
type EventSink interface {
	Write(ctx context.Context, events []event.Event) error
}

// UsageRecord is one LLM invocation's accounting entry.
type UsageRecord struct {
	CallID    string        `json:"call_id"`
	CompanyID string        `json:"company_id"`
	TurnIndex int           `json:"turn_index"`
	Mode      string        `json:"mode"`
	Model     string        `json:"model"`
	TokensIn  int           `json:"tokens_in"`
	TokensOut int           `json:"tokens_out"`
	Latency   time.Duration `json:"latency"`

	// Accepted is false when validation rejected the output.
	Accepted bool `json:"accepted"`

	Timestamp time.Time `json:"timestamp"`
}

// UsageLogger records LLM usage, append-only. Errors are swallowed by the
// caller.
type UsageLogger interface {
	Log(ctx context.Context, rec UsageRecord) error
}

// VariableStore loads per-company trigger-variable values
// ({diagnosticfee} → "80 dollars"). Values override the defaults embedded in
// the config bundle.
type VariableStore interface {
	Load(ctx context.Context, companyID string) (map[string]string, error)
}
