package resilience

import (
	"context"

	"github.com/relayline/frontdesk/pkg/provider/llm"
)

// GuardedClient wraps an llm.Client with a [CircuitBreaker]. When the
// breaker is open, Complete fails fast with [ErrCircuitOpen] and the turn
// falls back to a static answer without waiting out the deadline.
type GuardedClient struct {
	inner   llm.Client
	breaker *CircuitBreaker
}

var _ llm.Client = (*GuardedClient)(nil)

// Guard wraps client with a breaker built from cfg. If cfg.Name is empty,
// the client's model ID is used.
func Guard(client llm.Client, cfg Config) *GuardedClient {
	if cfg.Name == "" {
		cfg.Name = client.ModelID()
	}
	return &GuardedClient{
		inner:   client,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Complete implements llm.Client.
func (g *GuardedClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	var resp *llm.Response
	err := g.breaker.Execute(func() error {
		var callErr error
		resp, callErr = g.inner.Complete(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ModelID implements llm.Client.
func (g *GuardedClient) ModelID() string {
	return g.inner.ModelID()
}

// BreakerState exposes the breaker state for readiness reporting.
func (g *GuardedClient) BreakerState() State {
	return g.breaker.State()
}
