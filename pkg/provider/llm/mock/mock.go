// Package mock provides a configurable in-memory llm.Client for tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/relayline/frontdesk/pkg/provider/llm"
)

// Client is a mock llm.Client. Configure the exported fields before use;
// every Complete call is recorded and can be inspected afterwards.
type Client struct {
	mu sync.Mutex

	// Responses are returned in order; when exhausted, the last entry
	// repeats. Empty Responses yields Text "".
	Responses []string

	// Err, when set, is returned by every Complete call.
	Err error

	// Delay is slept (context-aware) before responding, to exercise
	// deadline handling.
	Delay time.Duration

	// TokensIn and TokensOut populate the response accounting fields.
	TokensIn  int
	TokensOut int

	// Model is what ModelID reports. Defaults to "mock-model".
	Model string

	calls []llm.Request
	next  int
}

var _ llm.Client = (*Client)(nil)

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if c.Delay > 0 {
		select {
		case <-time.After(c.Delay):
		case <-ctx.Done():
			return nil, llm.ErrDeadline
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, req)
	if c.Err != nil {
		return nil, c.Err
	}

	var text string
	if len(c.Responses) > 0 {
		i := c.next
		if i >= len(c.Responses) {
			i = len(c.Responses) - 1
		}
		text = c.Responses[i]
		c.next++
	}

	return &llm.Response{
		Text:      text,
		TokensIn:  c.TokensIn,
		TokensOut: c.TokensOut,
		Latency:   c.Delay,
	}, nil
}

// ModelID implements llm.Client.
func (c *Client) ModelID() string {
	if c.Model == "" {
		return "mock-model"
	}
	return c.Model
}

// Calls returns a copy of the recorded requests.
func (c *Client) Calls() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]llm.Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of Complete invocations so far.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
