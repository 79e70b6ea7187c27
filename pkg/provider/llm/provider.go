// Package llm defines the language-model client abstraction used by the
// assist engine. Implementations live in subpackages:
//
//   - [github.com/relayline/frontdesk/pkg/provider/llm/openai] for the
//     OpenAI API
//   - [github.com/relayline/frontdesk/pkg/provider/llm/anyllm] for any
//     backend supported by github.com/mozilla-ai/any-llm-go
//   - [github.com/relayline/frontdesk/pkg/provider/llm/mock] for tests
//
// The contract is deliberately narrow: a single non-streaming completion
// with a system prompt and one user prompt. The assist engine validates
// and may discard every output, so streaming and tool calling buy nothing
// here.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrDeadline is returned (wrapped) when a completion did not finish
// before the per-turn deadline. The caller treats it like any other
// failure and falls back to a configured static answer.
var ErrDeadline = errors.New("llm: deadline exceeded")

// Request is a single completion request. The deadline travels on the
// context, not in the struct.
type Request struct {
	// Model names the backend model ("gpt-4o-mini"). Empty means the
	// client's configured default.
	Model string

	SystemPrompt string
	UserPrompt   string

	// Temperature of 0 means the backend default.
	Temperature float64

	// MaxTokens of 0 means no explicit cap.
	MaxTokens int
}

// Response is a completed generation with its accounting data.
type Response struct {
	Text string

	TokensIn  int
	TokensOut int

	// Latency is the wall-clock duration of the backend call.
	Latency time.Duration
}

// Client is a synchronous completion client. Implementations must be safe
// for concurrent use and must honour ctx cancellation.
type Client interface {
	// Complete runs one completion. A ctx deadline bounds the call;
	// on expiry the error wraps ErrDeadline.
	Complete(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the default model identifier, for usage records.
	ModelID() string
}
