// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz runs
// every registered [Checker] and answers 503 if any dependency fails, so
// the telephony gateway stops routing calls to a node whose database or
// LLM path is down. Both respond with a JSON body carrying a "status"
// field and, for readiness, a per-check "checks" map.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relayline/frontdesk/internal/resilience"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil when healthy; its
// error message is surfaced verbatim in the readiness response.
type Checker struct {
	// Name keys the check in the JSON response, e.g. "database".
	Name string

	// Check must respect context cancellation.
	Check func(ctx context.Context) error
}

// Database returns a [Checker] that pings the Postgres pool.
func Database(pool *pgxpool.Pool) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	}
}

// LLM returns a [Checker] that reports the LLM circuit breaker state. An
// open breaker fails readiness; half-open passes so traffic can probe the
// provider again.
func LLM(guard *resilience.GuardedClient) Checker {
	return Checker{
		Name: "llm",
		Check: func(_ context.Context) error {
			if s := guard.BreakerState(); s == resilience.StateOpen {
				return fmt.Errorf("circuit breaker open for %s", guard.ModelID())
			}
			return nil
		},
	}
}

// result is the probe response body.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves both probes over a fixed checker list.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler]. Checkers run sequentially, in the order given,
// on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz always answers 200.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz answers 200 only when every checker passes. Each check gets a
// [checkTimeout] deadline derived from the request context, and each
// failure is reported under its checker name with a "fail: " prefix.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	code := http.StatusOK

	for _, c := range h.checkers {
		if err := h.runCheck(r.Context(), c); err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
		} else {
			res.Checks[c.Name] = "ok"
		}
	}

	writeJSON(w, code, res)
}

func (h *Handler) runCheck(ctx context.Context, c Checker) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return c.Check(ctx)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
