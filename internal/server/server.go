// Package server exposes the turn pipeline over HTTP for the telephony
// gateway:
//
//   - POST /v1/turn: process one turn, JSON in / JSON out.
//   - GET /v1/stream: websocket, one connection per call, one JSON turn
//     request per caller utterance, responses on the same connection.
//   - DELETE /v1/call/{id}: end-of-call signal releasing call state.
//   - /healthz, /readyz, /metrics: probes and Prometheus scrape.
//
// Authentication and multi-node call routing are handled upstream by the
// gateway; this server trusts its peer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/relayline/frontdesk/internal/health"
	"github.com/relayline/frontdesk/internal/observe"
	"github.com/relayline/frontdesk/internal/turn"
	"github.com/relayline/frontdesk/pkg/store"
)

// maxTurnBody caps the request body for a single turn. Caller utterances
// are short; anything larger is a protocol error.
const maxTurnBody = 64 << 10

// Config holds the HTTP server settings.
type Config struct {
	// Addr is the listen address. Default ":8080".
	Addr string

	// ReadHeaderTimeout guards against slow-header clients. Default 5s.
	ReadHeaderTimeout time.Duration

	// ShutdownTimeout bounds graceful drain on stop. Default 10s.
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server serves the turn API. Construct with [New], start with [Run].
type Server struct {
	cfg     Config
	runner  *turn.Runner
	checks  *health.Handler
	metrics *observe.Metrics
}

// New creates a Server around the given runner. checks may be nil (probes
// then always report healthy) and metrics may be nil (middleware skipped).
func New(cfg Config, runner *turn.Runner, checks *health.Handler, metrics *observe.Metrics) *Server {
	cfg.applyDefaults()
	if checks == nil {
		checks = health.New()
	}
	return &Server{
		cfg:     cfg,
		runner:  runner,
		checks:  checks,
		metrics: metrics,
	}
}

// Handler builds the route table. Exposed for tests via httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/turn", s.handleTurn)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("DELETE /v1/call/{id}", s.handleEndCall)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.checks.Register(mux)

	if s.metrics != nil {
		return observe.Middleware(s.metrics)(mux)
	}
	return mux
}

// Run serves until ctx is cancelled, then drains connections within
// [Config.ShutdownTimeout]. Returns nil on clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shCtx)
	})
	return g.Wait()
}

// turnResponse is the wire shape of a processed turn.
type turnResponse struct {
	ResponseText string `json:"response_text"`
	AudioURL     string `json:"audio_url,omitempty"`
	MatchSource  string `json:"match_source"`
}

// errorResponse is the wire shape of a request failure.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var in turn.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTurnBody))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validateInput(in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.runner.ProcessTurn(r.Context(), in)
	if err != nil {
		s.writeTurnError(w, r.Context(), in, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{
		ResponseText: out.ResponseText,
		AudioURL:     out.AudioURL,
		MatchSource:  out.MatchSource,
	})
}

// writeTurnError maps a ProcessTurn failure to an HTTP status. The only
// error path out of the runner is config loading.
func (s *Server) writeTurnError(w http.ResponseWriter, ctx context.Context, in turn.Input, err error) {
	observe.Logger(ctx).Error("turn failed",
		"call_id", in.CallID, "company_id", in.CompanyID, "error", err)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown company: "+in.CompanyID)
		return
	}
	writeError(w, http.StatusInternalServerError, "turn processing failed")
}

func (s *Server) handleEndCall(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("id")
	if callID == "" {
		writeError(w, http.StatusBadRequest, "missing call id")
		return
	}
	s.runner.EndCall(callID)
	w.WriteHeader(http.StatusNoContent)
}

// handleStream upgrades to a websocket and processes one JSON turn request
// per message. The gateway keeps one connection per call, so requests for
// a call arrive in order; the state store serializes per call id as well.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()
	var lastCallID string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				break
			}
			if ctx.Err() != nil {
				break
			}
			slog.Warn("websocket read failed", "call_id", lastCallID, "error", err)
			break
		}

		var in turn.Input
		if err := json.Unmarshal(data, &in); err != nil {
			s.writeStreamError(ctx, conn, "invalid turn request: "+err.Error())
			continue
		}
		if err := validateInput(in); err != nil {
			s.writeStreamError(ctx, conn, err.Error())
			continue
		}
		lastCallID = in.CallID

		out, err := s.runner.ProcessTurn(ctx, in)
		if err != nil {
			observe.Logger(ctx).Error("turn failed",
				"call_id", in.CallID, "company_id", in.CompanyID, "error", err)
			s.writeStreamError(ctx, conn, "turn processing failed")
			continue
		}
		resp, err := json.Marshal(turnResponse{
			ResponseText: out.ResponseText,
			AudioURL:     out.AudioURL,
			MatchSource:  out.MatchSource,
		})
		if err != nil {
			s.writeStreamError(ctx, conn, "response encoding failed")
			continue
		}
		if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
			slog.Warn("websocket write failed", "call_id", in.CallID, "error", err)
			break
		}
	}

	if lastCallID != "" {
		s.runner.EndCall(lastCallID)
	}
	conn.Close(websocket.StatusNormalClosure, "stream closed")
}

func (s *Server) writeStreamError(ctx context.Context, conn *websocket.Conn, msg string) {
	data, err := json.Marshal(errorResponse{Error: msg})
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("websocket error write failed", "error", err)
	}
}

func validateInput(in turn.Input) error {
	if strings.TrimSpace(in.CallID) == "" {
		return errors.New("call_id is required")
	}
	if strings.TrimSpace(in.CompanyID) == "" {
		return errors.New("company_id is required")
	}
	if in.TurnIndex < 1 {
		return errors.New("turn_index must be >= 1")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
