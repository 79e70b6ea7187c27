package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/relayline/frontdesk/internal/callstate"
	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/turn"
	"github.com/relayline/frontdesk/pkg/store/memstore"
)

func testRunner(t *testing.T) (*turn.Runner, *callstate.Store) {
	t.Helper()
	cfg := config.Resolve(nil, &config.CompanyConfig{
		CompanyID: "acme-plumbing",
		Version:   1,
		Enabled:   true,
		Behavior:  config.BehaviorConfig{AckWord: "Okay."},
		Triggers: []config.TriggerCard{{
			ID: "card-hours", Enabled: true, Priority: 10,
			Match:  config.TriggerMatch{Keywords: []string{"hours"}},
			Answer: config.TriggerAnswer{Text: "We are open 8 to 6."},
		}},
		Fallback: config.FallbackConfig{
			EmergencyLine: "Let me get someone who can help.",
			NoMatchAnswer: "What can I help you with?",
		},
	})

	configs := memstore.NewConfigStore()
	configs.Put(cfg.CompanyID, cfg)
	states := callstate.NewStore()
	return turn.NewRunner(configs, states, &memstore.EventSink{}), states
}

func newTestServer(t *testing.T) (*httptest.Server, *callstate.Store) {
	t.Helper()
	runner, states := testRunner(t)
	srv := httptest.NewServer(New(Config{}, runner, nil, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, states
}

func postTurn(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/turn", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/turn: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandleTurn_OK(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postTurn(t, srv,
		`{"call_id":"call-1","company_id":"acme-plumbing","turn_index":1,"raw_text":"what are your hours"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var out turnResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ResponseText != "Okay. We are open 8 to 6." {
		t.Errorf("response_text = %q", out.ResponseText)
	}
	if out.MatchSource != "discovery" {
		t.Errorf("match_source = %q", out.MatchSource)
	}
}

func TestHandleTurn_Validation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"call_id":`},
		{"missing call_id", `{"company_id":"acme-plumbing","turn_index":1,"raw_text":"hi"}`},
		{"missing company_id", `{"call_id":"call-1","turn_index":1,"raw_text":"hi"}`},
		{"zero turn_index", `{"call_id":"call-1","company_id":"acme-plumbing","raw_text":"hi"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := postTurn(t, srv, tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var e errorResponse
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
				t.Errorf("error body = %+v (%v)", e, err)
			}
		})
	}
}

func TestHandleTurn_UnknownCompany(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postTurn(t, srv,
		`{"call_id":"call-1","company_id":"ghost","turn_index":1,"raw_text":"hi"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var e errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(e.Error, "ghost") {
		t.Errorf("error = %q, want company id named", e.Error)
	}
}

func TestHandleEndCall(t *testing.T) {
	srv, states := newTestServer(t)

	postTurn(t, srv,
		`{"call_id":"call-9","company_id":"acme-plumbing","turn_index":1,"raw_text":"hello there friend"}`)
	if states.Active() != 1 {
		t.Fatalf("Active = %d, want 1", states.Active())
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/call/call-9", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if states.Active() != 0 {
		t.Errorf("Active = %d, want 0", states.Active())
	}
}

func TestProbesAndMetricsRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestHandleStream_TurnRoundTrip(t *testing.T) {
	srv, states := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	req := `{"call_id":"call-ws","company_id":"acme-plumbing","turn_index":1,"raw_text":"what are your hours"}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(req)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var out turnResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	if out.ResponseText != "Okay. We are open 8 to 6." {
		t.Errorf("response_text = %q", out.ResponseText)
	}
	if states.Active() != 1 {
		t.Errorf("Active = %d, want 1 while streaming", states.Active())
	}
}

func TestHandleStream_InvalidRequestKeepsConnection(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"turn_index":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var e errorResponse
	if err := json.Unmarshal(data, &e); err != nil || e.Error == "" {
		t.Fatalf("error frame = %q (%v)", data, err)
	}

	// The connection still serves turns after a bad frame.
	good := `{"call_id":"call-ws","company_id":"acme-plumbing","turn_index":1,"raw_text":"hours"}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(good)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, data, err = conn.Read(ctx); err != nil {
		t.Fatalf("Read: %v", err)
	}
	var out turnResponse
	if err := json.Unmarshal(data, &out); err != nil || out.ResponseText == "" {
		t.Errorf("turn frame = %q (%v)", data, err)
	}
}

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		in      turn.Input
		wantErr bool
	}{
		{"valid", turn.Input{CallID: "c", CompanyID: "a", TurnIndex: 1}, false},
		{"blank call id", turn.Input{CallID: "  ", CompanyID: "a", TurnIndex: 1}, true},
		{"blank company", turn.Input{CallID: "c", TurnIndex: 1}, true},
		{"zero index", turn.Input{CallID: "c", CompanyID: "a"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateInput(tc.in)
			if (err != nil) != tc.wantErr {
				t.Errorf("validateInput = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
