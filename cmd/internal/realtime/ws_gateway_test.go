package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"invtrack/cmd/internal/audit"

	"github.com/coder/websocket"
)

type staticBacklog []audit.AccessAttempt

func (b staticBacklog) ListRecent(_ context.Context, limit int) ([]audit.AccessAttempt, error) {
	if limit < len(b) {
		return b[:limit], nil
	}
	return b, nil
}

func startFeedServer(t *testing.T, gw *FeedGateway) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/feed", gw)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func dialFeed(t *testing.T, baseHTTPURL, origin string, subprotocols ...string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	u, err := url.Parse(baseHTTPURL)
	if err != nil {
		t.Fatalf("url.Parse: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/feed"

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}
	if subprotocols == nil {
		subprotocols = []string{Subprotocol}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		Subprotocols: subprotocols,
		HTTPHeader:   h,
	})
}

func writeEnvelopeWS(t *testing.T, conn *websocket.Conn, env Envelope) {
	t.Helper()
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		t.Fatalf("conn.Write: %v", err)
	}
}

func readEnvelopeWS(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, b, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("conn.Read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func hello(t *testing.T, backlog int) Envelope {
	t.Helper()
	env, err := newEnvelope(TypeHello, HelloPayload{Backlog: backlog}, time.Now().UTC())
	if err != nil {
		t.Fatalf("hello: %v", err)
	}
	return env
}

func waitSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers: got %d want %d", h.Len(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFeedGateway_HelloBacklogThenLive(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger(), nil)
	backlog := staticBacklog{
		{ID: "newest", Outcome: audit.OutcomeGone},
		{ID: "older", Outcome: audit.OutcomeAllowed},
		{ID: "oldest", Outcome: audit.OutcomeForbidden},
	}
	gw := NewFeedGateway(quietLogger(), hub, backlog, DefaultGatewayConfig())
	ts := startFeedServer(t, gw)

	conn, _, err := dialFeed(t, ts.URL, "http://localhost")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	writeEnvelopeWS(t, conn, hello(t, 2))

	ack := readEnvelopeWS(t, conn)
	if ack.Type != TypeHelloAck {
		t.Fatalf("first frame: got %s want %s", ack.Type, TypeHelloAck)
	}
	var ap HelloAckPayload
	if err := json.Unmarshal(ack.Payload, &ap); err != nil || ap.SessionID == "" || ap.Backlog != 2 {
		t.Fatalf("ack payload: %+v %v", ap, err)
	}

	for _, want := range []string{"older", "newest"} {
		env := readEnvelopeWS(t, conn)
		var a audit.AccessAttempt
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			t.Fatalf("backlog payload: %v", err)
		}
		if env.Type != TypeAccessNew || a.ID != want {
			t.Fatalf("backlog: got %s/%s want %s", env.Type, a.ID, want)
		}
	}

	waitSubscribers(t, hub, 1)
	hub.PublishAccess(audit.AccessAttempt{ID: "live-1", Outcome: audit.OutcomeAllowed, Success: true})

	env := readEnvelopeWS(t, conn)
	var a audit.AccessAttempt
	if err := json.Unmarshal(env.Payload, &a); err != nil || a.ID != "live-1" {
		t.Fatalf("live event: %+v %v", a, err)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	waitSubscribers(t, hub, 0)
}

func TestFeedGateway_RejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	gw := NewFeedGateway(quietLogger(), nil, nil, DefaultGatewayConfig())
	ts := startFeedServer(t, gw)

	_, resp, err := dialFeed(t, ts.URL, "https://evil.example")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestFeedGateway_OriginRequired(t *testing.T) {
	t.Parallel()

	cfg := DefaultGatewayConfig()
	cfg.OriginRequired = true
	gw := NewFeedGateway(quietLogger(), nil, nil, cfg)
	ts := startFeedServer(t, gw)

	_, resp, err := dialFeed(t, ts.URL, "")
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without origin, got err=%v", err)
	}
}

func TestFeedGateway_BadEnvelopeGetsError(t *testing.T) {
	t.Parallel()

	hub := NewHub(quietLogger(), nil)
	gw := NewFeedGateway(quietLogger(), hub, nil, DefaultGatewayConfig())
	ts := startFeedServer(t, gw)

	conn, _, err := dialFeed(t, ts.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := readEnvelopeWS(t, conn)
	var p ErrorPayload
	_ = json.Unmarshal(env.Payload, &p)
	if env.Type != TypeError || p.Code != "bad_json" {
		t.Fatalf("got %s/%s want error/bad_json", env.Type, p.Code)
	}

	writeEnvelopeWS(t, conn, Envelope{V: Version, Type: TypeAccessNew, ID: "x", Payload: json.RawMessage(`{}`)})
	env = readEnvelopeWS(t, conn)
	_ = json.Unmarshal(env.Payload, &p)
	if env.Type != TypeError || p.Code != "bad_envelope" {
		t.Fatalf("got %s/%s want error/bad_envelope", env.Type, p.Code)
	}
	if hub.Len() != 0 {
		t.Fatalf("client subscribed without hello")
	}
}

func TestFeedGateway_ClosesSessionOverFrameBudget(t *testing.T) {
	t.Parallel()

	cfg := DefaultGatewayConfig()
	cfg.FrameBudget = 2
	cfg.FrameWindow = time.Minute
	gw := NewFeedGateway(quietLogger(), NewHub(quietLogger(), nil), nil, cfg)
	ts := startFeedServer(t, gw)

	conn, _, err := dialFeed(t, ts.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Malformed frames count against the budget too.
	for i := 0; i < 2; i++ {
		if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		if env := readEnvelopeWS(t, conn); env.Type != TypeError {
			t.Fatalf("frame %d: got %s want error", i, env.Type)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write over budget: %v", err)
	}

	env := readEnvelopeWS(t, conn)
	var p ErrorPayload
	_ = json.Unmarshal(env.Payload, &p)
	if env.Type != TypeError || p.Code != "rate_limited" {
		t.Fatalf("got %s/%s want error/rate_limited", env.Type, p.Code)
	}

	_, _, err = conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Fatalf("close status: got %v want %v (err=%v)", got, websocket.StatusPolicyViolation, err)
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	t.Parallel()

	got := deriveOriginPatterns([]string{"http://localhost:3000", "https://ops.example.com", "LOCALHOST", " "})
	want := []string{"localhost", "ops.example.com"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
