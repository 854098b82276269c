package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"invtrack/cmd/internal/audit"
	"invtrack/cmd/inventory/ids"

	"github.com/coder/websocket"
)

// Subprotocol is the only subprotocol the feed accepts.
const Subprotocol = "invtrack.feed.v1"

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3
)

// Backlog supplies recent attempts replayed after hello. *audit.Log
// satisfies it.
type Backlog interface {
	ListRecent(ctx context.Context, limit int) ([]audit.AccessAttempt, error)
}

// GatewayConfig tunes the feed socket.
type GatewayConfig struct {
	// OriginRequired rejects handshakes without an Origin header.
	OriginRequired bool
	// AllowedOrigins lists full origins or hosts; "*" allows any.
	AllowedOrigins []string
	// InsecureSkipVerify disables websocket.Accept's own origin check (dev only).
	InsecureSkipVerify bool

	WriteTimeout     time.Duration
	SendQueueSize    int
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration
	// FrameBudget inbound frames are allowed per FrameWindow before the
	// session is closed with a policy violation.
	FrameBudget int
	FrameWindow time.Duration
}

// DefaultGatewayConfig returns localhost-only defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   false,
		AllowedOrigins:   []string{"http://localhost", "http://127.0.0.1"},
		WriteTimeout:     wsDefaultWriteTimeout,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		FrameBudget:      frameBudgetFrames,
		FrameWindow:      frameBudgetWindow,
	}
}

// FeedGateway serves the operator live feed of access attempts.
//
// Protocol: the client sends hello (optionally asking for a backlog), the
// server answers hello.ack, replays the backlog oldest first, then streams
// access.new envelopes as attempts are recorded.
type FeedGateway struct {
	log     *slog.Logger
	hub     *Hub
	backlog Backlog
	cfg     GatewayConfig

	// Derived for websocket.Accept origin checks.
	originPatterns []string
}

// NewFeedGateway constructs a gateway. backlog may be nil.
func NewFeedGateway(log *slog.Logger, hub *Hub, backlog Backlog, cfg GatewayConfig) *FeedGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log, nil)
	}
	def := DefaultGatewayConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendQueueSize < wsMinSendQueueSize {
		cfg.SendQueueSize = max(def.SendQueueSize, wsMinSendQueueSize)
	}
	if cfg.HeartbeatEvery <= 0 {
		cfg.HeartbeatEvery = def.HeartbeatEvery
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}

	return &FeedGateway{
		log:            log,
		hub:            hub,
		backlog:        backlog,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// ServeHTTP upgrades the request and runs the feed session.
func (g *FeedGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("feed.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       []string{Subprotocol},
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.InsecureSkipVerify,
	})
	if err != nil {
		g.log.Error("feed.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		g.log.Info("feed.reject.subprotocol", "got", sp, "want", Subprotocol)
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	sessionID, err := ids.NewULID(time.Now())
	if err != nil {
		g.log.Error("feed.session_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	client := NewClient(sessionID, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unsubscribe(sessionID)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Closed by the hub on shutdown, or by shutdown itself.
				shutdown(websocket.StatusGoingAway, "server closing")
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
					g.log.Info("feed.write.fail", "session_id", sessionID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err != nil {
					failures++
					g.log.Info("feed.ping.fail", "session_id", sessionID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	g.log.Info("feed.connect", "session_id", sessionID, "remote", r.RemoteAddr)

	budget := newFrameBudget(g.cfg.FrameBudget, g.cfg.FrameWindow)
	subscribed := false

readLoop:
	for {
		env, err := readEnvelope(ctx, conn)
		badJSON := false
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				badJSON = true
			default:
				g.log.Info("feed.read.fail", "session_id", sessionID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		// Every received frame is charged, malformed ones included.
		if !budget.spend(time.Now().UTC()) {
			g.log.Warn("feed.rate_limited", "session_id", sessionID, "remote", r.RemoteAddr)
			g.hub.metrics.FeedRateLimited()
			g.sendErrorNow(ctx, conn, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if badJSON {
			g.trySendError(ctx, client, "bad_json", "invalid JSON")
			continue readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, "bad_envelope", err.Error())
			continue readLoop
		}

		switch env.Type {
		case TypeHello:
			if subscribed {
				g.trySendError(ctx, client, "already_subscribed", "hello already received")
				continue readLoop
			}
			if err := g.onHello(ctx, client, env); err != nil {
				g.trySendError(ctx, client, "hello_failed", err.Error())
				shutdown(websocket.StatusPolicyViolation, "hello failed")
				break readLoop
			}
			subscribed = true
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
	g.log.Info("feed.disconnect", "session_id", sessionID)
}

func (g *FeedGateway) onHello(ctx context.Context, client *Client, env Envelope) error {
	var p HelloPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	n := p.Backlog
	if n < 0 {
		n = 0
	}
	if n > maxBacklog {
		n = maxBacklog
	}

	var recent []audit.AccessAttempt
	if n > 0 && g.backlog != nil {
		var err error
		if recent, err = g.backlog.ListRecent(ctx, n); err != nil {
			g.log.Warn("feed.backlog.fail", "session_id", client.SessionID, "err", err)
			recent = nil
		}
	}

	now := time.Now().UTC()
	ack, err := newEnvelope(TypeHelloAck, HelloAckPayload{SessionID: client.SessionID, Backlog: len(recent)}, now)
	if err != nil {
		return err
	}
	if !g.enqueue(ctx, client, ack) {
		return errors.New("backpressure: hello.ack")
	}

	// Oldest first. Attempts recorded between the backlog read and Subscribe
	// are not replayed.
	for i := len(recent) - 1; i >= 0; i-- {
		e, err := newEnvelope(TypeAccessNew, recent[i], now)
		if err != nil {
			return err
		}
		if !g.enqueue(ctx, client, e) {
			return errors.New("backpressure: backlog")
		}
	}

	g.hub.Subscribe(client)
	return nil
}

func (g *FeedGateway) trySendError(ctx context.Context, client *Client, code, msg string) {
	env, err := newEnvelope(TypeError, ErrorPayload{Code: code, Message: msg}, time.Now().UTC())
	if err != nil {
		g.log.Warn("feed.encode.fail", "code", code, "err", err)
		return
	}
	_ = g.enqueue(ctx, client, env)
}

// sendErrorNow writes an error envelope directly, bypassing the send queue, so
// it reaches the peer before the session is closed.
func (g *FeedGateway) sendErrorNow(ctx context.Context, conn *websocket.Conn, code, msg string) {
	env, err := newEnvelope(TypeError, ErrorPayload{Code: code, Message: msg}, time.Now().UTC())
	if err != nil {
		g.log.Warn("feed.encode.fail", "code", code, "err", err)
		return
	}
	if err := writeEnvelope(ctx, conn, env, g.cfg.WriteTimeout); err != nil {
		g.log.Info("feed.write.fail", "code", code, "err", err)
	}
}

func (g *FeedGateway) enqueue(ctx context.Context, client *Client, env Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, errBadJSON{err}
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

type errBadJSON struct{ err error }

func (e errBadJSON) Error() string { return "bad json: " + e.err.Error() }
func (e errBadJSON) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad errBadJSON
	switch {
	case errors.As(err, &bad):
		return readErrBadJSON
	case websocket.CloseStatus(err) != -1:
		return readErrClose
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return readErrCtxDone
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return readErrConnClosed
	}
	return readErrUnknown
}

func (g *FeedGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" || origin == a {
			return nil
		}
		// Host match ignores scheme and port.
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns turns the allowlist into websocket.Accept host
// patterns so both origin checks agree.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			seen["*"] = struct{}{}
			continue
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}
