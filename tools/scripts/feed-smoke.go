// Package main provides a CI-friendly smoke test for the invtrack access feed.
//
// It validates:
//   - handshake + subprotocol selection with the operator key
//   - hello/ack session establishment and backlog replay
//   - a redemption of -token shows up as a live access.new event
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	feedSubprotocol = "invtrack.feed.v1"
	protocolVersion = 1
	maxReadBytes    = 1 << 20 // 1MiB
)

type envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

type accessAttempt struct {
	ID          string `json:"id"`
	ShareLinkID string `json:"share_link_id"`
	Outcome     string `json:"outcome"`
}

type smokeClient struct {
	conn      *websocket.Conn
	sessionID string

	inbox chan envelope
	errCh chan error
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "invtrack base URL")
		origin  = flag.String("origin", "http://localhost", "Origin header to send (browser-like WS handshake)")
		key     = flag.String("key", os.Getenv("INVTRACK_ADMIN_KEY"), "Operator key (default $INVTRACK_ADMIN_KEY)")
		backlog = flag.Int("backlog", 5, "Backlog size to request in hello")
		tok     = flag.String("token", "", "Share token to redeem; its attempt must arrive live")
		email   = flag.String("email", "", "Email to supply when redeeming -token")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	wsURL, err := feedURL(*baseURL)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}
	if err := validateOrigin(*origin); err != nil {
		fatalf("invalid -origin: %v", err)
	}
	if strings.TrimSpace(*key) == "" {
		fatalf("operator key required (-key or INVTRACK_ADMIN_KEY)")
	}

	root := context.Background()

	c := mustConnect(root, wsURL, *origin, *key, *timeout)
	defer closeWS(c.conn)

	replayed := c.mustHello(root, *backlog, *timeout)
	if *verbose {
		fmt.Printf("connected: session=%s backlog=%d\n", c.sessionID, replayed)
	}

	if *tok != "" {
		status := mustRedeem(root, *baseURL, *tok, *email, *timeout)
		env := c.mustReadUntilType(root, "access.new", *timeout)

		var a accessAttempt
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			fatalf("unmarshal access.new payload: %v", err)
		}
		if a.ShareLinkID == "" || a.Outcome == "" {
			fatalf("access.new missing fields: %+v", a)
		}
		if *verbose {
			fmt.Printf("redeemed: status=%d link=%s outcome=%s\n", status, a.ShareLinkID, a.Outcome)
		}
	}

	fmt.Println("OK: feed smoke passed")
}

func feedURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("missing host")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/admin/share-accesses/ws"
	return u.String(), nil
}

func validateOrigin(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin must be http/https, got: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("origin missing host")
	}
	return nil
}

func mustConnect(parent context.Context, wsURL, origin, key string, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	h := http.Header{}
	h.Set("Authorization", "Bearer "+key)
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		Subprotocols: []string{feedSubprotocol},
		HTTPHeader:   h,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			fatalf("connect: %v (status %d)", err, resp.StatusCode)
		}
		fatalf("connect: %v", err)
	}

	if got := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol")); got != "" && got != feedSubprotocol {
		fatalf("subprotocol mismatch: got=%q want=%q", got, feedSubprotocol)
	}

	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{
		conn:  conn,
		inbox: make(chan envelope, 512),
		errCh: make(chan error, 1),
	}
	c.startReadLoop()
	return c
}

// mustHello subscribes and drains the backlog replay, returning its length.
func (c *smokeClient) mustHello(parent context.Context, backlog int, stepTimeout time.Duration) int {
	hello := envelope{
		V:       protocolVersion,
		Type:    "hello",
		ID:      "smoke-hello",
		TS:      time.Now().UTC(),
		Payload: mustJSON(map[string]int{"backlog": backlog}),
	}
	mustWriteWithTimeout(parent, c.conn, hello, stepTimeout)

	ack := c.mustReadUntilType(parent, "hello.ack", stepTimeout)

	var p struct {
		SessionID string `json:"session_id"`
		Backlog   int    `json:"backlog"`
	}
	if err := json.Unmarshal(ack.Payload, &p); err != nil {
		fatalf("unmarshal hello.ack payload: %v", err)
	}
	if strings.TrimSpace(p.SessionID) == "" {
		fatalf("hello.ack missing session_id")
	}
	c.sessionID = p.SessionID

	for i := 0; i < p.Backlog; i++ {
		c.mustReadUntilType(parent, "access.new", stepTimeout)
	}
	return p.Backlog
}

func mustRedeem(parent context.Context, baseURL, tok, email string, stepTimeout time.Duration) int {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	u := strings.TrimRight(baseURL, "/") + "/share/" + url.PathEscape(tok)
	if email != "" {
		u += "?email=" + url.QueryEscape(email)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		fatalf("redeem request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fatalf("redeem: %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		fatalf("redeem: token unknown (404), no attempt is recorded")
	}
	return resp.StatusCode
}

func (c *smokeClient) startReadLoop() {
	go func() {
		defer close(c.inbox)

		for {
			mt, data, err := c.conn.Read(context.Background())
			if err != nil {
				select {
				case c.errCh <- err:
				default:
				}
				return
			}
			if mt != websocket.MessageText {
				select {
				case c.errCh <- fmt.Errorf("unsupported message type: %v", mt):
				default:
				}
				return
			}

			var env envelope
			if err := json.Unmarshal(data, &env); err != nil {
				select {
				case c.errCh <- fmt.Errorf("bad json: %w", err):
				default:
				}
				return
			}
			if env.V != protocolVersion || env.Type == "" {
				select {
				case c.errCh <- fmt.Errorf("bad envelope: v=%d type=%q", env.V, env.Type):
				default:
				}
				return
			}

			select {
			case c.inbox <- env:
			default:
				select {
				case c.errCh <- errors.New("inbox overflow: consumer too slow"):
				default:
				}
				return
			}
		}
	}()
}

func (c *smokeClient) mustReadUntilType(parent context.Context, wantType string, stepTimeout time.Duration) envelope {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			fatalf("timeout waiting for %q: %v", wantType, ctx.Err())
		case err := <-c.errCh:
			if err == nil {
				fatalf("connection closed while waiting for %q", wantType)
			}
			fatalf("connection error while waiting for %q: %v", wantType, err)
		case env, ok := <-c.inbox:
			if !ok {
				fatalf("connection closed while waiting for %q", wantType)
			}
			if env.Type == wantType {
				return env
			}
			if env.Type == "error" {
				var ep struct{ Code, Message string }
				_ = json.Unmarshal(env.Payload, &ep)
				fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
			}
			fatalf("unexpected envelope type: got=%q want=%q", env.Type, wantType)
		}
	}
}

func mustWriteWithTimeout(parent context.Context, conn *websocket.Conn, env envelope, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		fatalf("marshal envelope: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write failed: %v", err)
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
