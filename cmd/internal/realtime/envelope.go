package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"invtrack/cmd/inventory/ids"
)

// Version is the feed protocol version carried in every envelope.
const Version = 1

// Envelope types.
const (
	TypeHello     = "hello"
	TypeHelloAck  = "hello.ack"
	TypeAccessNew = "access.new"
	TypeError     = "error"
)

var clientTypes = map[string]struct{}{
	TypeHello: {},
}

// Envelope is the frame exchanged on the feed socket.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks a client-sent envelope.
func (e Envelope) Validate() error {
	if e.V != Version {
		return fmt.Errorf("invalid protocol version: got=%d want=%d", e.V, Version)
	}
	if e.Type == "" {
		return errors.New("missing type")
	}
	if _, ok := clientTypes[e.Type]; !ok {
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	if e.ID == "" {
		return errors.New("missing id")
	}
	if e.Payload == nil {
		return errors.New("missing payload")
	}
	return nil
}

// HelloPayload asks for up to Backlog recent attempts before live events.
type HelloPayload struct {
	Backlog int `json:"backlog,omitempty"`
}

// HelloAckPayload confirms the subscription.
type HelloAckPayload struct {
	SessionID string `json:"session_id"`
	Backlog   int    `json:"backlog"`
}

// ErrorPayload reports a protocol problem to the client.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newEnvelope(typ string, payload any, ts time.Time) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	id, err := ids.NewULID(ts)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{V: Version, Type: typ, ID: id, TS: ts, Payload: b}, nil
}
