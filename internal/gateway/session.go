package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Gateway opcodes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// Intents requested on identify: guild messages and message content.
const DefaultIntents = 1<<9 | 1<<15

// ErrReconnect is returned by a session the server asked to reconnect.
var ErrReconnect = errors.New("gateway requested reconnect")

type payload struct {
	Op   int             `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  *int64          `json:"s,omitempty"`
	Type string          `json:"t,omitempty"`
}

// Ready is the first dispatch of a session.
type Ready struct {
	User User `json:"user"`
}

// Handler receives dispatched events. Calls are sequential.
type Handler interface {
	Ready(ctx context.Context, r Ready)
	MessageCreate(ctx context.Context, m Message)
}

// Session connects to the event gateway.
type Session struct {
	URL     string
	Token   string
	Intents int
	Dialer  *websocket.Dialer
	Log     *slog.Logger

	// Backoff bounds the delay between reconnects in Run.
	MinBackoff, MaxBackoff time.Duration
}

// NewSession returns a Session with default intents and dialer.
func NewSession(url, token string, log *slog.Logger) *Session {
	return &Session{
		URL:        url,
		Token:      token,
		Intents:    DefaultIntents,
		Dialer:     websocket.DefaultDialer,
		Log:        log,
		MinBackoff: time.Second,
		MaxBackoff: time.Minute,
	}
}

// Run keeps a connection open until ctx is done, reconnecting with
// exponential backoff.
func (s *Session) Run(ctx context.Context, h Handler) error {
	backoff := s.MinBackoff
	for {
		start := time.Now()
		err := s.Connect(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) > s.MaxBackoff {
			backoff = s.MinBackoff
		}
		s.Log.Warn("Gateway connection closed, reconnecting", "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, s.MaxBackoff)
	}
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(op int, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(payload{Op: op, Data: raw})
}

// Connect runs one connection until it fails or ctx is done.
func (s *Session) Connect(ctx context.Context, h Handler) error {
	ws, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}
	c := &conn{ws: ws}
	defer ws.Close()

	var hello struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	var p payload
	if err := ws.ReadJSON(&p); err != nil {
		return fmt.Errorf("failed to read hello: %w", err)
	}
	if p.Op != opHello {
		return fmt.Errorf("expected hello, got op %d", p.Op)
	}
	if err := json.Unmarshal(p.Data, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid hello: %s", p.Data)
	}

	if err := c.send(opIdentify, map[string]any{
		"token":   s.Token,
		"intents": s.Intents,
		"properties": map[string]string{
			"os":      runtime.GOOS,
			"browser": "swablu",
			"device":  "swablu",
		},
	}); err != nil {
		return fmt.Errorf("failed to identify: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var seqMu sync.Mutex
	var seq *int64
	heartbeatErr := make(chan error, 1)
	go func() {
		t := time.NewTicker(time.Duration(hello.HeartbeatInterval) * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				seqMu.Lock()
				last := seq
				seqMu.Unlock()
				if err := c.send(opHeartbeat, last); err != nil {
					heartbeatErr <- err
					ws.Close()
					return
				}
			}
		}
	}()
	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	for {
		var p payload
		if err := ws.ReadJSON(&p); err != nil {
			select {
			case herr := <-heartbeatErr:
				return fmt.Errorf("heartbeat failed: %w", herr)
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read gateway event: %w", err)
		}
		if p.Seq != nil {
			seqMu.Lock()
			seq = p.Seq
			seqMu.Unlock()
		}

		switch p.Op {
		case opDispatch:
			s.dispatch(ctx, h, p)
		case opHeartbeat:
			seqMu.Lock()
			last := seq
			seqMu.Unlock()
			if err := c.send(opHeartbeat, last); err != nil {
				return fmt.Errorf("heartbeat failed: %w", err)
			}
		case opHeartbeatAck:
		case opReconnect, opInvalidSession:
			return ErrReconnect
		default:
			s.Log.Debug("Ignoring gateway opcode", "op", p.Op)
		}
	}
}

func (s *Session) dispatch(ctx context.Context, h Handler, p payload) {
	switch p.Type {
	case "READY":
		var r Ready
		if err := json.Unmarshal(p.Data, &r); err != nil {
			s.Log.Warn("Invalid READY payload", "error", err)
			return
		}
		h.Ready(ctx, r)
	case "MESSAGE_CREATE":
		var m Message
		if err := json.Unmarshal(p.Data, &m); err != nil {
			s.Log.Warn("Invalid MESSAGE_CREATE payload", "error", err)
			return
		}
		h.MessageCreate(ctx, m)
	}
}
