package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ErrPortClosed is returned from Emit/Request once the connection is gone.
var ErrPortClosed = errors.New("signaling port closed")

// envelope is the wire frame for websocket signaling. Acks are correlated by
// AckID: a request carries a fresh id, the server echoes it on the reply.
type envelope struct {
	Type    string          `json:"type"`
	AckID   string          `json:"ack_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebsocketConfig holds connection tuning for the websocket transport.
type WebsocketConfig struct {
	URL            string
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

// DefaultWebsocketConfig returns the default websocket tuning.
func DefaultWebsocketConfig(url string) WebsocketConfig {
	return WebsocketConfig{
		URL:            url,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// WebsocketPort is a Port over one gorilla/websocket connection. The process
// typically holds a single instance shared by all coordinators; handlers are
// scoped per registration so sessions do not leak into each other.
type WebsocketPort struct {
	*Dispatcher

	cfg  WebsocketConfig
	conn *websocket.Conn
	send chan []byte

	pendingMu sync.Mutex
	pending   map[string]chan json.RawMessage

	closed    chan struct{}
	closeOnce sync.Once
}

// DialWebsocket connects and starts the read/write pumps.
func DialWebsocket(ctx context.Context, cfg WebsocketConfig) (*WebsocketPort, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling websocket: %w", err)
	}

	p := &WebsocketPort{
		Dispatcher: NewDispatcher(),
		cfg:        cfg,
		conn:       conn,
		send:       make(chan []byte, cfg.SendBuffer),
		pending:    make(map[string]chan json.RawMessage),
		closed:     make(chan struct{}),
	}

	go p.writePump()
	go p.readPump()

	log.Info().Str("url", cfg.URL).Msg("signaling websocket connected")
	return p, nil
}

// Emit sends one event, fire and forget.
func (p *WebsocketPort) Emit(event string, payload any) error {
	return p.enqueue(envelope{Type: event}, payload)
}

// Request sends one event and waits for the correlated ack.
func (p *WebsocketPort) Request(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	ackID := uuid.New().String()
	replyCh := make(chan json.RawMessage, 1)

	p.pendingMu.Lock()
	p.pending[ackID] = replyCh
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, ackID)
		p.pendingMu.Unlock()
	}()

	if err := p.enqueue(envelope{Type: event, AckID: ackID}, payload); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrPortClosed
	}
}

func (p *WebsocketPort) enqueue(env envelope, payload any) error {
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", env.Type, err)
		}
		env.Payload = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}

	select {
	case <-p.closed:
		return ErrPortClosed
	case p.send <- frame:
		return nil
	default:
		return fmt.Errorf("emit %s: send buffer full", env.Type)
	}
}

// Close tears the connection down. Pending requests fail with ErrPortClosed.
func (p *WebsocketPort) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.conn.Close()
		log.Info().Str("url", p.cfg.URL).Msg("signaling websocket closed")
	})
	return nil
}

func (p *WebsocketPort) writePump() {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		p.Close()
	}()

	for {
		select {
		case <-p.closed:
			return
		case frame := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Msg("signaling write failed")
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Msg("signaling ping failed")
				return
			}
		}
	}
}

func (p *WebsocketPort) readPump() {
	defer p.Close()

	p.conn.SetReadLimit(p.cfg.MaxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))
		return nil
	})

	for {
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Msg("signaling websocket closed unexpectedly")
			}
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(p.cfg.ReadTimeout))

		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			log.Warn().Err(err).Msg("dropping malformed signaling frame")
			continue
		}

		if env.AckID != "" {
			p.pendingMu.Lock()
			replyCh, ok := p.pending[env.AckID]
			if ok {
				delete(p.pending, env.AckID)
			}
			p.pendingMu.Unlock()
			if ok {
				replyCh <- env.Payload
				continue
			}
			// Fall through: an ack id we never issued is treated as a plain
			// event so stale replies cannot swallow broadcasts.
		}

		p.Dispatch(env.Type, env.Payload)
	}
}
