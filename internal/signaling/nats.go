package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection settings for the NATS transport. Events map to
// subjects as "<prefix>.<event>".
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the default NATS settings.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "session",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPort is a Port over a core NATS connection. Emit publishes, Request
// uses request/reply, On subscribes per event subject. Useful for server-side
// harnesses and environments where the signaling backend fronts a bus.
type NATSPort struct {
	cfg NATSConfig
	nc  *nats.Conn
}

// ConnectNATS connects with the reconnect behavior owned by the nats client.
func ConnectNATS(cfg NATSConfig) (*NATSPort, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("signaling NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("signaling NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("signaling NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect signaling NATS: %w", err)
	}

	return &NATSPort{cfg: cfg, nc: nc}, nil
}

func (p *NATSPort) subject(event string) string {
	return p.cfg.SubjectPrefix + "." + event
}

// Emit publishes one event.
func (p *NATSPort) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	if err := p.nc.Publish(p.subject(event), data); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Request publishes one event and waits for the reply payload.
func (p *NATSPort) Request(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	msg, err := p.nc.RequestWithContext(ctx, p.subject(event), data)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", event, err)
	}
	return msg.Data, nil
}

// On subscribes a handler to an event subject. NATS delivers messages to one
// subscription serially, which preserves FIFO per event name.
func (p *NATSPort) On(event string, h Handler) Subscription {
	sub, err := p.nc.Subscribe(p.subject(event), func(msg *nats.Msg) {
		h(msg.Data)
	})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("signaling NATS subscribe failed")
		return noopSubscription{}
	}
	return natsSubscription{sub: sub}
}

// Close drains and closes the connection.
func (p *NATSPort) Close() error {
	p.nc.Close()
	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Cancel() {
	if err := s.sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("signaling NATS unsubscribe failed")
	}
}

type noopSubscription struct{}

func (noopSubscription) Cancel() {}
