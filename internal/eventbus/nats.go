package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/cadence/internal/events"
	"github.com/friendsincode/cadence/internal/telemetry"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Subject       string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       "cadence.events",
		Name:          "cadence",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus publishes events to NATS subjects of the form <subject>.<event_type>
// and mirrors them onto an in-process bus for local subscribers.
type NATSBus struct {
	conn   *nats.Conn
	cfg    NATSConfig
	local  *events.Bus
	nodeID string
	logger zerolog.Logger
}

// NewNATSBus connects to NATS. Reconnects are handled by the client.
func NewNATSBus(cfg NATSConfig, local *events.Bus, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	logger = logger.With().Str("component", "eventbus").Str("backend", "nats").Logger()

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	logger.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("NATS event bus initialized")
	return &NATSBus{conn: conn, cfg: cfg, local: local, nodeID: nodeID, logger: logger}, nil
}

// Publish implements events.Publisher. Remote failures are logged and counted, never returned.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	if nb.local != nil {
		nb.local.Publish(eventType, payload)
	}

	data, err := encodeMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}
	if err := nb.conn.Publish(subject(nb.cfg.Subject, eventType), data); err != nil {
		telemetry.EventPublishErrorsTotal.WithLabelValues("nats").Inc()
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

// Watch subscribes to every event under the configured subject.
func (nb *NATSBus) Watch(ctx context.Context, h Handler) error {
	sub, err := nb.conn.Subscribe(nb.cfg.Subject+".>", func(m *nats.Msg) {
		msg, err := decodeMessage(m.Data)
		if err != nil {
			nb.logger.Warn().Err(err).Str("subject", m.Subject).Msg("dropping undecodable message")
			return
		}
		h(msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", nb.cfg.Subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	<-ctx.Done()
	return nil
}

// Close drains pending publishes and closes the connection.
func (nb *NATSBus) Close() error {
	nb.logger.Info().Msg("closing NATS event bus")
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return err
	}
	return nil
}
