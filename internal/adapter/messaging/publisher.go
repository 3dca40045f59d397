// Package messaging publishes committed ledger events to NATS.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"learncoins-ledger/config"
	"learncoins-ledger/internal/core/domain"
	"learncoins-ledger/internal/core/ports"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
}

// Connect dials NATS with reconnect settings suitable for a long-running API.
func Connect(cfg config.NATSConfig, log zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("learncoins-ledger"),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connection established")
	return nc, nil
}

// Publisher implements ports.EventPublisher. Events go to "<prefix>.<type>".
type Publisher struct {
	conn   Conn
	prefix string
}

// NewPublisher creates a Publisher on an established connection.
func NewPublisher(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "ledger"
	}
	return &Publisher{conn: conn, prefix: prefix}
}

var _ ports.EventPublisher = (*Publisher)(nil)

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(t domain.EventType) string {
	return p.prefix + "." + string(t)
}

// Publish marshals the event and hands it to the connection. NATS core
// publishing is fire-and-forget; the error only covers local failures.
func (p *Publisher) Publish(ctx context.Context, event *domain.LedgerEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// NopPublisher drops every event. Used when no NATS URL is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *domain.LedgerEvent) error { return nil }

// HealthCheck implements ports.HealthChecker for the NATS connection.
type HealthCheck struct {
	conn Conn
}

// NewHealthCheck creates a NATS health checker.
func NewHealthCheck(conn Conn) *HealthCheck {
	return &HealthCheck{conn: conn}
}

var errDisconnected = errors.New("nats: not connected")

func (h *HealthCheck) Ping(ctx context.Context) error {
	if !h.conn.IsConnected() {
		return errDisconnected
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "nats"
}
