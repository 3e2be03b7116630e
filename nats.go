package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// natsPublisher publishes match events on "<prefix>.<event type>".
type natsPublisher struct {
	nc     *nats.Conn
	prefix string
}

func newNATSPublisher(url, prefix string) (*natsPublisher, error) {
	opts := []nats.Option{
		nats.Name("clickrace"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &natsPublisher{nc: nc, prefix: prefix}, nil
}

func (p *natsPublisher) subject(typ MatchEventType) string {
	return p.prefix + "." + string(typ)
}

func (p *natsPublisher) Name() string { return "nats" }

func (p *natsPublisher) Handle(_ context.Context, ev MatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal match event: %w", err)
	}
	if err := p.nc.Publish(p.subject(ev.Type), data); err != nil {
		return fmt.Errorf("publish to NATS: %w", err)
	}
	return nil
}

func (p *natsPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		log.Error().Err(err).Msg("failed to drain NATS connection")
	}
}
