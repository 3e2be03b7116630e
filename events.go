package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const drainTimeout = 5 * time.Second

// MatchEventType is also the last part of the NATS subject.
type MatchEventType string

const (
	EventMatchStarted  MatchEventType = "match.started"
	EventMatchFinished MatchEventType = "match.finished"
	EventMatchAborted  MatchEventType = "match.aborted"
)

// MatchEvent describes a point in a match's lifecycle.
type MatchEvent struct {
	ID        string         `json:"id"`
	Type      MatchEventType `json:"type"`
	MatchID   string         `json:"match_id"`
	Timestamp time.Time      `json:"timestamp"`
	Players   [2]string      `json:"players"`
	Scores    [2]int         `json:"scores"`
	Winner    *Slot          `json:"winner,omitempty"`
	Reason    string         `json:"reason,omitempty"`
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(ev MatchEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(MatchEvent) {}

// EventSink receives every event published on an EventBus.
type EventSink interface {
	Name() string
	Handle(ctx context.Context, ev MatchEvent) error
}

// EventBus hands events from sessions to sinks on its own goroutine so that
// slow sinks never stall a match.
type EventBus struct {
	ch    chan MatchEvent
	sinks []EventSink
}

// NewEventBus buffers up to buffer events; Publish drops beyond that.
func NewEventBus(buffer int, sinks ...EventSink) *EventBus {
	return &EventBus{
		ch:    make(chan MatchEvent, buffer),
		sinks: sinks,
	}
}

func (b *EventBus) Publish(ev MatchEvent) {
	select {
	case b.ch <- ev:
	default:
		log.Warn().
			Str("match_id", ev.MatchID).
			Str("event_type", string(ev.Type)).
			Msg("event channel full, dropping event")
	}
}

// Run delivers events until ctx is cancelled, then flushes whatever is still
// buffered, giving the sinks up to drainTimeout.
func (b *EventBus) Run(ctx context.Context) {
	log.Info().Int("sinks", len(b.sinks)).Msg("event bus started")
	for {
		select {
		case <-ctx.Done():
			b.drain(ctx)
			return
		case ev := <-b.ch:
			b.dispatch(ctx, ev)
		}
	}
}

func (b *EventBus) drain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()

	log.Info().Int("pending", len(b.ch)).Msg("event bus shutting down")
	for {
		select {
		case ev := <-b.ch:
			b.dispatch(drainCtx, ev)
		default:
			return
		}
	}
}

func (b *EventBus) dispatch(ctx context.Context, ev MatchEvent) {
	for _, sink := range b.sinks {
		if err := sink.Handle(ctx, ev); err != nil {
			log.Error().
				Err(err).
				Str("sink", sink.Name()).
				Str("match_id", ev.MatchID).
				Str("event_type", string(ev.Type)).
				Msg("event sink failed")
		}
	}
}
