package main

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// HubStats is a snapshot of the hub's bookkeeping.
type HubStats struct {
	Clients int `json:"clients"`
	Pending int `json:"pending"`
	Matches int `json:"matches"`
}

// Hub owns the set of connected clients and the sessions they play in. Its
// maps are only touched by the run goroutine.
type Hub struct {
	clients    map[string]*Client
	matches    map[string]*Session
	register   chan *Client
	unregister chan *Client
	finished   chan *Session
	stats      chan chan HubStats
	done       chan struct{}

	matchmaker *MatchMaker
	sessions   sync.WaitGroup
	clock      clockwork.Clock
	events     Publisher
	ctx        context.Context
}

func newHub(single bool, clock clockwork.Clock, events Publisher) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		matches:    make(map[string]*Session),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		finished:   make(chan *Session),
		stats:      make(chan chan HubStats),
		done:       make(chan struct{}),
		clock:      clock,
		events:     events,
		ctx:        context.Background(),
	}
	if single {
		h.matchmaker = NewSingleMatchMaker(NewNullConn, h.startMatch)
	} else {
		h.matchmaker = NewMatchMaker(h.startMatch)
	}
	return h
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Stats returns the zero value once the hub has stopped.
func (h *Hub) Stats() HubStats {
	reply := make(chan HubStats, 1)
	select {
	case h.stats <- reply:
		return <-reply
	case <-h.done:
		return HubStats{}
	}
}

// run serves the hub until ctx is cancelled. done is closed only after every
// session has returned, so their abort events have been published.
func (h *Hub) run(ctx context.Context) {
	h.ctx = ctx
	defer close(h.done)
	log.Info().Msg("hub is running")

	for {
		select {
		case <-ctx.Done():
			log.Info().Int("matches", len(h.matches)).Msg("hub shutting down")
			for _, s := range h.matches {
				s.Stop()
			}
			for _, c := range h.clients {
				c.close()
			}
			h.sessions.Wait()
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			log.Info().
				Str("client_id", client.ID).
				Int("clients", len(h.clients)).
				Msg("client registered")
			if err := h.matchmaker.Enqueue(client.ID, client); err != nil {
				log.Error().Err(err).Str("client_id", client.ID).Msg("failed to enqueue client")
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client.ID]; !ok {
				continue
			}
			if h.matchmaker.Drop(client.ID) {
				log.Info().
					Str("client_id", client.ID).
					Str("remote", client.Remote).
					Msg("closed during matchmaking")
			}
			delete(h.clients, client.ID)
			client.close()
			log.Info().
				Str("client_id", client.ID).
				Int("clients", len(h.clients)).
				Msg("client unregistered")

		case s := <-h.finished:
			delete(h.matches, s.ID())
			log.Info().
				Str("match_id", s.ID()).
				Int("matches", len(h.matches)).
				Msg("match removed")

		case reply := <-h.stats:
			reply <- HubStats{
				Clients: len(h.clients),
				Pending: h.matchmaker.Len(),
				Matches: len(h.matches),
			}
		}
	}
}

// startMatch is the matchmaker's pairing callback. It runs on the hub
// goroutine.
func (h *Hub) startMatch(a, b Conn) {
	s := NewSession(a, b, WithClock(h.clock), WithPublisher(h.events))
	h.matches[s.ID()] = s

	ctx := h.ctx
	h.sessions.Add(1)
	go func() {
		s.Run(ctx)
		h.sessions.Done()
		select {
		case h.finished <- s:
		case <-h.done:
		}
	}()
}
