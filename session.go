package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Conn is the only I/O surface a match uses. Implementations must not block
// in Send.
type Conn interface {
	Send(data []byte)
	Listen(onMessage func(data []byte), onClose func())
}

type inbound struct {
	slot   Slot
	data   []byte
	closed bool
}

// Session runs one match between two connections. All state changes happen
// on the goroutine running Run, one inbound message or tick at a time.
type Session struct {
	id      string
	players [2]Conn
	clock   clockwork.Clock
	events  Publisher
	logger  zerolog.Logger

	state  state
	ticker clockwork.Ticker
	phase  atomic.Int32

	inbox     chan inbound
	quit      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

// SessionOption configures a Session at construction.
type SessionOption func(*Session)

// WithClock sets the clock the phase tickers are created from.
func WithClock(clock clockwork.Clock) SessionOption {
	return func(s *Session) { s.clock = clock }
}

// WithPublisher sets where match lifecycle events go.
func WithPublisher(p Publisher) SessionOption {
	return func(s *Session) { s.events = p }
}

func withState(st state) SessionOption {
	return func(s *Session) { s.state = st }
}

// NewSession binds a to slot 0 and b to slot 1. The match starts when Run is
// called.
func NewSession(a, b Conn, opts ...SessionOption) *Session {
	s := &Session{
		id:      uuid.NewString(),
		players: [2]Conn{a, b},
		clock:   clockwork.NewRealClock(),
		events:  nopPublisher{},
		state:   newNaming(),
		inbox:   make(chan inbound),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.With().Str("match_id", s.id).Logger()
	s.phase.Store(int32(s.state.Phase()))

	s.listen(0)
	s.listen(1)
	return s
}

func (s *Session) ID() string { return s.id }

// Phase is safe to call from any goroutine.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Stop ends the match. The active ticker is stopped by Run on its way out.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run drives the match until it is finished, stopped, a player disconnects
// or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	defer s.shutdown()
	s.start()

	for s.state.Phase() != PhaseDone {
		// A nil channel never fires, so phases without a ticker only react
		// to messages.
		var tickC <-chan time.Time
		if s.ticker != nil {
			tickC = s.ticker.Chan()
		}

		select {
		case <-ctx.Done():
			s.abort("server shutdown")
			return
		case <-s.quit:
			s.abort("stopped")
			return
		case in := <-s.inbox:
			if in.closed {
				s.abort(fmt.Sprintf("player %d disconnected", in.slot))
				return
			}
			s.handle(in.slot, in.data)
		case <-tickC:
			s.onTick()
		}
	}

	s.logger.Info().Msg("match finished")
}

func (s *Session) listen(slot Slot) {
	s.players[slot].Listen(
		func(data []byte) { s.deliver(inbound{slot: slot, data: data}) },
		func() { s.deliver(inbound{slot: slot, closed: true}) },
	)
}

func (s *Session) deliver(in inbound) {
	select {
	case s.inbox <- in:
	case <-s.done:
	}
}

func (s *Session) start() {
	s.logger.Info().Msg("match starting")
	s.install(s.state)
}

func (s *Session) handle(slot Slot, data []byte) {
	msg, err := Decode(data)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("slot", int(slot)).
			Str("phase", s.state.Phase().String()).
			Msg("dropping malformed message")
		return
	}
	s.advance(s.state.update(s, slot, msg))
}

func (s *Session) onTick() {
	s.advance(s.state.tick(s))
}

// advance swaps in next if it differs from the current state. The old
// ticker is stopped before the new state is installed.
func (s *Session) advance(next state) {
	if next == s.state {
		return
	}

	from, to := s.state.Phase(), next.Phase()
	if !validTransition(from, to) {
		panic(fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to))
	}

	s.stopTimer()
	s.install(next)
}

// install makes st current. The ticker is created before the phase is
// published so a reader that sees the new phase also sees its ticker.
func (s *Session) install(st state) {
	if d := st.interval(); d > 0 {
		s.ticker = s.clock.NewTicker(d)
	}
	s.state = st
	s.phase.Store(int32(st.Phase()))

	s.logger.Info().Str("phase", st.Phase().String()).Msg("phase entered")
	st.enter(s)
	s.report(st)
}

func (s *Session) stopTimer() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.ticker = nil
}

func (s *Session) shutdown() {
	s.stopTimer()
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) report(st state) {
	switch st := st.(type) {
	case *counting:
		s.events.Publish(s.event(EventMatchStarted, st.names, [2]int{}, nil))
	case *done:
		winner := st.result.Winner
		s.events.Publish(s.event(EventMatchFinished, st.result.Names, st.result.Scores, &winner))
	}
}

func (s *Session) abort(reason string) {
	s.logger.Warn().
		Str("phase", s.state.Phase().String()).
		Str("reason", reason).
		Msg("match aborted")

	ev := s.event(EventMatchAborted, [2]string{}, [2]int{}, nil)
	switch st := s.state.(type) {
	case *counting:
		ev.Players = st.names
	case *gaming:
		ev.Players, ev.Scores = st.names, st.score
	}
	ev.Reason = reason
	s.events.Publish(ev)
}

func (s *Session) event(typ MatchEventType, names [2]string, scores [2]int, winner *Slot) MatchEvent {
	return MatchEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		MatchID:   s.id,
		Timestamp: s.clock.Now(),
		Players:   names,
		Scores:    scores,
		Winner:    winner,
	}
}

func (s *Session) send(slot Slot, msg Message) {
	s.players[slot].Send(Encode(msg))
}

func (s *Session) broadcast(msg Message) {
	data := Encode(msg)
	for _, p := range s.players {
		p.Send(data)
	}
}

func (s *Session) ignored(slot Slot, msg Message) {
	s.logger.Info().
		Int("slot", int(slot)).
		Str("tag", string(msg.Tag())).
		Str("phase", s.state.Phase().String()).
		Msg("ignoring message")
}
