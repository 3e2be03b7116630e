package main

import (
	"errors"
	"time"
)

const (
	winCount          = 50
	countdownStart    = 5
	countdownInterval = time.Second
	scoreInterval     = 300 * time.Millisecond
)

// ErrInvalidTransition is the panic value when a state returns a successor
// that is not the next phase.
var ErrInvalidTransition = errors.New("invalid phase transition")

// Phase orders the states of a match. A match only moves forward.
type Phase int32

const (
	PhaseNaming Phase = iota
	PhaseCounting
	PhaseGaming
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseNaming:
		return "naming"
	case PhaseCounting:
		return "counting"
	case PhaseGaming:
		return "gaming"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// validTransition reports whether the machine may move from one phase to
// the next. Staying in the same phase is not a transition.
func validTransition(from, to Phase) bool {
	return to == from+1 && to <= PhaseDone
}

// Slot is a player's fixed position in a match.
type Slot int

func (s Slot) other() Slot { return 1 - s }

// outbox is what a state may do to the outside world.
type outbox interface {
	send(slot Slot, msg Message)
	broadcast(msg Message)
	ignored(slot Slot, msg Message)
}

// state is one phase of a match. Timers are not owned by states: the
// session starts a ticker of interval() when it installs the state and stops
// it before installing the next one.
type state interface {
	Phase() Phase
	interval() time.Duration
	enter(out outbox)
	update(out outbox, slot Slot, msg Message) state
	tick(out outbox) state
}

type naming struct {
	names [2]string
}

func newNaming() *naming { return &naming{} }

func (*naming) Phase() Phase            { return PhaseNaming }
func (*naming) interval() time.Duration { return 0 }
func (n *naming) tick(outbox) state     { return n }

func (*naming) enter(out outbox) {
	out.broadcast(WinCount{Count: winCount})
	out.broadcast(NamePlease{})
}

func (n *naming) update(out outbox, slot Slot, msg Message) state {
	name, ok := msg.(Name)
	if !ok {
		out.ignored(slot, msg)
		return n
	}

	n.names[slot] = name.Name
	if n.names[0] == "" || n.names[1] == "" {
		return n
	}

	out.send(0, Matched{OpponentName: n.names[1]})
	out.send(1, Matched{OpponentName: n.names[0]})
	return newCounting(n.names)
}

type counting struct {
	names [2]string
	count int
}

func newCounting(names [2]string) *counting {
	return &counting{names: names, count: countdownStart}
}

func (*counting) Phase() Phase            { return PhaseCounting }
func (*counting) interval() time.Duration { return countdownInterval }
func (*counting) enter(outbox)            {}

func (c *counting) update(out outbox, slot Slot, msg Message) state {
	out.ignored(slot, msg)
	return c
}

// tick broadcasts the remaining count. 5 through 0 are all sent; the tick
// that sends 0 also starts the game.
func (c *counting) tick(out outbox) state {
	out.broadcast(Countdown{Value: c.count})
	c.count--
	if c.count >= 0 {
		return c
	}
	return newGaming(c.names)
}

type gaming struct {
	names [2]string
	score [2]int
}

func newGaming(names [2]string) *gaming {
	return &gaming{names: names}
}

func (*gaming) Phase() Phase            { return PhaseGaming }
func (*gaming) interval() time.Duration { return scoreInterval }
func (*gaming) enter(outbox)            {}

func (g *gaming) tick(out outbox) state {
	out.send(0, ClickCount{YourCount: g.score[0], TheirCount: g.score[1]})
	out.send(1, ClickCount{YourCount: g.score[1], TheirCount: g.score[0]})
	return g
}

func (g *gaming) update(out outbox, slot Slot, msg Message) state {
	if _, ok := msg.(Click); !ok {
		out.ignored(slot, msg)
		return g
	}

	g.score[slot]++
	if g.score[slot] < winCount {
		return g
	}

	out.send(slot, GameOver{Won: true})
	out.send(slot.other(), GameOver{Won: false})
	return &done{result: Result{Names: g.names, Scores: g.score, Winner: slot}}
}

// Result is the outcome of a finished match.
type Result struct {
	Names  [2]string
	Scores [2]int
	Winner Slot
}

type done struct {
	result Result
}

func (*done) Phase() Phase            { return PhaseDone }
func (*done) interval() time.Duration { return 0 }
func (*done) enter(outbox)            {}
func (d *done) tick(outbox) state     { return d }

func (d *done) update(out outbox, slot Slot, msg Message) state {
	out.ignored(slot, msg)
	return d
}
