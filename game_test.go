package main

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records what the server sends and lets a test play the client.
type fakeConn struct {
	mu        sync.Mutex
	sent      []Message
	out       chan Message
	onMessage func([]byte)
	onClose   func()
}

func newFakeConn() *fakeConn {
	return &fakeConn{out: make(chan Message, 512)}
}

func (c *fakeConn) Send(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	select {
	case c.out <- msg:
	default:
	}
}

func (c *fakeConn) Listen(onMessage func([]byte), onClose func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = onMessage
	c.onClose = onClose
}

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

func (c *fakeConn) sendToServer(msg Message) {
	c.mu.Lock()
	onMessage := c.onMessage
	c.mu.Unlock()
	onMessage(Encode(msg))
}

func (c *fakeConn) disconnect() {
	c.mu.Lock()
	onClose := c.onClose
	c.mu.Unlock()
	onClose()
}

func (c *fakeConn) expect(t *testing.T, want Message) {
	t.Helper()
	select {
	case got := <-c.out:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want.Tag())
	}
}

// newTestSession starts a session at st (Naming when nil) without running
// its loop, so tests drive messages and ticks directly.
func newTestSession(t *testing.T, st state, opts ...SessionOption) (*Session, *fakeConn, *fakeConn) {
	t.Helper()
	p0, p1 := newFakeConn(), newFakeConn()
	opts = append([]SessionOption{WithClock(clockwork.NewFakeClock())}, opts...)
	if st != nil {
		opts = append(opts, withState(st))
	}
	s := NewSession(p0, p1, opts...)
	s.start()
	t.Cleanup(s.shutdown)
	return s, p0, p1
}

func receive(s *Session, slot Slot, msg Message) {
	s.handle(slot, Encode(msg))
}

func TestValidTransition(t *testing.T) {
	assert.True(t, validTransition(PhaseNaming, PhaseCounting))
	assert.True(t, validTransition(PhaseCounting, PhaseGaming))
	assert.True(t, validTransition(PhaseGaming, PhaseDone))

	assert.False(t, validTransition(PhaseNaming, PhaseGaming))
	assert.False(t, validTransition(PhaseNaming, PhaseDone))
	assert.False(t, validTransition(PhaseGaming, PhaseCounting))
	assert.False(t, validTransition(PhaseDone, PhaseNaming))
	assert.False(t, validTransition(PhaseDone, PhaseDone+1))
}

func TestNaming(t *testing.T) {
	s, p0, p1 := newTestSession(t, nil)

	opening := []Message{WinCount{Count: 50}, NamePlease{}}
	assert.Equal(t, opening, p0.messages())
	assert.Equal(t, opening, p1.messages())

	receive(s, 0, Name{Name: "alice"})
	assert.Len(t, p0.messages(), 2)
	assert.Len(t, p1.messages(), 2)
	assert.Equal(t, PhaseNaming, s.Phase())

	receive(s, 1, Name{Name: "bob"})
	assert.Equal(t, Matched{OpponentName: "bob"}, p0.messages()[2])
	assert.Equal(t, Matched{OpponentName: "alice"}, p1.messages()[2])
	assert.Equal(t, PhaseCounting, s.Phase())
	assert.NotNil(t, s.ticker)
}

func TestNamingOverwritesName(t *testing.T) {
	s, p0, p1 := newTestSession(t, nil)

	receive(s, 0, Name{Name: "al"})
	receive(s, 0, Name{Name: "alice"})
	receive(s, 1, Name{Name: "bob"})

	assert.Equal(t, Matched{OpponentName: "bob"}, p0.messages()[2])
	assert.Equal(t, Matched{OpponentName: "alice"}, p1.messages()[2])
}

func TestNamingWaitsForNonEmptyNames(t *testing.T) {
	s, p0, _ := newTestSession(t, nil)

	receive(s, 0, Name{Name: "alice"})
	receive(s, 1, Name{Name: ""})
	assert.Equal(t, PhaseNaming, s.Phase())
	assert.Len(t, p0.messages(), 2)
}

func TestNamingIgnoresOtherMessages(t *testing.T) {
	s, p0, p1 := newTestSession(t, nil)

	receive(s, 0, Click{})
	receive(s, 1, GameOver{Won: true})
	s.handle(0, []byte(`{"tag":"NAME"}`))

	assert.Equal(t, PhaseNaming, s.Phase())
	assert.Len(t, p0.messages(), 2)
	assert.Len(t, p1.messages(), 2)
}

func TestCounting(t *testing.T) {
	s, p0, p1 := newTestSession(t, newCounting([2]string{"alice", "bob"}))
	assert.Empty(t, p0.messages())

	for i := 0; i <= 5; i++ {
		assert.Equal(t, PhaseCounting, s.Phase())
		s.onTick()
		assert.Equal(t, Countdown{Value: 5 - i}, p0.messages()[i])
		assert.Equal(t, Countdown{Value: 5 - i}, p1.messages()[i])
	}

	assert.Len(t, p0.messages(), 6)
	assert.Equal(t, PhaseGaming, s.Phase())
}

func TestCountingIgnoresMessages(t *testing.T) {
	s, p0, _ := newTestSession(t, newCounting([2]string{"alice", "bob"}))

	s.onTick()
	s.onTick()
	receive(s, 0, Click{})
	receive(s, 1, Name{Name: "mallory"})
	s.onTick()

	assert.Equal(t, []Message{
		Countdown{Value: 5},
		Countdown{Value: 4},
		Countdown{Value: 3},
	}, p0.messages())
	assert.Equal(t, PhaseCounting, s.Phase())
}

func TestGaming(t *testing.T) {
	s, p0, p1 := newTestSession(t, newGaming([2]string{"alice", "bob"}))

	s.onTick()
	assert.Equal(t, ClickCount{YourCount: 0, TheirCount: 0}, p0.messages()[0])
	assert.Equal(t, ClickCount{YourCount: 0, TheirCount: 0}, p1.messages()[0])

	receive(s, 0, Click{})
	s.onTick()
	assert.Equal(t, ClickCount{YourCount: 1, TheirCount: 0}, p0.messages()[1])
	assert.Equal(t, ClickCount{YourCount: 0, TheirCount: 1}, p1.messages()[1])

	receive(s, 1, Click{})
	s.onTick()
	assert.Equal(t, ClickCount{YourCount: 1, TheirCount: 1}, p0.messages()[2])
	assert.Equal(t, ClickCount{YourCount: 1, TheirCount: 1}, p1.messages()[2])

	for i := 0; i < 48; i++ {
		receive(s, 1, Click{})
	}
	assert.Equal(t, PhaseGaming, s.Phase())
	assert.Len(t, p0.messages(), 3)

	receive(s, 1, Click{})
	assert.Equal(t, GameOver{Won: false}, p0.messages()[3])
	assert.Equal(t, GameOver{Won: true}, p1.messages()[3])
	assert.Equal(t, PhaseDone, s.Phase())
	assert.Nil(t, s.ticker)

	d, ok := s.state.(*done)
	require.True(t, ok)
	assert.Equal(t, Result{
		Names:  [2]string{"alice", "bob"},
		Scores: [2]int{1, 50},
		Winner: 1,
	}, d.result)
}

func TestGamingSlotZeroWins(t *testing.T) {
	s, p0, p1 := newTestSession(t, newGaming([2]string{"alice", "bob"}))

	for i := 0; i < winCount; i++ {
		receive(s, 0, Click{})
	}

	assert.Equal(t, []Message{GameOver{Won: true}}, p0.messages())
	assert.Equal(t, []Message{GameOver{Won: false}}, p1.messages())
}

func TestGamingIgnoresOtherMessages(t *testing.T) {
	s, p0, _ := newTestSession(t, newGaming([2]string{"alice", "bob"}))

	receive(s, 0, Name{Name: "x"})
	receive(s, 0, WinCount{Count: 1})
	s.onTick()

	assert.Equal(t, []Message{ClickCount{}}, p0.messages())
}

func TestDoneIgnoresEverything(t *testing.T) {
	s, p0, p1 := newTestSession(t, &done{})

	receive(s, 0, Click{})
	receive(s, 1, Name{Name: "late"})
	s.onTick()

	assert.Equal(t, PhaseDone, s.Phase())
	assert.Empty(t, p0.messages())
	assert.Empty(t, p1.messages())
	assert.Nil(t, s.ticker)
}

func TestInvalidTransitionPanics(t *testing.T) {
	s, _, _ := newTestSession(t, nil)

	defer func() {
		err, ok := recover().(error)
		require.True(t, ok, "expected a panic with an error")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}()
	s.advance(&done{})
}
