package main

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrAlreadyQueued is returned when a key is enqueued while it is still
// waiting for an opponent.
var ErrAlreadyQueued = errors.New("key already queued")

type queueEntry struct {
	key  string
	conn Conn
}

// MatchMaker pairs connections in arrival order. In single mode every
// connection is paired at once with a stand-in opponent.
type MatchMaker struct {
	mu      sync.Mutex
	pending []queueEntry
	keys    map[string]struct{}

	single  bool
	standIn func() Conn
	pair    func(a, b Conn)
}

func NewMatchMaker(pair func(a, b Conn)) *MatchMaker {
	return &MatchMaker{
		keys: make(map[string]struct{}),
		pair: pair,
	}
}

// NewSingleMatchMaker pairs every connection with a fresh opponent from
// standIn.
func NewSingleMatchMaker(standIn func() Conn, pair func(a, b Conn)) *MatchMaker {
	mm := NewMatchMaker(pair)
	mm.single = true
	mm.standIn = standIn
	return mm
}

// Enqueue admits conn under key. The pairing callback runs on the calling
// goroutine after the queue lock is released.
func (m *MatchMaker) Enqueue(key string, conn Conn) error {
	if m.single {
		log.Info().Str("key", key).Msg("single player mode, pairing with stand-in")
		m.pair(conn, m.standIn())
		return nil
	}

	m.mu.Lock()
	if _, ok := m.keys[key]; ok {
		m.mu.Unlock()
		return ErrAlreadyQueued
	}
	m.keys[key] = struct{}{}
	m.pending = append(m.pending, queueEntry{key: key, conn: conn})

	if len(m.pending) < 2 {
		m.mu.Unlock()
		log.Info().Str("key", key).Msg("waiting for opponent")
		return nil
	}

	first, second := m.pending[0], m.pending[1]
	m.pending = m.pending[2:]
	delete(m.keys, first.key)
	delete(m.keys, second.key)
	m.mu.Unlock()

	log.Info().
		Str("slot0", first.key).
		Str("slot1", second.key).
		Msg("match found")
	m.pair(first.conn, second.conn)
	return nil
}

// Drop removes a connection that is still waiting and reports whether it
// was there.
func (m *MatchMaker) Drop(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[key]; !ok {
		return false
	}
	delete(m.keys, key)
	for i, e := range m.pending {
		if e.key == key {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	return true
}

// Len is the number of connections waiting for an opponent.
func (m *MatchMaker) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
