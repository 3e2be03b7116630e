package main

import (
	"sync"

	"github.com/rs/zerolog/log"
)

const nullPlayerName = "null"

// NullConn stands in for a real opponent in single player mode. It answers
// the name request and otherwise stays silent.
type NullConn struct {
	mu        sync.Mutex
	onMessage func([]byte)
}

func NewNullConn() Conn { return &NullConn{} }

func (c *NullConn) Listen(onMessage func([]byte), _ func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = onMessage
}

func (c *NullConn) Send(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		log.Error().Err(err).Msg("stand-in received malformed message")
		return
	}
	if msg.Tag() != TagNamePlease {
		return
	}

	c.mu.Lock()
	onMessage := c.onMessage
	c.mu.Unlock()
	if onMessage == nil {
		return
	}

	// Send is called from inside the session loop, which is not receiving
	// until it returns.
	go onMessage(Encode(Name{Name: nullPlayerName}))
}
