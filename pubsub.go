package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// redisPublisher mirrors match events onto the Redis channel
// "match:<match_id>".
type redisPublisher struct {
	rdb *redis.Client
}

func newRedisPublisher(rdb *redis.Client) *redisPublisher {
	return &redisPublisher{rdb: rdb}
}

func matchChannel(matchID string) string { return "match:" + matchID }

func (p *redisPublisher) Name() string { return "redis-pubsub" }

func (p *redisPublisher) Handle(ctx context.Context, ev MatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal match event: %w", err)
	}
	if err := p.rdb.Publish(ctx, matchChannel(ev.MatchID), data).Err(); err != nil {
		return fmt.Errorf("publish match event: %w", err)
	}
	return nil
}
