package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := newRedisClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func finishedEvent(winner Slot, names ...string) MatchEvent {
	return MatchEvent{
		Type:    EventMatchFinished,
		MatchID: "m",
		Players: [2]string{names[0], names[1]},
		Winner:  &winner,
	}
}

func TestNewRedisClient(t *testing.T) {
	_, rdb := newTestRedis(t)
	assert.NoError(t, rdb.Ping(context.Background()).Err())

	_, err := newRedisClient(context.Background(), "not a url")
	assert.Error(t, err)

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err = newRedisClient(context.Background(), "redis://"+addr)
	assert.ErrorContains(t, err, "ping redis")
}

func TestLeaderboardCountsWins(t *testing.T) {
	mr, rdb := newTestRedis(t)
	lb := NewLeaderboard(rdb)
	ctx := context.Background()

	require.NoError(t, lb.Handle(ctx, finishedEvent(0, "alice", "bob")))
	require.NoError(t, lb.Handle(ctx, finishedEvent(1, "carol", "alice")))
	require.NoError(t, lb.Handle(ctx, finishedEvent(1, "alice", "bob")))
	require.NoError(t, lb.Handle(ctx, finishedEvent(0, "alice", "dave")))

	score, err := mr.ZScore(leaderboardKey, "alice")
	require.NoError(t, err)
	assert.Equal(t, 3.0, score)

	top, err := lb.Top(ctx)
	require.NoError(t, err)
	assert.Equal(t, []LeaderboardEntry{
		{Name: "alice", Score: 3},
		{Name: "bob", Score: 1},
	}, top)
}

func TestLeaderboardIgnoresOtherEvents(t *testing.T) {
	mr, rdb := newTestRedis(t)
	lb := NewLeaderboard(rdb)
	ctx := context.Background()

	require.NoError(t, lb.Handle(ctx, MatchEvent{Type: EventMatchStarted, Players: [2]string{"a", "b"}}))
	require.NoError(t, lb.Handle(ctx, MatchEvent{Type: EventMatchAborted, Players: [2]string{"a", "b"}}))
	require.NoError(t, lb.Handle(ctx, MatchEvent{Type: EventMatchFinished, Players: [2]string{"a", "b"}}))

	assert.False(t, mr.Exists(leaderboardKey))
}

func TestLeaderboardTopIsCapped(t *testing.T) {
	mr, rdb := newTestRedis(t)
	for i := 0; i < leaderboardSize+5; i++ {
		_, err := mr.ZAdd(leaderboardKey, float64(i), string(rune('a'+i)))
		require.NoError(t, err)
	}

	top, err := NewLeaderboard(rdb).Top(context.Background())
	require.NoError(t, err)
	require.Len(t, top, leaderboardSize)
	assert.Equal(t, string(rune('a'+leaderboardSize+4)), top[0].Name)
}

func TestLeaderboardHandleGet(t *testing.T) {
	_, rdb := newTestRedis(t)
	lb := NewLeaderboard(rdb)
	require.NoError(t, lb.Handle(context.Background(), finishedEvent(0, "alice", "bob")))

	rec := httptest.NewRecorder()
	lb.handleGet(rec, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var entries []LeaderboardEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Equal(t, []LeaderboardEntry{{Name: "alice", Score: 1}}, entries)
}

func TestLeaderboardHandleGetRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()

	rec := httptest.NewRecorder()
	NewLeaderboard(rdb).handleGet(rec, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRedisPublisher(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, matchChannel("m1"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	p := newRedisPublisher(rdb)
	assert.Equal(t, "redis-pubsub", p.Name())
	require.NoError(t, p.Handle(ctx, finishedEvent(1, "alice", "bob")))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "match:m1", msg.Channel)

	var ev MatchEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
	assert.Equal(t, EventMatchFinished, ev.Type)
	assert.Equal(t, [2]string{"alice", "bob"}, ev.Players)
	require.NotNil(t, ev.Winner)
	assert.Equal(t, Slot(1), *ev.Winner)
}

func TestFinishedMatchReachesLeaderboardThroughBus(t *testing.T) {
	mr, rdb := newTestRedis(t)
	bus := NewEventBus(8, NewLeaderboard(rdb), newRedisPublisher(rdb))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	bus.Publish(finishedEvent(0, "alice", "bob"))

	require.Eventually(t, func() bool {
		score, err := mr.ZScore(leaderboardKey, "alice")
		return err == nil && score == 1
	}, time.Second, 5*time.Millisecond)
}
