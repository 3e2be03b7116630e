package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const (
	leaderboardKey  = "leaderboard:wins"
	leaderboardSize = 10
)

type LeaderboardEntry struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Leaderboard counts wins per display name in a Redis sorted set.
type Leaderboard struct {
	rdb *redis.Client
}

func NewLeaderboard(rdb *redis.Client) *Leaderboard {
	return &Leaderboard{rdb: rdb}
}

func (l *Leaderboard) Name() string { return "leaderboard" }

// Handle records the winner of every finished match.
func (l *Leaderboard) Handle(ctx context.Context, ev MatchEvent) error {
	if ev.Type != EventMatchFinished || ev.Winner == nil {
		return nil
	}
	winner := ev.Players[*ev.Winner]
	if err := l.rdb.ZIncrBy(ctx, leaderboardKey, 1, winner).Err(); err != nil {
		return fmt.Errorf("increment wins for %q: %w", winner, err)
	}
	return nil
}

// Top returns the names with the most wins, best first.
func (l *Leaderboard) Top(ctx context.Context) ([]LeaderboardEntry, error) {
	scores, err := l.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, leaderboardSize-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(scores))
	for _, z := range scores {
		name, _ := z.Member.(string)
		entries = append(entries, LeaderboardEntry{Name: name, Score: z.Score})
	}
	return entries, nil
}

func (l *Leaderboard) handleGet(w http.ResponseWriter, r *http.Request) {
	entries, err := l.Top(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("error getting leaderboard")
		http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		log.Error().Err(err).Msg("error encoding leaderboard")
	}
}
