package postgres

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// historyQueryTimeout bounds the lookup so a slow database cannot stall
// grading.
const historyQueryTimeout = 2 * time.Second

// defaultHistoryWindow is how many recent submissions rank a new score.
const defaultHistoryWindow = 50

// ScoreSource supplies a user's recent scores, newest first.
type ScoreSource interface {
	RecentScores(ctx context.Context, userID string, limit int) ([]int, error)
}

// ScoreHistory ranks a score against the user's recent submissions. It
// implements grading.History; a missing or failing source degrades to
// "no data" rather than an error.
type ScoreHistory struct {
	source ScoreSource
	window int
	log    *zap.Logger
}

func NewScoreHistory(source ScoreSource, log *zap.Logger) *ScoreHistory {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScoreHistory{source: source, window: defaultHistoryWindow, log: log}
}

// PercentileRank returns the share of the user's recent scores strictly
// below the given score, as a 0-100 percentile. False when no history exists.
func (h *ScoreHistory) PercentileRank(userID string, score int) (int, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), historyQueryTimeout)
	defer cancel()

	scores, err := h.source.RecentScores(ctx, userID, h.window)
	if err != nil {
		h.log.Warn("score history unavailable", zap.String("user", userID), zap.Error(err))
		return 0, false
	}
	if len(scores) == 0 {
		return 0, false
	}
	below := 0
	for _, s := range scores {
		if score > s {
			below++
		}
	}
	return int(math.Round(float64(below) / float64(len(scores)) * 100)), true
}
