package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/vd4-dee/quiz/internal/domain"
)

// SubmissionStore appends processed submissions. Rows are never updated;
// regrades insert a new row.
type SubmissionStore struct {
	pool *pgxpool.Pool
}

func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

func (s *SubmissionStore) Append(ctx context.Context, record domain.SubmissionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions
			(user_id, quiz_id, score, total_questions, started_at, completed_at, submission_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.UserID,
		record.QuizID,
		record.Score,
		record.TotalQuestions,
		record.StartedAt,
		record.CompletedAt,
		record.SubmissionData,
	)
	if err != nil {
		return fmt.Errorf("append submission: %w", err)
	}
	return nil
}

// RecentScores returns up to limit most recent scores for a user, newest
// first. Used by grade-history comparisons.
func (s *SubmissionStore) RecentScores(ctx context.Context, userID string, limit int) ([]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT score FROM submissions
		WHERE user_id = $1
		ORDER BY completed_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent scores: %w", err)
	}
	defer rows.Close()

	var scores []int
	for rows.Next() {
		var score int
		if err := rows.Scan(&score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}
