package memory

import (
	"context"
	"sync"

	"github.com/vd4-dee/quiz/internal/domain"
)

// SubmissionStore keeps processed submissions in memory. It backs tests and
// single-node deployments that run without Postgres.
type SubmissionStore struct {
	mu      sync.RWMutex
	records []domain.SubmissionRecord
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{}
}

func (s *SubmissionStore) Append(_ context.Context, record domain.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// ByUser returns the stored records for one user, oldest first.
func (s *SubmissionStore) ByUser(userID string) []domain.SubmissionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SubmissionRecord
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

// Len reports the number of stored records.
func (s *SubmissionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
