// Package validation decides answer correctness per question-type variant.
// Validation is pure and fails closed: malformed input is never an error,
// it is simply an incorrect answer.
package validation

import (
	"sort"

	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/domain"
)

// Validator checks submitted answers against question definitions.
// A nil logger is replaced with a no-op one, so the zero value of the
// validation logic stays deterministic for property-based tests.
type Validator struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{log: log}
}

// Validate reports whether the answer is correct for the question.
// It never panics and returns false for any malformed input.
func (v *Validator) Validate(q domain.Question, a domain.Answer) bool {
	if a.Kind == domain.AnswerNone {
		return false
	}

	switch q.Type {
	case domain.SingleChoice:
		return v.validateSingleChoice(q, a)
	case domain.MultipleChoice:
		return validateMultipleChoice(q, a)
	case domain.YesNo:
		return v.validateYesNo(q, a)
	default:
		v.log.Warn("unknown question type", zap.String("question", q.ID), zap.String("type", string(q.Type)))
		return false
	}
}

func (v *Validator) validateSingleChoice(q domain.Question, a domain.Answer) bool {
	if a.Kind != domain.AnswerIndex {
		return false
	}
	if a.Index < 0 || a.Index >= len(q.Options) {
		return false
	}
	// Well-formed single-choice questions carry exactly one correct index.
	if len(q.Correct) != 1 {
		v.log.Warn("single-choice question without exactly one correct index",
			zap.String("question", q.ID), zap.Int("correctCount", len(q.Correct)))
		return false
	}
	return a.Index == q.Correct[0]
}

func validateMultipleChoice(q domain.Question, a domain.Answer) bool {
	if a.Kind != domain.AnswerIndexSet {
		return false
	}
	if len(a.Indices) != len(q.Correct) {
		return false
	}

	seen := make(map[int]struct{}, len(a.Indices))
	for _, idx := range a.Indices {
		if idx < 0 || idx >= len(q.Options) {
			return false
		}
		if _, dup := seen[idx]; dup {
			return false
		}
		seen[idx] = struct{}{}
	}

	// Exact set equality, order-independent.
	user := append([]int(nil), a.Indices...)
	correct := append([]int(nil), q.Correct...)
	sort.Ints(user)
	sort.Ints(correct)
	for i := range user {
		if user[i] != correct[i] {
			return false
		}
	}
	return true
}

func (v *Validator) validateYesNo(q domain.Question, a domain.Answer) bool {
	if a.Kind != domain.AnswerIndex {
		return false
	}
	if a.Index != 0 && a.Index != 1 {
		return false
	}
	if len(q.Correct) != 1 {
		v.log.Warn("yes/no question without exactly one correct index",
			zap.String("question", q.ID), zap.Int("correctCount", len(q.Correct)))
		return false
	}
	return a.Index == q.Correct[0]
}

// Results validates every assigned question and aggregates totals and
// category/difficulty breakdowns for one submission.
func (v *Validator) Results(questions []domain.Question, sub domain.Submission) domain.ValidationResult {
	result := domain.ValidationResult{
		CategoryBreakdown:   make(map[string]domain.BreakdownEntry),
		DifficultyBreakdown: make(map[domain.Difficulty]domain.BreakdownEntry),
		QuestionResults:     make([]domain.QuestionResult, 0, len(questions)),
	}

	for _, q := range questions {
		answer, present := sub.Answers[q.ID]
		answered := present && answer.Kind != domain.AnswerNone
		correct := answered && v.Validate(q, answer)

		result.TotalQuestions++
		switch {
		case !answered:
			result.UnansweredQuestions++
		case correct:
			result.CorrectAnswers++
		default:
			result.IncorrectAnswers++
		}

		if q.Category != "" {
			entry := result.CategoryBreakdown[q.Category]
			entry.Total++
			if correct {
				entry.Correct++
			}
			result.CategoryBreakdown[q.Category] = entry
		}
		if q.Difficulty != "" {
			entry := result.DifficultyBreakdown[q.Difficulty]
			entry.Total++
			if correct {
				entry.Correct++
			}
			result.DifficultyBreakdown[q.Difficulty] = entry
		}

		result.QuestionResults = append(result.QuestionResults, domain.QuestionResult{
			QuestionID: q.ID,
			Category:   q.Category,
			Difficulty: q.Difficulty,
			Answered:   answered,
			Correct:    correct,
			TimeSpent:  sub.TimePerQuestion[q.ID],
		})
	}

	if result.TotalQuestions > 0 {
		result.FinalScore = roundPercent(result.CorrectAnswers, result.TotalQuestions)
	}
	for category, entry := range result.CategoryBreakdown {
		entry.Percentage = roundPercent(entry.Correct, entry.Total)
		result.CategoryBreakdown[category] = entry
	}
	for difficulty, entry := range result.DifficultyBreakdown {
		entry.Percentage = roundPercent(entry.Correct, entry.Total)
		result.DifficultyBreakdown[difficulty] = entry
	}
	return result
}

func roundPercent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(float64(part)/float64(total)*100 + 0.5)
}
