package security

import (
	"sort"

	"github.com/vd4-dee/quiz/internal/domain"
)

func timeValues(perQuestion map[string]float64) []float64 {
	values := make([]float64, 0, len(perQuestion))
	for _, v := range perQuestion {
		values = append(values, v)
	}
	return values
}

// meanVariance returns the population mean and variance.
func meanVariance(values []float64) (mean, variance float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, variance
}

func answeredValues(sub domain.Submission) []domain.Answer {
	answers := make([]domain.Answer, 0, len(sub.Answers))
	for _, a := range sub.Answers {
		if a.Kind != domain.AnswerNone {
			answers = append(answers, a)
		}
	}
	return answers
}

func allIdentical(answers []domain.Answer) bool {
	first := answers[0]
	for _, a := range answers[1:] {
		if !answersEqual(first, a) {
			return false
		}
	}
	return true
}

func answersEqual(a, b domain.Answer) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case domain.AnswerIndex:
		return a.Index == b.Index
	case domain.AnswerIndexSet:
		if len(a.Indices) != len(b.Indices) {
			return false
		}
		for i := range a.Indices {
			if a.Indices[i] != b.Indices[i] {
				return false
			}
		}
	}
	return true
}

// orderedIndices returns single-index answers in attempt order: the client's
// order trace when present, falling back to sorted question IDs.
func orderedIndices(sub domain.Submission) []int {
	order := sub.QuestionOrder
	if len(order) == 0 {
		order = make([]string, 0, len(sub.Answers))
		for questionID := range sub.Answers {
			order = append(order, questionID)
		}
		sort.Strings(order)
	}

	indices := make([]int, 0, len(order))
	for _, questionID := range order {
		if a, ok := sub.Answers[questionID]; ok && a.Kind == domain.AnswerIndex {
			indices = append(indices, a.Index)
		}
	}
	return indices
}

func strictlyIncreasing(values []int) bool {
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return false
		}
	}
	return len(values) > 1
}

func alternating(values []int) bool {
	if len(values) < 2 {
		return false
	}
	for i := 1; i < len(values); i++ {
		if values[i] == values[i-1] {
			return false
		}
	}
	return true
}
