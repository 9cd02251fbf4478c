package validation

import (
	"testing"
	"time"

	"github.com/vd4-dee/quiz/internal/domain"
)

func singleChoiceQuestion() domain.Question {
	return domain.Question{
		ID:         "q1",
		Type:       domain.SingleChoice,
		Options:    []string{"3", "4", "5"},
		Correct:    []int{1},
		Category:   "arithmetic",
		Difficulty: domain.Easy,
	}
}

func multipleChoiceQuestion() domain.Question {
	return domain.Question{
		ID:         "q2",
		Type:       domain.MultipleChoice,
		Options:    []string{"2", "4", "5", "9"},
		Correct:    []int{0, 2},
		Category:   "arithmetic",
		Difficulty: domain.Normal,
	}
}

func TestValidateSingleChoice(t *testing.T) {
	v := New(nil)
	q := singleChoiceQuestion()

	cases := []struct {
		name   string
		answer domain.Answer
		want   bool
	}{
		{"correct", domain.IndexAnswer(1), true},
		{"wrong option", domain.IndexAnswer(0), false},
		{"out of range", domain.IndexAnswer(7), false},
		{"negative", domain.IndexAnswer(-1), false},
		{"no answer", domain.NoAnswer(), false},
		{"wrong shape", domain.SetAnswer(1), false},
	}
	for _, tc := range cases {
		if got := v.Validate(q, tc.answer); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValidateSingleChoiceMalformedQuestion(t *testing.T) {
	v := New(nil)
	q := singleChoiceQuestion()
	q.Correct = []int{0, 1}

	if v.Validate(q, domain.IndexAnswer(0)) {
		t.Fatal("expected malformed question to fail closed")
	}
}

func TestValidateMultipleChoice(t *testing.T) {
	v := New(nil)
	q := multipleChoiceQuestion()

	cases := []struct {
		name   string
		answer domain.Answer
		want   bool
	}{
		{"exact set", domain.SetAnswer(0, 2), true},
		{"order independent", domain.SetAnswer(2, 0), true},
		{"subset", domain.SetAnswer(0), false},
		{"superset", domain.SetAnswer(0, 1, 2), false},
		{"duplicate", domain.SetAnswer(0, 0), false},
		{"out of range", domain.SetAnswer(0, 9), false},
		{"single index shape", domain.IndexAnswer(0), false},
	}
	for _, tc := range cases {
		if got := v.Validate(q, tc.answer); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestValidateYesNo(t *testing.T) {
	v := New(nil)
	q := domain.Question{ID: "q3", Type: domain.YesNo, Options: []string{"Yes", "No"}, Correct: []int{0}}

	if !v.Validate(q, domain.IndexAnswer(0)) {
		t.Error("expected yes to be correct")
	}
	if v.Validate(q, domain.IndexAnswer(1)) {
		t.Error("expected no to be incorrect")
	}
	if v.Validate(q, domain.IndexAnswer(2)) {
		t.Error("expected out-of-range index to be rejected")
	}
}

func TestValidateUnknownType(t *testing.T) {
	v := New(nil)
	q := domain.Question{ID: "q4", Type: "essay", Options: []string{"a"}, Correct: []int{0}}
	if v.Validate(q, domain.IndexAnswer(0)) {
		t.Fatal("expected unknown type to fail closed")
	}
}

func TestResultsAggregation(t *testing.T) {
	v := New(nil)
	questions := []domain.Question{
		singleChoiceQuestion(),
		multipleChoiceQuestion(),
		{ID: "q3", Type: domain.YesNo, Options: []string{"Yes", "No"}, Correct: []int{1}, Category: "logic", Difficulty: domain.Hard},
	}
	now := time.Now()
	sub := domain.Submission{
		UserID:      "u1",
		QuizID:      "quiz-1",
		StartedAt:   now.Add(-2 * time.Minute),
		CompletedAt: now,
		Answers: map[string]domain.Answer{
			"q1": domain.IndexAnswer(1),
			"q2": domain.SetAnswer(0, 1),
		},
		TimePerQuestion: map[string]float64{"q1": 12, "q2": 30},
	}

	result := v.Results(questions, sub)

	if result.TotalQuestions != 3 {
		t.Fatalf("total questions = %d", result.TotalQuestions)
	}
	if result.CorrectAnswers != 1 || result.IncorrectAnswers != 1 || result.UnansweredQuestions != 1 {
		t.Fatalf("counts = %d/%d/%d", result.CorrectAnswers, result.IncorrectAnswers, result.UnansweredQuestions)
	}
	if result.FinalScore != 33 {
		t.Fatalf("final score = %d, want 33", result.FinalScore)
	}
	if entry := result.CategoryBreakdown["arithmetic"]; entry.Total != 2 || entry.Correct != 1 || entry.Percentage != 50 {
		t.Fatalf("arithmetic breakdown = %+v", entry)
	}
	if entry := result.DifficultyBreakdown[domain.Hard]; entry.Total != 1 || entry.Correct != 0 {
		t.Fatalf("hard breakdown = %+v", entry)
	}
	if got := result.QuestionResults[0]; !got.Answered || !got.Correct || got.TimeSpent != 12 {
		t.Fatalf("q1 result = %+v", got)
	}
	if got := result.QuestionResults[2]; got.Answered || got.Correct {
		t.Fatalf("q3 result = %+v", got)
	}
}
