package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vd4-dee/quiz/internal/domain"
	"github.com/vd4-dee/quiz/internal/infra/memory"
)

func testQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Type: domain.SingleChoice, Options: []string{"3", "4", "5"}, Correct: []int{1}, Category: "arithmetic", Difficulty: domain.Easy},
		{ID: "q2", Type: domain.MultipleChoice, Options: []string{"2", "4", "5", "9"}, Correct: []int{0, 2}, Category: "arithmetic", Difficulty: domain.Normal},
		{ID: "q3", Type: domain.YesNo, Options: []string{"Yes", "No"}, Correct: []int{0}, Category: "logic", Difficulty: domain.Hard},
	}
}

type staticQuiz struct {
	quiz domain.Quiz
	err  error
}

func (s *staticQuiz) GetQuiz(context.Context, string) (domain.Quiz, error) {
	return s.quiz, s.err
}

func newTestService(t *testing.T, store SubmissionStore) *SubmissionService {
	t.Helper()
	svc := NewSubmissionService(&staticQuiz{quiz: domain.Quiz{ID: "quiz-1", Questions: testQuestions()}}, Options{
		Store:      store,
		BatchSize:  1,
		BatchDelay: 5 * time.Millisecond,
	}, nil)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func validSubmission() domain.Submission {
	now := time.Now()
	return domain.Submission{
		UserID:      "u1",
		QuizID:      "quiz-1",
		StartedAt:   now.Add(-100 * time.Second),
		CompletedAt: now,
		Answers: map[string]domain.Answer{
			"q1": domain.IndexAnswer(1),
			"q2": domain.SetAnswer(0, 2),
			"q3": domain.IndexAnswer(0),
		},
		TimePerQuestion: map[string]float64{"q1": 20, "q2": 45, "q3": 35},
		TotalDuration:   100,
	}
}

func TestProcessFullPipeline(t *testing.T) {
	store := memory.NewSubmissionStore()
	svc := newTestService(t, store)

	out, err := svc.Process(context.Background(), validSubmission())
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if out.Validation.CorrectAnswers != 3 || out.Validation.FinalScore != 100 {
		t.Fatalf("validation = %+v", out.Validation)
	}
	if !out.Security.Valid || out.Security.Action != domain.ActionAllow {
		t.Fatalf("security = %+v", out.Security)
	}
	if out.Behavior.FlagForReview {
		t.Fatalf("behavior = %+v", out.Behavior)
	}
	if out.Grade.AdjustedScore != 100 || out.Grade.LetterGrade != "A" || !out.Grade.Passed {
		t.Fatalf("grade = %+v", out.Grade)
	}

	if store.Len() != 1 {
		t.Fatalf("stored records = %d", store.Len())
	}
	record := store.ByUser("u1")[0]
	if record.QuizID != "quiz-1" || record.Score != 100 || record.TotalQuestions != 3 {
		t.Fatalf("record = %+v", record)
	}
	var detail struct {
		Flags domain.SecurityFlags `json:"flags"`
	}
	if err := json.Unmarshal(record.SubmissionData, &detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Flags.FlaggedForReview {
		t.Fatalf("flags = %+v", detail.Flags)
	}
}

func TestProcessPartialCredit(t *testing.T) {
	svc := newTestService(t, nil)
	sub := validSubmission()
	sub.Answers["q2"] = domain.SetAnswer(0) // one of two correct options

	out, err := svc.Process(context.Background(), sub)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	var q2 domain.QuestionResult
	for _, r := range out.Validation.QuestionResults {
		if r.QuestionID == "q2" {
			q2 = r
		}
	}
	if q2.Correct {
		t.Fatal("subset answer marked correct")
	}
	if q2.PartialRatio != 0.5 {
		t.Fatalf("partial ratio = %v, want 0.5", q2.PartialRatio)
	}
	if out.Grade.WeightedScore >= 100 || out.Grade.WeightedScore <= 0 {
		t.Fatalf("weighted = %d", out.Grade.WeightedScore)
	}
}

func TestProcessMissingIdentity(t *testing.T) {
	svc := newTestService(t, nil)
	sub := validSubmission()
	sub.UserID = ""

	if _, err := svc.Process(context.Background(), sub); !errors.Is(err, domain.ErrMalformedSubmission) {
		t.Fatalf("err = %v", err)
	}
}

func TestProcessUsesQuizTimeLimit(t *testing.T) {
	svc := NewSubmissionService(&staticQuiz{quiz: domain.Quiz{
		ID:               "quiz-1",
		Questions:        testQuestions(),
		TimeLimitSeconds: 200,
	}}, Options{BatchSize: 1, BatchDelay: 5 * time.Millisecond}, nil)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	out, err := svc.Process(context.Background(), validSubmission())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	// TotalDuration 100 of a 200-second limit.
	if out.Grade.TimeManagement.Efficiency != 50 {
		t.Fatalf("efficiency = %d, want 50", out.Grade.TimeManagement.Efficiency)
	}
	if out.Grade.TimeManagement.Bonus != 10 {
		t.Fatalf("bonus = %v, want 10", out.Grade.TimeManagement.Bonus)
	}
}

func TestProcessUnknownQuiz(t *testing.T) {
	svc := NewSubmissionService(&staticQuiz{err: domain.ErrQuizNotFound}, Options{}, nil)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	if _, err := svc.Process(context.Background(), validSubmission()); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestStatsFlowThroughToSnapshot(t *testing.T) {
	svc := newTestService(t, nil)

	if _, err := svc.Process(context.Background(), validSubmission()); err != nil {
		t.Fatalf("process: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := svc.CurrentAverages()
		if err != nil {
			t.Fatalf("averages: %v", err)
		}
		if snap.TotalEvents == 1 {
			if got := snap.Users["u1"]; got.Average() != 100 {
				t.Fatalf("u1 aggregate = %+v", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("stats update never applied")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFlushPathIsMonitored(t *testing.T) {
	svc := newTestService(t, nil)
	updates, cancel := svc.Subscribe(context.Background())
	defer cancel()

	if _, err := svc.Process(context.Background(), validSubmission()); err != nil {
		t.Fatalf("process: %v", err)
	}
	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatal("batch never flushed")
	}

	observed := make(map[string]bool)
	for _, op := range svc.Performance() {
		observed[op.Operation] = true
	}
	if !observed["batch_flush"] || !observed["stats_aggregation"] {
		t.Fatalf("observed ops = %v", observed)
	}
}

func TestSubscribeReceivesBroadcast(t *testing.T) {
	svc := newTestService(t, nil)
	updates, cancel := svc.Subscribe(context.Background())
	defer cancel()

	if _, err := svc.Process(context.Background(), validSubmission()); err != nil {
		t.Fatalf("process: %v", err)
	}

	select {
	case snap := <-updates:
		if snap.TotalEvents != 1 {
			t.Fatalf("snapshot = %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot broadcast")
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, domain.SubmissionRecord) error {
	return errors.New("db down")
}

func TestProcessSurfacesStoreErrors(t *testing.T) {
	svc := newTestService(t, failingStore{})

	out, err := svc.Process(context.Background(), validSubmission())
	if err == nil {
		t.Fatal("expected persistence error")
	}
	// The computed outcome still comes back for the caller to report.
	if out.Grade.AdjustedScore != 100 {
		t.Fatalf("grade = %+v", out.Grade)
	}
}

func TestProcessConcurrentSubmissions(t *testing.T) {
	svc := newTestService(t, memory.NewSubmissionStore())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Process(context.Background(), validSubmission()); err != nil {
				t.Errorf("process: %v", err)
			}
		}()
	}
	wg.Wait()
}
