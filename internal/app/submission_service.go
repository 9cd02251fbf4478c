// Package app contains the submission-processing use cases: validation,
// integrity assessment, grading, and live statistics.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/domain"
	"github.com/vd4-dee/quiz/internal/grading"
	"github.com/vd4-dee/quiz/internal/security"
	"github.com/vd4-dee/quiz/internal/stats"
	"github.com/vd4-dee/quiz/internal/validation"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// SubmissionStore persists processed submissions append-only.
type SubmissionStore interface {
	Append(ctx context.Context, record domain.SubmissionRecord) error
}

// Outcome is the full result of processing one submission.
type Outcome struct {
	Validation domain.ValidationResult   `json:"validation"`
	Security   domain.SecurityAssessment `json:"security"`
	Behavior   domain.BehaviorReport     `json:"behavior"`
	Grade      domain.GradeReport        `json:"grade"`
}

// SubmissionService wires the processing pipeline together.
type SubmissionService struct {
	quizzes    QuizRepository
	store      SubmissionStore
	validator  *validation.Validator
	checker    *security.Checker
	analyzer   *security.Analyzer
	grader     *grading.Engine
	calculator *stats.Calculator
	cache      *stats.Cache
	batcher    *stats.Batcher
	hub        *stats.Hub
	monitor    *stats.Monitor
	log        *zap.Logger
}

// Options configure optional collaborators; zero values get sensible defaults.
type Options struct {
	Store      SubmissionStore
	History    grading.History
	GradeCfg   grading.Config
	CacheTTL   time.Duration
	CacheSize  int
	BatchSize  int
	BatchDelay time.Duration
	QueueDepth int
}

func NewSubmissionService(quizzes QuizRepository, opts Options, log *zap.Logger) *SubmissionService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.GradeCfg == (grading.Config{}) {
		opts.GradeCfg = grading.DefaultConfig()
	}

	s := &SubmissionService{
		quizzes:    quizzes,
		store:      opts.Store,
		validator:  validation.New(log),
		checker:    security.NewChecker(log),
		analyzer:   security.NewAnalyzer(log),
		grader:     grading.NewEngine(opts.GradeCfg, opts.History, log),
		calculator: stats.NewCalculator(log),
		cache:      stats.NewCache(opts.CacheTTL, opts.CacheSize, log),
		hub:        stats.NewHub(),
		monitor:    stats.NewMonitor(log),
		log:        log,
	}
	s.batcher = stats.NewBatcher(opts.BatchSize, opts.BatchDelay, opts.QueueDepth, s.flushBatch, log)
	return s
}

// Process runs the full pipeline for one submission. The stats update is
// queued asynchronously; Process never blocks on the batch flush.
func (s *SubmissionService) Process(ctx context.Context, sub domain.Submission) (Outcome, error) {
	start := time.Now()
	defer func() { s.monitor.Observe("process_submission", time.Since(start)) }()

	if sub.UserID == "" || sub.QuizID == "" {
		return Outcome{}, domain.ErrMalformedSubmission
	}

	quiz, err := s.quizzes.GetQuiz(ctx, sub.QuizID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load quiz %s: %w", sub.QuizID, err)
	}
	questions := quiz.Questions

	var out Outcome
	out.Validation = s.validator.Results(questions, sub)
	out.Security = s.checker.CheckIntegrity(sub, questions)
	out.Behavior = s.analyzer.AnalyzeBehavior(sub)
	if out.Behavior.FlagForReview {
		s.log.Warn("submission flagged",
			zap.String("user", sub.UserID),
			zap.String("quiz", sub.QuizID),
			zap.String("behavior", security.Describe(out.Behavior)))
	}

	s.fillPartialCredit(questions, sub, out.Validation.QuestionResults)

	// Zero when the quiz has no explicit limit; the engine substitutes its
	// configured default.
	timing := grading.TimingData{
		TimePerQuestion: sub.TimePerQuestion,
		TotalTime:       sub.TotalDuration,
		TimeLimit:       quiz.TimeLimitSeconds,
		QuestionCount:   len(questions),
	}
	out.Grade = s.grader.Grade(sub.UserID, out.Validation.QuestionResults, timing)

	// Shed load rather than block: a saturated queue rejects the submission
	// so the client can retry.
	if err := s.batcher.Enqueue(statsUpdate(sub, out)); err != nil {
		return out, fmt.Errorf("queue stats update: %w", err)
	}

	if s.store != nil {
		if err := s.persist(ctx, sub, out); err != nil {
			return out, fmt.Errorf("persist submission: %w", err)
		}
	}
	return out, nil
}

// fillPartialCredit annotates multi-select results with their credit ratio.
func (s *SubmissionService) fillPartialCredit(questions []domain.Question, sub domain.Submission, results []domain.QuestionResult) {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	for i := range results {
		if results[i].Correct || !results[i].Answered {
			continue
		}
		q, ok := byID[results[i].QuestionID]
		if !ok {
			continue
		}
		results[i].PartialRatio = grading.PartialCredit(q, sub.Answers[q.ID])
	}
}

func (s *SubmissionService) persist(ctx context.Context, sub domain.Submission, out Outcome) error {
	detail := struct {
		Validation domain.ValidationResult `json:"validation"`
		Grade      domain.GradeReport      `json:"grade"`
		Flags      domain.SecurityFlags    `json:"flags"`
	}{
		Validation: out.Validation,
		Grade:      out.Grade,
		Flags: domain.SecurityFlags{
			SecurityScore:    out.Security.Score,
			Action:           out.Security.Action,
			RiskScore:        out.Behavior.RiskScore,
			FlaggedForReview: out.Behavior.FlagForReview || !out.Security.Valid,
		},
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	return s.store.Append(ctx, domain.SubmissionRecord{
		UserID:         sub.UserID,
		QuizID:         sub.QuizID,
		Score:          out.Grade.AdjustedScore,
		TotalQuestions: out.Validation.TotalQuestions,
		StartedAt:      sub.StartedAt,
		CompletedAt:    sub.CompletedAt,
		SubmissionData: data,
	})
}

// statsUpdate carries the score plus the per-category and per-difficulty
// percentages into the aggregation pipeline.
func statsUpdate(sub domain.Submission, out Outcome) stats.Update {
	u := stats.Update{
		UserID:       sub.UserID,
		QuizID:       sub.QuizID,
		Score:        float64(out.Grade.AdjustedScore),
		Categories:   make(map[string]float64, len(out.Validation.CategoryBreakdown)),
		Difficulties: make(map[domain.Difficulty]float64, len(out.Validation.DifficultyBreakdown)),
		ReceivedAt:   time.Now(),
	}
	for name, entry := range out.Validation.CategoryBreakdown {
		u.Categories[name] = float64(entry.Percentage)
	}
	for tier, entry := range out.Validation.DifficultyBreakdown {
		u.Difficulties[tier] = float64(entry.Percentage)
	}
	return u
}

// flushBatch times and error-counts every flush so the monitor sees the
// whole persistence path, not just submission processing.
func (s *SubmissionService) flushBatch(ctx context.Context, batch []stats.Update) error {
	start := time.Now()
	err := s.applyBatch(ctx, batch)
	s.monitor.Observe("batch_flush", time.Since(start))
	if err != nil {
		s.monitor.Fail("batch_flush")
	}
	return err
}

// applyBatch folds a flushed batch into the live aggregates and notifies
// dashboard subscribers with a fresh snapshot.
func (s *SubmissionService) applyBatch(_ context.Context, batch []stats.Update) error {
	s.monitor.Track("stats_aggregation", func() {
		for _, u := range batch {
			s.calculator.Apply(u)
		}
	})
	s.cache.Invalidate(snapshotCacheKey)
	s.hub.Broadcast(s.calculator.Snapshot())
	return nil
}

// ValidateAnswer checks one answer against one question.
func (s *SubmissionService) ValidateAnswer(q domain.Question, a domain.Answer) bool {
	return s.validator.Validate(q, a)
}

// CheckIntegrity runs the four integrity checks against a submission.
func (s *SubmissionService) CheckIntegrity(sub domain.Submission, questions []domain.Question) domain.SecurityAssessment {
	return s.checker.CheckIntegrity(sub, questions)
}

// AnalyzeBehavior runs the behavioral risk analysis.
func (s *SubmissionService) AnalyzeBehavior(sub domain.Submission) domain.BehaviorReport {
	return s.analyzer.AnalyzeBehavior(sub)
}

// Grade computes a grade report without the rest of the pipeline.
func (s *SubmissionService) Grade(userID string, results []domain.QuestionResult, timing grading.TimingData) domain.GradeReport {
	return s.grader.Grade(userID, results, timing)
}

// UpdateStats queues one score for asynchronous aggregation. Returns
// stats.ErrQueueFull when the pipeline is saturated.
func (s *SubmissionService) UpdateStats(userID, quizID string, score float64) error {
	return s.batcher.Enqueue(stats.Update{
		UserID:     userID,
		QuizID:     quizID,
		Score:      score,
		ReceivedAt: time.Now(),
	})
}

const snapshotCacheKey = "stats:snapshot"

// CurrentAverages returns the cache-fronted statistics snapshot.
func (s *SubmissionService) CurrentAverages() (stats.Snapshot, error) {
	value, err := s.cache.GetOrCompute(snapshotCacheKey, func() (any, error) {
		return s.calculator.Snapshot(), nil
	})
	if err != nil {
		return stats.Snapshot{}, err
	}
	return value.(stats.Snapshot), nil
}

// Subscribe streams statistics snapshots as they change. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *SubmissionService) Subscribe(_ context.Context) (<-chan stats.Snapshot, func()) {
	return s.hub.Subscribe()
}

// Subscribers reports the number of live snapshot subscribers.
func (s *SubmissionService) Subscribers() int {
	return s.hub.SubscriberCount()
}

// Performance exposes the collected processing-time report.
func (s *SubmissionService) Performance() []stats.OpReport {
	return s.monitor.Report()
}

// maxTrackedEntries is the aggregate footprint above which the
// recommendations suggest trimming.
const maxTrackedEntries = 10000

// PerformanceRecommendations ranks tuning advice from observed latencies,
// the snapshot-cache hit rate, and the aggregate memory footprint.
func (s *SubmissionService) PerformanceRecommendations() []domain.Recommendation {
	recs := s.monitor.Recommendations()
	cs := s.cache.Stats()
	if total := cs.Hits + cs.Misses; total >= 100 && float64(cs.Hits)/float64(total) < 0.5 {
		recs = append(recs, domain.Recommendation{
			Type:     "CACHE",
			Priority: domain.PriorityMedium,
			Message:  "snapshot cache hit rate is below 50%",
			Actions:  []string{"raise the cache TTL", "check for hot-key invalidation"},
		})
	}
	if entries := s.calculator.TrackedEntries(); entries > maxTrackedEntries {
		recs = append(recs, domain.Recommendation{
			Type:     "MEMORY",
			Priority: domain.PriorityMedium,
			Message:  "aggregate bucket count is high",
			Actions:  []string{"shorten the idle-bucket window", "archive cold user aggregates"},
		})
	}
	return recs
}

// CacheStats reports snapshot-cache hit counters.
func (s *SubmissionService) CacheStats() stats.CacheStats {
	return s.cache.Stats()
}

// Close drains the pending stats queue.
func (s *SubmissionService) Close(ctx context.Context) error {
	return s.batcher.Close(ctx)
}
