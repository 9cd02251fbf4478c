// Package security screens submissions for manipulation. The checks are
// statistical heuristics, not a tamper proof: every check fails closed to the
// maximum score so that a crashing heuristic can never let an exploit through.
package security

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/domain"
)

const (
	// minimum believable seconds spent on a single question
	minSecondsPerQuestion = 2.0
	// minimum believable seconds per question for the whole attempt
	minSecondsPerQuestionTotal = 10.0
	// allowed drift between reported duration and end-start
	maxDurationDriftSeconds = 5.0

	maxTabSwitches = 10
	maxFocusLosses = 5
	maxRightClicks = 3
)

// Checker runs the structural and temporal integrity checks.
type Checker struct {
	log *zap.Logger
}

func NewChecker(log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{log: log}
}

// CheckIntegrity runs the four independent checks over a submission and
// derives the aggregate score and recommended action. Any internal panic is
// converted into the maximum-risk assessment.
func (c *Checker) CheckIntegrity(sub domain.Submission, questions []domain.Question) (assessment domain.SecurityAssessment) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("integrity check panicked, failing closed", zap.Any("panic", r))
			assessment = failClosedAssessment()
		}
	}()

	assessment.Timing = checkTiming(sub, len(questions))
	assessment.Sequence = checkSequence(sub, questions)
	assessment.Structure = checkStructure(sub)
	assessment.Behavior = checkBehavior(sub)

	assessment.Score = scoreChecks(assessment)
	assessment.Action = actionForScore(assessment.Score)
	assessment.Valid = assessment.Timing.Passed && assessment.Sequence.Passed &&
		assessment.Structure.Passed && assessment.Behavior.Passed

	for _, check := range []domain.CheckResult{assessment.Timing, assessment.Sequence, assessment.Structure, assessment.Behavior} {
		assessment.SuspiciousActivities = append(assessment.SuspiciousActivities, check.Findings...)
	}
	return assessment
}

func failClosedAssessment() domain.SecurityAssessment {
	return domain.SecurityAssessment{
		Valid:                false,
		Score:                10,
		Action:               domain.ActionBlockAndReview,
		SuspiciousActivities: []string{"integrity validation error"},
	}
}

// checkTiming flags answers below the per-question floor, implausibly short
// attempts, duration drift, and zero-variance timing.
func checkTiming(sub domain.Submission, questionCount int) domain.CheckResult {
	var findings []string

	for questionID, spent := range sub.TimePerQuestion {
		if spent < minSecondsPerQuestion {
			findings = append(findings, fmt.Sprintf("question %s answered too quickly: %.1fs", questionID, spent))
		}
	}

	if sub.TotalDuration > 0 && questionCount > 0 {
		minExpected := float64(questionCount) * minSecondsPerQuestionTotal
		if sub.TotalDuration < minExpected {
			findings = append(findings, fmt.Sprintf("total time too short: %.0fs (expected minimum %.0fs)", sub.TotalDuration, minExpected))
		}
	}

	if !sub.StartedAt.IsZero() && !sub.CompletedAt.IsZero() && sub.TotalDuration > 0 {
		calculated := sub.CompletedAt.Sub(sub.StartedAt).Seconds()
		if math.Abs(calculated-sub.TotalDuration) > maxDurationDriftSeconds {
			findings = append(findings, fmt.Sprintf("timer inconsistency: calculated %.0fs vs reported %.0fs", calculated, sub.TotalDuration))
		}
	}

	if times := timeValues(sub.TimePerQuestion); len(times) >= 3 {
		if _, variance := meanVariance(times); variance == 0 {
			findings = append(findings, "all questions answered in exactly the same time")
		}
	}

	return checkResult(findings, domain.SeverityHigh)
}

// checkSequence flags answers outside the assigned set, order-trace
// mismatches, and out-of-range answer indices.
func checkSequence(sub domain.Submission, questions []domain.Question) domain.CheckResult {
	var findings []string

	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	for questionID := range sub.Answers {
		if _, ok := byID[questionID]; !ok {
			findings = append(findings, fmt.Sprintf("answer for unassigned question %s", questionID))
		}
	}

	if len(sub.QuestionOrder) > 0 {
		if len(sub.QuestionOrder) != len(questions) {
			findings = append(findings, "question order mismatch detected")
		} else {
			for i, q := range questions {
				if sub.QuestionOrder[i] != q.ID {
					findings = append(findings, "question order mismatch detected")
					break
				}
			}
		}
	}

	for questionID, answer := range sub.Answers {
		q, ok := byID[questionID]
		if !ok {
			continue
		}
		switch answer.Kind {
		case domain.AnswerIndex:
			if answer.Index < 0 || answer.Index >= len(q.Options) {
				findings = append(findings, fmt.Sprintf("invalid answer index for question %s: %d", questionID, answer.Index))
			}
		case domain.AnswerIndexSet:
			for _, idx := range answer.Indices {
				if idx < 0 || idx >= len(q.Options) {
					findings = append(findings, fmt.Sprintf("invalid answer indices for question %s", questionID))
					break
				}
			}
		}
	}

	return checkResult(findings, domain.SeverityHigh)
}

// checkStructure flags missing required fields and the degenerate
// all-identical-answers shape.
func checkStructure(sub domain.Submission) domain.CheckResult {
	var findings []string

	if sub.UserID == "" {
		findings = append(findings, "required field missing: userId")
	}
	if sub.QuizID == "" {
		findings = append(findings, "required field missing: quizId")
	}
	if sub.StartedAt.IsZero() {
		findings = append(findings, "required field missing: startedAt")
	}
	if sub.CompletedAt.IsZero() {
		findings = append(findings, "required field missing: completedAt")
	}
	if !sub.StartedAt.IsZero() && !sub.CompletedAt.IsZero() && sub.CompletedAt.Before(sub.StartedAt) {
		findings = append(findings, "completion time precedes start time")
	}

	if answers := answeredValues(sub); len(answers) > 1 && allIdentical(answers) {
		findings = append(findings, "all answers are identical")
	}

	return checkResult(findings, domain.SeverityMedium)
}

// checkBehavior flags interaction-event excess, sequential answer runs, and
// suspiciously low timing variance.
func checkBehavior(sub domain.Submission) domain.CheckResult {
	var findings []string

	if sub.Events.TabSwitches > maxTabSwitches {
		findings = append(findings, fmt.Sprintf("excessive tab switching: %d", sub.Events.TabSwitches))
	}
	if sub.Events.FocusLosses > maxFocusLosses {
		findings = append(findings, fmt.Sprintf("excessive focus loss: %d", sub.Events.FocusLosses))
	}
	if sub.Events.RightClicks > maxRightClicks {
		findings = append(findings, fmt.Sprintf("excessive right-click attempts: %d", sub.Events.RightClicks))
	}

	if indices := orderedIndices(sub); len(indices) >= 3 && strictlyIncreasing(indices) {
		findings = append(findings, "sequential answer pattern detected")
	}

	if times := timeValues(sub.TimePerQuestion); len(times) > 3 {
		if _, variance := meanVariance(times); variance < 1 {
			findings = append(findings, "suspiciously consistent timing across questions")
		}
	}

	return checkResult(findings, domain.SeverityMedium)
}

func checkResult(findings []string, failSeverity domain.Severity) domain.CheckResult {
	if len(findings) == 0 {
		return domain.CheckResult{Passed: true, Severity: domain.SeverityLow}
	}
	return domain.CheckResult{Passed: false, Severity: failSeverity, Findings: findings}
}

// scoreChecks sums severity-weighted points over failing checks, capped at 10.
func scoreChecks(a domain.SecurityAssessment) float64 {
	score := 0.0
	for _, check := range []domain.CheckResult{a.Timing, a.Sequence, a.Structure, a.Behavior} {
		if check.Passed {
			continue
		}
		switch check.Severity {
		case domain.SeverityHigh:
			score += 3
		case domain.SeverityMedium:
			score += 2
		case domain.SeverityLow:
			score += 1
		}
	}
	return math.Min(score, 10)
}

func actionForScore(score float64) domain.SecurityAction {
	switch {
	case score >= 8:
		return domain.ActionBlockAndReview
	case score >= 6:
		return domain.ActionFlagForReview
	case score >= 4:
		return domain.ActionMonitorClosely
	case score >= 2:
		return domain.ActionMonitor
	default:
		return domain.ActionAllow
	}
}
