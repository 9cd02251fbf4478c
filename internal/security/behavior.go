package security

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/domain"
)

// RiskThreshold is the score above which a submission is flagged for review.
const RiskThreshold = 7.0

// dominantShare is the option share above which a distribution is suspicious.
const dominantShare = 0.8

// Analyzer performs the deeper statistical pass over timing and answer-choice
// patterns, producing a 0-10 risk score.
type Analyzer struct {
	log *zap.Logger
}

func NewAnalyzer(log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{log: log}
}

// AnalyzeBehavior computes the behavioral risk report for one submission.
// Any internal panic fails closed to maximum risk.
func (a *Analyzer) AnalyzeBehavior(sub domain.Submission) (report domain.BehaviorReport) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("behavior analysis panicked, failing closed", zap.Any("panic", r))
			report = domain.BehaviorReport{RiskScore: 10, FlagForReview: true}
		}
	}()

	report.Speed = answerSpeed(sub.TimePerQuestion)
	report.Variance, report.Consistency = speedConsistency(sub.TimePerQuestion)
	report.FastAnswers = tooFastAnswers(sub.TimePerQuestion)
	report.Distribution, report.DistributionOK = choiceDistribution(sub)
	report.Patterns = suspiciousPatterns(sub)

	report.RiskScore = riskScore(report, sub.Events)
	report.FlagForReview = report.RiskScore > RiskThreshold
	return report
}

func answerSpeed(perQuestion map[string]float64) domain.SpeedStats {
	times := timeValues(perQuestion)
	if len(times) == 0 {
		return domain.SpeedStats{}
	}
	stats := domain.SpeedStats{Fastest: times[0], Slowest: times[0]}
	var sum float64
	for _, t := range times {
		sum += t
		stats.Fastest = math.Min(stats.Fastest, t)
		stats.Slowest = math.Max(stats.Slowest, t)
	}
	stats.Average = sum / float64(len(times))
	return stats
}

func speedConsistency(perQuestion map[string]float64) (float64, domain.TimingConsistency) {
	times := timeValues(perQuestion)
	if len(times) < 2 {
		return 0, domain.TimingUnknown
	}
	_, variance := meanVariance(times)
	switch {
	case variance < 1:
		return variance, domain.TimingVeryConsistent
	case variance < 10:
		return variance, domain.TimingConsistent
	case variance > 100:
		return variance, domain.TimingInconsistent
	default:
		return variance, domain.TimingNormal
	}
}

func tooFastAnswers(perQuestion map[string]float64) []string {
	var fast []string
	for questionID, spent := range perQuestion {
		if spent < minSecondsPerQuestion {
			fast = append(fast, questionID)
		}
	}
	return fast
}

// choiceDistribution tallies chosen option indices; a distribution is
// suspicious when a single option carries more than 80% of all selections.
func choiceDistribution(sub domain.Submission) (map[int]int, bool) {
	distribution := make(map[int]int)
	total := 0
	for _, answer := range sub.Answers {
		switch answer.Kind {
		case domain.AnswerIndex:
			distribution[answer.Index]++
			total++
		case domain.AnswerIndexSet:
			for _, idx := range answer.Indices {
				distribution[idx]++
				total++
			}
		}
	}
	if total == 0 {
		return distribution, true
	}
	maxCount := 0
	for _, count := range distribution {
		if count > maxCount {
			maxCount = count
		}
	}
	return distribution, float64(maxCount)/float64(total) <= dominantShare
}

func suspiciousPatterns(sub domain.Submission) []string {
	var patterns []string
	indices := orderedIndices(sub)
	if len(indices) >= 3 {
		if strictlyIncreasing(indices) {
			patterns = append(patterns, "sequential pattern")
		}
		if len(indices) > 3 && alternating(indices) {
			patterns = append(patterns, "alternating pattern")
		}
	}
	return patterns
}

// riskScore accumulates weighted contributions from each signal, capped at 10.
func riskScore(report domain.BehaviorReport, events domain.InteractionEvents) float64 {
	score := 0.0

	score += float64(len(report.FastAnswers)) * 0.5
	if report.Consistency == domain.TimingVeryConsistent {
		score += 1.0
	}
	if !report.DistributionOK {
		score += 2.0
	}
	if len(report.Patterns) > 0 {
		score += 2.0
	}

	if events.TabSwitches > 5 {
		score += math.Min(float64(events.TabSwitches)*0.3, 2.0)
	}
	if events.FocusLosses > 3 {
		score += math.Min(float64(events.FocusLosses)*0.2, 1.5)
	}
	if events.RightClicks > 2 {
		score += math.Min(float64(events.RightClicks)*0.5, 2.0)
	}

	return math.Min(score, 10)
}

// Describe renders a short log line for a report; used by the pipeline when a
// submission is flagged.
func Describe(report domain.BehaviorReport) string {
	return fmt.Sprintf("risk=%.1f fast=%d consistency=%s patterns=%d",
		report.RiskScore, len(report.FastAnswers), report.Consistency, len(report.Patterns))
}
