// Package grading turns validated question results into a weighted,
// time-adjusted grade with a detailed report. Grading always returns a usable
// result: internal failures degrade to a zero/F report instead of propagating.
package grading

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/domain"
)

// Config holds the scoring constants; defaults match production behavior.
type Config struct {
	PassThreshold int
	// DefaultTimeLimit is used when a quiz carries no explicit limit, in seconds.
	DefaultTimeLimit float64
}

func DefaultConfig() Config {
	return Config{
		PassThreshold:    70,
		DefaultTimeLimit: 3600,
	}
}

// difficultyWeights are the per-question multipliers applied to the weighted score.
var difficultyWeights = map[domain.Difficulty]float64{
	domain.Easy:     1.0,
	domain.Normal:   1.2,
	domain.Hard:     1.5,
	domain.VeryHard: 2.0,
}

func weightFor(d domain.Difficulty) float64 {
	if w, ok := difficultyWeights[d]; ok {
		return w
	}
	return 1.0
}

// TimingData carries the attempt-level timing inputs for grading.
type TimingData struct {
	TimePerQuestion map[string]float64
	TotalTime       float64
	TimeLimit       float64
	QuestionCount   int
}

// History supplies cross-user comparisons for reports. The shipped
// implementation reports no data; wiring a real historical store here is the
// intended extension point.
type History interface {
	PercentileRank(userID string, score int) (int, bool)
}

// NoHistory is the default History: percentile ranks are simply absent
// until a real historical store is plugged in.
type NoHistory struct{}

func (NoHistory) PercentileRank(string, int) (int, bool) { return 0, false }

// Engine computes grades and builds reports.
type Engine struct {
	cfg     Config
	history History
	log     *zap.Logger
}

func NewEngine(cfg Config, history History, log *zap.Logger) *Engine {
	if history == nil {
		history = NoHistory{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PassThreshold == 0 {
		cfg.PassThreshold = DefaultConfig().PassThreshold
	}
	if cfg.DefaultTimeLimit == 0 {
		cfg.DefaultTimeLimit = DefaultConfig().DefaultTimeLimit
	}
	return &Engine{cfg: cfg, history: history, log: log}
}

// PartialCredit computes the fractional credit for a multi-select answer:
// max(0, (correctSelections - incorrectSelections) / totalCorrectOptions).
// Non-multi-select questions earn no partial credit at this layer.
func PartialCredit(q domain.Question, a domain.Answer) float64 {
	if q.Type != domain.MultipleChoice || a.Kind != domain.AnswerIndexSet || len(q.Correct) == 0 {
		return 0
	}
	correctSet := make(map[int]struct{}, len(q.Correct))
	for _, idx := range q.Correct {
		correctSet[idx] = struct{}{}
	}
	seen := make(map[int]struct{}, len(a.Indices))
	correct, incorrect := 0, 0
	for _, idx := range a.Indices {
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		if _, ok := correctSet[idx]; ok {
			correct++
		} else {
			incorrect++
		}
	}
	return math.Max(0, float64(correct-incorrect)/float64(len(q.Correct)))
}

// Grade produces the full grade report for one submission's question results.
// userID is only used for historical comparison and may be empty.
func (e *Engine) Grade(userID string, results []domain.QuestionResult, timing TimingData) (report domain.GradeReport) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("grading panicked, returning fallback report", zap.Any("panic", r))
			report = domain.GradeReport{LetterGrade: "F"}
		}
	}()

	report.Success = true
	report.RawScore = rawScore(results)
	weighted, contributions := weightedScore(results)
	report.WeightedScore = weighted
	report.Difficulties = contributions

	if timing.TimeLimit <= 0 {
		timing.TimeLimit = e.cfg.DefaultTimeLimit
	}
	bonus, penalty, tm := timeFactors(timing)
	report.TimeManagement = tm
	adjusted := float64(weighted) + bonus - penalty
	report.AdjustedScore = int(math.Round(math.Max(0, math.Min(100, adjusted))))

	report.LetterGrade = LetterGrade(report.AdjustedScore)
	report.Passed = report.AdjustedScore >= e.cfg.PassThreshold

	report.Categories = categoryBreakdown(results)
	report.StrongestCategory, report.WeakestCategory = extremeCategories(report.Categories)
	report.DifficultyTrend = difficultyTrend(contributions)
	report.Recommendations = e.recommendations(report.Categories, contributions, tm)

	if rank, ok := e.history.PercentileRank(userID, report.AdjustedScore); ok {
		report.PercentileRank = &rank
	}
	return report
}

func rawScore(results []domain.QuestionResult) int {
	if len(results) == 0 {
		return 0
	}
	correct := 0
	for _, r := range results {
		if r.Correct {
			correct++
		}
	}
	return int(math.Round(float64(correct) / float64(len(results)) * 100))
}

// weightedScore applies difficulty weights; partially-correct multi-select
// answers contribute weight*ratio.
func weightedScore(results []domain.QuestionResult) (int, map[domain.Difficulty]domain.DifficultyContribution) {
	contributions := make(map[domain.Difficulty]domain.DifficultyContribution)
	var earned, possible float64

	for _, r := range results {
		weight := weightFor(r.Difficulty)
		possible += weight

		entry := contributions[r.Difficulty]
		entry.Total++
		entry.Weight = weight
		entry.Possible += weight

		switch {
		case r.Correct:
			earned += weight
			entry.Correct++
			entry.Earned += weight
		case r.PartialRatio > 0 && r.PartialRatio < 1:
			earned += weight * r.PartialRatio
			entry.Partial++
			entry.Earned += weight * r.PartialRatio
		}
		contributions[r.Difficulty] = entry
	}

	for difficulty, entry := range contributions {
		if entry.Possible > 0 {
			entry.Percentage = int(math.Round(entry.Earned / entry.Possible * 100))
		}
		contributions[difficulty] = entry
	}

	if possible == 0 {
		return 0, contributions
	}
	return int(math.Round(earned / possible * 100)), contributions
}

// timeFactors derives the efficiency bonus/penalty and the pacing narrative.
func timeFactors(timing TimingData) (bonus, penalty float64, tm domain.TimeManagement) {
	if timing.TimeLimit > 0 && timing.TotalTime > 0 {
		efficiency := math.Round(timing.TotalTime / timing.TimeLimit * 100)
		tm.Efficiency = int(efficiency)

		if efficiency < 80 {
			bonus = math.Min(math.Round((80-efficiency)*0.5), 10)
		}
		if efficiency > 120 {
			penalty = math.Min(math.Round((efficiency-120)*0.3), 15)
		}
	}
	tm.Bonus = bonus
	tm.Penalty = penalty

	if len(timing.TimePerQuestion) > 0 && timing.QuestionCount > 0 {
		avg := 60.0
		if timing.TimeLimit > 0 {
			avg = timing.TimeLimit / float64(timing.QuestionCount)
		}
		for _, spent := range timing.TimePerQuestion {
			switch {
			case spent < avg*0.3:
				tm.RushedQuestions++
			case spent > avg*2:
				tm.DelayedQuestions++
			}
		}
		tm.OptimalUsage = timing.QuestionCount - tm.RushedQuestions - tm.DelayedQuestions
	}

	tm.Notes = pacingNotes(tm)
	return bonus, penalty, tm
}

func pacingNotes(tm domain.TimeManagement) []string {
	var notes []string
	if tm.Efficiency > 0 && tm.Efficiency < 60 {
		notes = append(notes, "practice with timed quizzes to build speed")
	}
	if tm.RushedQuestions > 0 {
		notes = append(notes, "take time to read questions carefully")
	}
	if tm.DelayedQuestions > 0 {
		notes = append(notes, "skip difficult questions and return to them later")
	}
	if tm.Efficiency > 120 {
		notes = append(notes, "review time allocation for different question types")
	}
	return notes
}

// LetterGrade maps a 0-100 score onto the standard banding.
func LetterGrade(score int) string {
	switch {
	case score >= 93:
		return "A"
	case score >= 90:
		return "A-"
	case score >= 87:
		return "B+"
	case score >= 83:
		return "B"
	case score >= 80:
		return "B-"
	case score >= 77:
		return "C+"
	case score >= 73:
		return "C"
	case score >= 70:
		return "C-"
	case score >= 67:
		return "D+"
	case score >= 63:
		return "D"
	case score >= 60:
		return "D-"
	default:
		return "F"
	}
}

func categoryBreakdown(results []domain.QuestionResult) map[string]domain.BreakdownEntry {
	categories := make(map[string]domain.BreakdownEntry)
	for _, r := range results {
		if r.Category == "" {
			continue
		}
		entry := categories[r.Category]
		entry.Total++
		if r.Correct {
			entry.Correct++
		}
		categories[r.Category] = entry
	}
	for category, entry := range categories {
		if entry.Total > 0 {
			entry.Percentage = int(math.Round(float64(entry.Correct) / float64(entry.Total) * 100))
		}
		categories[category] = entry
	}
	return categories
}

func extremeCategories(categories map[string]domain.BreakdownEntry) (strongest, weakest string) {
	highest, lowest := -1, 101
	// Deterministic tie-breaking via sorted iteration.
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		entry := categories[name]
		if entry.Percentage > highest {
			highest = entry.Percentage
			strongest = name
		}
		if entry.Percentage < lowest {
			lowest = entry.Percentage
			weakest = name
		}
	}
	return strongest, weakest
}

// difficultyTrend compares performance across Easy..VeryHard in order.
func difficultyTrend(contributions map[domain.Difficulty]domain.DifficultyContribution) string {
	scores := make([]int, 0, len(domain.Difficulties))
	for _, d := range domain.Difficulties {
		if entry, ok := contributions[d]; ok && entry.Total > 0 {
			scores = append(scores, entry.Percentage)
		}
	}
	improving, declining := 0, 0
	for i := 1; i < len(scores); i++ {
		switch {
		case scores[i] > scores[i-1]:
			improving++
		case scores[i] < scores[i-1]:
			declining++
		}
	}
	switch {
	case improving > declining:
		return "improving"
	case declining > improving:
		return "declining"
	default:
		return "stable"
	}
}

func (e *Engine) recommendations(
	categories map[string]domain.BreakdownEntry,
	contributions map[domain.Difficulty]domain.DifficultyContribution,
	tm domain.TimeManagement,
) []domain.Recommendation {
	var recs []domain.Recommendation

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if entry := categories[name]; entry.Percentage < 70 {
			recs = append(recs, domain.Recommendation{
				Type:     "CATEGORY_IMPROVEMENT",
				Priority: domain.PriorityHigh,
				Category: name,
				Message:  "focus on improving " + name + " skills",
				Actions:  []string{"review " + name + " fundamentals", "practice " + name + " questions"},
			})
		}
	}

	if easy, ok := contributions[domain.Easy]; ok && easy.Total > 0 && easy.Percentage < 90 {
		recs = append(recs, domain.Recommendation{
			Type:     "FOUNDATION_REVIEW",
			Priority: domain.PriorityCritical,
			Message:  "focus on fundamental concepts before advancing",
			Actions:  []string{"review basic concepts", "practice easy questions"},
		})
	}

	if tm.Efficiency > 0 && tm.Efficiency < 60 {
		recs = append(recs, domain.Recommendation{
			Type:     "TIME_MANAGEMENT",
			Priority: domain.PriorityMedium,
			Message:  "improve time management skills",
			Actions:  []string{"practice with a timer", "review time allocation strategies"},
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return priorityWeight(recs[i].Priority) > priorityWeight(recs[j].Priority)
	})
	return recs
}

func priorityWeight(p domain.RecommendationPriority) int {
	switch p {
	case domain.PriorityCritical:
		return 3
	case domain.PriorityHigh:
		return 2
	case domain.PriorityMedium:
		return 1
	default:
		return 0
	}
}
