package domain

import (
	"encoding/json"
	"time"
)

// QuestionType discriminates answer semantics.
type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	YesNo          QuestionType = "yes_no"
)

// Difficulty labels a question; grading weights key off it.
type Difficulty string

const (
	Easy     Difficulty = "Easy"
	Normal   Difficulty = "Normal"
	Hard     Difficulty = "Hard"
	VeryHard Difficulty = "Very Hard"
)

// Difficulties lists levels in ascending order; progression analysis depends on this order.
var Difficulties = []Difficulty{Easy, Normal, Hard, VeryHard}

// Question is immutable once fetched for grading.
type Question struct {
	ID         string       `json:"id"`
	Prompt     string       `json:"prompt"`
	Type       QuestionType `json:"type"`
	Options    []string     `json:"options"`
	Correct    []int        `json:"correct"`
	Category   string       `json:"category"`
	Difficulty Difficulty   `json:"difficulty"`
}

// Quiz is a collection of questions with an optional time limit.
type Quiz struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Questions        []Question `json:"questions"`
	TimeLimitSeconds float64    `json:"timeLimitSeconds"`
}

// AnswerKind tags the Answer variant.
type AnswerKind int

const (
	// AnswerNone marks an unanswered question.
	AnswerNone AnswerKind = iota
	// AnswerIndex is a single selected option (single choice, yes/no).
	AnswerIndex
	// AnswerIndexSet is a set of selected options (multiple choice).
	AnswerIndexSet
)

// Answer is a tagged variant discriminated by the question's type.
// It decodes from JSON null, a number, or an array of numbers.
type Answer struct {
	Kind    AnswerKind
	Index   int
	Indices []int
}

// IndexAnswer builds a single-index answer.
func IndexAnswer(i int) Answer { return Answer{Kind: AnswerIndex, Index: i} }

// SetAnswer builds a multi-select answer.
func SetAnswer(indices ...int) Answer { return Answer{Kind: AnswerIndexSet, Indices: indices} }

// NoAnswer marks an unanswered question.
func NoAnswer() Answer { return Answer{Kind: AnswerNone} }

func (a *Answer) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*a = Answer{Kind: AnswerNone}
	case float64:
		if v != float64(int(v)) {
			return ErrMalformedAnswer
		}
		*a = Answer{Kind: AnswerIndex, Index: int(v)}
	case []any:
		indices := make([]int, 0, len(v))
		for _, elem := range v {
			f, ok := elem.(float64)
			if !ok || f != float64(int(f)) {
				return ErrMalformedAnswer
			}
			indices = append(indices, int(f))
		}
		*a = Answer{Kind: AnswerIndexSet, Indices: indices}
	default:
		return ErrMalformedAnswer
	}
	return nil
}

func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerIndex:
		return json.Marshal(a.Index)
	case AnswerIndexSet:
		return json.Marshal(a.Indices)
	default:
		return []byte("null"), nil
	}
}

// InteractionEvents counts client-side proctoring signals captured during an attempt.
type InteractionEvents struct {
	TabSwitches int `json:"tabSwitches"`
	FocusLosses int `json:"focusLosses"`
	RightClicks int `json:"rightClicks"`
}

// Submission is a learner's finished attempt. Immutable once created;
// consumed exactly once by the processing pipeline.
type Submission struct {
	UserID          string             `json:"userId"`
	QuizID          string             `json:"quizId"`
	StartedAt       time.Time          `json:"startedAt"`
	CompletedAt     time.Time          `json:"completedAt"`
	Answers         map[string]Answer  `json:"answers"`
	TimePerQuestion map[string]float64 `json:"timePerQuestion"`
	// TotalDuration is the client-reported duration in seconds; checked
	// against CompletedAt-StartedAt by the integrity checker.
	TotalDuration float64 `json:"totalDuration"`
	// QuestionOrder is the order trace the client saw, when present.
	QuestionOrder []string          `json:"questionOrder,omitempty"`
	Events        InteractionEvents `json:"events"`
}

// QuestionResult captures per-question validation output for grading.
type QuestionResult struct {
	QuestionID   string     `json:"questionId"`
	Category     string     `json:"category"`
	Difficulty   Difficulty `json:"difficulty"`
	Answered     bool       `json:"answered"`
	Correct      bool       `json:"correct"`
	PartialRatio float64    `json:"partialRatio"`
	TimeSpent    float64    `json:"timeSpent"`
}

// BreakdownEntry aggregates correctness within one category or difficulty.
type BreakdownEntry struct {
	Total      int `json:"total"`
	Correct    int `json:"correct"`
	Percentage int `json:"percentage"`
}

// ValidationResult is the validator's aggregate over a full submission.
type ValidationResult struct {
	TotalQuestions      int                           `json:"totalQuestions"`
	CorrectAnswers      int                           `json:"correctAnswers"`
	IncorrectAnswers    int                           `json:"incorrectAnswers"`
	UnansweredQuestions int                           `json:"unansweredQuestions"`
	FinalScore          int                           `json:"finalScore"`
	CategoryBreakdown   map[string]BreakdownEntry     `json:"categoryBreakdown"`
	DifficultyBreakdown map[Difficulty]BreakdownEntry `json:"difficultyBreakdown"`
	QuestionResults     []QuestionResult              `json:"questionResults"`
}

// Severity ranks a failed integrity check.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SecurityAction is the recommended operational response to an assessment.
type SecurityAction string

const (
	ActionAllow          SecurityAction = "ALLOW"
	ActionMonitor        SecurityAction = "MONITOR"
	ActionMonitorClosely SecurityAction = "MONITOR_CLOSELY"
	ActionFlagForReview  SecurityAction = "FLAG_FOR_REVIEW"
	ActionBlockAndReview SecurityAction = "BLOCK_AND_REVIEW"
)

// CheckResult is the outcome of one integrity check.
type CheckResult struct {
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity"`
	Findings []string `json:"findings,omitempty"`
}

// SecurityAssessment aggregates the four integrity checks.
type SecurityAssessment struct {
	Valid                bool           `json:"valid"`
	Score                float64        `json:"score"`
	Action               SecurityAction `json:"action"`
	Timing               CheckResult    `json:"timing"`
	Sequence             CheckResult    `json:"sequence"`
	Structure            CheckResult    `json:"structure"`
	Behavior             CheckResult    `json:"behavior"`
	SuspiciousActivities []string       `json:"suspiciousActivities,omitempty"`
}

// TimingConsistency classifies per-question time variance.
type TimingConsistency string

const (
	TimingVeryConsistent TimingConsistency = "VERY_CONSISTENT"
	TimingConsistent     TimingConsistency = "CONSISTENT"
	TimingNormal         TimingConsistency = "NORMAL"
	TimingInconsistent   TimingConsistency = "INCONSISTENT"
	TimingUnknown        TimingConsistency = "UNKNOWN"
)

// SpeedStats summarizes per-question answer times in seconds.
type SpeedStats struct {
	Average float64 `json:"average"`
	Fastest float64 `json:"fastest"`
	Slowest float64 `json:"slowest"`
}

// BehaviorReport is the behavioral risk analyzer output.
type BehaviorReport struct {
	RiskScore      float64           `json:"riskScore"`
	FlagForReview  bool              `json:"flagForReview"`
	Speed          SpeedStats        `json:"speed"`
	Variance       float64           `json:"variance"`
	Consistency    TimingConsistency `json:"consistency"`
	FastAnswers    []string          `json:"fastAnswers,omitempty"`
	Distribution   map[int]int       `json:"distribution,omitempty"`
	DistributionOK bool              `json:"distributionOk"`
	Patterns       []string          `json:"patterns,omitempty"`
}

// RecommendationPriority orders study recommendations.
type RecommendationPriority string

const (
	PriorityCritical RecommendationPriority = "CRITICAL"
	PriorityHigh     RecommendationPriority = "HIGH"
	PriorityMedium   RecommendationPriority = "MEDIUM"
	PriorityLow      RecommendationPriority = "LOW"
)

// Recommendation is one ranked study suggestion in a grade report.
type Recommendation struct {
	Type     string                 `json:"type"`
	Priority RecommendationPriority `json:"priority"`
	Category string                 `json:"category,omitempty"`
	Message  string                 `json:"message"`
	Actions  []string               `json:"actions,omitempty"`
}

// DifficultyContribution shows how one difficulty tier contributed to the weighted score.
type DifficultyContribution struct {
	Total      int     `json:"total"`
	Correct    int     `json:"correct"`
	Partial    int     `json:"partial"`
	Weight     float64 `json:"weight"`
	Earned     float64 `json:"earned"`
	Possible   float64 `json:"possible"`
	Percentage int     `json:"percentage"`
}

// TimeManagement narrates pacing over the attempt.
type TimeManagement struct {
	Efficiency       int      `json:"efficiency"`
	Bonus            float64  `json:"bonus"`
	Penalty          float64  `json:"penalty"`
	RushedQuestions  int      `json:"rushedQuestions"`
	DelayedQuestions int      `json:"delayedQuestions"`
	OptimalUsage     int      `json:"optimalUsage"`
	Notes            []string `json:"notes,omitempty"`
}

// GradeReport is the grading engine's full output.
type GradeReport struct {
	Success           bool                                  `json:"success"`
	RawScore          int                                   `json:"rawScore"`
	WeightedScore     int                                   `json:"weightedScore"`
	AdjustedScore     int                                   `json:"adjustedScore"`
	LetterGrade       string                                `json:"letterGrade"`
	Passed            bool                                  `json:"passed"`
	StrongestCategory string                                `json:"strongestCategory"`
	WeakestCategory   string                                `json:"weakestCategory"`
	DifficultyTrend   string                                `json:"difficultyTrend"`
	Categories        map[string]BreakdownEntry             `json:"categories"`
	Difficulties      map[Difficulty]DifficultyContribution `json:"difficulties"`
	TimeManagement    TimeManagement                        `json:"timeManagement"`
	Recommendations   []Recommendation                      `json:"recommendations"`
	PercentileRank    *int                                  `json:"percentileRank,omitempty"`
}

// SecurityFlags is the compact security summary persisted with a submission.
type SecurityFlags struct {
	SecurityScore    float64        `json:"securityScore"`
	Action           SecurityAction `json:"action"`
	RiskScore        float64        `json:"riskScore"`
	FlaggedForReview bool           `json:"flaggedForReview"`
}

// SubmissionRecord is the append-only persisted form of a processed submission.
type SubmissionRecord struct {
	UserID         string          `json:"userId"`
	QuizID         string          `json:"quizId"`
	Score          int             `json:"score"`
	TotalQuestions int             `json:"totalQuestions"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    time.Time       `json:"completedAt"`
	SubmissionData json.RawMessage `json:"submissionData"`
}
