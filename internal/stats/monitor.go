package stats

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/domain"
)

const (
	slowThreshold     = 1 * time.Second
	criticalThreshold = 5 * time.Second
	// maxSamples bounds the per-operation duration window.
	maxSamples = 256
)

type opStats struct {
	samples  []time.Duration
	total    time.Duration
	count    int
	slow     int
	critical int
	failures int
	max      time.Duration
}

// Monitor records processing durations per operation and surfaces ranked
// recommendations when operations run slow.
type Monitor struct {
	mu  sync.Mutex
	ops map[string]*opStats
	log *zap.Logger
}

func NewMonitor(log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{ops: make(map[string]*opStats), log: log}
}

// Observe records one operation's duration. Slow operations are logged as
// they happen; the thresholds mirror what the dashboard alerts on.
func (m *Monitor) Observe(op string, d time.Duration) {
	m.mu.Lock()
	s, ok := m.ops[op]
	if !ok {
		s = &opStats{}
		m.ops[op] = s
	}
	s.count++
	s.total += d
	if d > s.max {
		s.max = d
	}
	if len(s.samples) >= maxSamples {
		s.samples = s.samples[1:]
	}
	s.samples = append(s.samples, d)
	switch {
	case d > criticalThreshold:
		s.critical++
	case d > slowThreshold:
		s.slow++
	}
	m.mu.Unlock()

	if d > criticalThreshold {
		m.log.Error("critically slow operation", zap.String("op", op), zap.Duration("took", d))
	} else if d > slowThreshold {
		m.log.Warn("slow operation", zap.String("op", op), zap.Duration("took", d))
	}
}

// Track wraps a function call with an observation.
func (m *Monitor) Track(op string, fn func()) {
	start := time.Now()
	fn()
	m.Observe(op, time.Since(start))
}

// Fail records one failed run of an operation.
func (m *Monitor) Fail(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.ops[op]
	if !ok {
		s = &opStats{}
		m.ops[op] = s
	}
	s.failures++
}

// OpReport summarizes one operation's timing profile.
type OpReport struct {
	Operation string        `json:"operation"`
	Count     int           `json:"count"`
	Average   time.Duration `json:"average"`
	Max       time.Duration `json:"max"`
	Slow      int           `json:"slow"`
	Critical  int           `json:"critical"`
	Failures  int           `json:"failures"`
}

// Report returns per-operation summaries sorted by average, slowest first.
func (m *Monitor) Report() []OpReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	reports := make([]OpReport, 0, len(m.ops))
	for op, s := range m.ops {
		avg := time.Duration(0)
		if s.count > 0 {
			avg = s.total / time.Duration(s.count)
		}
		reports = append(reports, OpReport{
			Operation: op,
			Count:     s.count,
			Average:   avg,
			Max:       s.max,
			Slow:      s.slow,
			Critical:  s.critical,
			Failures:  s.failures,
		})
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Average > reports[j].Average })
	return reports
}

// Recommendations ranks tuning advice from the collected timings.
func (m *Monitor) Recommendations() []domain.Recommendation {
	var recs []domain.Recommendation
	for _, r := range m.Report() {
		switch {
		case r.Critical > 0:
			recs = append(recs, domain.Recommendation{
				Type:     "PERFORMANCE",
				Priority: domain.PriorityCritical,
				Message:  r.Operation + " exceeded the critical latency threshold",
				Actions:  []string{"profile " + r.Operation, "consider caching or batching"},
			})
		case r.Failures > 0:
			recs = append(recs, domain.Recommendation{
				Type:     "RELIABILITY",
				Priority: domain.PriorityHigh,
				Message:  r.Operation + " runs are failing",
				Actions:  []string{"inspect recent " + r.Operation + " errors"},
			})
		case r.Slow > 0:
			recs = append(recs, domain.Recommendation{
				Type:     "PERFORMANCE",
				Priority: domain.PriorityHigh,
				Message:  r.Operation + " is running slow",
				Actions:  []string{"review recent changes to " + r.Operation},
			})
		case r.Average > slowThreshold/2:
			recs = append(recs, domain.Recommendation{
				Type:     "PERFORMANCE",
				Priority: domain.PriorityMedium,
				Message:  r.Operation + " average latency is trending up",
			})
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return priorityRank(recs[i].Priority) > priorityRank(recs[j].Priority)
	})
	return recs
}

func priorityRank(p domain.RecommendationPriority) int {
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
