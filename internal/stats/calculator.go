// Package stats maintains live quiz analytics: incremental global, per-user,
// per-quiz, per-category, and per-difficulty aggregates, a TTL result cache,
// batched persistence, and processing-time monitoring.
package stats

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vd4-dee/quiz/internal/domain"
)

const (
	// cleanupInterval is the number of updates between idle-bucket sweeps.
	cleanupInterval = 1000
	// maxIdle is how long a bucket may go without updates before eviction.
	maxIdle = 24 * time.Hour
	// passingScore marks a difficulty-tier result as passing.
	passingScore = 70
)

// Aggregate is the O(1) running summary for one user or quiz.
type Aggregate struct {
	Count       int       `json:"count"`
	Sum         float64   `json:"sum"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	LastScore   float64   `json:"lastScore"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Average returns the running mean, 0 when empty.
func (a Aggregate) Average() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// DifficultyAggregate is the running summary for one difficulty tier.
type DifficultyAggregate struct {
	Count   int     `json:"count"`
	Sum     float64 `json:"sum"`
	Passing int     `json:"passing"`
}

// Average returns the running mean percentage, 0 when empty.
func (d DifficultyAggregate) Average() float64 {
	if d.Count == 0 {
		return 0
	}
	return d.Sum / float64(d.Count)
}

// Snapshot is a point-in-time copy of the calculator state, safe to share.
type Snapshot struct {
	Global       Aggregate                                 `json:"global"`
	Users        map[string]Aggregate                      `json:"users"`
	Quizzes      map[string]Aggregate                      `json:"quizzes"`
	Categories   map[string]Aggregate                      `json:"categories"`
	Difficulties map[domain.Difficulty]DifficultyAggregate `json:"difficulties"`
	TotalEvents  int                                       `json:"totalEvents"`
	GeneratedAt  time.Time                                 `json:"generatedAt"`
}

// Calculator accumulates scores incrementally. Every update is O(1); a sweep
// every cleanupInterval updates evicts buckets idle longer than maxIdle so the
// maps cannot grow without bound. Each bucket map has its own lock: writers
// touching different maps never serialize behind each other or behind a
// snapshot copy of another map.
type Calculator struct {
	countersMu sync.Mutex
	global     Aggregate
	updates    int
	total      int

	usersMu sync.Mutex
	users   map[string]Aggregate

	quizzesMu sync.Mutex
	quizzes   map[string]Aggregate

	categoriesMu sync.Mutex
	categories   map[string]Aggregate

	difficultiesMu sync.Mutex
	difficulties   map[domain.Difficulty]DifficultyAggregate

	now func() time.Time
	log *zap.Logger
}

func NewCalculator(log *zap.Logger) *Calculator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Calculator{
		users:        make(map[string]Aggregate),
		quizzes:      make(map[string]Aggregate),
		categories:   make(map[string]Aggregate),
		difficulties: make(map[domain.Difficulty]DifficultyAggregate),
		now:          time.Now,
		log:          log,
	}
}

// Update folds one score into the global, user, and quiz buckets.
func (c *Calculator) Update(userID, quizID string, score float64) {
	c.Apply(Update{UserID: userID, QuizID: quizID, Score: score})
}

// Apply folds one update, including any per-category and per-difficulty
// percentages it carries.
func (c *Calculator) Apply(u Update) {
	now := c.now()

	c.usersMu.Lock()
	c.users[u.UserID] = fold(c.users[u.UserID], u.Score, now)
	c.usersMu.Unlock()

	c.quizzesMu.Lock()
	c.quizzes[u.QuizID] = fold(c.quizzes[u.QuizID], u.Score, now)
	c.quizzesMu.Unlock()

	if len(u.Categories) > 0 {
		c.categoriesMu.Lock()
		for name, pct := range u.Categories {
			c.categories[name] = fold(c.categories[name], pct, now)
		}
		c.categoriesMu.Unlock()
	}
	if len(u.Difficulties) > 0 {
		c.difficultiesMu.Lock()
		for tier, pct := range u.Difficulties {
			agg := c.difficulties[tier]
			agg.Count++
			agg.Sum += pct
			if pct >= passingScore {
				agg.Passing++
			}
			c.difficulties[tier] = agg
		}
		c.difficultiesMu.Unlock()
	}

	c.countersMu.Lock()
	c.global = fold(c.global, u.Score, now)
	c.total++
	c.updates++
	sweep := c.updates >= cleanupInterval
	if sweep {
		c.updates = 0
	}
	c.countersMu.Unlock()

	if sweep {
		c.cleanup(now)
	}
}

func fold(a Aggregate, score float64, now time.Time) Aggregate {
	if a.Count == 0 {
		a.Min = math.Inf(1)
		a.Max = math.Inf(-1)
	}
	a.Count++
	a.Sum += score
	a.Min = math.Min(a.Min, score)
	a.Max = math.Max(a.Max, score)
	a.LastScore = score
	a.LastUpdated = now
	return a
}

func (c *Calculator) cleanup(now time.Time) {
	evicted := 0
	c.usersMu.Lock()
	for id, a := range c.users {
		if now.Sub(a.LastUpdated) > maxIdle {
			delete(c.users, id)
			evicted++
		}
	}
	c.usersMu.Unlock()

	c.quizzesMu.Lock()
	for id, a := range c.quizzes {
		if now.Sub(a.LastUpdated) > maxIdle {
			delete(c.quizzes, id)
			evicted++
		}
	}
	c.quizzesMu.Unlock()

	if evicted > 0 {
		c.log.Debug("evicted idle stat buckets", zap.Int("evicted", evicted))
	}
}

// UserAggregate returns the bucket for one user.
func (c *Calculator) UserAggregate(userID string) (Aggregate, bool) {
	c.usersMu.Lock()
	defer c.usersMu.Unlock()
	a, ok := c.users[userID]
	return a, ok
}

// QuizAggregate returns the bucket for one quiz.
func (c *Calculator) QuizAggregate(quizID string) (Aggregate, bool) {
	c.quizzesMu.Lock()
	defer c.quizzesMu.Unlock()
	a, ok := c.quizzes[quizID]
	return a, ok
}

// TrackedEntries reports how many live buckets the calculator holds.
func (c *Calculator) TrackedEntries() int {
	n := 0
	c.usersMu.Lock()
	n += len(c.users)
	c.usersMu.Unlock()
	c.quizzesMu.Lock()
	n += len(c.quizzes)
	c.quizzesMu.Unlock()
	c.categoriesMu.Lock()
	n += len(c.categories)
	c.categoriesMu.Unlock()
	c.difficultiesMu.Lock()
	n += len(c.difficulties)
	c.difficultiesMu.Unlock()
	return n
}

// Snapshot copies each bucket map under its own lock. Writers on one map are
// never blocked by the copy of another; each map is internally consistent.
func (c *Calculator) Snapshot() Snapshot {
	snap := Snapshot{GeneratedAt: c.now()}

	c.countersMu.Lock()
	snap.Global = c.global
	snap.TotalEvents = c.total
	c.countersMu.Unlock()

	c.usersMu.Lock()
	snap.Users = make(map[string]Aggregate, len(c.users))
	for id, a := range c.users {
		snap.Users[id] = a
	}
	c.usersMu.Unlock()

	c.quizzesMu.Lock()
	snap.Quizzes = make(map[string]Aggregate, len(c.quizzes))
	for id, a := range c.quizzes {
		snap.Quizzes[id] = a
	}
	c.quizzesMu.Unlock()

	c.categoriesMu.Lock()
	snap.Categories = make(map[string]Aggregate, len(c.categories))
	for name, a := range c.categories {
		snap.Categories[name] = a
	}
	c.categoriesMu.Unlock()

	c.difficultiesMu.Lock()
	snap.Difficulties = make(map[domain.Difficulty]DifficultyAggregate, len(c.difficulties))
	for tier, a := range c.difficulties {
		snap.Difficulties[tier] = a
	}
	c.difficultiesMu.Unlock()

	return snap
}
