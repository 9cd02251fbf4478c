package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/vd4-dee/quiz/internal/domain"
)

func TestCalculatorUpdateAndAggregates(t *testing.T) {
	c := NewCalculator(nil)
	c.Update("u1", "quiz-1", 80)
	c.Update("u1", "quiz-1", 90)
	c.Update("u2", "quiz-1", 60)

	user, ok := c.UserAggregate("u1")
	if !ok {
		t.Fatal("missing u1 bucket")
	}
	if user.Count != 2 || user.Sum != 170 || user.Average() != 85 {
		t.Fatalf("u1 aggregate = %+v", user)
	}
	if user.Min != 80 || user.Max != 90 || user.LastScore != 90 {
		t.Fatalf("u1 bounds = %+v", user)
	}

	quiz, ok := c.QuizAggregate("quiz-1")
	if !ok {
		t.Fatal("missing quiz bucket")
	}
	if quiz.Count != 3 || quiz.Sum != 230 {
		t.Fatalf("quiz aggregate = %+v", quiz)
	}
}

func TestCalculatorCategoryAndDifficultyBuckets(t *testing.T) {
	c := NewCalculator(nil)
	c.Apply(Update{
		UserID: "u1", QuizID: "quiz-1", Score: 90,
		Categories:   map[string]float64{"Math": 100, "Science": 50},
		Difficulties: map[domain.Difficulty]float64{domain.Easy: 100, domain.Hard: 50},
	})
	c.Apply(Update{
		UserID: "u2", QuizID: "quiz-1", Score: 70,
		Categories:   map[string]float64{"Math": 60},
		Difficulties: map[domain.Difficulty]float64{domain.Easy: 70},
	})

	snap := c.Snapshot()
	if snap.Global.Count != 2 || snap.Global.Average() != 80 {
		t.Fatalf("global = %+v", snap.Global)
	}
	math := snap.Categories["Math"]
	if math.Count != 2 || math.Average() != 80 || math.Min != 60 {
		t.Fatalf("math category = %+v", math)
	}
	easy := snap.Difficulties[domain.Easy]
	if easy.Count != 2 || easy.Passing != 2 || easy.Average() != 85 {
		t.Fatalf("easy tier = %+v", easy)
	}
	hard := snap.Difficulties[domain.Hard]
	if hard.Count != 1 || hard.Passing != 0 {
		t.Fatalf("hard tier = %+v", hard)
	}
}

func TestCalculatorConcurrentUpdates(t *testing.T) {
	c := NewCalculator(nil)
	const workers = 8
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.Update("u1", "quiz-1", 50)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if snap.TotalEvents != workers*perWorker {
		t.Fatalf("total = %d, want %d", snap.TotalEvents, workers*perWorker)
	}
	if got := snap.Users["u1"]; got.Count != workers*perWorker || got.Sum != float64(workers*perWorker)*50 {
		t.Fatalf("u1 = %+v", got)
	}
}

func TestCalculatorEvictsIdleBuckets(t *testing.T) {
	c := NewCalculator(nil)
	current := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return current }

	c.Update("stale-user", "stale-quiz", 40)

	// Advance past the idle window, then drive enough updates to trigger a sweep.
	current = current.Add(maxIdle + time.Hour)
	for i := 0; i < cleanupInterval; i++ {
		c.Update("fresh-user", "fresh-quiz", 70)
	}

	if _, ok := c.UserAggregate("stale-user"); ok {
		t.Fatal("stale user bucket survived cleanup")
	}
	if _, ok := c.UserAggregate("fresh-user"); !ok {
		t.Fatal("fresh user bucket evicted")
	}
}

func TestCalculatorSnapshotsInterleaveWithWriters(t *testing.T) {
	c := NewCalculator(nil)
	const workers = 4
	const perWorker = 250

	done := make(chan struct{})
	go func() {
		// Snapshot continuously while writers touch distinct buckets.
		for {
			select {
			case <-done:
				return
			default:
				c.Snapshot()
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id byte) {
			defer wg.Done()
			user := "user-" + string('a'+id)
			for i := 0; i < perWorker; i++ {
				c.Apply(Update{UserID: user, QuizID: "quiz-1", Score: 75})
			}
		}(byte(w))
	}
	wg.Wait()
	close(done)

	snap := c.Snapshot()
	if snap.TotalEvents != workers*perWorker {
		t.Fatalf("total = %d, want %d", snap.TotalEvents, workers*perWorker)
	}
	if snap.Global.Count != workers*perWorker {
		t.Fatalf("global = %+v", snap.Global)
	}
	for w := 0; w < workers; w++ {
		user := "user-" + string('a'+byte(w))
		if got := snap.Users[user]; got.Count != perWorker {
			t.Fatalf("%s = %+v", user, got)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := NewCalculator(nil)
	c.Update("u1", "quiz-1", 100)

	snap := c.Snapshot()
	snap.Users["u1"] = Aggregate{}

	if got, _ := c.UserAggregate("u1"); got.Count != 1 {
		t.Fatal("mutating a snapshot leaked into the calculator")
	}
}
