// Package redis provides Redis-backed caches in front of the backing store:
// quiz questions as a hash per quiz, and the latest statistics snapshot as a
// TTL'd JSON blob.
package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/vd4-dee/quiz/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (e.g., Postgres).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuestionRepository caches quizzes in Redis and falls back to a loader on
// cache miss. Each question is one hash field:
// HSET quiz:{quizID}:questions {questionID} {question JSON}
// and the quiz metadata (title, time limit) is a TTL'd JSON blob alongside:
// SET quiz:{quizID}:meta {quiz JSON without questions}
type QuestionRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := r.cachedQuiz(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cachedQuiz(ctx, quizID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return nil, err
		}
		r.storeQuiz(ctx, quizID, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	quiz, err := r.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	return quiz.Questions, nil
}

// cachedQuiz reads the meta blob and question hash together; both must be
// present for a hit so a half-expired pair falls through to the loader.
func (r *QuestionRepository) cachedQuiz(ctx context.Context, quizID string) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, r.metaKey(quizID)).Result()
	if err != nil {
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return domain.Quiz{}, false
	}
	fields, err := r.client.HGetAll(ctx, r.questionsKey(quizID)).Result()
	if err != nil || len(fields) == 0 {
		return domain.Quiz{}, false
	}
	questions, err := decodeQuestions(fields)
	if err != nil {
		return domain.Quiz{}, false
	}
	quiz.Questions = questions
	return quiz, true
}

func (r *QuestionRepository) storeQuiz(ctx context.Context, quizID string, quiz domain.Quiz) {
	meta := quiz
	meta.Questions = nil
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}

	ttl := r.ttlWithJitter()
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.metaKey(quizID), data, ttl)
	for _, q := range quiz.Questions {
		qdata, err := json.Marshal(q)
		if err != nil {
			continue
		}
		pipe.HSet(ctx, r.questionsKey(quizID), q.ID, qdata)
	}
	if ttl > 0 {
		pipe.Expire(ctx, r.questionsKey(quizID), ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (r *QuestionRepository) questionsKey(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (r *QuestionRepository) metaKey(quizID string) string {
	return "quiz:" + quizID + ":meta"
}

func decodeQuestions(fields map[string]string) ([]domain.Question, error) {
	questions := make([]domain.Question, 0, len(fields))
	for id, data := range fields {
		var q domain.Question
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			return nil, err
		}
		if q.ID == "" {
			q.ID = id
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
