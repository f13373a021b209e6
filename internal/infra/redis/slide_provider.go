package redis

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"audience-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// SlideLoader fetches slide configuration from a backing store.
type SlideLoader interface {
	LoadQuizConfig(ctx context.Context, slideID string) (domain.QuizSlideConfig, error)
	LoadQuizSlideIDs(ctx context.Context, presentationID string) ([]string, error)
}

// SlideProvider caches quiz slide config in Redis and falls back to a loader
// on cache miss. Config is stored as:
//
//	HSET slide:{slideID}:quiz timeLimit {seconds} correctOptionId {optionID}
//
// and the ordered quiz slide list as:
//
//	RPUSH presentation:{presentationID}:quizslides {slideID...}
type SlideProvider struct {
	client *redis.Client
	loader SlideLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewSlideProvider(client *redis.Client, loader SlideLoader, ttl time.Duration) *SlideProvider {
	return &SlideProvider{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *SlideProvider) QuizConfig(ctx context.Context, slideID string) (domain.QuizSlideConfig, error) {
	key := p.configKey(slideID)

	fields, err := p.client.HGetAll(ctx, key).Result()
	if err == nil && len(fields) > 0 {
		return configFromHash(slideID, fields), nil
	}

	result, err, _ := p.sf.Do("cfg:"+slideID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		fields, err := p.client.HGetAll(ctx, key).Result()
		if err == nil && len(fields) > 0 {
			return configFromHash(slideID, fields), nil
		}

		cfg, err := p.loader.LoadQuizConfig(ctx, slideID)
		if err != nil {
			return domain.QuizSlideConfig{}, err
		}

		ttl := p.ttlWithJitter()
		pipe := p.client.Pipeline()
		pipe.HSet(ctx, key, "timeLimit", cfg.TimeLimit, "correctOptionId", cfg.CorrectOptionID)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return cfg, nil
	})
	if err != nil {
		return domain.QuizSlideConfig{}, err
	}
	return result.(domain.QuizSlideConfig), nil
}

func (p *SlideProvider) QuizSlideIDs(ctx context.Context, presentationID string) ([]string, error) {
	key := p.slidesKey(presentationID)

	ids, err := p.client.LRange(ctx, key, 0, -1).Result()
	if err == nil && len(ids) > 0 {
		return ids, nil
	}

	result, err, _ := p.sf.Do("slides:"+presentationID, func() (interface{}, error) {
		ids, err := p.client.LRange(ctx, key, 0, -1).Result()
		if err == nil && len(ids) > 0 {
			return ids, nil
		}

		loaded, err := p.loader.LoadQuizSlideIDs(ctx, presentationID)
		if err != nil {
			return nil, err
		}
		if len(loaded) == 0 {
			return loaded, nil
		}

		ttl := p.ttlWithJitter()
		pipe := p.client.Pipeline()
		pipe.Del(ctx, key)
		args := make([]interface{}, len(loaded))
		for i, id := range loaded {
			args[i] = id
		}
		pipe.RPush(ctx, key, args...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (p *SlideProvider) configKey(slideID string) string {
	return "slide:" + slideID + ":quiz"
}

func (p *SlideProvider) slidesKey(presentationID string) string {
	return "presentation:" + presentationID + ":quizslides"
}

func configFromHash(slideID string, fields map[string]string) domain.QuizSlideConfig {
	cfg := domain.QuizSlideConfig{SlideID: slideID, CorrectOptionID: fields["correctOptionId"]}
	if raw, ok := fields["timeLimit"]; ok {
		if limit, err := strconv.Atoi(raw); err == nil {
			cfg.TimeLimit = limit
		}
	}
	return cfg
}

func (p *SlideProvider) ttlWithJitter() time.Duration {
	if p.ttl <= 0 {
		return 0
	}
	jitterMax := int64(p.ttl) / 10
	return p.ttl + time.Duration(p.rnd.Int63n(jitterMax+1))
}
