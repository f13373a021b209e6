package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"audience-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// SlideLoader fetches slide configuration from a backing store (e.g., the
// presentation document DB).
type SlideLoader interface {
	LoadQuizConfig(ctx context.Context, slideID string) (domain.QuizSlideConfig, error)
	LoadQuizSlideIDs(ctx context.Context, presentationID string) ([]string, error)
}

// SlideProvider caches slide configs and per-presentation quiz slide lists
// with TTL to avoid hitting the presentation store on every round.
type SlideProvider struct {
	loader SlideLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu     sync.RWMutex
	cfgs   map[string]cachedConfig
	slides map[string]cachedSlideIDs
}

type cachedConfig struct {
	cfg       domain.QuizSlideConfig
	expiresAt time.Time
}

type cachedSlideIDs struct {
	ids       []string
	expiresAt time.Time
}

func NewSlideProvider(loader SlideLoader, ttl time.Duration) *SlideProvider {
	return &SlideProvider{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cfgs:   make(map[string]cachedConfig),
		slides: make(map[string]cachedSlideIDs),
	}
}

func (p *SlideProvider) QuizConfig(ctx context.Context, slideID string) (domain.QuizSlideConfig, error) {
	now := p.clock()

	p.mu.RLock()
	if entry, ok := p.cfgs[slideID]; ok && entry.expiresAt.After(now) {
		p.mu.RUnlock()
		return entry.cfg, nil
	}
	p.mu.RUnlock()

	result, err, _ := p.sf.Do("cfg:"+slideID, func() (interface{}, error) {
		now := p.clock()
		p.mu.RLock()
		if entry, ok := p.cfgs[slideID]; ok && entry.expiresAt.After(now) {
			p.mu.RUnlock()
			return entry.cfg, nil
		}
		p.mu.RUnlock()

		cfg, err := p.loader.LoadQuizConfig(ctx, slideID)
		if err != nil {
			return domain.QuizSlideConfig{}, err
		}

		p.mu.Lock()
		p.cfgs[slideID] = cachedConfig{cfg: cfg, expiresAt: now.Add(p.ttlWithJitter())}
		p.mu.Unlock()
		return cfg, nil
	})
	if err != nil {
		return domain.QuizSlideConfig{}, err
	}
	return result.(domain.QuizSlideConfig), nil
}

func (p *SlideProvider) QuizSlideIDs(ctx context.Context, presentationID string) ([]string, error) {
	now := p.clock()

	p.mu.RLock()
	if entry, ok := p.slides[presentationID]; ok && entry.expiresAt.After(now) {
		p.mu.RUnlock()
		return entry.ids, nil
	}
	p.mu.RUnlock()

	result, err, _ := p.sf.Do("slides:"+presentationID, func() (interface{}, error) {
		now := p.clock()
		p.mu.RLock()
		if entry, ok := p.slides[presentationID]; ok && entry.expiresAt.After(now) {
			p.mu.RUnlock()
			return entry.ids, nil
		}
		p.mu.RUnlock()

		ids, err := p.loader.LoadQuizSlideIDs(ctx, presentationID)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.slides[presentationID] = cachedSlideIDs{ids: ids, expiresAt: now.Add(p.ttlWithJitter())}
		p.mu.Unlock()
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

func (p *SlideProvider) ttlWithJitter() time.Duration {
	if p.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(p.ttl) / 10
	return p.ttl + time.Duration(p.rnd.Int63n(jitterMax+1))
}

// StaticSlideLoader is a simple loader backed by in-memory maps (useful for
// tests/demos).
type StaticSlideLoader struct {
	configs       map[string]domain.QuizSlideConfig
	presentations map[string][]string
}

func NewStaticSlideLoader(configs map[string]domain.QuizSlideConfig, presentations map[string][]string) *StaticSlideLoader {
	return &StaticSlideLoader{configs: configs, presentations: presentations}
}

func (l *StaticSlideLoader) LoadQuizConfig(_ context.Context, slideID string) (domain.QuizSlideConfig, error) {
	if cfg, ok := l.configs[slideID]; ok {
		return cfg, nil
	}
	return domain.QuizSlideConfig{}, domain.ErrConfigMissing
}

func (l *StaticSlideLoader) LoadQuizSlideIDs(_ context.Context, presentationID string) ([]string, error) {
	if ids, ok := l.presentations[presentationID]; ok {
		return ids, nil
	}
	return nil, domain.ErrSlideNotFound
}
