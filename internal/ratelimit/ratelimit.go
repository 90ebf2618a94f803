package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amishk599/applyhook/internal/model"
)

// Limiter enforces a minimum delay between requests to the same backend.
type Limiter struct {
	mu       sync.Mutex
	lastCall map[string]time.Time // key: backend name
	minDelay time.Duration
}

// NewLimiter creates a rate limiter that enforces minDelay between
// consecutive requests to the same backend. A zero delay never waits.
func NewLimiter(minDelay time.Duration) *Limiter {
	return &Limiter{
		lastCall: make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until enough time has passed since the last request to the given backend.
// Returns an error if the context is cancelled while waiting.
func (r *Limiter) Wait(ctx context.Context, key string) error {
	r.mu.Lock()
	last, ok := r.lastCall[key]
	now := time.Now()

	if !ok || now.Sub(last) >= r.minDelay {
		r.lastCall[key] = now
		r.mu.Unlock()
		return nil
	}

	// Reserve the slot so concurrent callers queue up.
	next := last.Add(r.minDelay)
	r.lastCall[key] = next
	r.mu.Unlock()

	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", key, ctx.Err())
	case <-time.After(time.Until(next)):
	}
	return nil
}

var _ model.RecruitingAPI = (*API)(nil)

// API is a decorator that enforces backend-level rate limiting before
// delegating to the wrapped RecruitingAPI.
type API struct {
	inner   model.RecruitingAPI
	limiter *Limiter
	key     string
}

// NewAPI wraps a RecruitingAPI with rate limiting under key.
// Decorators targeting the same backend should share the same limiter instance.
func NewAPI(inner model.RecruitingAPI, limiter *Limiter, key string) *API {
	return &API{
		inner:   inner,
		limiter: limiter,
		key:     key,
	}
}

func (a *API) ListVacancies(ctx context.Context, token string) ([]model.Vacancy, error) {
	if err := a.limiter.Wait(ctx, a.key); err != nil {
		return nil, err
	}
	return a.inner.ListVacancies(ctx, token)
}

func (a *API) ListResponses(ctx context.Context, token, vacancyID string, page int) ([]model.Application, error) {
	if err := a.limiter.Wait(ctx, a.key); err != nil {
		return nil, err
	}
	return a.inner.ListResponses(ctx, token, vacancyID, page)
}

func (a *API) GetVacancy(ctx context.Context, token, vacancyID string) (model.Vacancy, error) {
	if err := a.limiter.Wait(ctx, a.key); err != nil {
		return model.Vacancy{}, err
	}
	return a.inner.GetVacancy(ctx, token, vacancyID)
}

func (a *API) GetUser(ctx context.Context, token, login string) (model.UserProfile, error) {
	if err := a.limiter.Wait(ctx, a.key); err != nil {
		return model.UserProfile{}, err
	}
	return a.inner.GetUser(ctx, token, login)
}
