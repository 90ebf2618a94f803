package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/applyhook/internal/model"
)

var _ model.RecruitingAPI = (*API)(nil)

// API is a decorator that retries transient failures with exponential
// backoff and jitter before delegating to the wrapped RecruitingAPI.
type API struct {
	inner      model.RecruitingAPI
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// New wraps a RecruitingAPI with retry logic.
// maxRetries is the number of additional attempts after the first failure (default: 2).
// baseDelay is the delay before the first retry (default: 5s), doubled on each subsequent retry.
func New(inner model.RecruitingAPI, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *API {
	return &API{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

func (a *API) ListVacancies(ctx context.Context, token string) ([]model.Vacancy, error) {
	return do(ctx, a, "list_vacancies", func(ctx context.Context) ([]model.Vacancy, error) {
		return a.inner.ListVacancies(ctx, token)
	})
}

func (a *API) ListResponses(ctx context.Context, token, vacancyID string, page int) ([]model.Application, error) {
	return do(ctx, a, "list_responses", func(ctx context.Context) ([]model.Application, error) {
		return a.inner.ListResponses(ctx, token, vacancyID, page)
	})
}

func (a *API) GetVacancy(ctx context.Context, token, vacancyID string) (model.Vacancy, error) {
	return do(ctx, a, "get_vacancy", func(ctx context.Context) (model.Vacancy, error) {
		return a.inner.GetVacancy(ctx, token, vacancyID)
	})
}

func (a *API) GetUser(ctx context.Context, token, login string) (model.UserProfile, error) {
	return do(ctx, a, "get_user", func(ctx context.Context) (model.UserProfile, error) {
		return a.inner.GetUser(ctx, token, login)
	})
}

// do runs fn, retrying on transient errors.
func do[T any](ctx context.Context, a *API, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	if !isRetryable(err) {
		return zero, err
	}

	lastErr := err
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		delay := a.backoffDelay(attempt, lastErr)

		a.logger.Warn("retrying after transient error",
			"op", op,
			"attempt", attempt,
			"max_retries", a.maxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}

		if !isRetryable(err) {
			return zero, err
		}
		lastErr = err
	}

	return zero, lastErr
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// If the error includes a Retry-After duration (HTTP 429), that takes precedence.
func (a *API) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	// Exponential: baseDelay * 2^(attempt-1)
	delay := a.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)

	return delay
}

// isRetryable returns true if the error represents a transient failure worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == 429 {
			return true
		}
		if httpErr.StatusCode >= 500 {
			return true
		}
		// Other 4xx, including 401, will not get better by asking again.
		return false
	}

	// Network, DNS and decode errors.
	return true
}
