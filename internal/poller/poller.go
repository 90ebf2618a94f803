package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/amishk599/applyhook/internal/model"
)

// UnknownTitle is used when a vacancy lookup fails.
const UnknownTitle = "Unknown Title"

// Options configures which vacancies are polled and how deep.
type Options struct {
	Vacancies      []string // empty: list vacancies through the API
	MaxPages       int      // response pages fetched per vacancy, at least 1
	ProfileBaseURL string   // prefix for the payload's link field
}

// ApplyPoller owns the full enrichment pipeline:
// fetch → dedup → enrich → notify → remember.
type ApplyPoller struct {
	mu       sync.Mutex
	api      model.RecruitingAPI
	tokens   model.TokenStore
	cache    model.ApplyCache
	filter   model.VacancyFilter
	notifier model.Notifier
	opts     Options
	logger   *slog.Logger
}

// NewApplyPoller creates a poller wired with all its dependencies. filter may
// be nil, in which case every listed vacancy is polled.
func NewApplyPoller(
	api model.RecruitingAPI,
	tokens model.TokenStore,
	cache model.ApplyCache,
	filter model.VacancyFilter,
	notifier model.Notifier,
	opts Options,
	logger *slog.Logger,
) *ApplyPoller {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}
	return &ApplyPoller{
		api:      api,
		tokens:   tokens,
		cache:    cache,
		filter:   filter,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// Poll runs one pass and returns the applications that were new in it.
// Passes never overlap; a second caller waits for the running one.
func (p *ApplyPoller) Poll(ctx context.Context) ([]model.Application, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred, err := p.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}
	if !cred.Usable() {
		return nil, model.ErrNotAuthenticated
	}
	token := cred.AccessToken

	vacancyIDs, err := p.vacancyIDs(ctx, token)
	if err != nil {
		return nil, p.abortIfUnauthorized(ctx, token, err)
	}

	fetched, err := p.fetchResponses(ctx, token, vacancyIDs)
	if err != nil {
		return nil, err
	}

	newApps, err := p.dedup(ctx, fetched)
	if err != nil {
		return nil, err
	}

	titles := make(map[string]string)
	processed := make([]string, 0, len(newApps))
	sent := 0
	var passErr error
	for _, app := range newApps {
		ok, err := p.forward(ctx, token, app, titles)
		if errors.Is(err, model.ErrUnauthorized) {
			passErr = p.abortIfUnauthorized(ctx, token, err)
			break
		}
		processed = append(processed, app.ID)
		if ok {
			sent++
		}
	}

	if err := p.cache.Extend(ctx, processed); err != nil {
		return newApps, fmt.Errorf("updating applies cache: %w", err)
	}

	p.logger.Info("poll complete",
		"vacancies", len(vacancyIDs),
		"fetched", len(fetched),
		"new", len(newApps),
		"sent", sent,
	)

	if passErr != nil {
		return newApps[:len(processed)], passErr
	}
	return newApps, nil
}

// vacancyIDs returns the configured vacancies, or the filtered API listing
// when none are configured.
func (p *ApplyPoller) vacancyIDs(ctx context.Context, token string) ([]string, error) {
	if len(p.opts.Vacancies) > 0 {
		return p.opts.Vacancies, nil
	}

	vacancies, err := p.api.ListVacancies(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("listing vacancies: %w", err)
	}

	ids := make([]string, 0, len(vacancies))
	for _, v := range vacancies {
		if p.filter != nil && !p.filter.Match(v) {
			p.logger.Debug("vacancy filtered out", "vacancy_id", v.ID, "title", v.Title)
			continue
		}
		ids = append(ids, v.ID)
	}
	return ids, nil
}

// fetchResponses collects responses for every vacancy in order. A vacancy
// whose fetch fails contributes nothing; only a 401 aborts the pass.
func (p *ApplyPoller) fetchResponses(ctx context.Context, token string, vacancyIDs []string) ([]model.Application, error) {
	var all []model.Application
	for _, id := range vacancyIDs {
		apps, err := FetchVacancyResponses(ctx, p.api, token, id, p.opts.MaxPages)
		if err != nil {
			if errors.Is(err, model.ErrUnauthorized) {
				return nil, p.abortIfUnauthorized(ctx, token, err)
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.logger.Warn("failed to fetch responses", "vacancy_id", id, "error", err)
			continue
		}
		all = append(all, apps...)
	}
	return all, nil
}

// FetchVacancyResponses reads pages 1..maxPages of a vacancy's responses and
// stops at the first empty page.
func FetchVacancyResponses(ctx context.Context, api model.RecruitingAPI, token, vacancyID string, maxPages int) ([]model.Application, error) {
	var apps []model.Application
	for page := 1; page <= maxPages; page++ {
		batch, err := api.ListResponses(ctx, token, vacancyID, page)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		apps = append(apps, batch...)
	}
	return apps, nil
}

// dedup keeps applications that are neither cached nor repeated earlier in
// fetched, preserving order.
func (p *ApplyPoller) dedup(ctx context.Context, fetched []model.Application) ([]model.Application, error) {
	seen := mapset.NewThreadUnsafeSet[string]()
	var fresh []model.Application
	for _, app := range fetched {
		if !seen.Add(app.ID) {
			continue
		}
		cached, err := p.cache.Contains(ctx, app.ID)
		if err != nil {
			return nil, fmt.Errorf("checking applies cache: %w", err)
		}
		if !cached {
			fresh = append(fresh, app)
		}
	}
	return fresh, nil
}

// forward enriches one application and hands it to the notifier. It reports
// whether the notification went out. Only ErrUnauthorized is returned; every
// other failure is logged here.
func (p *ApplyPoller) forward(ctx context.Context, token string, app model.Application, titles map[string]string) (bool, error) {
	title, ok := titles[app.VacancyID]
	if !ok {
		v, err := p.api.GetVacancy(ctx, token, app.VacancyID)
		switch {
		case errors.Is(err, model.ErrUnauthorized):
			return false, err
		case err != nil:
			p.logger.Warn("failed to fetch vacancy details", "vacancy_id", app.VacancyID, "error", err)
			title = UnknownTitle
		default:
			title = v.Title
			titles[app.VacancyID] = title
		}
	}

	profile, err := p.api.GetUser(ctx, token, app.Login)
	if errors.Is(err, model.ErrUnauthorized) {
		return false, err
	}
	if err != nil {
		p.logger.Warn("failed to fetch user, skipping notification",
			"apply_id", app.ID,
			"login", app.Login,
			"error", err,
		)
		return false, nil
	}

	payload := BuildPayload(app, title, profile, p.opts.ProfileBaseURL)
	if err := p.notifier.Notify(ctx, payload); err != nil {
		p.logger.Warn("failed to send notification",
			"apply_id", app.ID,
			"login", app.Login,
			"error", err,
		)
		return false, nil
	}

	p.logger.Info("notification sent", "apply_id", app.ID, "login", app.Login, "vacancy_id", app.VacancyID)
	return true, nil
}

// abortIfUnauthorized marks token rejected when err is a 401 and turns it into
// ErrNotAuthenticated. Other errors pass through.
func (p *ApplyPoller) abortIfUnauthorized(ctx context.Context, token string, err error) error {
	if !errors.Is(err, model.ErrUnauthorized) {
		return err
	}
	p.logger.Warn("access token rejected, login required", "error", err)
	if markErr := p.tokens.MarkRejected(ctx, token); markErr != nil {
		p.logger.Error("failed to mark token rejected", "error", markErr)
	}
	return model.ErrNotAuthenticated
}

// BuildPayload assembles the outbound record for one application.
func BuildPayload(app model.Application, vacancyTitle string, profile model.UserProfile, profileBaseURL string) model.Payload {
	name := app.Name
	if name == "" {
		name = profile.Name
	}
	return model.Payload{
		ApplyID:         app.ID,
		UserName:        name,
		VacancyTitle:    vacancyTitle,
		Experience:      NormalizeExperience(app.ExperienceMonths),
		Email:           profile.Email,
		Telegram:        profile.Telegram,
		Link:            profileBaseURL + app.Login,
		HabrProfileLink: profile.URL,
		CoverLetter:     app.CoverLetter,
	}
}

// NormalizeExperience converts months of experience into whole half-years,
// rounding up: ceil(months / 12 * 2). Negative input counts as zero.
func NormalizeExperience(months int) int {
	if months <= 0 {
		return 0
	}
	return (months + 5) / 6
}
