package habr

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/amishk599/applyhook/internal/model"
)

var _ model.RecruitingAPI = (*Client)(nil)

// Client talks to the Habr Career integrations API on behalf of an employer.
type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	policy    *bluemonday.Policy
	logger    *slog.Logger
}

// NewClient creates a client rooted at baseURL (e.g. https://career.habr.com/api/).
func NewClient(baseURL, userAgent string, client *http.Client, logger *slog.Logger) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    client,
		policy:    bluemonday.StrictPolicy(),
		logger:    logger,
	}
}

// ListVacancies returns the vacancies visible to the token's account.
func (c *Client) ListVacancies(ctx context.Context, token string) ([]model.Vacancy, error) {
	var resp vacanciesResponse
	if err := c.get(ctx, token, "v1/integrations/vacancies/", &resp); err != nil {
		return nil, fmt.Errorf("habr list vacancies: %w", err)
	}

	vacancies := make([]model.Vacancy, 0, len(resp.Vacancies))
	for _, v := range resp.Vacancies {
		vacancies = append(vacancies, model.Vacancy{ID: string(v.ID), Title: v.Title})
	}
	return vacancies, nil
}

// ListResponses returns one page of responses for a vacancy. Pages start at 1.
func (c *Client) ListResponses(ctx context.Context, token, vacancyID string, page int) ([]model.Application, error) {
	path := fmt.Sprintf("v1/integrations/vacancies/%s/responses?page=%d", url.PathEscape(vacancyID), page)

	var resp responsesResponse
	if err := c.get(ctx, token, path, &resp); err != nil {
		return nil, fmt.Errorf("habr responses for vacancy %s page %d: %w", vacancyID, page, err)
	}

	apps := make([]model.Application, 0, len(resp.Responses))
	for _, r := range resp.Responses {
		// Without an id a response can be neither deduplicated nor cached.
		if strings.TrimSpace(string(r.ID)) == "" {
			c.logger.Warn("skipping response without id", "vacancy_id", vacancyID, "page", page, "login", r.User.Login)
			continue
		}
		app := model.Application{
			ID:          string(r.ID),
			VacancyID:   string(r.VacancyID),
			Login:       r.User.Login,
			Name:        r.User.Name,
			CoverLetter: c.plainText(r.coverLetter()),
		}
		if app.VacancyID == "" {
			app.VacancyID = vacancyID
		}
		if r.User.ExperienceTotal != nil && r.User.ExperienceTotal.Months > 0 {
			app.ExperienceMonths = r.User.ExperienceTotal.Months
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// GetVacancy returns the details of a single vacancy.
func (c *Client) GetVacancy(ctx context.Context, token, vacancyID string) (model.Vacancy, error) {
	var resp vacancyResponse
	if err := c.get(ctx, token, "v1/integrations/vacancies/"+url.PathEscape(vacancyID), &resp); err != nil {
		return model.Vacancy{}, fmt.Errorf("habr vacancy %s: %w", vacancyID, err)
	}
	id := string(resp.Vacancy.ID)
	if id == "" {
		id = vacancyID
	}
	return model.Vacancy{ID: id, Title: resp.Vacancy.Title}, nil
}

// GetUser returns a candidate's public profile and first listed contacts.
func (c *Client) GetUser(ctx context.Context, token, login string) (model.UserProfile, error) {
	var resp userResponse
	if err := c.get(ctx, token, "v1/integrations/users/"+url.PathEscape(login), &resp); err != nil {
		return model.UserProfile{}, fmt.Errorf("habr user %s: %w", login, err)
	}

	profile := model.UserProfile{
		Login: resp.Login,
		Name:  resp.Name,
		URL:   resp.URL,
	}
	if profile.Login == "" {
		profile.Login = login
	}
	if len(resp.Contacts.Emails) > 0 {
		email := resp.Contacts.Emails[0].Value
		profile.Email = &email
	}
	for _, m := range resp.Contacts.Messengers {
		if m.Type == "telegram" {
			tg := m.Value
			profile.Telegram = &tg
			break
		}
	}
	return profile, nil
}

func (c *Client) get(ctx context.Context, token, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return &model.HTTPError{StatusCode: resp.StatusCode, Err: model.ErrUnauthorized}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &model.HTTPError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// plainText strips markup from a cover letter and collapses whitespace.
func (c *Client) plainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(c.policy.Sanitize(s))), " ")
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports seconds format (e.g. "120"). Returns zero if absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
