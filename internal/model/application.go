package model

import (
	"context"
	"time"
)

// Application is a single response ("apply") to a vacancy, as returned by the
// responses listing. Only its ID outlives a poll pass.
type Application struct {
	ID               string // unique per platform
	VacancyID        string
	Login            string // candidate login, used for profile lookups
	Name             string // candidate display name
	ExperienceMonths int    // total experience, always >= 0
	CoverLetter      string // plain text, empty when the candidate sent none
}

// Vacancy holds the vacancy fields the pipeline needs.
type Vacancy struct {
	ID    string
	Title string
}

// UserProfile is the candidate detail fetched per application.
type UserProfile struct {
	Login    string
	Name     string
	URL      string  // profile URL as reported by the API
	Email    *string // first listed email, nil when none
	Telegram *string // first messenger entry of type "telegram", nil when none
}

// Payload is the JSON body posted to the outbound webhook.
type Payload struct {
	ApplyID         string  `json:"-"`
	UserName        string  `json:"user_name"`
	VacancyTitle    string  `json:"vacancy_title"`
	Experience      int     `json:"experience"` // half-year units, see poller.NormalizeExperience
	Email           *string `json:"email"`
	Telegram        *string `json:"telegram"`
	Link            string  `json:"link"`
	HabrProfileLink string  `json:"habr_profile_link"`
	CoverLetter     string  `json:"cover_letter,omitempty"`
}

// CacheEntry is one remembered application ID. FirstSeen is zero for
// backends that do not track it.
type CacheEntry struct {
	ID        string
	FirstSeen time.Time
}

// RecruitingAPI is the subset of the recruiting platform API used by the pipeline.
type RecruitingAPI interface {
	ListVacancies(ctx context.Context, token string) ([]Vacancy, error)
	ListResponses(ctx context.Context, token, vacancyID string, page int) ([]Application, error)
	GetVacancy(ctx context.Context, token, vacancyID string) (Vacancy, error)
	GetUser(ctx context.Context, token, login string) (UserProfile, error)
}

// ApplyCache remembers which application IDs were already forwarded.
type ApplyCache interface {
	// Load reads the persisted IDs. A missing backing file is not an error.
	Load(ctx context.Context) ([]string, error)
	Contains(ctx context.Context, id string) (bool, error)
	// Extend merges ids into the persisted set without duplicates and flushes.
	Extend(ctx context.Context, ids []string) error
	// Cleanup keeps the first keepSize IDs once more than maxSize are stored.
	// It reports whether anything was trimmed.
	Cleanup(ctx context.Context, maxSize, keepSize int) (bool, error)
	List(ctx context.Context) ([]CacheEntry, error)
}

// TokenStore persists the single OAuth access credential.
type TokenStore interface {
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, accessToken string) error
	// MarkRejected flags accessToken as refused by the API. It is a no-op when
	// a different token has been saved since.
	MarkRejected(ctx context.Context, accessToken string) error
}

// Notifier delivers one enriched application.
type Notifier interface {
	Notify(ctx context.Context, p Payload) error
}

// VacancyFilter decides whether a dynamically listed vacancy is polled.
type VacancyFilter interface {
	Match(v Vacancy) bool
}
