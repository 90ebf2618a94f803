package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/amishk599/applyhook/internal/auth"
	"github.com/amishk599/applyhook/internal/model"
	"github.com/amishk599/applyhook/internal/store"
)

// --- Fakes ---

// fakeAPI serves canned pages per vacancy. Errors can be injected per vacancy
// or per login.
type fakeAPI struct {
	vacancies    []model.Vacancy
	titles       map[string]string
	pages        map[string][][]model.Application
	responseErr  map[string]error
	vacancyErr   map[string]error
	userErr      map[string]error
	unauthorized bool
	// beforeResponses runs at the start of every ListResponses call.
	beforeResponses func()

	responseCalls int
	vacancyCalls  int
}

func (f *fakeAPI) ListVacancies(_ context.Context, _ string) ([]model.Vacancy, error) {
	if f.unauthorized {
		return nil, &model.HTTPError{StatusCode: 401, Err: model.ErrUnauthorized}
	}
	return f.vacancies, nil
}

func (f *fakeAPI) ListResponses(_ context.Context, _, vacancyID string, page int) ([]model.Application, error) {
	f.responseCalls++
	if f.beforeResponses != nil {
		f.beforeResponses()
	}
	if f.unauthorized {
		return nil, &model.HTTPError{StatusCode: 401, Err: model.ErrUnauthorized}
	}
	if err := f.responseErr[vacancyID]; err != nil {
		return nil, err
	}
	pages := f.pages[vacancyID]
	if page > len(pages) {
		return nil, nil
	}
	return pages[page-1], nil
}

func (f *fakeAPI) GetVacancy(_ context.Context, _, vacancyID string) (model.Vacancy, error) {
	f.vacancyCalls++
	if err := f.vacancyErr[vacancyID]; err != nil {
		return model.Vacancy{}, err
	}
	return model.Vacancy{ID: vacancyID, Title: f.titles[vacancyID]}, nil
}

func (f *fakeAPI) GetUser(_ context.Context, _, login string) (model.UserProfile, error) {
	if err := f.userErr[login]; err != nil {
		return model.UserProfile{}, err
	}
	email := login + "@example.com"
	return model.UserProfile{Login: login, Name: login, URL: "https://career.habr.com/" + login, Email: &email}, nil
}

// memTokens is an in-memory TokenStore.
type memTokens struct {
	cred     model.Credential
	rejected int
}

func validTokens() *memTokens {
	return &memTokens{cred: model.Credential{AccessToken: "tok", State: model.CredentialValid}}
}

func (m *memTokens) Load(_ context.Context) (model.Credential, error) { return m.cred, nil }

func (m *memTokens) Save(_ context.Context, token string) error {
	m.cred = model.Credential{AccessToken: token, State: model.CredentialValid}
	return nil
}

func (m *memTokens) MarkRejected(_ context.Context, token string) error {
	m.rejected++
	if m.cred.AccessToken == token {
		m.cred.State = model.CredentialRejected
	}
	return nil
}

// recordingNotifier records payloads and fails for selected apply IDs.
type recordingNotifier struct {
	sent   []model.Payload
	failOn map[string]bool
}

func (n *recordingNotifier) Notify(_ context.Context, p model.Payload) error {
	if n.failOn[p.ApplyID] {
		return errors.New("webhook returned 500")
	}
	n.sent = append(n.sent, p)
	return nil
}

func (n *recordingNotifier) sentIDs() []string {
	ids := make([]string, len(n.sent))
	for i, p := range n.sent {
		ids[i] = p.ApplyID
	}
	return ids
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func apps(vacancyID string, ids ...string) []model.Application {
	out := make([]model.Application, len(ids))
	for i, id := range ids {
		out[i] = model.Application{
			ID:               id,
			VacancyID:        vacancyID,
			Login:            "user" + id,
			Name:             "User " + id,
			ExperienceMonths: 7,
		}
	}
	return out
}

func newFileCache(t *testing.T, seed ...string) *store.FileCache {
	t.Helper()
	c := store.NewFileCache(filepath.Join(t.TempDir(), "cached_applies.json"), discardLogger())
	if len(seed) > 0 {
		if err := c.Extend(context.Background(), seed); err != nil {
			t.Fatalf("seeding cache: %v", err)
		}
	}
	return c
}

func newPoller(api model.RecruitingAPI, tokens model.TokenStore, cache model.ApplyCache, n model.Notifier, vacancies ...string) *ApplyPoller {
	return NewApplyPoller(api, tokens, cache, nil, n, Options{
		Vacancies:      vacancies,
		MaxPages:       1,
		ProfileBaseURL: "https://career.habr.com/",
	}, discardLogger())
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func appIDs(list []model.Application) []string {
	ids := make([]string, len(list))
	for i, a := range list {
		ids[i] = a.ID
	}
	return ids
}

// --- Tests ---

func TestPoll_EndToEnd(t *testing.T) {
	api := &fakeAPI{
		titles: map[string]string{"v1": "Go Developer"},
		pages:  map[string][][]model.Application{"v1": {apps("v1", "1", "2", "3", "4")}},
	}
	cache := newFileCache(t, "1", "2")
	notifier := &recordingNotifier{}

	got, err := newPoller(api, validTokens(), cache, notifier, "v1").Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if !equalIDs(appIDs(got), []string{"3", "4"}) {
		t.Errorf("new = %v, want [3 4]", appIDs(got))
	}
	if !equalIDs(notifier.sentIDs(), []string{"3", "4"}) {
		t.Errorf("sent = %v, want [3 4]", notifier.sentIDs())
	}

	p := notifier.sent[0]
	if p.VacancyTitle != "Go Developer" || p.UserName != "User 3" || p.Experience != 2 {
		t.Errorf("payload = %+v", p)
	}
	if p.Link != "https://career.habr.com/user3" || p.HabrProfileLink != "https://career.habr.com/user3" {
		t.Errorf("payload links = %q %q", p.Link, p.HabrProfileLink)
	}
	if p.Email == nil || *p.Email != "user3@example.com" || p.Telegram != nil {
		t.Errorf("payload contacts = %v %v", p.Email, p.Telegram)
	}

	ids, _ := cache.Load(context.Background())
	if !equalIDs(ids, []string{"1", "2", "3", "4"}) {
		t.Errorf("cache = %v, want [1 2 3 4]", ids)
	}
}

func TestPoll_Idempotent(t *testing.T) {
	api := &fakeAPI{
		titles: map[string]string{"v1": "Go Developer"},
		pages:  map[string][][]model.Application{"v1": {apps("v1", "1", "2")}},
	}
	cache := newFileCache(t)
	notifier := &recordingNotifier{}
	p := newPoller(api, validTokens(), cache, notifier, "v1")

	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatalf("first Poll: %v", err)
	}
	got, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("second Poll: %v", err)
	}

	if len(got) != 0 {
		t.Errorf("second pass new = %v, want none", appIDs(got))
	}
	if len(notifier.sent) != 2 {
		t.Errorf("expected 2 notifications total, got %d", len(notifier.sent))
	}
}

func TestPoll_DedupAcrossVacanciesAndPages(t *testing.T) {
	api := &fakeAPI{
		titles: map[string]string{"v1": "A", "v2": "B"},
		pages: map[string][][]model.Application{
			"v1": {apps("v1", "1", "2"), apps("v1", "2", "3")},
			"v2": {apps("v2", "3", "4")},
		},
	}
	notifier := &recordingNotifier{}
	p := NewApplyPoller(api, validTokens(), newFileCache(t), nil, notifier, Options{
		Vacancies: []string{"v1", "v2"},
		MaxPages:  3,
	}, discardLogger())

	got, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !equalIDs(appIDs(got), []string{"1", "2", "3", "4"}) {
		t.Errorf("new = %v, want [1 2 3 4]", appIDs(got))
	}
	// v1: pages 1, 2, then empty page 3. v2: page 1, then empty page 2.
	if api.responseCalls != 5 {
		t.Errorf("expected 5 ListResponses calls, got %d", api.responseCalls)
	}
}

func TestPoll_PartialFailureIsolation(t *testing.T) {
	api := &fakeAPI{
		titles:      map[string]string{"v1": "Go Developer", "v3": "QA"},
		pages:       map[string][][]model.Application{"v1": {apps("v1", "1", "2", "3")}, "v3": {apps("v3", "9")}},
		responseErr: map[string]error{"v2": &model.HTTPError{StatusCode: 500, Err: errors.New("boom")}},
		vacancyErr:  map[string]error{"v1": &model.HTTPError{StatusCode: 404, Err: errors.New("gone")}},
		userErr:     map[string]error{"user2": errors.New("connection reset")},
	}
	cache := newFileCache(t)
	notifier := &recordingNotifier{failOn: map[string]bool{"3": true}}

	got, err := newPoller(api, validTokens(), cache, notifier, "v1", "v2", "v3").Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if !equalIDs(appIDs(got), []string{"1", "2", "3", "9"}) {
		t.Errorf("new = %v, want [1 2 3 9]", appIDs(got))
	}
	if !equalIDs(notifier.sentIDs(), []string{"1", "9"}) {
		t.Fatalf("sent = %v, want [1 9]", notifier.sentIDs())
	}
	if notifier.sent[0].VacancyTitle != UnknownTitle {
		t.Errorf("VacancyTitle = %q, want %q", notifier.sent[0].VacancyTitle, UnknownTitle)
	}
	if notifier.sent[1].VacancyTitle != "QA" {
		t.Errorf("VacancyTitle = %q, want QA", notifier.sent[1].VacancyTitle)
	}

	// Failed sends are still remembered.
	ids, _ := cache.Load(context.Background())
	if !equalIDs(ids, []string{"1", "2", "3", "9"}) {
		t.Errorf("cache = %v, want [1 2 3 9]", ids)
	}
}

func TestPoll_VacancyTitleLookedUpOncePerVacancy(t *testing.T) {
	api := &fakeAPI{
		titles: map[string]string{"v1": "Go Developer"},
		pages:  map[string][][]model.Application{"v1": {apps("v1", "1", "2", "3")}},
	}
	if _, err := newPoller(api, validTokens(), newFileCache(t), &recordingNotifier{}, "v1").Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if api.vacancyCalls != 1 {
		t.Errorf("expected 1 GetVacancy call, got %d", api.vacancyCalls)
	}
}

func TestPoll_NoCredential(t *testing.T) {
	api := &fakeAPI{pages: map[string][][]model.Application{"v1": {apps("v1", "1")}}}
	notifier := &recordingNotifier{}

	_, err := newPoller(api, &memTokens{}, newFileCache(t), notifier, "v1").Poll(context.Background())
	if !errors.Is(err, model.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if api.responseCalls != 0 {
		t.Errorf("expected no API calls, got %d", api.responseCalls)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("expected no notifications, got %d", len(notifier.sent))
	}
}

func TestPoll_UnauthorizedMarksTokenRejected(t *testing.T) {
	api := &fakeAPI{unauthorized: true}
	tokens := validTokens()
	cache := newFileCache(t, "1")

	_, err := newPoller(api, tokens, cache, &recordingNotifier{}, "v1").Poll(context.Background())
	if !errors.Is(err, model.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if tokens.rejected != 1 || tokens.cred.Usable() {
		t.Errorf("expected token to be rejected, got %+v", tokens.cred)
	}

	// The rejected token short-circuits the next pass.
	calls := api.responseCalls
	if _, err := newPoller(api, tokens, cache, &recordingNotifier{}, "v1").Poll(context.Background()); !errors.Is(err, model.ErrNotAuthenticated) {
		t.Fatalf("second pass: expected ErrNotAuthenticated, got %v", err)
	}
	if api.responseCalls != calls {
		t.Error("expected no API calls with a rejected token")
	}

	ids, _ := cache.Load(context.Background())
	if !equalIDs(ids, []string{"1"}) {
		t.Errorf("cache = %v, want unchanged [1]", ids)
	}
}

func TestPoll_UnauthorizedKeepsTokenSavedDuringPass(t *testing.T) {
	ctx := context.Background()
	tokens := auth.NewFileTokenStore(filepath.Join(t.TempDir(), "token.txt"))
	if err := tokens.Save(ctx, "old-token"); err != nil {
		t.Fatal(err)
	}

	// A login completes while the pass still holds the old token.
	api := &fakeAPI{unauthorized: true}
	api.beforeResponses = func() {
		if err := tokens.Save(ctx, "fresh-token"); err != nil {
			t.Errorf("Save: %v", err)
		}
	}

	_, err := newPoller(api, tokens, newFileCache(t), &recordingNotifier{}, "v1").Poll(ctx)
	if !errors.Is(err, model.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	cred, err := tokens.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cred.AccessToken != "fresh-token" || !cred.Usable() {
		t.Errorf("credential = %+v, want fresh-token still valid", cred)
	}
}

func TestPoll_DynamicVacancyListingWithFilter(t *testing.T) {
	api := &fakeAPI{
		vacancies: []model.Vacancy{{ID: "v1", Title: "Go Developer"}, {ID: "v2", Title: "QA Engineer"}},
		titles:    map[string]string{"v1": "Go Developer", "v2": "QA Engineer"},
		pages: map[string][][]model.Application{
			"v1": {apps("v1", "1")},
			"v2": {apps("v2", "2")},
		},
	}
	notifier := &recordingNotifier{}
	p := NewApplyPoller(api, validTokens(), newFileCache(t), goOnly{}, notifier, Options{MaxPages: 1}, discardLogger())

	got, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if !equalIDs(appIDs(got), []string{"1"}) {
		t.Errorf("new = %v, want [1]", appIDs(got))
	}
}

type goOnly struct{}

func (goOnly) Match(v model.Vacancy) bool { return v.Title == "Go Developer" }

func TestNormalizeExperience(t *testing.T) {
	tests := []struct {
		months int
		want   int
	}{
		{-3, 0},
		{0, 0},
		{1, 1},
		{6, 1},
		{7, 2},
		{12, 2},
		{23, 4},
		{24, 4},
		{25, 5},
	}
	for _, tt := range tests {
		if got := NormalizeExperience(tt.months); got != tt.want {
			t.Errorf("NormalizeExperience(%d) = %d, want %d", tt.months, got, tt.want)
		}
	}
}

func TestBuildPayload_FallsBackToProfileName(t *testing.T) {
	tg := "@jdoe"
	p := BuildPayload(
		model.Application{ID: "1", Login: "jdoe", ExperienceMonths: 0, CoverLetter: "hi"},
		"Go Developer",
		model.UserProfile{Name: "John Doe", URL: "https://career.habr.com/jdoe", Telegram: &tg},
		"https://career.habr.com/",
	)
	if p.UserName != "John Doe" || p.Experience != 0 || p.CoverLetter != "hi" {
		t.Errorf("payload = %+v", p)
	}
	if p.Email != nil || p.Telegram == nil || *p.Telegram != "@jdoe" {
		t.Errorf("payload contacts = %v %v", p.Email, p.Telegram)
	}
}
