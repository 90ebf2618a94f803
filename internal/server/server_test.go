package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/applyhook/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAuth struct {
	exchanged string
	err       error
}

func (f *fakeAuth) AuthCodeURL(state string) string {
	return "https://career.habr.com/integrations/oauth/authorize?response_type=code&state=" + url.QueryEscape(state)
}

func (f *fakeAuth) Exchange(_ context.Context, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.exchanged = code
	return "tok-" + code, nil
}

type memTokens struct {
	cred model.Credential
}

func (m *memTokens) Load(_ context.Context) (model.Credential, error) { return m.cred, nil }

func (m *memTokens) Save(_ context.Context, token string) error {
	m.cred = model.Credential{AccessToken: token, State: model.CredentialValid}
	return nil
}

func (m *memTokens) MarkRejected(_ context.Context, token string) error {
	if m.cred.AccessToken == token {
		m.cred.State = model.CredentialRejected
	}
	return nil
}

type fakePoller struct {
	apps  []model.Application
	err   error
	calls int
}

func (f *fakePoller) Poll(_ context.Context) ([]model.Application, error) {
	f.calls++
	return f.apps, f.err
}

func newTestServer(auth *fakeAuth, tokens *memTokens, poller *fakePoller) *Server {
	return NewServer(":0", []byte("0123456789abcdef0123456789abcdef"), auth, tokens, poller, discardLogger())
}

func do(t *testing.T, h http.Handler, target string, cookies []*http.Cookie) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Result()
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestIndex(t *testing.T) {
	s := newTestServer(&fakeAuth{}, &memTokens{}, &fakePoller{})
	resp := do(t, s.Handler(), "/", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "<a href='/login'>Login</a>")
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeAuth{}, &memTokens{}, &fakePoller{})
	resp := do(t, s.Handler(), "/health", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body(t, resp))
}

func TestLoginCallbackFlow(t *testing.T) {
	auth := &fakeAuth{}
	tokens := &memTokens{}
	s := newTestServer(auth, tokens, &fakePoller{})

	login := do(t, s.Handler(), "/login", nil)
	require.Equal(t, http.StatusFound, login.StatusCode)
	loc, err := url.Parse(login.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	require.NotEmpty(t, login.Cookies())

	cb := do(t, s.Handler(), "/callback?code=abc&state="+url.QueryEscape(state), login.Cookies())
	assert.Equal(t, http.StatusFound, cb.StatusCode)
	assert.Equal(t, "/vacancies", cb.Header.Get("Location"))
	assert.Equal(t, "abc", auth.exchanged)
	assert.True(t, tokens.cred.Usable())
	assert.Equal(t, "tok-abc", tokens.cred.AccessToken)
}

func TestLogin_FreshStateEachTime(t *testing.T) {
	s := newTestServer(&fakeAuth{}, &memTokens{}, &fakePoller{})

	stateOf := func() string {
		resp := do(t, s.Handler(), "/login", nil)
		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		return loc.Query().Get("state")
	}
	assert.NotEqual(t, stateOf(), stateOf())
}

func TestCallback_StateMismatch(t *testing.T) {
	auth := &fakeAuth{}
	tokens := &memTokens{}
	s := newTestServer(auth, tokens, &fakePoller{})

	login := do(t, s.Handler(), "/login", nil)
	resp := do(t, s.Handler(), "/callback?code=abc&state=forged", login.Cookies())

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, auth.exchanged)
	assert.False(t, tokens.cred.Usable())
}

func TestCallback_NoSession(t *testing.T) {
	s := newTestServer(&fakeAuth{}, &memTokens{}, &fakePoller{})
	resp := do(t, s.Handler(), "/callback?code=abc&state=anything", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCallback_ErrorParam(t *testing.T) {
	s := newTestServer(&fakeAuth{}, &memTokens{}, &fakePoller{})
	resp := do(t, s.Handler(), "/callback?error=access_denied", nil)
	assert.Equal(t, "Error: access_denied", body(t, resp))
}

func TestCallback_ExchangeFailure(t *testing.T) {
	tokens := &memTokens{}
	s := newTestServer(&fakeAuth{err: errors.New("invalid_grant")}, tokens, &fakePoller{})

	login := do(t, s.Handler(), "/login", nil)
	loc, _ := url.Parse(login.Header.Get("Location"))
	resp := do(t, s.Handler(), "/callback?code=abc&state="+url.QueryEscape(loc.Query().Get("state")), login.Cookies())

	assert.Contains(t, body(t, resp), "Error: invalid_grant")
	assert.False(t, tokens.cred.Usable())
}

func TestVacancies_RedirectsWithoutToken(t *testing.T) {
	poller := &fakePoller{}
	s := newTestServer(&fakeAuth{}, &memTokens{}, poller)

	resp := do(t, s.Handler(), "/vacancies", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, 0, poller.calls)
}

func TestVacancies_RedirectsWhenTokenRejectedDuringPass(t *testing.T) {
	tokens := &memTokens{cred: model.Credential{AccessToken: "tok", State: model.CredentialValid}}
	s := newTestServer(&fakeAuth{}, tokens, &fakePoller{err: model.ErrNotAuthenticated})

	resp := do(t, s.Handler(), "/vacancies", nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestVacancies_ReturnsNewApplications(t *testing.T) {
	tokens := &memTokens{cred: model.Credential{AccessToken: "tok", State: model.CredentialValid}}
	poller := &fakePoller{apps: []model.Application{{ID: "3", VacancyID: "v1", Login: "jdoe", Name: "John", ExperienceMonths: 7}}}
	s := newTestServer(&fakeAuth{}, tokens, poller)

	resp := do(t, s.Handler(), "/vacancies", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(body(t, resp)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0]["id"])
	assert.Equal(t, "jdoe", got[0]["login"])
	assert.Equal(t, 1, poller.calls)
}

func TestVacancies_EmptyPassIsEmptyArray(t *testing.T) {
	tokens := &memTokens{cred: model.Credential{AccessToken: "tok", State: model.CredentialValid}}
	s := newTestServer(&fakeAuth{}, tokens, &fakePoller{})

	resp := do(t, s.Handler(), "/vacancies", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, body(t, resp))
}

func TestUnknownMethodNotAllowed(t *testing.T) {
	s := newTestServer(&fakeAuth{}, &memTokens{}, &fakePoller{})
	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
