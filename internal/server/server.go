package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/segmentio/ksuid"

	"github.com/amishk599/applyhook/internal/model"
)

const (
	sessionName   = "applyhook"
	oauthStateKey = "oauth_state"
)

// Authenticator is the OAuth authorization-code flow.
type Authenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

// Poller runs one enrichment pass.
type Poller interface {
	Poll(ctx context.Context) ([]model.Application, error)
}

// Server is the HTTP surface for logging in and triggering a poll by hand.
type Server struct {
	auth       Authenticator
	tokens     model.TokenStore
	poller     Poller
	sessions   *sessions.CookieStore
	logger     *slog.Logger
	handler    http.Handler
	httpServer *http.Server
}

// NewServer wires the routes. sessionKey authenticates the cookie that holds
// the OAuth state between /login and /callback.
func NewServer(addr string, sessionKey []byte, auth Authenticator, tokens model.TokenStore, poller Poller, logger *slog.Logger) *Server {
	store := sessions.NewCookieStore(sessionKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		auth:     auth,
		tokens:   tokens,
		poller:   poller,
		sessions: store,
		logger:   logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodGet)
	r.HandleFunc("/callback", s.handleCallback).Methods(http.MethodGet)
	r.HandleFunc("/vacancies", s.handleVacancies).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.handler = withLogging(logger, r)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute, // /vacancies runs a full pass
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "Login to Habr Career <a href='/login'>Login</a>")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r, sessionName)
	if err != nil {
		// A stale or tampered cookie; Get still returns a fresh session.
		s.logger.Debug("discarding unreadable session", "error", err)
	}

	state := ksuid.New().String()
	session.Values[oauthStateKey] = state
	if err := session.Save(r, w); err != nil {
		s.logger.Error("saving session", "error", err)
		writeText(w, http.StatusInternalServerError, "Error: could not start login")
		return
	}

	http.Redirect(w, r, s.auth.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.logger.Warn("authorization denied", "error", e)
		writeText(w, http.StatusBadRequest, "Error: "+e)
		return
	}

	session, err := s.sessions.Get(r, sessionName)
	if err != nil {
		s.logger.Debug("discarding unreadable session", "error", err)
	}
	expected, ok := session.Values[oauthStateKey].(string)
	if !ok || expected == "" || q.Get("state") != expected {
		s.logger.Warn("oauth state mismatch")
		writeText(w, http.StatusForbidden, "Error: invalid state")
		return
	}
	delete(session.Values, oauthStateKey)
	if err := session.Save(r, w); err != nil {
		s.logger.Warn("clearing oauth state", "error", err)
	}

	code := q.Get("code")
	if code == "" {
		writeText(w, http.StatusBadRequest, "Error: missing authorization code")
		return
	}

	token, err := s.auth.Exchange(r.Context(), code)
	if err != nil {
		s.logger.Error("token exchange failed", "error", err)
		writeText(w, http.StatusBadGateway, "Error: "+err.Error())
		return
	}

	if err := s.tokens.Save(r.Context(), token); err != nil {
		s.logger.Error("saving access token", "error", err)
		writeText(w, http.StatusInternalServerError, "Error: could not store access token")
		return
	}

	s.logger.Info("logged in to Habr Career")
	http.Redirect(w, r, "/vacancies", http.StatusFound)
}

func (s *Server) handleVacancies(w http.ResponseWriter, r *http.Request) {
	cred, err := s.tokens.Load(r.Context())
	if err != nil {
		s.logger.Error("loading access token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not load access token"})
		return
	}
	if !cred.Usable() {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	apps, err := s.poller.Poll(r.Context())
	if errors.Is(err, model.ErrNotAuthenticated) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	if err != nil {
		s.logger.Error("manual poll failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, toApplicationViews(apps))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type applicationView struct {
	ID               string `json:"id"`
	VacancyID        string `json:"vacancy_id"`
	Login            string `json:"login"`
	Name             string `json:"name"`
	ExperienceMonths int    `json:"experience_months"`
	CoverLetter      string `json:"cover_letter,omitempty"`
}

func toApplicationViews(apps []model.Application) []applicationView {
	views := make([]applicationView, len(apps))
	for i, a := range apps {
		views[i] = applicationView{
			ID:               a.ID,
			VacancyID:        a.VacancyID,
			Login:            a.Login,
			Name:             a.Name,
			ExperienceMonths: a.ExperienceMonths,
			CoverLetter:      a.CoverLetter,
		}
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprint(w, msg)
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
