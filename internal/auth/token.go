package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/amishk599/applyhook/internal/model"
)

var _ model.TokenStore = (*FileTokenStore)(nil)

// FileTokenStore keeps the access token as a bare string in a file. A rejected
// token is remembered through a "<path>.rejected" marker next to it.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTokenStore returns a store backed by path. Nothing is read until Load.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) markerPath() string {
	return s.path + ".rejected"
}

// Load returns CredentialAbsent when no token file exists or it is empty.
func (s *FileTokenStore) Load(_ context.Context) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Credential{State: model.CredentialAbsent}, nil
	}
	if err != nil {
		return model.Credential{State: model.CredentialAbsent}, fmt.Errorf("reading token: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return model.Credential{State: model.CredentialAbsent}, nil
	}

	cred := model.Credential{AccessToken: token, State: model.CredentialValid}
	if _, err := os.Stat(s.markerPath()); err == nil {
		cred.State = model.CredentialRejected
	}
	return cred, nil
}

// Save writes the token with owner-only permissions and clears a previous
// rejection.
func (s *FileTokenStore) Save(_ context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating token dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(accessToken), 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing token: %w", err)
	}

	if err := os.Remove(s.markerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing rejected marker: %w", err)
	}
	return nil
}

// MarkRejected records that the API refused accessToken, unless a newer
// token has replaced it in the meantime.
func (s *FileTokenStore) MarkRejected(_ context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading token: %w", err)
	}
	if strings.TrimSpace(string(data)) != accessToken {
		return nil
	}

	if err := os.WriteFile(s.markerPath(), nil, 0o600); err != nil {
		return fmt.Errorf("marking token rejected: %w", err)
	}
	return nil
}
