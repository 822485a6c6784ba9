package bridge

import (
	"bytes"
	"os"
	"sync"

	"github.com/goccy/go-json"
	"github.com/natefinch/atomic"

	"github.com/KripanshSrivastava/CivicVoice-report/civic"
	"github.com/KripanshSrivastava/CivicVoice-report/core/logger"
)

// Path names one of the two data paths.
type Path string

// the two data paths
const (
	PathPrimary   Path = "primary"
	PathSecondary Path = "secondary"
)

// Credential is the authenticated session together with the path that
// issued it. Both paths verify tokens against the same auth provider,
// so the provenance records where the session came from, not where the
// token is valid.
type Credential struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	Provenance   Path        `json:"provenance"`
	User         *civic.User `json:"user,omitempty"`
}

// SessionStore holds at most one credential and mirrors it into a
// file slot, so a restarted process resumes the session.
type SessionStore struct {
	mutex      sync.RWMutex
	path       string
	credential *Credential
}

// NewSessionStore creates a session store persisting to path. An
// existing slot is loaded; a corrupt one is discarded.
func NewSessionStore(path string) *SessionStore {
	s := &SessionStore{path: path}
	if path == "" {
		return s
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var credential Credential
	if err := json.Unmarshal(data, &credential); err != nil {
		logger.Default().WithError(err).Warnln("discarding corrupt session slot")
		return s
	}
	if credential.Provenance != PathPrimary && credential.Provenance != PathSecondary {
		logger.Default().Warnln("discarding session slot without provenance")
		return s
	}
	s.credential = &credential
	return s
}

// Get returns the stored credential, or nil when signed out.
func (s *SessionStore) Get() *Credential {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.credential == nil {
		return nil
	}
	credential := *s.credential
	return &credential
}

// Set stores the credential and writes it to the file slot.
func (s *SessionStore) Set(credential Credential) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.credential = &credential
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(credential)
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

// Clear removes the credential and the file slot.
func (s *SessionStore) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.credential = nil
	if s.path != "" {
		os.Remove(s.path)
	}
}
