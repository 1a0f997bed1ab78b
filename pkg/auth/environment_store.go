package auth

import (
	"os"
	"strings"
	"time"
)

const (
	envPrefix = "MEDIADL_"
	envSuffix = "_SESSION"
)

// EnvironmentStore reads sessions from MEDIADL_<SITE>_SESSION variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// EnvVar returns the variable name holding site's session
func EnvVar(site string) string {
	return envPrefix + strings.ToUpper(site) + envSuffix
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(session *Session) error {
	return ErrStoreUnavailable
}

// Retrieve gets the session from the environment
func (e *EnvironmentStore) Retrieve(site string) (*Session, error) {
	if site == "" {
		return nil, ErrInvalidCredentials
	}
	value := os.Getenv(EnvVar(site))
	if value == "" {
		return nil, ErrCredentialsNotFound
	}

	return &Session{
		Site:         site,
		Value:        value,
		LastModified: time.Now(),
	}, nil
}

// List returns every MEDIADL_<SITE>_SESSION that is set
func (e *EnvironmentStore) List() ([]*Session, error) {
	var sessions []*Session
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasPrefix(key, envPrefix) || !strings.HasSuffix(key, envSuffix) {
			continue
		}
		site := strings.TrimSuffix(strings.TrimPrefix(key, envPrefix), envSuffix)
		if site == "" {
			continue
		}
		sessions = append(sessions, &Session{
			Site:         strings.ToLower(site),
			Value:        value,
			LastModified: time.Now(),
		})
	}
	return sessions, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(site string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment holds a session for site
func (e *EnvironmentStore) Exists(site string) bool {
	return site != "" && os.Getenv(EnvVar(site)) != ""
}
