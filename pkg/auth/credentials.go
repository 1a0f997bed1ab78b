package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Session is a site's login cookie value, keyed by site ("coomer", "kemono")
type Session struct {
	Site         string    `json:"site"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving sessions
type CredentialStore interface {
	// Store saves the session for its site
	Store(session *Session) error

	// Retrieve gets the session for a site
	Retrieve(site string) (*Session, error)

	// List returns all stored sessions
	List() ([]*Session, error)

	// Delete removes the session for a site
	Delete(site string) error

	// Exists checks if a session exists for a site
	Exists(site string) bool
}

// Manager handles session storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager: the system keyring when it is
// usable, then an encrypted file under configDir, then the environment.
// An empty configDir selects ConfigDir().
func NewManager(configDir string) (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	if configDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		configDir = dir
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "sessions.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager over an explicit store chain
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the session using the first store that accepts it
func (m *Manager) Store(session *Session) error {
	if session == nil || session.Site == "" {
		return errors.New("site is required")
	}
	if session.Value == "" {
		return errors.New("session value is required")
	}

	session.Site = normalizeSite(session.Site)
	session.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(session)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store session: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the session from the first store that has it
func (m *Manager) Retrieve(site string) (*Session, error) {
	site = normalizeSite(site)
	for _, store := range m.stores {
		if session, err := store.Retrieve(site); err == nil && session != nil {
			return session, nil
		}
	}
	return nil, fmt.Errorf("%w for site: %s", ErrCredentialsNotFound, site)
}

// Session returns the stored session value for site, or "" when none is
// stored. It lets a Manager serve as the crawler's credential source.
func (m *Manager) Session(site string) string {
	s, err := m.Retrieve(site)
	if err != nil {
		return ""
	}
	return s.Value
}

// List returns all stored sessions from all stores, newest version per site
func (m *Manager) List() ([]*Session, error) {
	bySite := make(map[string]*Session)

	for _, store := range m.stores {
		sessions, err := store.List()
		if err != nil {
			continue
		}
		for _, s := range sessions {
			if existing, ok := bySite[s.Site]; !ok || s.LastModified.After(existing.LastModified) {
				bySite[s.Site] = s
			}
		}
	}

	result := make([]*Session, 0, len(bySite))
	for _, s := range bySite {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Site < result[j].Site })
	return result, nil
}

// Delete removes the session from all stores
func (m *Manager) Delete(site string) error {
	site = normalizeSite(site)
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(site); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil && !errors.Is(lastErr, ErrCredentialsNotFound) && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete session: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w for site: %s", ErrCredentialsNotFound, site)
	}

	return nil
}

// DeleteAll removes all stored sessions
func (m *Manager) DeleteAll() error {
	sessions, err := m.List()
	if err != nil {
		return err
	}

	for _, s := range sessions {
		_ = m.Delete(s.Site)
	}

	return nil
}

// SessionSource is anything that can answer a site's session value
type SessionSource interface {
	Session(site string) string
}

// Sources answers from the first source with a non-empty session
type Sources []SessionSource

// Session implements SessionSource
func (s Sources) Session(site string) string {
	for _, src := range s {
		if src == nil {
			continue
		}
		if v := src.Session(site); v != "" {
			return v
		}
	}
	return ""
}

// ConfigDir returns (and creates) the per-user mediadl configuration directory
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "mediadl")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "mediadl")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "mediadl")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "mediadl")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeSession returns a copy with the value masked
func SanitizeSession(session *Session) *Session {
	if session == nil {
		return nil
	}

	return &Session{
		Site:         session.Site,
		Value:        maskString(session.Value),
		LastModified: session.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func normalizeSite(site string) string {
	return strings.ToLower(strings.TrimSpace(site))
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("session not found")
	ErrInvalidCredentials  = errors.New("invalid session")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
