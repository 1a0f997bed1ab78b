package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "mediadl"
	keyringPrefix  = "session_"
	// keyringIndex lists stored sites; the keyring API cannot enumerate keys
	keyringIndex = "index"
)

// KeyringStore implements CredentialStore using the system keychain
type KeyringStore struct{}

// NewKeyringStore creates a new keyring-based credential store
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

// Store saves the session to the system keychain
func (k *KeyringStore) Store(session *Session) error {
	if session == nil || session.Site == "" {
		return ErrInvalidCredentials
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := keyring.Set(keyringService, keyringPrefix+session.Site, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}

	sites := k.sites()
	for _, s := range sites {
		if s == session.Site {
			return nil
		}
	}
	return k.saveSites(append(sites, session.Site))
}

// Retrieve gets the session from the system keychain
func (k *KeyringStore) Retrieve(site string) (*Session, error) {
	if site == "" {
		return nil, ErrInvalidCredentials
	}

	data, err := keyring.Get(keyringService, keyringPrefix+site)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrCredentialsNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// List returns the sessions recorded in the keyring index
func (k *KeyringStore) List() ([]*Session, error) {
	var sessions []*Session
	for _, site := range k.sites() {
		if s, err := k.Retrieve(site); err == nil {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

// Delete removes the session from the system keychain
func (k *KeyringStore) Delete(site string) error {
	if site == "" {
		return ErrInvalidCredentials
	}

	err := keyring.Delete(keyringService, keyringPrefix+site)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrCredentialsNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}

	var kept []string
	for _, s := range k.sites() {
		if s != site {
			kept = append(kept, s)
		}
	}
	return k.saveSites(kept)
}

// Exists checks if a session exists in the keychain
func (k *KeyringStore) Exists(site string) bool {
	if site == "" {
		return false
	}
	_, err := keyring.Get(keyringService, keyringPrefix+site)
	return err == nil
}

func (k *KeyringStore) sites() []string {
	raw, err := keyring.Get(keyringService, keyringIndex)
	if err != nil || raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (k *KeyringStore) saveSites(sites []string) error {
	if len(sites) == 0 {
		err := keyring.Delete(keyringService, keyringIndex)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	sort.Strings(sites)
	if err := keyring.Set(keyringService, keyringIndex, strings.Join(sites, ",")); err != nil {
		return fmt.Errorf("failed to update keyring index: %w", err)
	}
	return nil
}
