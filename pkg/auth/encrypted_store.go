package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	// PassphraseEnv overrides the generated passphrase file
	PassphraseEnv = "MEDIADL_PASSPHRASE"
)

// EncryptedFileStore keeps sessions in one AES-GCM sealed JSON file. The key
// is derived with PBKDF2 from $MEDIADL_PASSPHRASE, or from a random
// passphrase generated once and kept next to the file.
type EncryptedFileStore struct {
	path       string
	passphrase []byte
	mu         sync.RWMutex
}

// envelope is the on-disk form. Salt is fixed for the life of the file so the
// key only has to be derived once per process.
type envelope struct {
	Version  int       `json:"version"`
	Salt     []byte    `json:"salt"`
	Sealed   []byte    `json:"sealed"`
	Modified time.Time `json:"modified"`
}

// NewEncryptedFileStore creates a store backed by path
func NewEncryptedFileStore(path string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	pass, err := passphraseFor(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	return &EncryptedFileStore{path: path, passphrase: pass}, nil
}

// Store implements CredentialStore
func (e *EncryptedFileStore) Store(session *Session) error {
	if session == nil || session.Site == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(sessions map[string]Session) error {
		sessions[session.Site] = *session
		return nil
	})
}

// Retrieve implements CredentialStore
func (e *EncryptedFileStore) Retrieve(site string) (*Session, error) {
	if site == "" {
		return nil, ErrInvalidCredentials
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	sessions, _, err := e.read()
	if err != nil {
		return nil, err
	}
	s, ok := sessions[site]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &s, nil
}

// List implements CredentialStore
func (e *EncryptedFileStore) List() ([]*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sessions, _, err := e.read()
	if errors.Is(err, ErrCredentialsNotFound) {
		return []*Session{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out, nil
}

// Delete implements CredentialStore. Removing the last session removes the
// file.
func (e *EncryptedFileStore) Delete(site string) error {
	if site == "" {
		return ErrInvalidCredentials
	}
	return e.update(func(sessions map[string]Session) error {
		if _, ok := sessions[site]; !ok {
			return ErrCredentialsNotFound
		}
		delete(sessions, site)
		return nil
	})
}

// Exists implements CredentialStore
func (e *EncryptedFileStore) Exists(site string) bool {
	_, err := e.Retrieve(site)
	return err == nil
}

// update runs fn over the decrypted sessions and writes the result back
func (e *EncryptedFileStore) update(fn func(map[string]Session) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions, salt, err := e.read()
	switch {
	case errors.Is(err, ErrCredentialsNotFound):
		sessions = make(map[string]Session)
	case err != nil:
		return err
	}

	if err := fn(sessions); err != nil {
		return err
	}
	if len(sessions) == 0 {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return e.write(sessions, salt)
}

// read returns ErrCredentialsNotFound when the file does not exist yet
func (e *EncryptedFileStore) read() (map[string]Session, []byte, error) {
	raw, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return nil, nil, ErrCredentialsNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", e.path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to parse %s: %w", e.path, err)
	}

	plain, err := open(env.Sealed, e.key(env.Salt))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt sessions (wrong passphrase?): %w", err)
	}

	sessions := make(map[string]Session)
	if err := json.Unmarshal(plain, &sessions); err != nil {
		return nil, nil, fmt.Errorf("failed to parse sessions: %w", err)
	}
	return sessions, env.Salt, nil
}

func (e *EncryptedFileStore) write(sessions map[string]Session, salt []byte) error {
	if len(salt) == 0 {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}

	plain, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	sealed, err := seal(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt sessions: %w", err)
	}

	content, err := json.MarshalIndent(envelope{Version: 2, Salt: salt, Sealed: sealed, Modified: time.Now()}, "", "  ")
	if err != nil {
		return err
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key(e.passphrase, salt, iterations, keySize, sha256.New)
}

// passphraseFor returns $MEDIADL_PASSPHRASE, or the contents of .passphrase
// beside path, generating that file on first use.
func passphraseFor(path string) ([]byte, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return []byte(p), nil
	}

	file := filepath.Join(filepath.Dir(path), ".passphrase")
	if b, err := os.ReadFile(file); err == nil && len(b) > 0 {
		return b, nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	pass := []byte(base64.URLEncoding.EncodeToString(b))
	if err := os.WriteFile(file, pass, 0600); err != nil {
		return nil, fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal prefixes the ciphertext with its nonce
func seal(plain, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func open(sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(sealed) < n {
		return nil, errors.New("ciphertext too short")
	}
	return gcm.Open(nil, sealed[:n], sealed[n:], nil)
}
