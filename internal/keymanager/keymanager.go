// Package keymanager provides password-gated, AES-GCM-encrypted storage for
// provider credential material. It is the encryption core the Credential
// Vault (internal/vault) builds on. It knows one domain distinction — secret
// vs. hint — and nothing else: the secret is the only thing encrypted, hints
// are non-secret side values (e.g. a provider's default model name) kept in
// the clear alongside an entry's metadata, so a vault reader never has to
// decrypt the secret just to read a hint.
package keymanager

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
)

// Entry is one credential record. EncryptedData holds the secret material
// (opaque ciphertext); Hints holds non-secret values stored in the clear —
// a vault caller that only needs a hint never touches the password-derived
// key at all.
type Entry struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	EncryptedData string            `json:"encrypted_data"`
	Hints         map[string]string `json:"hints,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

type store struct {
	Version        string            `json:"version"`
	PasswordSalt   string            `json:"password_salt"`
	PasswordVerify string            `json:"password_verify"`
	Keys           map[string]*Entry `json:"keys"`
}

// KeyManager is the password-gated encrypted store. All methods are safe
// for concurrent use.
type KeyManager struct {
	storePath string
	password  []byte
	st        *store
	mu        sync.RWMutex
	unlocked  bool
}

// New creates a manager rooted at storePath. The store file is not created
// until Unlock succeeds.
func New(storePath string) *KeyManager {
	return &KeyManager{storePath: storePath, st: &store{Keys: make(map[string]*Entry)}}
}

// Unlock derives the encryption key from password and either loads the
// existing store or initializes a new one. Returns an error if password is
// wrong for an existing store.
func (km *KeyManager) Unlock(password string) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	km.password = []byte(password)

	if err := km.load(); err != nil {
		if os.IsNotExist(err) {
			km.st = &store{Version: "1.0", Keys: make(map[string]*Entry)}
			if err := km.initPasswordSalt(); err != nil {
				return fmt.Errorf("initializing vault password: %w", err)
			}
			if err := km.save(); err != nil {
				return fmt.Errorf("initializing vault store: %w", err)
			}
		} else {
			return fmt.Errorf("unlocking vault: %w", err)
		}
	}

	if km.st.PasswordVerify != "" {
		if err := km.verify(password); err != nil {
			km.password = nil
			return err
		}
	}

	km.unlocked = true
	return nil
}

func (km *KeyManager) initPasswordSalt() error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return err
	}
	km.st.PasswordSalt = base64.StdEncoding.EncodeToString(salt)
	verify := pbkdf2.Key(km.password, salt, iterations, keySize, sha256.New)
	km.st.PasswordVerify = base64.StdEncoding.EncodeToString(verify)
	return nil
}

func (km *KeyManager) verify(password string) error {
	salt, err := base64.StdEncoding.DecodeString(km.st.PasswordSalt)
	if err != nil {
		return fmt.Errorf("decoding vault salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), salt, iterations, keySize, sha256.New)
	if base64.StdEncoding.EncodeToString(derived) != km.st.PasswordVerify {
		return errors.New("invalid vault password")
	}
	return nil
}

// IsUnlocked reports whether the store is currently accessible.
func (km *KeyManager) IsUnlocked() bool {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.unlocked
}

// Store encrypts secret and persists it under id, alongside hints kept in
// the clear. Never log secret. hints may be nil.
func (km *KeyManager) Store(id, name, description, secret string, hints map[string]string) error {
	km.mu.Lock()
	defer km.mu.Unlock()
	if !km.unlocked {
		return errors.New("vault is locked")
	}
	enc, err := km.encrypt([]byte(secret))
	if err != nil {
		return fmt.Errorf("encrypting credential: %w", err)
	}
	now := time.Now()
	km.st.Keys[id] = &Entry{
		ID: id, Name: name, Description: description,
		EncryptedData: base64.StdEncoding.EncodeToString(enc), Hints: hints,
		CreatedAt: now, UpdatedAt: now,
	}
	return km.save()
}

// Get decrypts and returns a stored credential's secret and its hints.
func (km *KeyManager) Get(id string) (secret string, hints map[string]string, err error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if !km.unlocked {
		return "", nil, errors.New("vault is locked")
	}
	entry, ok := km.st.Keys[id]
	if !ok {
		return "", nil, fmt.Errorf("credential not found: %s", id)
	}
	raw, err := base64.StdEncoding.DecodeString(entry.EncryptedData)
	if err != nil {
		return "", nil, fmt.Errorf("decoding credential: %w", err)
	}
	plaintext, err := km.decrypt(raw)
	if err != nil {
		return "", nil, fmt.Errorf("decrypting credential: %w", err)
	}
	return string(plaintext), entry.Hints, nil
}

// GetHints returns only a stored entry's non-secret hints, without
// decrypting its secret.
func (km *KeyManager) GetHints(id string) (map[string]string, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if !km.unlocked {
		return nil, errors.New("vault is locked")
	}
	entry, ok := km.st.Keys[id]
	if !ok {
		return nil, fmt.Errorf("credential not found: %s", id)
	}
	return entry.Hints, nil
}

// Delete removes a stored credential.
func (km *KeyManager) Delete(id string) error {
	km.mu.Lock()
	defer km.mu.Unlock()
	if !km.unlocked {
		return errors.New("vault is locked")
	}
	delete(km.st.Keys, id)
	return km.save()
}

// List returns metadata for every stored credential, without values.
func (km *KeyManager) List() ([]*Entry, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if !km.unlocked {
		return nil, errors.New("vault is locked")
	}
	out := make([]*Entry, 0, len(km.st.Keys))
	for _, e := range km.st.Keys {
		out = append(out, &Entry{ID: e.ID, Name: e.Name, Description: e.Description, CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt})
	}
	return out, nil
}

// Lock clears the password from memory.
func (km *KeyManager) Lock() {
	km.mu.Lock()
	defer km.mu.Unlock()
	for i := range km.password {
		km.password[i] = 0
	}
	km.password = nil
	km.unlocked = false
}

func (km *KeyManager) encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	key := pbkdf2.Key(km.password, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, saltSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func (km *KeyManager) decrypt(data []byte) ([]byte, error) {
	if len(data) < saltSize {
		return nil, errors.New("malformed credential payload")
	}
	salt, data := data[:saltSize], data[saltSize:]
	key := pbkdf2.Key(km.password, salt, iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, errors.New("malformed credential payload")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func (km *KeyManager) load() error {
	data, err := os.ReadFile(km.storePath)
	if err != nil {
		return err
	}
	var s store
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	km.st = &s
	return nil
}

func (km *KeyManager) save() error {
	data, err := json.MarshalIndent(km.st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(km.storePath), 0700); err != nil {
		return err
	}
	return os.WriteFile(km.storePath, data, 0600)
}
