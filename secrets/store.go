// Package secrets provides the encrypted at-rest secrets store and
// resolution of value expressions referenced from job configurations.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
)

const (
	ivSize  = 12 // AES-GCM nonce
	tagSize = 16 // AES-GCM authentication tag
	keySize = 32 // AES-256
)

// Store is an AES-256-GCM encrypted mapping of uppercase identifiers to
// opaque string values, persisted as a single authenticated blob.
//
// Stores are constructed by the scheduler and injected into components
// that need them; they are never package-level globals. A read-through
// cache holds successfully-read values for the lifetime of the instance.
type Store struct {
	secretsFile string
	keyFile     string
	logger      *zap.SugaredLogger

	mu    sync.Mutex
	cache map[string]string
	key   []byte
}

// NewStore creates a secrets store over the given file pair. Files are
// created lazily on first write; a missing secrets file reads as empty.
func NewStore(secretsFile, keyFile string, log *zap.SugaredLogger) *Store {
	return &Store{
		secretsFile: secretsFile,
		keyFile:     keyFile,
		logger:      log,
		cache:       make(map[string]string),
	}
}

// Get returns the current value for key, with ok=false when absent.
// Decryption failures surface as SecurityError and are never masked by
// treating the store as empty.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.cache[key]; ok {
		return v, true, nil
	}

	data, err := s.load()
	if err != nil {
		return "", false, err
	}

	v, ok := data[key]
	if !ok {
		// Absent values are never cached
		return "", false, nil
	}

	s.cache[key] = v
	return v, true, nil
}

// Set merges key=value into the store and re-encrypts the whole document.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}

	data[key] = value
	if err := s.save(data); err != nil {
		return err
	}

	s.cache[key] = value
	return nil
}

// Delete removes key from the store, reporting whether it was present.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return false, err
	}

	if _, ok := data[key]; !ok {
		return false, nil
	}

	delete(data, key)
	if err := s.save(data); err != nil {
		return false, err
	}

	delete(s.cache, key)
	return true, nil
}

// Keys returns all stored identifiers, lexicographically sorted.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether key is present in the store.
func (s *Store) Exists(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[key]; ok {
		return true, nil
	}

	data, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := data[key]
	return ok, nil
}

// ImportFromEnv stores every process environment variable whose name
// begins with prefix under the remainder of its name, returning the
// number imported.
func (s *Store) ImportFromEnv(prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.TrimPrefix(name, prefix)
		if key == "" {
			continue
		}
		data[key] = value
		s.cache[key] = value
		count++
	}

	if count > 0 {
		if err := s.save(data); err != nil {
			return 0, err
		}
	}
	return count, nil
}

// Backup copies the ciphertext file to dst, reporting whether anything
// was written. The copy stays encrypted; the key file is not copied.
func (s *Store) Backup(dst string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(s.secretsFile)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to read secrets file for backup")
	}

	if err := os.WriteFile(dst, blob, 0o600); err != nil {
		return false, errors.Wrapf(err, "failed to write backup to %s", dst)
	}
	return true, nil
}

// load decrypts the on-disk document into a fresh map. Caller holds mu.
func (s *Store) load() (map[string]string, error) {
	blob, err := os.ReadFile(s.secretsFile)
	if os.IsNotExist(err) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, errors.Securityf("Failed to load secrets: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(blob)))
	if err != nil {
		return nil, errors.Securityf("Failed to load secrets: %v", err)
	}
	if len(raw) < ivSize+tagSize {
		return nil, errors.Securityf("Failed to load secrets: ciphertext too short")
	}

	iv := raw[:ivSize]
	tag := raw[ivSize : ivSize+tagSize]
	ciphertext := raw[ivSize+tagSize:]

	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}

	// Go's GCM expects ciphertext||tag; the file stores iv||tag||ciphertext
	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, errors.Securityf("Failed to load secrets: %v", err)
	}

	var data map[string]string
	if err := json.Unmarshal(plaintext, &data); err != nil {
		return nil, errors.Securityf("Failed to load secrets: %v", err)
	}
	if data == nil {
		data = make(map[string]string)
	}
	return data, nil
}

// save encrypts data and writes it atomically. Caller holds mu.
func (s *Store) save(data map[string]string) error {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "failed to marshal secrets")
	}

	gcm, err := s.aead()
	if err != nil {
		return err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return errors.Wrap(err, "failed to generate IV")
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	raw := make([]byte, 0, len(sealed)+ivSize)
	raw = append(raw, iv...)
	raw = append(raw, tag...)
	raw = append(raw, ciphertext...)

	encoded := base64.StdEncoding.EncodeToString(raw)

	// Write to a sibling temp file then rename, so a failure mid-write
	// leaves the previous ciphertext intact.
	tmp, err := os.CreateTemp(filepath.Dir(s.secretsFile), ".secrets-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp secrets file")
	}
	tmpName := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to set secrets file mode")
	}
	if _, err := tmp.WriteString(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to write secrets")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to close temp secrets file")
	}
	if err := os.Rename(tmpName, s.secretsFile); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to replace secrets file")
	}
	return nil
}

// aead returns the GCM cipher over the store key, loading or generating
// the key on first use. Caller holds mu.
func (s *Store) aead() (cipher.AEAD, error) {
	if s.key == nil {
		key, err := s.loadOrCreateKey()
		if err != nil {
			return nil, err
		}
		s.key = key
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, errors.Securityf("Failed to load secrets: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Securityf("Failed to load secrets: %v", err)
	}
	return gcm, nil
}

func (s *Store) loadOrCreateKey() ([]byte, error) {
	blob, err := os.ReadFile(s.keyFile)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(blob)))
		if decErr != nil {
			return nil, errors.Securityf("Failed to load secrets: invalid key file: %v", decErr)
		}
		if len(key) != keySize {
			return nil, errors.Securityf("Failed to load secrets: key must be %d bytes, got %d", keySize, len(key))
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Securityf("Failed to load secrets: %v", err)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "failed to generate encryption key")
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(s.keyFile, []byte(encoded), 0o600); err != nil {
		return nil, errors.Wrapf(err, "failed to write key file %s", s.keyFile)
	}
	s.logger.Infow("Generated new secrets encryption key", "key_file", s.keyFile)
	return key, nil
}
