package secrets

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
)

func newTestStore(t *testing.T) (*Store, string, string) {
	t.Helper()
	dir := t.TempDir()
	secretsFile := filepath.Join(dir, "secrets.json.enc")
	keyFile := filepath.Join(dir, "secrets.key")
	return NewStore(secretsFile, keyFile, zap.NewNop().Sugar()), secretsFile, keyFile
}

func TestSetGetRoundTrip(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.Set("API_KEY", "secret_api_key_123"))

	value, ok, err := store.Get("API_KEY")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "secret_api_key_123", value)
}

func TestRoundTripUTF8(t *testing.T) {
	store, _, _ := newTestStore(t)

	require.NoError(t, store.Set("GREETING", "héllo wörld ꩜"))

	value, ok, err := store.Get("GREETING")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "héllo wörld ꩜", value)
}

func TestNewInstanceReadsSameFiles(t *testing.T) {
	store, secretsFile, keyFile := newTestStore(t)
	require.NoError(t, store.Set("TOKEN", "abc123"))

	fresh := NewStore(secretsFile, keyFile, zap.NewNop().Sugar())
	value, ok, err := fresh.Get("TOKEN")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc123", value)
}

func TestGetAbsent(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, ok, err := store.Get("NOPE")
	require.NoError(t, err)
	assert.False(t, ok)

	// An absent key set later must not be shadowed by a cached miss
	require.NoError(t, store.Set("NOPE", "now-present"))
	value, ok, err := store.Get("NOPE")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "now-present", value)
}

func TestDelete(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Set("DOOMED", "x"))

	removed, err := store.Delete("DOOMED")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete("DOOMED")
	require.NoError(t, err)
	assert.False(t, removed)

	_, ok, err := store.Get("DOOMED")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeysSorted(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Set("ZULU", "1"))
	require.NoError(t, store.Set("ALPHA", "2"))
	require.NoError(t, store.Set("MIKE", "3"))

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"ALPHA", "MIKE", "ZULU"}, keys)
}

func TestExists(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Set("HERE", "x"))

	ok, err := store.Exists("HERE")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists("GONE")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTamperedCiphertextFailsClosed(t *testing.T) {
	store, secretsFile, keyFile := newTestStore(t)
	require.NoError(t, store.Set("K", "v"))

	blob, err := os.ReadFile(secretsFile)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(string(blob))
	require.NoError(t, err)

	// Flip one byte in the ciphertext region (past iv+tag)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)
	require.NoError(t, os.WriteFile(secretsFile, []byte(tampered), 0o600))

	fresh := NewStore(secretsFile, keyFile, zap.NewNop().Sugar())
	_, _, err = fresh.Get("K")
	require.Error(t, err)
	assert.True(t, errors.IsSecurity(err), "tampering must surface as SecurityError, got %v", err)
	assert.Contains(t, err.Error(), "Failed to load secrets")
}

func TestWrongKeyFailsClosed(t *testing.T) {
	store, secretsFile, _ := newTestStore(t)
	require.NoError(t, store.Set("K", "v"))

	// A different key file over the same ciphertext
	otherKey := filepath.Join(t.TempDir(), "other.key")
	fresh := NewStore(secretsFile, otherKey, zap.NewNop().Sugar())

	_, _, err := fresh.Get("K")
	require.Error(t, err)
	assert.True(t, errors.IsSecurity(err))
}

func TestMalformedBase64FailsClosed(t *testing.T) {
	store, secretsFile, keyFile := newTestStore(t)
	require.NoError(t, store.Set("K", "v"))
	require.NoError(t, os.WriteFile(secretsFile, []byte("not base64 at all!"), 0o600))

	fresh := NewStore(secretsFile, keyFile, zap.NewNop().Sugar())
	_, _, err := fresh.Get("K")
	require.Error(t, err)
	assert.True(t, errors.IsSecurity(err))
}

func TestFilePermissions(t *testing.T) {
	store, secretsFile, keyFile := newTestStore(t)
	require.NoError(t, store.Set("K", "v"))

	for _, path := range []string{secretsFile, keyFile} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), path)
	}
}

func TestImportFromEnv(t *testing.T) {
	store, _, _ := newTestStore(t)
	t.Setenv("SECRET_DB_PASSWORD", "pg-pass")
	t.Setenv("SECRET_API_TOKEN", "tok")
	t.Setenv("UNRELATED", "nope")

	count, err := store.ImportFromEnv("SECRET_")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	value, ok, err := store.Get("DB_PASSWORD")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "pg-pass", value)

	_, ok, err = store.Get("UNRELATED")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackup(t *testing.T) {
	store, secretsFile, _ := newTestStore(t)

	dst := filepath.Join(t.TempDir(), "backup.enc")
	wrote, err := store.Backup(dst)
	require.NoError(t, err)
	assert.False(t, wrote, "nothing to back up before first write")

	require.NoError(t, store.Set("K", "v"))
	wrote, err = store.Backup(dst)
	require.NoError(t, err)
	assert.True(t, wrote)

	original, err := os.ReadFile(secretsFile)
	require.NoError(t, err)
	copied, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, original, copied)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "********", Mask("12345678"))
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "sec***123", Mask("sec123123"))
	assert.Equal(t, "sec***********123", Mask("secret_api_key123"))
}
