package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cadence/errors"
)

func TestParseValueExpression(t *testing.T) {
	assert.Equal(t, ValueExpression{Kind: KindSecret, Arg: "API_KEY"}, ParseValueExpression("secret:API_KEY"))
	assert.Equal(t, ValueExpression{Kind: KindEnv, Arg: "HOME"}, ParseValueExpression("env:HOME"))
	assert.Equal(t, ValueExpression{Kind: KindFile, Arg: "/etc/token"}, ParseValueExpression("file:/etc/token"))
	assert.Equal(t, ValueExpression{Kind: KindLiteral, Arg: "plain_value"}, ParseValueExpression("plain_value"))

	// The prefix must be at the start of the string
	assert.Equal(t, KindLiteral, ParseValueExpression("not a secret:KEY").Kind)
}

func TestValueExpressionString(t *testing.T) {
	for _, raw := range []string{"secret:K", "env:V", "file:/p", "literal"} {
		assert.Equal(t, raw, ParseValueExpression(raw).String())
	}
}

func TestResolveSecret(t *testing.T) {
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Set("TEST_API_KEY", "secret_api_key_123"))

	resolved, err := store.Resolve(map[string]string{
		"API_KEY": "secret:TEST_API_KEY",
		"PLAIN":   "plain_value",
	})
	require.NoError(t, err)
	assert.Equal(t, "secret_api_key_123", resolved["API_KEY"])
	assert.Equal(t, "plain_value", resolved["PLAIN"])
}

func TestResolveSecretMissing(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Resolve(map[string]string{"A": "secret:NOPE"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "Secret not found: NOPE")
}

func TestResolveEnv(t *testing.T) {
	store, _, _ := newTestStore(t)
	t.Setenv("CADENCE_TEST_VAR", "from-env")

	resolved, err := store.Resolve(map[string]string{"A": "env:CADENCE_TEST_VAR"})
	require.NoError(t, err)
	assert.Equal(t, "from-env", resolved["A"])
}

func TestResolveEnvMissing(t *testing.T) {
	store, _, _ := newTestStore(t)
	os.Unsetenv("CADENCE_DEFINITELY_UNSET")

	_, err := store.Resolve(map[string]string{"A": "env:CADENCE_DEFINITELY_UNSET"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "Environment variable not found: CADENCE_DEFINITELY_UNSET")
}

func TestResolveFile(t *testing.T) {
	store, _, _ := newTestStore(t)
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  \ttok-value\n\n"), 0o600))

	resolved, err := store.Resolve(map[string]string{"A": "file:" + path})
	require.NoError(t, err)
	assert.Equal(t, "tok-value", resolved["A"], "surrounding whitespace is stripped")
}

func TestResolveFileUnreadable(t *testing.T) {
	store, _, _ := newTestStore(t)
	path := filepath.Join(t.TempDir(), "missing")

	_, err := store.Resolve(map[string]string{"A": "file:" + path})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "Cannot read file: "+path)
}

func TestResolveNilMapping(t *testing.T) {
	store, _, _ := newTestStore(t)

	resolved, err := store.Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, resolved)
	assert.NotNil(t, resolved)
}
