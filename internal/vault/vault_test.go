package vault

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/keymanager"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	km := keymanager.New(filepath.Join(t.TempDir(), "vault.json"))
	require.NoError(t, km.Unlock("test-password"))
	return New(km, nil)
}

func TestRegisterProvider_GetEnvVars(t *testing.T) {
	v := newTestVault(t)

	err := v.RegisterProvider("anthropic", "anthropic", `{"type":"api","key":"sk-test"}`, map[string]string{"OPENCODE_MODEL": "claude"}, true)
	require.NoError(t, err)

	env := v.GetEnvVars("anthropic")
	assert.Equal(t, `{"type":"api","key":"sk-test"}`, env["OPENCODE_AUTH_JSON"])
	assert.Equal(t, "claude", env["OPENCODE_MODEL"])
}

func TestGetEnvVars_UnknownProviderReturnsEmptyMap(t *testing.T) {
	v := newTestVault(t)
	env := v.GetEnvVars("nonexistent")
	assert.Empty(t, env)
}

func TestGetEnvVars_EmptyProviderIDUnionsAll(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.RegisterProvider("a", "kind-a", `{"key":"a"}`, map[string]string{"A": "1"}, false))
	require.NoError(t, v.RegisterProvider("b", "kind-b", `{"key":"b"}`, map[string]string{"B": "2"}, false))

	env := v.GetEnvVars("")
	assert.Equal(t, "1", env["A"])
	assert.Equal(t, "2", env["B"])
}

func TestRegisterProvider_OnlyOneDefaultAtATime(t *testing.T) {
	v := newTestVault(t)
	require.NoError(t, v.RegisterProvider("a", "kind", `{}`, nil, true))
	require.NoError(t, v.RegisterProvider("b", "kind", `{}`, nil, true))

	id, ok := v.DefaultProviderID()
	require.True(t, ok)
	assert.Equal(t, "b", id)
}

func TestSettings_SetAndGet(t *testing.T) {
	v := newTestVault(t)
	_, ok := v.GetSetting("default_provider_id")
	assert.False(t, ok)

	v.SetSetting("default_provider_id", "anthropic")
	val, ok := v.GetSetting("default_provider_id")
	require.True(t, ok)
	assert.Equal(t, "anthropic", val)
}
