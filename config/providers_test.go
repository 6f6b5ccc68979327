package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/llm-failover-router/services/providers"
)

func writeProvidersFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadProviderEndpoints_Defaults(t *testing.T) {
	os.Clearenv()

	endpoints, err := LoadProviderEndpoints("")

	require.NoError(t, err)
	assert.Equal(t, providers.DefaultEndpoints(), endpoints)
}

func TestLoadProviderEndpoints_File(t *testing.T) {
	os.Clearenv()
	path := writeProvidersFile(t, `
providers:
  groq:
    model: llama-3.1-8b-instant
  gemini:
    base_url: http://localhost:9999/v1beta/
`)

	endpoints, err := LoadProviderEndpoints(path)

	require.NoError(t, err)
	defaults := providers.DefaultEndpoints()
	assert.Equal(t, "llama-3.1-8b-instant", endpoints[providers.Groq].Model)
	assert.Equal(t, defaults[providers.Groq].BaseURL, endpoints[providers.Groq].BaseURL)
	assert.Equal(t, "http://localhost:9999/v1beta", endpoints[providers.Gemini].BaseURL)
	assert.Equal(t, defaults[providers.Gemini].Model, endpoints[providers.Gemini].Model)
	assert.Equal(t, defaults[providers.DeepSeek], endpoints[providers.DeepSeek])
}

func TestLoadProviderEndpoints_EnvOverridesFile(t *testing.T) {
	os.Clearenv()
	path := writeProvidersFile(t, `
providers:
  deepseek:
    model: deepseek-reasoner
`)
	t.Setenv("PROVIDER_DEEPSEEK_MODEL", "deepseek-chat-v2")
	t.Setenv("PROVIDER_DEEPSEEK_BASE_URL", "http://proxy.local")

	endpoints, err := LoadProviderEndpoints(path)

	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat-v2", endpoints[providers.DeepSeek].Model)
	assert.Equal(t, "http://proxy.local", endpoints[providers.DeepSeek].BaseURL)
}

func TestLoadProviderEndpoints_Errors(t *testing.T) {
	os.Clearenv()

	_, err := LoadProviderEndpoints("/nonexistent/providers.yaml")
	assert.Error(t, err)

	path := writeProvidersFile(t, `
providers:
  anthropic:
    model: claude
`)
	_, err = LoadProviderEndpoints(path)
	assert.ErrorIs(t, err, providers.ErrUnknownProvider)
}
