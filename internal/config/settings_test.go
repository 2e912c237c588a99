package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var settingsEnv = []string{
	"CODECHAT_PROVIDER", "CODECHAT_API_URL", "CODECHAT_API_KEY", "OPENAI_API_KEY",
	"CODECHAT_MODEL", "CODECHAT_MAX_MODEL_TOKENS", "CODECHAT_MAX_RESPONSE_TOKENS",
	"CODECHAT_SELECTED_INSIDE_CODEBLOCK", "CODECHAT_CODEBLOCK_WITH_LANGUAGE_ID",
	"CODECHAT_PASTE_ON_CLICK", "CODECHAT_KEEP_CONVERSATION", "CODECHAT_TIMEOUT", "AWS_REGION",
}

func clearSettingsEnv(t *testing.T) {
	t.Helper()
	for _, k := range settingsEnv {
		t.Setenv(k, "")
	}
}

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSettingsDefaults(t *testing.T) {
	clearSettingsEnv(t)

	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultSettings(), s)
	assert.Equal(t, "gpt-3.5-turbo", s.Model)
	assert.Equal(t, 4000, s.MaxModelTokens)
	assert.Equal(t, 1000, s.MaxResponseTokens)
	assert.Equal(t, 60*time.Second, s.Timeout())
	assert.True(t, s.PasteOnClick)
	assert.True(t, s.KeepConversation)
	assert.False(t, s.SelectedInsideCodeblock)
}

func TestLoadSettingsFile(t *testing.T) {
	clearSettingsEnv(t)
	path := writeSettings(t, `
apiKey: sk-file
model: gpt-4o
maxModelTokens: 8000
selectedInsideCodeblock: true
pasteOnClick: false
promptPrefix:
  explain: "What is this? "
`)

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-file", s.APIKey)
	assert.Equal(t, "gpt-4o", s.Model)
	assert.Equal(t, 8000, s.MaxModelTokens)
	assert.Equal(t, 1000, s.MaxResponseTokens, "unset key keeps default")
	assert.True(t, s.SelectedInsideCodeblock)
	assert.False(t, s.PasteOnClick)
	assert.Equal(t, "What is this? ", s.PromptPrefix.Explain)
	assert.Equal(t, DefaultSettings().PromptPrefix.Refactor, s.PromptPrefix.Refactor)
}

func TestLoadSettingsZeroValuesFallBack(t *testing.T) {
	clearSettingsEnv(t)
	path := writeSettings(t, `
model: ""
apiUrl: ""
maxModelTokens: 0
timeoutLength: -5
`)

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-3.5-turbo", s.Model)
	assert.Equal(t, DefaultAPIURL, s.APIURL)
	assert.Equal(t, 4000, s.MaxModelTokens)
	assert.Equal(t, 60, s.TimeoutLength)
}

func TestLoadSettingsEnvOverridesFile(t *testing.T) {
	clearSettingsEnv(t)
	path := writeSettings(t, "model: gpt-4o\nkeepConversation: true\n")
	t.Setenv("CODECHAT_MODEL", "gpt-4o-mini")
	t.Setenv("CODECHAT_KEEP_CONVERSATION", "false")
	t.Setenv("CODECHAT_TIMEOUT", "5")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	s, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", s.Model)
	assert.False(t, s.KeepConversation)
	assert.Equal(t, 5, s.TimeoutLength)
	assert.Equal(t, "sk-env", s.APIKey)
}

func TestLoadSettingsInvalidYAML(t *testing.T) {
	clearSettingsEnv(t)
	path := writeSettings(t, "model: [unterminated\n")

	_, err := LoadSettings(path)
	assert.Error(t, err)
}

func TestConfigured(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
		want bool
	}{
		{"openai with key", Settings{Provider: ProviderOpenAI, APIURL: DefaultAPIURL, APIKey: "k"}, true},
		{"openai without key", Settings{Provider: ProviderOpenAI, APIURL: DefaultAPIURL}, false},
		{"openai without url", Settings{Provider: ProviderOpenAI, APIKey: "k"}, false},
		{"anthropic without key", Settings{Provider: ProviderAnthropic}, false},
		{"ollama without key", Settings{Provider: ProviderOllama, APIURL: DefaultOllamaURL}, true},
		{"bedrock uses aws chain", Settings{Provider: ProviderBedrock}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.Configured())
		})
	}
}

func TestMasked(t *testing.T) {
	s := Settings{APIKey: "sk-1234567890abcd"}
	m := s.Masked()

	assert.True(t, strings.HasPrefix(m.APIKey, "sk-1"))
	assert.True(t, strings.HasSuffix(m.APIKey, "abcd"))
	assert.NotContains(t, m.APIKey, "567890")
	assert.Equal(t, "sk-1234567890abcd", s.APIKey, "original untouched")

	assert.Equal(t, "****", Settings{APIKey: "short"}.Masked().APIKey)
	assert.Equal(t, "", Settings{}.Masked().APIKey)
}

func TestStore(t *testing.T) {
	st := NewStore(DefaultSettings())
	snap := st.Settings()

	updated := DefaultSettings()
	updated.Model = "gpt-4o"
	st.Set(updated)

	assert.Equal(t, "gpt-3.5-turbo", snap.Model, "earlier snapshot unaffected")
	assert.Equal(t, "gpt-4o", st.Settings().Model)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	clearSettingsEnv(t)
	path := writeSettings(t, "model: gpt-4o\n")
	initial, err := LoadSettings(path)
	require.NoError(t, err)

	store := NewStore(initial)
	var logs bytes.Buffer
	logger := SetupLoggerWithWriters(&logs, &bytes.Buffer{}, 0)

	w, err := NewWatcher(path, store, logger)
	require.NoError(t, err)

	applied := make(chan Settings, 1)
	w.OnApply(func(s Settings) { applied <- s })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.NoError(t, os.WriteFile(path, []byte("model: gpt-4o-mini\n"), 0o644))

	select {
	case s := <-applied:
		assert.Equal(t, "gpt-4o-mini", s.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("settings were not reloaded")
	}
	assert.Equal(t, "gpt-4o-mini", store.Settings().Model)
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, parseLogLevel("info"))

	logger.Debug("hidden")
	logger.Info("turn finished", "tokens", 42)

	assert.Contains(t, stderr.String(), "turn finished")
	assert.Contains(t, file.String(), `"tokens":42`)
	assert.Contains(t, file.String(), `"component":"codechat"`)
	assert.NotContains(t, stderr.String(), "hidden")
}

func TestSetupFileLoggerUnwritablePath(t *testing.T) {
	logger, cleanup := SetupFileLogger(filepath.Join(t.TempDir(), "missing", "codechat.log"), slog.LevelInfo)
	require.NotNil(t, logger)
	logger.Info("dropped")
	assert.NoError(t, cleanup())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLogLevel("debug").String())
	assert.Equal(t, "WARN", parseLogLevel("warning").String())
	assert.Equal(t, "INFO", parseLogLevel("bogus").String())
}
