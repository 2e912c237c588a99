package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in Settings.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// DefaultAPIURL is the OpenAI-compatible endpoint used when none is set.
const DefaultAPIURL = "https://api.openai.com/v1"

// DefaultOllamaURL is the server URL used for the ollama provider when none is set.
const DefaultOllamaURL = "http://localhost:11434"

// PromptPrefixes are the canned prompts behind the editor's quick commands.
type PromptPrefixes struct {
	Explain       string `yaml:"explain"`
	Refactor      string `yaml:"refactor"`
	Optimize      string `yaml:"optimize"`
	FindProblems  string `yaml:"findProblems"`
	Documentation string `yaml:"documentation"`
}

// Settings is the user-facing chat configuration. A value is an immutable
// snapshot; each turn reads one snapshot at its start.
type Settings struct {
	Provider          string `yaml:"provider"`
	APIURL            string `yaml:"apiUrl"`
	APIKey            string `yaml:"apiKey"`
	Model             string `yaml:"model"`
	MaxModelTokens    int    `yaml:"maxModelTokens"`
	MaxResponseTokens int    `yaml:"maxResponseTokens"`

	SelectedInsideCodeblock bool `yaml:"selectedInsideCodeblock"`
	CodeblockWithLanguageID bool `yaml:"codeblockWithLanguageId"`
	PasteOnClick            bool `yaml:"pasteOnClick"`
	KeepConversation        bool `yaml:"keepConversation"`

	// TimeoutLength is the setup timeout in seconds.
	TimeoutLength int `yaml:"timeoutLength"`

	PromptPrefix PromptPrefixes `yaml:"promptPrefix"`

	// AWSRegion is only used by the bedrock provider.
	AWSRegion string `yaml:"awsRegion"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		Provider:          ProviderOpenAI,
		APIURL:            DefaultAPIURL,
		Model:             "gpt-3.5-turbo",
		MaxModelTokens:    4000,
		MaxResponseTokens: 1000,
		PasteOnClick:      true,
		KeepConversation:  true,
		TimeoutLength:     60,
		PromptPrefix: PromptPrefixes{
			Explain:       "Explain what this code does: ",
			Refactor:      "Refactor this code and explain what's changed: ",
			Optimize:      "Optimize the following code if there is anything to improve, if not say so: ",
			FindProblems:  "Find problems with the following code, fix them and explain what was wrong (Do not change anything else, if there are no problems say so): ",
			Documentation: "Write documentation for the following code: ",
		},
	}
}

// Timeout returns TimeoutLength as a duration.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutLength) * time.Second
}

// RequiresCredential reports whether the provider needs an API key.
func (s Settings) RequiresCredential() bool {
	switch s.Provider {
	case ProviderOllama, ProviderBedrock:
		return false
	}
	return true
}

// Configured reports whether an endpoint and, where required, a credential
// are present.
func (s Settings) Configured() bool {
	switch s.Provider {
	case ProviderOpenAI, ProviderOllama:
		if s.APIURL == "" {
			return false
		}
	}
	if s.RequiresCredential() && s.APIKey == "" {
		return false
	}
	return true
}

// Masked returns a copy with the credential obscured for display.
func (s Settings) Masked() Settings {
	if len(s.APIKey) > 8 {
		s.APIKey = s.APIKey[:4] + strings.Repeat("*", len(s.APIKey)-8) + s.APIKey[len(s.APIKey)-4:]
	} else if s.APIKey != "" {
		s.APIKey = "****"
	}
	return s
}

// LoadSettings builds settings from defaults, then the YAML file at path (a
// missing file is not an error), then the environment.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Settings{}, fmt.Errorf("read settings: %w", err)
		default:
			if err := yaml.Unmarshal(data, &s); err != nil {
				return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
			}
		}
	}

	applyEnv(&s)
	s.fillDefaults()
	return s, nil
}

// applyEnv overrides s with any CODECHAT_* variables that are set.
func applyEnv(s *Settings) {
	s.Provider = getEnv("CODECHAT_PROVIDER", s.Provider)
	s.APIURL = getEnv("CODECHAT_API_URL", s.APIURL)
	s.APIKey = getEnv("CODECHAT_API_KEY", getEnv("OPENAI_API_KEY", s.APIKey))
	s.Model = getEnv("CODECHAT_MODEL", s.Model)
	s.MaxModelTokens = getEnvInt("CODECHAT_MAX_MODEL_TOKENS", s.MaxModelTokens)
	s.MaxResponseTokens = getEnvInt("CODECHAT_MAX_RESPONSE_TOKENS", s.MaxResponseTokens)
	s.SelectedInsideCodeblock = getEnvBool("CODECHAT_SELECTED_INSIDE_CODEBLOCK", s.SelectedInsideCodeblock)
	s.CodeblockWithLanguageID = getEnvBool("CODECHAT_CODEBLOCK_WITH_LANGUAGE_ID", s.CodeblockWithLanguageID)
	s.PasteOnClick = getEnvBool("CODECHAT_PASTE_ON_CLICK", s.PasteOnClick)
	s.KeepConversation = getEnvBool("CODECHAT_KEEP_CONVERSATION", s.KeepConversation)
	s.TimeoutLength = getEnvInt("CODECHAT_TIMEOUT", s.TimeoutLength)
	s.AWSRegion = getEnv("AWS_REGION", s.AWSRegion)
}

// fillDefaults treats zero strings and non-positive numbers as unset.
func (s *Settings) fillDefaults() {
	d := DefaultSettings()
	if s.Provider == "" {
		s.Provider = d.Provider
	}
	s.Provider = strings.ToLower(s.Provider)
	if s.APIURL == "" {
		switch s.Provider {
		case ProviderOpenAI:
			s.APIURL = d.APIURL
		case ProviderOllama:
			s.APIURL = DefaultOllamaURL
		}
	}
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.MaxModelTokens <= 0 {
		s.MaxModelTokens = d.MaxModelTokens
	}
	if s.MaxResponseTokens <= 0 {
		s.MaxResponseTokens = d.MaxResponseTokens
	}
	if s.TimeoutLength <= 0 {
		s.TimeoutLength = d.TimeoutLength
	}

	p, dp := &s.PromptPrefix, d.PromptPrefix
	if p.Explain == "" {
		p.Explain = dp.Explain
	}
	if p.Refactor == "" {
		p.Refactor = dp.Refactor
	}
	if p.Optimize == "" {
		p.Optimize = dp.Optimize
	}
	if p.FindProblems == "" {
		p.FindProblems = dp.FindProblems
	}
	if p.Documentation == "" {
		p.Documentation = dp.Documentation
	}
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// Store holds the current settings snapshot and swaps it atomically on
// reload. Readers never see a partially applied update.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore creates a store holding s.
func NewStore(s Settings) *Store {
	st := &Store{}
	st.Set(s)
	return st
}

// Settings returns the current snapshot.
func (st *Store) Settings() Settings {
	return *st.current.Load()
}

// Set replaces the current snapshot.
func (st *Store) Set(s Settings) {
	st.current.Store(&s)
}
