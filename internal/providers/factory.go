package providers

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jhl-labs/sepilot-desktop-sub008/internal/llm"
)

// Settings selects and configures a provider. Empty fields fall back to the
// provider's environment variables and then to its preset.
type Settings struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

type preset struct {
	anthropic    bool
	keyEnv       string
	modelEnv     string
	baseURLEnv   string
	defaultModel string
	defaultURL   string
	// localKey is sent when no key is configured; local servers ignore it.
	localKey string
}

var presets = map[string]preset{
	"openai":    {keyEnv: "OPENAI_API_KEY", modelEnv: "OPENAI_MODEL", baseURLEnv: "OPENAI_BASE_URL", defaultModel: "gpt-4o-mini"},
	"anthropic": {anthropic: true, keyEnv: "ANTHROPIC_API_KEY", modelEnv: "ANTHROPIC_MODEL", baseURLEnv: "ANTHROPIC_BASE_URL", defaultModel: "claude-3-5-sonnet-latest"},
	"kimi":      {keyEnv: "KIMI_API_KEY", modelEnv: "KIMI_MODEL", baseURLEnv: "KIMI_BASE_URL", defaultModel: "kimi-k2-250711", defaultURL: "https://ark.ap-southeast.bytepluses.com/api/v3"},
	"gemini":    {keyEnv: "GEMINI_API_KEY", modelEnv: "GEMINI_MODEL", defaultModel: "gemini-1.5-flash", defaultURL: "https://generativelanguage.googleapis.com/v1beta/openai"},
	"lmstudio":  {keyEnv: "LMSTUDIO_API_KEY", modelEnv: "LMSTUDIO_MODEL", baseURLEnv: "LMSTUDIO_BASE_URL", defaultModel: "local-model", defaultURL: "http://localhost:1234/v1", localKey: "lm-studio"},
	"ollama":    {keyEnv: "OLLAMA_API_KEY", modelEnv: "OLLAMA_MODEL", baseURLEnv: "OLLAMA_BASE_URL", defaultModel: "llama3.1", defaultURL: "http://localhost:11434/v1", localKey: "ollama"},
	"glm":       {keyEnv: "GLM_API_KEY", modelEnv: "GLM_MODEL", defaultModel: "glm-4-plus", defaultURL: "https://open.bigmodel.cn/api/paas/v4"},
	"minimax":   {keyEnv: "MINIMAX_API_KEY", modelEnv: "MINIMAX_MODEL", defaultModel: "abab6.5s-chat", defaultURL: "https://api.minimax.chat/v1"},
	"deepseek":  {keyEnv: "DEEPSEEK_API_KEY", modelEnv: "DEEPSEEK_MODEL", defaultModel: "deepseek-chat", defaultURL: "https://api.deepseek.com/v1"},
	"groq":      {keyEnv: "GROQ_API_KEY", modelEnv: "GROQ_MODEL", defaultModel: "llama-3.1-70b-versatile", defaultURL: "https://api.groq.com/openai/v1"},
}

// Names returns the supported provider names.
func Names() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve fills s from getenv and the provider preset. LLM_PROVIDER picks the
// provider when s names none; the default is openai.
func Resolve(s Settings, getenv func(string) string) (Settings, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if s.Provider == "" {
		s.Provider = getenv("LLM_PROVIDER")
	}
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	if s.Provider == "" {
		s.Provider = "openai"
	}
	p, ok := presets[s.Provider]
	if !ok {
		return s, fmt.Errorf("unknown LLM provider %q (supported: %s)", s.Provider, strings.Join(Names(), ", "))
	}
	if s.APIKey == "" {
		s.APIKey = getenv(p.keyEnv)
	}
	if s.APIKey == "" {
		if p.localKey == "" {
			return s, fmt.Errorf("%s not set", p.keyEnv)
		}
		s.APIKey = p.localKey
	}
	if s.Model == "" {
		s.Model = getenv(p.modelEnv)
	}
	if s.Model == "" {
		s.Model = p.defaultModel
	}
	if s.BaseURL == "" && p.baseURLEnv != "" {
		s.BaseURL = getenv(p.baseURLEnv)
	}
	if s.BaseURL == "" {
		s.BaseURL = p.defaultURL
	}
	return s, nil
}

// New resolves s and returns the client with the model to use.
func New(s Settings, getenv func(string) string) (llm.Client, string, error) {
	s, err := Resolve(s, getenv)
	if err != nil {
		return nil, "", err
	}
	if presets[s.Provider].anthropic {
		return NewAnthropicClient(s.APIKey, s.BaseURL), s.Model, nil
	}
	return NewOpenAIClient(s.APIKey, s.BaseURL), s.Model, nil
}
