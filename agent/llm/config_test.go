package llm

import (
	"errors"
	"testing"
	"time"

	contractx "github.com/tanpawarit/bingwa/agent/contract"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{APIKey: "k", Model: "openai/gpt-4o-mini", MaxCompletionToken: 100, Temperature: 0.3}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := map[string]func(*Config){
		"missing key":     func(c *Config) { c.APIKey = " " },
		"missing model":   func(c *Config) { c.Model = "" },
		"bad temperature": func(c *Config) { c.Temperature = 3 },
		"zero max tokens": func(c *Config) { c.MaxCompletionToken = 0 },
	}
	for name, mutate := range tests {
		cfg := valid
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, contractx.ErrValidation) {
			t.Fatalf("%s: Validate() error = %v, want ErrValidation", name, err)
		}
	}
}

func TestConfigOpenRouter(t *testing.T) {
	t.Parallel()

	cfg := Config{
		BaseURL:            " https://openrouter.ai/api/v1 ",
		APIKey:             " key ",
		Model:              " openai/gpt-4o-mini ",
		MaxCompletionToken: 512,
		Temperature:        0.2,
		Timeout:            5 * time.Second,
		SiteName:           "Bingwa",
	}

	got := cfg.OpenRouter()
	if got.APIKey != "key" || got.Model != "openai/gpt-4o-mini" || got.BaseURL != "https://openrouter.ai/api/v1" {
		t.Fatalf("unexpected config: %+v", got)
	}
	if got.MaxCompletionToken == nil || *got.MaxCompletionToken != 512 {
		t.Fatalf("unexpected max tokens: %v", got.MaxCompletionToken)
	}
	if got.Timeout != 5*time.Second || got.SiteName != "Bingwa" {
		t.Fatalf("unexpected config: %+v", got)
	}
}
