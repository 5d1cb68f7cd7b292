package quizgen

import (
	"github.com/emandor/kelas_service/internal/config"
	"github.com/emandor/kelas_service/internal/providers"
)

const dryRunKey = "dry-run"

// FromConfig builds a Generator over the configured Gemini key slots. In dry
// run mode an empty pool gets a placeholder key.
func FromConfig(cfg *config.Config) (*Generator, error) {
	keys := cfg.GeminiKeys
	if len(keys) == 0 && cfg.GeminiDryRun {
		keys = []string{dryRunKey}
	}
	pool, err := NewKeyPool(keys...)
	if err != nil {
		return nil, err
	}
	gem := providers.NewGemini(providers.GenerationConfig{
		Model:           cfg.GeminiModel,
		Temperature:     cfg.GeminiTemperature,
		TopP:            cfg.GeminiTopP,
		TopK:            cfg.GeminiTopK,
		MaxOutputTokens: cfg.GeminiMaxOutputTokens,
	}, cfg.GeminiRPS, cfg.GeminiBurst, cfg.GeminiDryRun)
	return New(pool, gem), nil
}
