package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emandor/kelas_service/internal/telemetry"
)

// dryRunSession answers every prompt with a canned quiz, fenced the way
// models often do it, so the rest of the pipeline runs without API calls.
type dryRunSession struct{}

func (d *dryRunSession) Name() SourceName { return SourceGemini }

func (d *dryRunSession) Ask(_ context.Context, prompt string) (Reply, error) {
	log := telemetry.L().With().Str("provider", string(d.Name())).Logger()
	log.Info().Msg("gemini_dry_run_enabled")

	type question struct {
		Question      string   `json:"question"`
		Options       []string `json:"options"`
		CorrectAnswer string   `json:"correctAnswer"`
	}
	qs := make([]question, 0, 20)
	for i := 1; i <= 20; i++ {
		opts := []string{
			fmt.Sprintf("Option %d.A", i),
			fmt.Sprintf("Option %d.B", i),
			fmt.Sprintf("Option %d.C", i),
			fmt.Sprintf("Option %d.D", i),
		}
		qs = append(qs, question{
			Question:      fmt.Sprintf("Simulated question %d", i),
			Options:       opts,
			CorrectAnswer: opts[i%4],
		})
	}
	b, err := json.Marshal(map[string]any{"questions": qs})
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:      "```json\n" + string(b) + "\n```",
		LatencyMs: 1,
		TokenUsage: map[string]any{
			"prompt_tokens":     len(prompt) / 4,
			"completion_tokens": len(b) / 4,
		},
	}, nil
}
