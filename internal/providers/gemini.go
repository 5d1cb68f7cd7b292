package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/emandor/kelas_service/internal/telemetry"
)

// Gemini opens sessions against the Gemini API. Limiter, when set, paces
// outgoing requests across all keys.
type Gemini struct {
	Config  GenerationConfig
	Limiter *rate.Limiter
	DryRun  bool
}

func NewGemini(cfg GenerationConfig, rps, burst int, dryRun bool) *Gemini {
	g := &Gemini{Config: cfg, DryRun: dryRun}
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		g.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return g
}

func (g *Gemini) Open(ctx context.Context, key string) (Session, error) {
	if g.DryRun {
		return &dryRunSession{}, nil
	}
	if key == "" {
		return nil, errors.New("gemini: empty api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiSession{client: client, cfg: g.Config, limiter: g.Limiter}, nil
}

type geminiSession struct {
	client  *genai.Client
	cfg     GenerationConfig
	limiter *rate.Limiter
}

func (s *geminiSession) Name() SourceName { return SourceGemini }

func (s *geminiSession) Ask(ctx context.Context, prompt string) (Reply, error) {
	log := telemetry.L().With().Str("provider", string(s.Name())).Str("model", s.cfg.Model).Logger()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return Reply{}, err
		}
	}

	temp, topP, topK := s.cfg.Temperature, s.cfg.TopP, s.cfg.TopK
	config := &genai.GenerateContentConfig{
		Temperature:      &temp,
		TopP:             &topP,
		TopK:             &topK,
		MaxOutputTokens:  s.cfg.MaxOutputTokens,
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}

	log.Debug().Int("prompt_len", len(prompt)).Msg("gemini_request")

	t0 := time.Now()
	result, err := s.client.Models.GenerateContent(ctx, s.cfg.Model, contents, config)
	if err != nil {
		log.Error().Err(err).Msg("gemini_request_failed")
		return Reply{}, mapGeminiError(err)
	}

	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return Reply{}, fmt.Errorf("gemini blocked: %s", result.PromptFeedback.BlockReason)
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return Reply{}, errors.New("gemini empty candidates")
	}

	reply := Reply{Text: text, LatencyMs: int(time.Since(t0) / time.Millisecond)}
	if u := result.UsageMetadata; u != nil {
		reply.TokenUsage = map[string]any{
			"prompt_tokens":     u.PromptTokenCount,
			"completion_tokens": u.CandidatesTokenCount,
			"total_tokens":      u.TotalTokenCount,
		}
	}
	log.Debug().Int("body_len", len(text)).Int("latency_ms", reply.LatencyMs).Msg("gemini_response")
	return reply, nil
}

// mapGeminiError turns a 429 into ErrRateLimit. genai returns APIError by
// value; the pointer form is matched too.
func mapGeminiError(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}
	if code == http.StatusTooManyRequests {
		return &ErrRateLimit{Err: err}
	}
	return err
}
