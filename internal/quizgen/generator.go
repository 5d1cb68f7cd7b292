package quizgen

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/emandor/kelas_service/internal/providers"
	"github.com/emandor/kelas_service/internal/telemetry"
)

// Generator turns source text into validated questions, spreading requests
// over the key pool and moving to the next key when one runs out of quota.
type Generator struct {
	pool    *KeyPool
	factory providers.Factory
	log     zerolog.Logger
}

func New(pool *KeyPool, factory providers.Factory) *Generator {
	return &Generator{
		pool:    pool,
		factory: factory,
		log:     telemetry.L().With().Str("module", "quizgen").Logger(),
	}
}

// WithLogger replaces the generator's logger.
func (g *Generator) WithLogger(l zerolog.Logger) *Generator {
	g.log = l
	return g
}

func (g *Generator) Pool() *KeyPool { return g.pool }

// Generate makes at most one attempt per key. Only quota failures move the
// cursor and retry; every other failure is returned on first occurrence.
func (g *Generator) Generate(ctx context.Context, source string) ([]Question, error) {
	prompt := BuildPrompt(source)
	size := g.pool.Size()

	attempts := 0
	for attempts < size {
		idx, key := g.pool.Active()
		log := g.log.With().Int("key_index", idx).Int("attempt", attempts+1).Logger()
		log.Debug().Int("prompt_len", len(prompt)).Msg("quiz_attempt")

		reply, err := g.ask(ctx, key, prompt)
		if err != nil {
			attempts++
			if !isQuotaError(err) {
				log.Error().Err(err).Msg("quiz_transport_failed")
				return nil, &Error{Kind: KindTransport, Attempts: attempts, Err: err}
			}
			if attempts >= size {
				log.Warn().Err(err).Int("pool_size", size).Msg("quiz_keys_exhausted")
				return nil, &Error{Kind: KindAllKeysExhausted, Attempts: attempts, Err: err}
			}
			next := g.pool.Rotate()
			log.Warn().Err(err).Int("next_index", next).Msg("key_rotated")
			continue
		}
		attempts++

		questions, rep, err := Validate(Normalize(reply.Text))
		if err != nil {
			var e *Error
			if errors.As(err, &e) {
				e.Attempts = attempts
			}
			log.Error().Err(err).Int("received", rep.Received).Msg("quiz_invalid_reply")
			return nil, err
		}
		log.Info().
			Int("received", rep.Received).
			Int("accepted", rep.Accepted).
			Int("dropped", rep.Dropped()).
			Int("latency_ms", reply.LatencyMs).
			Msg("quiz_validated")
		return questions, nil
	}
	// unreachable with a non-empty pool
	return nil, &Error{Kind: KindAllKeysExhausted, Attempts: attempts}
}

func (g *Generator) ask(ctx context.Context, key, prompt string) (providers.Reply, error) {
	sess, err := g.factory.Open(ctx, key)
	if err != nil {
		return providers.Reply{}, err
	}
	return sess.Ask(ctx, prompt)
}
