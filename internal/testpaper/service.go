package testpaper

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/emandor/kelas_service/internal/cache"
	"github.com/emandor/kelas_service/internal/model"
	"github.com/emandor/kelas_service/internal/quizgen"
	"github.com/emandor/kelas_service/internal/quota"
	"github.com/emandor/kelas_service/internal/telemetry"
	"github.com/emandor/kelas_service/internal/ws"
)

var (
	ErrEmptySource = errors.New("source text is empty")
	ErrBusy        = errors.New("test is already generating")
	ErrNotFailed   = errors.New("test is not in the error state")
)

// KindInternal tags failures that happen outside the generator.
const KindInternal quizgen.Kind = "internal_error"

type Generator interface {
	Generate(ctx context.Context, source string) ([]quizgen.Question, error)
}

type Notifier interface {
	TestCreated(userID int64, p ws.TestPayload)
	TestReady(userID int64, p ws.TestPayload)
	TestFailed(userID int64, p ws.TestPayload)
}

type Options struct {
	CacheTTL time.Duration
	Timeout  time.Duration
	LockTTL  time.Duration
}

type Service struct {
	repo   *Repo
	rdb    redis.Cmdable
	gen    Generator
	notify Notifier
	opts   Options
	wg     sync.WaitGroup
}

func NewService(repo *Repo, rdb redis.Cmdable, gen Generator, notify Notifier, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.Timeout + time.Minute
	}
	return &Service{repo: repo, rdb: rdb, gen: gen, notify: notify, opts: opts}
}

func logger() *zerolog.Logger {
	l := telemetry.L().With().Str("module", "testpaper").Logger()
	return &l
}

// SourceHash keys the question cache. Only the part of the source the
// generator reads is hashed.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(quizgen.TruncateSource(source)))
	return hex.EncodeToString(sum[:])
}

type CreateInput struct {
	OwnerID    int64
	Title      string
	Source     string
	MaterialID int64
}

// Create charges the owner's quota and stores a test in the generating
// state. Generation is started separately with ProcessAsync.
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.Test, error) {
	if strings.TrimSpace(in.Source) == "" {
		return nil, ErrEmptySource
	}
	uq, err := s.repo.UserQuota(ctx, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if !uq.CanGenerate() {
		return nil, quota.ErrQuotaExceeded
	}
	t := &model.Test{
		OwnerID:    in.OwnerID,
		MaterialID: sql.NullInt64{Int64: in.MaterialID, Valid: in.MaterialID > 0},
		Title:      in.Title,
		Status:     model.TestGenerating,
		SourceText: in.Source,
		SourceHash: SourceHash(in.Source),
	}
	id, err := s.repo.CreateTest(ctx, t)
	if err != nil {
		return nil, err
	}
	t.ID = id

	logger().Info().Int64("test_id", id).Int64("user_id", in.OwnerID).Int("source_len", len(in.Source)).Msg("test_created")
	s.notify.TestCreated(in.OwnerID, ws.TestPayload{TestID: id, Title: t.Title, Status: string(t.Status)})
	return t, nil
}

// Retry restarts generation of a failed test owned by userID.
func (s *Service) Retry(ctx context.Context, testID, userID int64) error {
	t, err := s.repo.Get(ctx, testID)
	if err != nil {
		return err
	}
	if t.OwnerID != userID {
		return ErrNotFound
	}
	ok, err := s.repo.SetGenerating(ctx, testID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFailed
	}
	s.ProcessAsync(testID)
	return nil
}

func (s *Service) ProcessAsync(testID int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger().Error().Int64("test_id", testID).Interface("panic", r).Msg("process_test_panic")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
		defer cancel()
		_ = s.Process(ctx, testID)
	}()
}

// Wait blocks until every ProcessAsync call has returned.
func (s *Service) Wait() { s.wg.Wait() }

// Process generates and stores the questions of one test. A redis lock keeps
// two workers off the same test.
func (s *Service) Process(ctx context.Context, testID int64) error {
	log := logger().With().Int64("test_id", testID).Logger()
	log.Info().Str("stage", "start").Msg("process_test")

	t, err := s.repo.Get(ctx, testID)
	if err != nil {
		log.Error().Err(err).Msg("test_not_found")
		return err
	}
	if t.Status != model.TestGenerating {
		log.Warn().Str("status", string(t.Status)).Msg("test_not_generating_skip")
		return nil
	}

	lockKey := cache.TestLockKey(testID)
	ok, err := s.rdb.SetNX(ctx, lockKey, "1", s.opts.LockTTL).Result()
	if err != nil {
		log.Error().Err(err).Msg("lock_failed")
		s.fail(t, err)
		return err
	}
	if !ok {
		log.Warn().Msg("lock_exists_skip")
		return ErrBusy
	}
	defer s.rdb.Del(context.Background(), lockKey)

	source, err := s.repo.SourceText(ctx, testID)
	if err != nil {
		s.fail(t, err)
		return err
	}

	questions, hit := s.cached(ctx, t.SourceHash)
	if hit {
		log.Info().Int("questions", len(questions)).Msg("questions_cache_hit")
	} else {
		start := time.Now()
		questions, err = s.gen.Generate(ctx, source)
		if err != nil {
			log.Error().Err(err).Str("kind", string(quizgen.KindOf(err))).Dur("took", time.Since(start)).Msg("generate_failed")
			s.fail(t, err)
			return err
		}
		log.Info().Int("questions", len(questions)).Dur("took", time.Since(start)).Msg("generate_done")
		s.remember(ctx, t.SourceHash, questions)
	}

	if err := s.repo.SaveQuestions(ctx, testID, questions); err != nil {
		log.Error().Err(err).Msg("save_questions_failed")
		s.fail(t, err)
		return err
	}

	s.notify.TestReady(t.OwnerID, ws.TestPayload{
		TestID:        testID,
		Title:         t.Title,
		Status:        string(model.TestReady),
		QuestionCount: len(questions),
	})
	log.Info().Str("stage", "completed").Msg("process_test")
	return nil
}

func (s *Service) cached(ctx context.Context, hash string) ([]quizgen.Question, bool) {
	if s.opts.CacheTTL <= 0 || hash == "" {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, cache.QuestionsKey(hash)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger().Warn().Err(err).Msg("questions_cache_get_err")
		}
		return nil, false
	}
	var qs []quizgen.Question
	if err := json.Unmarshal(raw, &qs); err != nil || len(qs) == 0 {
		return nil, false
	}
	return qs, true
}

func (s *Service) remember(ctx context.Context, hash string, qs []quizgen.Question) {
	if s.opts.CacheTTL <= 0 || hash == "" {
		return
	}
	raw, err := json.Marshal(qs)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cache.QuestionsKey(hash), string(raw), s.opts.CacheTTL).Err(); err != nil {
		logger().Warn().Err(err).Msg("questions_cache_set_err")
	}
}

func (s *Service) fail(t *model.Test, err error) {
	kind := ErrorKind(err)
	// the request context may already be done
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if mErr := s.repo.MarkError(ctx, t.ID, string(kind), err.Error()); mErr != nil {
		logger().Error().Err(mErr).Int64("test_id", t.ID).Msg("mark_error_failed")
	}
	s.notify.TestFailed(t.OwnerID, ws.TestPayload{
		TestID:    t.ID,
		Title:     t.Title,
		Status:    string(model.TestError),
		ErrorKind: string(kind),
		Error:     UserMessage(kind),
	})
}

func ErrorKind(err error) quizgen.Kind {
	if k := quizgen.KindOf(err); k != "" {
		return k
	}
	return KindInternal
}

// UserMessage is what a user is shown for a failed test.
func UserMessage(kind quizgen.Kind) string {
	if msg := kind.Message(); msg != "" {
		return msg
	}
	return "something went wrong while generating the test"
}
