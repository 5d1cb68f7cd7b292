package testpaper

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/emandor/kelas_service/internal/material"
	"github.com/emandor/kelas_service/internal/middleware"
	"github.com/emandor/kelas_service/internal/model"
	"github.com/emandor/kelas_service/internal/quizgen"
	"github.com/emandor/kelas_service/internal/ws"
)

type fakeGen struct {
	mu      sync.Mutex
	calls   int
	sources []string
	out     []quizgen.Question
	err     error
}

func (f *fakeGen) Generate(_ context.Context, source string) ([]quizgen.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sources = append(f.sources, source)
	return f.out, f.err
}

type sentEvent struct {
	event  ws.Event
	userID int64
	p      ws.TestPayload
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *fakeNotifier) add(e ws.Event, uid int64, p ws.TestPayload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{e, uid, p})
}

func (n *fakeNotifier) TestCreated(uid int64, p ws.TestPayload) { n.add(ws.EventTestCreated, uid, p) }
func (n *fakeNotifier) TestReady(uid int64, p ws.TestPayload)   { n.add(ws.EventTestReady, uid, p) }
func (n *fakeNotifier) TestFailed(uid int64, p ws.TestPayload)  { n.add(ws.EventTestFailed, uid, p) }

func (n *fakeNotifier) all() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.events...)
}

type fakeMaterials map[int64]*model.Material

func (f fakeMaterials) Get(_ context.Context, id int64) (*model.Material, error) {
	if m, ok := f[id]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("material %d: %w", id, material.ErrNotFound)
}

type env struct {
	svc      *Service
	sql      sqlmock.Sqlmock
	redis    redismock.ClientMock
	gen      *fakeGen
	notifier *fakeNotifier
}

const (
	testCacheTTL = time.Hour
	testLockTTL  = time.Minute
)

func newEnv(t *testing.T) *env {
	t.Helper()
	raw, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	rdb, redisMock := redismock.NewClientMock()

	e := &env{sql: sqlMock, redis: redisMock, gen: &fakeGen{}, notifier: &fakeNotifier{}}
	e.svc = NewService(NewRepo(sqlx.NewDb(raw, "mysql")), rdb, e.gen, e.notifier, Options{
		CacheTTL: testCacheTTL,
		Timeout:  10 * time.Second,
		LockTTL:  testLockTTL,
	})
	return e
}

func (e *env) verify(t *testing.T) {
	t.Helper()
	require.NoError(t, e.sql.ExpectationsWereMet())
	require.NoError(t, e.redis.ExpectationsWereMet())
}

var testCols = []string{
	"id", "owner_id", "material_id", "title", "status", "source_hash",
	"error_kind", "error_text", "question_count", "created_at", "updated_at",
}

func testRow(id, owner int64, status model.TestStatus, hash string) *sqlmock.Rows {
	now := time.Now()
	count := 0
	if status == model.TestReady {
		count = 2
	}
	return sqlmock.NewRows(testCols).
		AddRow(id, owner, nil, "Bab "+strconv.FormatInt(id, 10), string(status), hash, nil, nil, count, now, now)
}

func errorTestRow(id, owner int64, kind string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(testCols).
		AddRow(id, owner, nil, "Bab", string(model.TestError), "h", kind, "detail", 0, now, now)
}

var questionCols = []string{"id", "test_id", "position", "question", "options", "correct_answer"}

func questionRows(testID int64) *sqlmock.Rows {
	return sqlmock.NewRows(questionCols).
		AddRow(int64(1), testID, 1, "Ibu kota Prancis?", []byte(`["Paris","Roma","Berlin","Madrid"]`), "Paris").
		AddRow(int64(2), testID, 2, "2+2?", []byte(`["3","4","5","6"]`), "4")
}

func sampleQuestions() []quizgen.Question {
	return []quizgen.Question{
		{Question: "Ibu kota Prancis?", Options: []string{"Paris", "Roma", "Berlin", "Madrid"}, CorrectAnswer: "Paris"},
		{Question: "2+2?", Options: []string{"3", "4", "5", "6"}, CorrectAnswer: "4"},
	}
}

// expectSaveQuestions mirrors Repo.SaveQuestions for n questions.
func (e *env) expectSaveQuestions(testID int64, n int) {
	e.sql.ExpectBegin()
	e.sql.ExpectExec("DELETE FROM test_questions").WithArgs(testID).WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 0; i < n; i++ {
		e.sql.ExpectExec("INSERT INTO test_questions").WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
	}
	e.sql.ExpectExec("UPDATE tests SET status=\\?, question_count").
		WithArgs("ready", n, testID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.sql.ExpectCommit()
}

// asUser installs a middleware that plays the session middleware.
func asUser(uid int64, role model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.UserIDKey, uid)
		c.Locals(middleware.RoleKey, role)
		return c.Next()
	}
}
