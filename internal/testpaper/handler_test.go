package testpaper

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emandor/kelas_service/internal/cache"
	"github.com/emandor/kelas_service/internal/middleware"
	"github.com/emandor/kelas_service/internal/model"
	"github.com/emandor/kelas_service/internal/quizgen"
	"github.com/emandor/kelas_service/internal/ws"
)

func newApp(e *env, uid int64, role model.Role, mats fakeMaterials, maxBytes int) *fiber.App {
	h := NewHandler(e.svc, mats, maxBytes)
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
	app.Use(asUser(uid, role))
	app.Post("/tests", h.Create)
	app.Get("/tests", h.List)
	app.Get("/tests/:id", h.Get)
	app.Post("/tests/:id/submissions", h.Submit)
	app.Post("/tests/:id/retry", h.Retry)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestHandler_CreateValidation(t *testing.T) {
	e := newEnv(t)
	app := newApp(e, 3, model.RoleTeacher, fakeMaterials{}, 64)

	assert.Equal(t, fiber.StatusBadRequest, do(t, app, "POST", "/tests", `{"title":"a"}`).StatusCode)
	assert.Equal(t, fiber.StatusBadRequest,
		do(t, app, "POST", "/tests", `{"title":"a","source_text":"x","material_id":2}`).StatusCode)
	assert.Equal(t, fiber.StatusBadRequest, do(t, app, "POST", "/tests", `{"source_text":"x"}`).StatusCode)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge,
		do(t, app, "POST", "/tests", `{"title":"a","source_text":"`+strings.Repeat("x", 65)+`"}`).StatusCode)
	assert.Equal(t, fiber.StatusNotFound, do(t, app, "POST", "/tests", `{"material_id":2}`).StatusCode)
	e.verify(t)
}

func TestHandler_CreateQuotaExceeded(t *testing.T) {
	e := newEnv(t)
	app := newApp(e, 3, model.RoleTeacher, fakeMaterials{}, 0)
	e.sql.ExpectQuery("SELECT test_quota, tests_used FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"test_quota", "tests_used"}).AddRow(1, 1))

	resp := do(t, app, "POST", "/tests", `{"title":"a","source_text":"x"}`)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	e.verify(t)
}

// The full path: the request creates the test and the background job fails
// because every key is out of quota.
func TestHandler_CreateFromMaterialThenFail(t *testing.T) {
	e := newEnv(t)
	e.gen.err = &quizgen.Error{Kind: quizgen.KindAllKeysExhausted, Attempts: 2}
	mats := fakeMaterials{2: {ID: 2, Title: "Ekosistem", Body: "Ekosistem terdiri dari ..."}}
	app := newApp(e, 3, model.RoleTeacher, mats, 0)
	hash := SourceHash("Ekosistem terdiri dari ...")

	e.sql.ExpectQuery("SELECT test_quota, tests_used FROM users").
		WillReturnRows(sqlmock.NewRows([]string{"test_quota", "tests_used"}).AddRow(50, 0))
	e.sql.ExpectBegin()
	e.sql.ExpectExec("UPDATE users SET tests_used").WillReturnResult(sqlmock.NewResult(0, 1))
	e.sql.ExpectExec("INSERT INTO tests").
		WithArgs(int64(3), int64(2), "Ekosistem", "generating", "Ekosistem terdiri dari ...", hash).
		WillReturnResult(sqlmock.NewResult(11, 1))
	e.sql.ExpectCommit()

	e.sql.ExpectQuery("SELECT id, owner_id, material_id").WithArgs(int64(11)).
		WillReturnRows(testRow(11, 3, model.TestGenerating, hash))
	e.redis.ExpectSetNX(cache.TestLockKey(11), "1", testLockTTL).SetVal(true)
	e.sql.ExpectQuery("SELECT source_text FROM tests").
		WillReturnRows(sqlmock.NewRows([]string{"source_text"}).AddRow("Ekosistem terdiri dari ..."))
	e.redis.ExpectGet(cache.QuestionsKey(hash)).RedisNil()
	e.sql.ExpectExec("UPDATE tests SET status=\\?, error_kind").
		WithArgs("error", "all_keys_exhausted", sqlmock.AnyArg(), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.redis.ExpectDel(cache.TestLockKey(11)).SetVal(1)

	resp := do(t, app, "POST", "/tests", `{"material_id":2}`)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	var body struct {
		ID     int64  `json:"id"`
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(11), body.ID)
	assert.Equal(t, "Ekosistem", body.Title)
	assert.Equal(t, "generating", body.Status)

	e.svc.Wait()
	ev := e.notifier.all()
	require.Len(t, ev, 2)
	assert.Equal(t, ws.EventTestCreated, ev[0].event)
	assert.Equal(t, ws.EventTestFailed, ev[1].event)
	e.verify(t)
}

func TestHandler_GetHidesAnswersFromStudents(t *testing.T) {
	e := newEnv(t)
	app := newApp(e, 20, model.RoleStudent, nil, 0)
	e.sql.ExpectQuery("SELECT id, owner_id, material_id").WithArgs(int64(5)).
		WillReturnRows(testRow(5, 3, model.TestReady, "h"))
	e.sql.ExpectQuery("FROM test_questions").WithArgs(int64(5)).WillReturnRows(questionRows(5))

	resp := do(t, app, "GET", "/tests/5", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var v struct {
		Status    string           `json:"status"`
		Questions []map[string]any `json:"questions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "ready", v.Status)
	require.Len(t, v.Questions, 2)
	assert.Len(t, v.Questions[0]["options"], 4)
	_, leaked := v.Questions[0]["correctAnswer"]
	assert.False(t, leaked)
	e.verify(t)
}

func TestHandler_GetShowsAnswersToOwner(t *testing.T) {
	e := newEnv(t)
	app := newApp(e, 3, model.RoleTeacher, nil, 0)
	e.sql.ExpectQuery("SELECT id, owner_id, material_id").
		WillReturnRows(testRow(5, 3, model.TestReady, "h"))
	e.sql.ExpectQuery("FROM test_questions").WillReturnRows(questionRows(5))

	resp := do(t, app, "GET", "/tests/5", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var v struct {
		Questions []questionView `json:"questions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	require.Len(t, v.Questions, 2)
	assert.Equal(t, "Paris", v.Questions[0].CorrectAnswer)
	e.verify(t)
}

func TestHandler_GetFailedTestShowsKindToOwner(t *testing.T) {
	e := newEnv(t)
	app := newApp(e, 3, model.RoleTeacher, nil, 0)
	e.sql.ExpectQuery("SELECT id, owner_id, material_id").
		WillReturnRows(errorTestRow(5, 3, "all_keys_exhausted"))

	resp := do(t, app, "GET", "/tests/5", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var v map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	assert.Equal(t, "error", v["status"])
	assert.Equal(t, "all_keys_exhausted", v["error_kind"])
	assert.Equal(t, "all keys exhausted, try again later", v["error"])
	e.verify(t)
}

func TestHandler_StudentCannotSeeUnreadyTest(t *testing.T) {
	e := newEnv(t)
	app := newApp(e, 20, model.RoleStudent, nil, 0)
	e.sql.ExpectQuery("SELECT id, owner_id, material_id").
		WillReturnRows(testRow(5, 3, model.TestGenerating, "h"))

	assert.Equal(t, fiber.StatusNotFound, do(t, app, "GET", "/tests/5", "").StatusCode)
	e.verify(t)
}

func TestHandler_Submit(t *testing.T) {
	e := newEnv(t)
	app := newApp(e, 20, model.RoleStudent, nil, 0)
	e.sql.ExpectQuery("SELECT id, owner_id, material_id").
		WillReturnRows(testRow(5, 3, model.TestReady, "h"))
	e.sql.ExpectQuery("FROM test_questions").WillReturnRows(questionRows(5))
	e.sql.ExpectExec("INSERT INTO submissions").
		WithArgs(int64(5), int64(20), `["Paris","5"]`, 1, 2).
		WillReturnResult(sqlmock.NewResult(77, 1))

	resp := do(t, app, "POST", "/tests/5/submissions", `{"answers":["Paris","5"]}`)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var out struct {
		ID      int64    `json:"id"`
		Score   int      `json:"score"`
		Total   int      `json:"total"`
		Results []Result `json:"results"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, int64(77), out.ID)
	assert.Equal(t, 1, out.Score)
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, "4", out.Results[1].CorrectAnswer)
	e.verify(t)
}

func TestHandler_SubmitTooManyAnswers(t *testing.T) {
	e := newEnv(t)
	app := newApp(e, 20, model.RoleStudent, nil, 0)
	e.sql.ExpectQuery("SELECT id, owner_id, material_id").
		WillReturnRows(testRow(5, 3, model.TestReady, "h"))
	e.sql.ExpectQuery("FROM test_questions").WillReturnRows(questionRows(5))

	resp := do(t, app, "POST", "/tests/5/submissions", `{"answers":["a","b","c"]}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	e.verify(t)
}

func TestHandler_ListByRole(t *testing.T) {
	e := newEnv(t)
	e.sql.ExpectQuery("FROM tests WHERE owner_id=").WithArgs(int64(3)).
		WillReturnRows(testRow(5, 3, model.TestGenerating, "h"))
	e.sql.ExpectQuery("FROM tests WHERE status=").WithArgs("ready").
		WillReturnRows(testRow(6, 3, model.TestReady, "h"))

	teacher := newApp(e, 3, model.RoleTeacher, nil, 0)
	resp := do(t, teacher, "GET", "/tests", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "generating", list[0]["status"])

	student := newApp(e, 20, model.RoleStudent, nil, 0)
	resp = do(t, student, "GET", "/tests", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "ready", list[0]["status"])
	e.verify(t)
}
