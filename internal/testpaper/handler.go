package testpaper

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/kelas_service/internal/material"
	"github.com/emandor/kelas_service/internal/middleware"
	"github.com/emandor/kelas_service/internal/model"
	"github.com/emandor/kelas_service/internal/quizgen"
	"github.com/emandor/kelas_service/internal/quota"
	"github.com/emandor/kelas_service/internal/telemetry"
)

type MaterialSource interface {
	Get(ctx context.Context, id int64) (*model.Material, error)
}

type Handler struct {
	svc       *Service
	repo      *Repo
	materials MaterialSource
	maxBytes  int
}

func NewHandler(svc *Service, materials MaterialSource, maxBytes int) *Handler {
	return &Handler{svc: svc, repo: svc.repo, materials: materials, maxBytes: maxBytes}
}

type createRequest struct {
	Title      string `json:"title"`
	SourceText string `json:"source_text"`
	MaterialID int64  `json:"material_id"`
}

func (h *Handler) Create(c *fiber.Ctx) error {
	uid := middleware.UserID(c)
	log := telemetry.L().With().Str("req_id", middleware.RequestIDOf(c)).Int64("user_id", uid).Logger()

	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	hasText := strings.TrimSpace(req.SourceText) != ""
	if hasText == (req.MaterialID > 0) {
		return fiber.NewError(fiber.StatusBadRequest, "provide exactly one of source_text or material_id")
	}

	source, title := req.SourceText, strings.TrimSpace(req.Title)
	if req.MaterialID > 0 {
		m, err := h.materials.Get(c.UserContext(), req.MaterialID)
		if errors.Is(err, material.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "material not found")
		}
		if err != nil {
			log.Error().Err(err).Msg("material_load_failed")
			return fiber.NewError(fiber.StatusInternalServerError, "db error")
		}
		source = m.Body
		if title == "" {
			title = m.Title
		}
	}
	if title == "" || utf8.RuneCountInString(title) > 255 {
		return fiber.NewError(fiber.StatusBadRequest, "title required (max 255 chars)")
	}
	if h.maxBytes > 0 && len(source) > h.maxBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "source text too large")
	}

	t, err := h.svc.Create(c.UserContext(), CreateInput{
		OwnerID: uid, Title: title, Source: source, MaterialID: req.MaterialID,
	})
	switch {
	case errors.Is(err, quota.ErrQuotaExceeded):
		return fiber.NewError(fiber.StatusForbidden, "quota exceeded")
	case errors.Is(err, ErrEmptySource):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case err != nil:
		log.Error().Err(err).Msg("test_create_failed")
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}

	h.svc.ProcessAsync(t.ID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": t.ID, "title": t.Title, "status": t.Status})
}

// List shows teachers their own tests and students every ready test.
func (h *Handler) List(c *fiber.Ctx) error {
	var (
		list []model.Test
		err  error
	)
	if middleware.UserRole(c) == model.RoleTeacher {
		list, err = h.repo.ListByOwner(c.UserContext(), middleware.UserID(c))
	} else {
		list, err = h.repo.ListReady(c.UserContext())
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	out := make([]testView, len(list))
	for i := range list {
		out[i] = newTestView(&list[i])
	}
	return c.JSON(out)
}

type testView struct {
	model.Test
	ErrorKind string         `json:"error_kind,omitempty"`
	Error     string         `json:"error,omitempty"`
	Questions []questionView `json:"questions,omitempty"`
}

type questionView struct {
	Position      int      `json:"position"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"`
}

func newTestView(t *model.Test) testView {
	v := testView{Test: *t}
	if t.Status == model.TestError && t.ErrorKind.Valid {
		v.ErrorKind = t.ErrorKind.String
		v.Error = UserMessage(quizgen.Kind(t.ErrorKind.String))
	}
	return v
}

func (h *Handler) loadTest(c *fiber.Ctx) (*model.Test, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	t, err := h.repo.Get(c.UserContext(), int64(id))
	if errors.Is(err, ErrNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "not found")
	}
	if err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	owner := t.OwnerID == middleware.UserID(c)
	if !owner && t.Status != model.TestReady {
		return nil, fiber.NewError(fiber.StatusNotFound, "not found")
	}
	return t, nil
}

// Get returns a test with its questions. Correct answers are only shown to
// the owner.
func (h *Handler) Get(c *fiber.Ctx) error {
	t, err := h.loadTest(c)
	if err != nil {
		return err
	}
	v := newTestView(t)
	if t.Status != model.TestReady {
		return c.JSON(v)
	}

	rows, err := h.repo.Questions(c.UserContext(), t.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	reveal := t.OwnerID == middleware.UserID(c)
	v.Questions = make([]questionView, 0, len(rows))
	for _, r := range rows {
		q := questionView{Position: r.Position, Question: r.Question}
		if err := json.Unmarshal(r.Options, &q.Options); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "corrupt question")
		}
		if reveal {
			q.CorrectAnswer = r.CorrectAnswer
		}
		v.Questions = append(v.Questions, q)
	}
	return c.JSON(v)
}

type submitRequest struct {
	Answers []string `json:"answers"`
}

func (h *Handler) Submit(c *fiber.Ctx) error {
	t, err := h.loadTest(c)
	if err != nil {
		return err
	}
	if t.Status != model.TestReady {
		return fiber.NewError(fiber.StatusConflict, "test is not ready")
	}
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}

	rows, err := h.repo.Questions(c.UserContext(), t.ID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	if len(req.Answers) > len(rows) {
		return fiber.NewError(fiber.StatusBadRequest, "more answers than questions")
	}

	score, results := Score(rows, req.Answers)
	sub := &model.Submission{TestID: t.ID, UserID: middleware.UserID(c), Score: score, Total: len(rows)}
	id, err := h.repo.CreateSubmission(c.UserContext(), sub, req.Answers)
	if err != nil {
		telemetry.L().Error().Err(err).Str("req_id", middleware.RequestIDOf(c)).Msg("submission_save_failed")
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":      id,
		"score":   score,
		"total":   len(rows),
		"results": results,
	})
}

func (h *Handler) Retry(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	err = h.svc.Retry(c.UserContext(), int64(id), middleware.UserID(c))
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "not found")
	case errors.Is(err, ErrNotFailed):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case err != nil:
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": id, "status": model.TestGenerating})
}
