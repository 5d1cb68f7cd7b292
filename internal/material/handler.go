package material

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/kelas_service/internal/middleware"
	"github.com/emandor/kelas_service/internal/telemetry"
)

const maxTitleLen = 255

type Handler struct {
	repo     *Repo
	maxBytes int
}

func NewHandler(repo *Repo, maxBytes int) *Handler {
	return &Handler{repo: repo, maxBytes: maxBytes}
}

type createRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || utf8.RuneCountInString(req.Title) > maxTitleLen {
		return fiber.NewError(fiber.StatusBadRequest, "title required (max 255 chars)")
	}
	if strings.TrimSpace(req.Body) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "body required")
	}
	if h.maxBytes > 0 && len(req.Body) > h.maxBytes {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "body too large")
	}

	uid := middleware.UserID(c)
	id, err := h.repo.Create(c.UserContext(), uid, req.Title, req.Body)
	if err != nil {
		telemetry.L().Error().Err(err).Str("req_id", middleware.RequestIDOf(c)).Msg("material_create_failed")
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	telemetry.L().Info().
		Str("req_id", middleware.RequestIDOf(c)).
		Int64("user_id", uid).
		Int64("material_id", id).
		Int("bytes", len(req.Body)).
		Msg("material_created")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id, "title": req.Title})
}

func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.repo.List(c.UserContext())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	return c.JSON(list)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	m, err := h.repo.Get(c.UserContext(), int64(id))
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "not found")
	}
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "db error")
	}
	return c.JSON(m)
}
