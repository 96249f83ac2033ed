// handlers/gamification_routes.go
package handlers

import (
	"errors"
	"io"

	"gamification-engine/middleware"
	"gamification-engine/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxIconBytes = 2 << 20

type gamificationHandler struct {
	engine   *services.Engine
	catalog  *services.CatalogService
	logger   *zap.Logger
	validate *validator.Validate
}

type claimRequest struct {
	PerkID string `json:"perk_id" validate:"required"`
}

type eventRequest struct {
	UserID   string         `json:"user_id" validate:"required"`
	Type     string         `json:"type" validate:"required,max=64"`
	Points   *int64         `json:"points"`
	Metadata map[string]any `json:"metadata"`
}

func SetupGamificationRoutes(app *fiber.App, h *gamificationHandler) {
	// The gateway forwards /api/v1/gamification/s/user/... -> /user/...
	user := app.Group("/user/gamification", middleware.UserContextMiddleware(h.logger))
	user.Get("/", h.getOverview)
	user.Post("/claim", h.claimPerk)
	user.Post("/login", h.dailyLogin)

	// Service-to-service event intake
	internal := app.Group("/s/internal")
	internal.Post("/events", h.recordEvent)

	admin := app.Group("/s/admin", middleware.UserContextMiddleware(h.logger), middleware.RequireRole("admin"))
	admin.Get("/catalog", h.listCatalog)
	admin.Post("/badges/:key/icon", h.uploadBadgeIcon)
}

func (h *gamificationHandler) getOverview(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	ov, err := h.engine.GetOverview(c.UserContext(), userID)
	if err != nil {
		h.logger.Error("overview failed", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load gamification overview"})
	}
	return c.JSON(ov)
}

func (h *gamificationHandler) claimPerk(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req claimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "perk_id is required"})
	}

	res, err := h.engine.ClaimPerk(c.UserContext(), userID, req.PerkID)
	switch {
	case errors.Is(err, services.ErrNotUnlocked):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "perk is not unlocked yet",
			"code":  "NOT_UNLOCKED",
		})
	case errors.Is(err, services.ErrAlreadyClaimed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "perk already claimed",
			"code":  "ALREADY_CLAIMED",
		})
	case err != nil:
		h.logger.Error("claim failed", zap.String("user_id", userID), zap.String("perk_id", req.PerkID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(res)
}

func (h *gamificationHandler) dailyLogin(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	out := h.engine.RecordDailyLogin(c.UserContext(), userID)
	// best-effort: the login itself already succeeded upstream
	return c.JSON(fiber.Map{
		"credited":       out.Recorded,
		"points":         out.Points,
		"badges_awarded": out.BadgesAwarded,
		"perks_unlocked": out.PerksUnlocked,
		"profile":        out.Profile,
	})
}

func (h *gamificationHandler) recordEvent(c *fiber.Ctx) error {
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and type are required"})
	}

	// omitted points fall back to the event type's default; an explicit 0 is kept
	var points int64
	if req.Points != nil {
		points = *req.Points
	} else if def, ok := services.EventPoints(req.Type); ok {
		points = def
	}

	out := h.engine.RecordEvent(c.UserContext(), req.UserID, req.Type, points, req.Metadata)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"recorded":       out.Recorded,
		"suppressed":     out.Suppressed,
		"points":         out.Points,
		"level_up":       out.LevelUp,
		"badges_awarded": out.BadgesAwarded,
		"perks_unlocked": out.PerksUnlocked,
	})
}

func (h *gamificationHandler) listCatalog(c *fiber.Ctx) error {
	cat, err := h.catalog.List(c.UserContext())
	if err != nil {
		h.logger.Error("catalog list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(cat)
}

func (h *gamificationHandler) uploadBadgeIcon(c *fiber.Ctx) error {
	fh, err := c.FormFile("icon")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "icon file is required"})
	}
	if fh.Size > maxIconBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "icon exceeds 2MB"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to open file"})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "failed to read file"})
	}

	badge, err := h.catalog.UploadBadgeIcon(c.UserContext(), c.Params("key"), fh.Filename, data, fh.Header.Get("Content-Type"))
	if errors.Is(err, services.ErrCatalogMissing) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "badge not found"})
	}
	if err != nil {
		h.logger.Error("icon upload failed", zap.String("badge", c.Params("key")), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "failed to store icon"})
	}
	return c.JSON(badge)
}
