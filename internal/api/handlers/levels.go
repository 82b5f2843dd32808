package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"nonogram/internal/errs"
	"nonogram/internal/models"
	"nonogram/internal/service"
	"nonogram/internal/validate"
	"nonogram/internal/websocket"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

// LevelHandler handles HTTP requests for levels and scores
type LevelHandler struct {
	service   *service.LevelService
	hub       *websocket.Hub
	validator *validator.Validate
}

// NewLevelHandler creates a new level handler. The hub may be nil when websockets are not served.
func NewLevelHandler(service *service.LevelService, hub *websocket.Hub) *LevelHandler {
	return &LevelHandler{
		service:   service,
		hub:       hub,
		validator: validate.NewValidator(),
	}
}

// Register mounts the level routes on router
func (h *LevelHandler) Register(router fiber.Router) {
	router.Get("/levels", h.GetLevels)
	router.Get("/levels/:id", h.GetLevel)
	router.Post("/levels", h.SaveLevels)
	router.Put("/levels/:id", h.UpdateLevel)
	router.Delete("/levels/:id", h.DeleteLevel)
	router.Post("/progress", h.SubmitProgress)
	router.Get("/users/:userId/levels/:levelId/scores", h.GetUserScores)
	router.Get("/health", h.HealthCheck)
}

// GetLevels handles GET /api/v1/levels
// @Summary List levels
// @Description Retrieves one page of levels, optionally filtered by size and completion
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query string false "Grid size such as 10x10"
// @Param isCompleted query bool false "Only levels the user has (not) completed"
// @Param userId query string false "User the completion filter applies to"
// @Success 200 {object} models.LevelsResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/levels [get]
func (h *LevelHandler) GetLevels(c *fiber.Ctx) error {
	var q models.LevelsQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid query",
			Message: err.Error(),
		})
	}
	if err := validate.Struct(h.validator, &q); err != nil {
		return respondError(c, "Invalid query", err, nil)
	}

	filters := models.Filters{Page: q.Page, Size: q.Size}
	if q.Page < 1 {
		filters.Page = 1
	}
	if q.IsCompleted != "" {
		completed := q.IsCompleted == "true"
		filters.IsCompleted = &completed
	}

	levels, err := h.service.GetLevels(c.Context(), filters, q.UserID)
	if err != nil {
		return respondError(c, "Failed to retrieve levels", err, nil)
	}
	if levels == nil {
		levels = []models.FormattedLevel{}
	}

	return c.Status(fiber.StatusOK).JSON(models.LevelsResponse{
		Data: levels,
		Page: filters.Page,
	})
}

// GetLevel handles GET /api/v1/levels/:id
// @Summary Get a level
// @Description Retrieves a level with all of its scores
// @Produce json
// @Param id path int true "Level id"
// @Success 200 {object} models.FormattedLevel
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/levels/{id} [get]
func (h *LevelHandler) GetLevel(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, "Invalid level id", err, nil)
	}

	level, err := h.service.GetLevel(c.Context(), id)
	if err != nil {
		return respondError(c, "Failed to retrieve level", err, nil)
	}
	return c.Status(fiber.StatusOK).JSON(level)
}

// SaveLevels handles POST /api/v1/levels
// @Summary Create levels
// @Description Stores a batch of levels, given as a JSON array or as {"levels": [...]}
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/levels [post]
func (h *LevelHandler) SaveLevels(c *fiber.Ctx) error {
	raws, err := decodeLevels(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
	}

	levels, err := h.service.SaveLevels(c.Context(), raws)
	if err != nil {
		return respondError(c, "Failed to save levels", err, raws)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Levels saved successfully",
		"data":    levels,
	})
}

// UpdateLevel handles PUT /api/v1/levels/:id
// @Summary Update a level
// @Description Replaces the name, grid, size and author of a level
// @Accept json
// @Produce json
// @Param id path int true "Level id"
// @Param request body models.RawLevel true "Level"
// @Success 200 {object} models.FormattedLevel
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/levels/{id} [put]
func (h *LevelHandler) UpdateLevel(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, "Invalid level id", err, nil)
	}

	var raw models.RawLevel
	if err := c.BodyParser(&raw); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
	}

	level, err := h.service.UpdateLevel(c.Context(), id, raw)
	if err != nil {
		return respondError(c, "Failed to update level", err, raw)
	}
	return c.Status(fiber.StatusOK).JSON(level)
}

// DeleteLevel handles DELETE /api/v1/levels/:id
// @Summary Delete a level
// @Description Soft-deletes a level; it is purged after the retention period
// @Produce json
// @Param id path int true "Level id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/levels/{id} [delete]
func (h *LevelHandler) DeleteLevel(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, "Invalid level id", err, nil)
	}

	if err := h.service.DeleteLevel(c.Context(), id); err != nil {
		return respondError(c, "Failed to delete level", err, fiber.Map{"id": id})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Level deleted successfully",
		"id":      id,
	})
}

// SubmitProgress handles POST /api/v1/progress
// @Summary Record a completion time
// @Description Queues a user's completion time on a level for persistence
// @Accept json
// @Produce json
// @Param request body models.ProgressRequest true "Completion"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/progress [post]
func (h *LevelHandler) SubmitProgress(c *fiber.Ctx) error {
	var req models.ProgressRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
	}

	if err := h.service.SubmitScore(c.Context(), req); err != nil {
		return respondError(c, "Failed to save progress", err, req)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Progress accepted",
		"levelId": req.LevelID,
		"userId":  req.UserID,
		"time":    req.Time,
	})
}

// GetUserScores handles GET /api/v1/users/:userId/levels/:levelId/scores
// @Summary List a user's times on a level
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/users/{userId}/levels/{levelId}/scores [get]
func (h *LevelHandler) GetUserScores(c *fiber.Ctx) error {
	levelID, err := paramID(c, "levelId")
	if err != nil {
		return respondError(c, "Invalid level id", err, nil)
	}

	scores, err := h.service.GetUserScores(c.Context(), c.Params("userId"), levelID)
	if err != nil {
		return respondError(c, "Failed to retrieve scores", err, nil)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": scores})
}

// HealthCheck handles GET /api/v1/health
// @Summary Health check
// @Description Checks the health of the service and its dependencies
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/health [get]
func (h *LevelHandler) HealthCheck(c *fiber.Ctx) error {
	if err := h.service.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(models.ErrorResponse{
			Error:   "Health check failed",
			Message: err.Error(),
		})
	}

	body := fiber.Map{
		"status":  "healthy",
		"message": "All systems operational",
	}
	if version, err := h.service.CatalogVersion(c.Context()); err == nil {
		body["catalog_version"] = version
	}
	if h.hub != nil {
		body["websocket_clients"] = h.hub.GetClientCount()
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// HandleWebSocket serves the catalog version feed
func (h *LevelHandler) HandleWebSocket(c *fiberws.Conn) {
	websocket.ServeWS(h.hub, c)
}

// respondError maps an error kind to a status code. input, when given, is echoed back so the
// caller can see what was rejected.
func respondError(c *fiber.Ctx, title string, err error, input interface{}) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, service.ErrBackpressure):
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(models.ErrorResponse{
		Error:   title,
		Message: err.Error(),
		Input:   input,
	})
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, errs.Validation("%s must be a positive integer", name)
	}
	return uint(id), nil
}

// decodeLevels accepts either a bare array of levels or an object wrapping it under "levels"
func decodeLevels(body []byte) ([]models.RawLevel, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("request body is empty")
	}

	var raws []models.RawLevel
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}

	var wrapped struct {
		Levels []models.RawLevel `json:"levels"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Levels == nil {
		return nil, errors.New(`expected an array of levels or an object with a "levels" array`)
	}
	return wrapped.Levels, nil
}
