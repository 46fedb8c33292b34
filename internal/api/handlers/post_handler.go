package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type PostHandler struct {
	s  service.PostService
	rs service.RecurringService
}

func NewPostHandler(service service.PostService, recurring service.RecurringService) *PostHandler {
	return &PostHandler{s: service, rs: recurring}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.Create(c.Context(), userID, &pc)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	post, err := h.s.Get(c.Context(), GetUserID(c), c.Params("postId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	var req transfer.ContentUpdate
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.UpdateContent(c.Context(), GetUserID(c), c.Params("postId"), req.Content)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) ScheduleUnit(c *fiber.Ctx) error {
	var req transfer.ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	unit, err := h.s.ScheduleUnit(c.Context(), GetUserID(c), c.Params("postId"), c.Params("unitId"), req.ScheduledTime)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(unit)
}

func (h *PostHandler) PublishNow(c *fiber.Ctx) error {
	result, err := h.s.PublishNow(c.Context(), GetUserID(c), c.Params("postId"), c.Params("unitId"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *PostHandler) CancelUnit(c *fiber.Ctx) error {
	platform := models.Platform(c.Params("platform"))
	if !platform.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unsupported platform",
		})
	}

	if err := h.s.CancelUnit(c.Context(), GetUserID(c), c.Params("postId"), platform); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	if err := h.s.Remove(c.Context(), GetUserID(c), c.Params("postId")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *PostHandler) CreateRecurring(c *fiber.Ctx) error {
	var rc transfer.RecurringCreation
	if err := c.BodyParser(&rc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	tpl, err := h.rs.Create(c.Context(), GetUserID(c), &rc)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(tpl)
}

// Register mounts the post routes on an authenticated group.
func (h *PostHandler) Register(api fiber.Router) {
	api.Post("/posts", h.CreatePost)
	api.Get("/posts/:postId", h.GetPost)
	api.Put("/posts/:postId", h.UpdatePost)
	api.Delete("/posts/:postId", h.RemovePost)
	api.Post("/posts/:postId/units/:unitId/schedule", h.ScheduleUnit)
	api.Post("/posts/:postId/units/:unitId/publish", h.PublishNow)
	api.Post("/posts/:postId/cancel/:platform", h.CancelUnit)
	api.Post("/recurring", h.CreateRecurring)
}
