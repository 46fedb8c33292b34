package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
)

func GetUserID(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

// errorResponse maps domain errors to status codes. Unexpected errors are logged and
// hidden from the caller.
func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrPostNotFound), errors.Is(err, models.ErrUnitNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, models.ErrPostDeleted):
		status = fiber.StatusGone
	case errors.Is(err, models.ErrUnitPublished), errors.Is(err, models.ErrInvalidTransition):
		status = fiber.StatusConflict
	case errors.Is(err, models.ErrInvalidPost), errors.Is(err, models.ErrDuplicatePlatform),
		errors.Is(err, models.ErrNoScheduledTime):
		status = fiber.StatusBadRequest
	}

	if status == fiber.StatusInternalServerError {
		slog.Error(err.Error(), "path", c.Path())
		return c.Status(status).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
