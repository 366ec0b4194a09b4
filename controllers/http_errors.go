package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"dealrooms/services"
)

// serviceError translates service-layer errors into HTTP responses. Internal
// detail stays in the logs; clients get the category only.
func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Not found",
		})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You do not have access to this resource",
		})
	case errors.Is(err, services.ErrSlowMode):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "Slow mode is active, please wait before sending again",
		})
	case errors.Is(err, services.ErrInvalidParticipants),
		errors.Is(err, services.ErrRoomClosed),
		errors.Is(err, services.ErrInvalidArgument):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
}
