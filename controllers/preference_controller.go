package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"dealrooms/models"
	"dealrooms/services"
)

type PreferenceController struct {
	Notifications *services.NotificationService
	Logger        *log.Logger
}

func NewPreferenceController(notifications *services.NotificationService, logger *log.Logger) *PreferenceController {
	return &PreferenceController{Notifications: notifications, Logger: logger}
}

func (pc *PreferenceController) GetPreferences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	prefs, err := pc.Notifications.GetPreferences(c.Context(), user.PublicID)
	if err != nil {
		pc.Logger.Printf("Failed to load preferences for %s: %v", user.PublicID, err)
		return serviceError(c, err)
	}

	return c.JSON(prefs)
}

func (pc *PreferenceController) UpdatePreferences(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input models.Preference
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := pc.Notifications.UpdatePreferences(c.Context(), user.PublicID, input); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
