package controller

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"dealrooms/models"
	"dealrooms/services"
)

type NotificationController struct {
	Notifications *services.NotificationService
	Logger        *log.Logger
}

func NewNotificationController(notifications *services.NotificationService, logger *log.Logger) *NotificationController {
	return &NotificationController{Notifications: notifications, Logger: logger}
}

func (nc *NotificationController) ListNotifications(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	notifications, err := nc.Notifications.ListNotifications(c.Context(), user.PublicID, limit)
	if err != nil {
		nc.Logger.Printf("Failed to list notifications for %s: %v", user.PublicID, err)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"notifications": notifications,
	})
}

func (nc *NotificationController) UnreadCount(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	count, err := nc.Notifications.GetUnreadCount(c.Context(), user.PublicID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"unread": count,
	})
}

func (nc *NotificationController) MarkRead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := nc.Notifications.MarkRead(c.Context(), c.Params("id"), user.PublicID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (nc *NotificationController) MarkAllRead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := nc.Notifications.MarkAllRead(c.Context(), user.PublicID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
