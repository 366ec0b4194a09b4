package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"dealrooms/models"
	"dealrooms/services"
	"dealrooms/utils"
)

type ModerationController struct {
	Moderation *services.ModerationService
	Logger     *log.Logger
}

func NewModerationController(moderation *services.ModerationService, logger *log.Logger) *ModerationController {
	return &ModerationController{Moderation: moderation, Logger: logger}
}

type moderationInput struct {
	Action          string            `json:"action" validate:"required"`
	TargetUserID    *string           `json:"target_user_id"`
	TargetMessageID *string           `json:"target_message_id"`
	DurationSeconds *int              `json:"duration_seconds"`
	Metadata        map[string]string `json:"metadata"`
}

func (mc *ModerationController) Apply(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input moderationInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if errs := utils.ValidateStruct(input); errs != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Validation failed",
			"details": errs.Error(),
		})
	}

	action := models.ModerationAction{
		RoomID:          c.Params("id"),
		Action:          models.ModerationActionKind(input.Action),
		TargetUserID:    input.TargetUserID,
		TargetMessageID: input.TargetMessageID,
		DurationSeconds: input.DurationSeconds,
		Metadata:        input.Metadata,
	}

	actionID, err := mc.Moderation.Apply(c.Context(), action, user)
	if err != nil {
		mc.Logger.Printf("Moderation %s on room %s by %s failed: %v", input.Action, action.RoomID, user.PublicID, err)
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": actionID,
	})
}

func (mc *ModerationController) Log(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	actions, err := mc.Moderation.Log(c.Context(), c.Params("id"), user)
	if err != nil {
		mc.Logger.Printf("Failed to load moderation log for %s: %v", user.PublicID, err)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"actions": actions,
	})
}

func (mc *ModerationController) Replay(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	if user.Role != models.RoleAdmin {
		return serviceError(c, services.ErrForbidden)
	}

	if err := mc.Moderation.Replay(c.Context(), c.Params("id")); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
