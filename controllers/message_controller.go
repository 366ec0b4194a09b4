package controller

import (
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"dealrooms/models"
	"dealrooms/services"
	"dealrooms/utils"
)

type MessageController struct {
	Messages *services.MessageService
	Logger   *log.Logger
}

func NewMessageController(messages *services.MessageService, logger *log.Logger) *MessageController {
	return &MessageController{Messages: messages, Logger: logger}
}

type sendMessageInput struct {
	Body     string                `json:"body"`
	Type     string                `json:"type" validate:"required"`
	ParentID string                `json:"parent_id"`
	Payload  models.MessagePayload `json:"payload"`
}

func (mc *MessageController) SendMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	roomID := c.Params("id")

	var input sendMessageInput
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

	var (
		messageID string
		err       error
	)
	if input.ParentID != "" {
		messageID, err = mc.Messages.SendThreadReply(c.Context(), roomID, user.PublicID, input.ParentID, input.Body)
	} else {
		messageID, err = mc.Messages.SendMessage(c.Context(), roomID, user.PublicID, input.Body, models.MessageType(input.Type), input.Payload)
	}
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": messageID,
	})
}

func (mc *MessageController) ListMessages(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	roomID := c.Params("id")

	room, err := mc.Messages.RoomForRead(c.Context(), roomID)
	if err != nil {
		return serviceError(c, err)
	}
	if !room.IsMember(user.PublicID) {
		return serviceError(c, services.ErrForbidden)
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	msgs, err := mc.Messages.GetMessages(c.Context(), roomID, limit)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages": msgs,
	})
}

type reactionInput struct {
	Emoji string `json:"emoji" validate:"required"`
}

func (mc *MessageController) AddReaction(c *fiber.Ctx) error {
	return mc.react(c, true)
}

func (mc *MessageController) RemoveReaction(c *fiber.Ctx) error {
	return mc.react(c, false)
}

func (mc *MessageController) react(c *fiber.Ctx, add bool) error {
	user := c.Locals("user").(*models.User)

	var input reactionInput
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

	var err error
	if add {
		err = mc.Messages.AddReaction(c.Context(), c.Params("id"), c.Params("messageId"), user.PublicID, input.Emoji)
	} else {
		err = mc.Messages.RemoveReaction(c.Context(), c.Params("id"), c.Params("messageId"), user.PublicID, input.Emoji)
	}
	if err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (mc *MessageController) MarkRead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := mc.Messages.MarkRead(c.Context(), c.Params("id"), c.Params("messageId"), user.PublicID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type editMessageInput struct {
	Body string `json:"body" validate:"required"`
}

func (mc *MessageController) EditMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input editMessageInput
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

	if err := mc.Messages.EditMessage(c.Context(), c.Params("id"), c.Params("messageId"), user.PublicID, input.Body); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (mc *MessageController) DeleteMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := mc.Messages.DeleteMessage(c.Context(), c.Params("id"), c.Params("messageId"), user.PublicID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
