package controller

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"dealrooms/models"
	"dealrooms/services"
	"dealrooms/utils"
)

type RoomController struct {
	Rooms  *services.RoomService
	Logger *log.Logger
}

func NewRoomController(rooms *services.RoomService, logger *log.Logger) *RoomController {
	return &RoomController{Rooms: rooms, Logger: logger}
}

type createRoomInput struct {
	Type         string              `json:"type" validate:"required"`
	Participants []string            `json:"participants" validate:"required,min=1"`
	Metadata     models.RoomMetadata `json:"metadata"`
}

func (rc *RoomController) CreateRoom(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input createRoomInput
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

	roomID, err := rc.Rooms.CreateRoom(c.Context(), models.RoomType(input.Type), input.Participants, user.PublicID, input.Metadata)
	if err != nil {
		rc.Logger.Printf("Failed to create room for %s: %v", user.PublicID, err)
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": roomID,
	})
}

func (rc *RoomController) ListRooms(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	rooms, err := rc.Rooms.ListRoomsForUser(c.Context(), user.PublicID, user.Role)
	if err != nil {
		rc.Logger.Printf("Failed to list rooms for %s: %v", user.PublicID, err)
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"rooms": rooms,
	})
}

func (rc *RoomController) GetRoom(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	room, err := rc.Rooms.GetRoom(c.Context(), c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	if !room.IsMember(user.PublicID) {
		return serviceError(c, services.ErrForbidden)
	}

	return c.JSON(room)
}

type memberInput struct {
	UserID string `json:"user_id" validate:"required"`
}

func (rc *RoomController) AddMember(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input memberInput
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

	if err := rc.Rooms.AddMember(c.Context(), c.Params("id"), input.UserID, user.PublicID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (rc *RoomController) RemoveMember(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := rc.Rooms.RemoveMember(c.Context(), c.Params("id"), c.Params("userId"), user.PublicID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

type renameInput struct {
	Name string `json:"name" validate:"required"`
}

func (rc *RoomController) RenameRoom(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input renameInput
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

	if err := rc.Rooms.RenameRoom(c.Context(), c.Params("id"), input.Name, user); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (rc *RoomController) PinMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := rc.Rooms.PinMessage(c.Context(), c.Params("id"), c.Params("messageId"), user); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (rc *RoomController) UnpinMessage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := rc.Rooms.UnpinMessage(c.Context(), c.Params("id"), c.Params("messageId"), user); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (rc *RoomController) MuteRoom(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := rc.Rooms.MuteRoom(c.Context(), c.Params("id"), user.PublicID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (rc *RoomController) UnmuteRoom(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if err := rc.Rooms.UnmuteRoom(c.Context(), c.Params("id"), user.PublicID); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
