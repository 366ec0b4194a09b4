package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"

	"dealrooms/config"
	controller "dealrooms/controllers"
	"dealrooms/middleware"
	"dealrooms/realtime"
	"dealrooms/services"

	"github.com/sirupsen/logrus"
)

// Services bundles the wired service graph for route registration.
type Services struct {
	Hub           *realtime.Hub
	Rooms         *services.RoomService
	Messages      *services.MessageService
	Notifications *services.NotificationService
	Moderation    *services.ModerationService
}

func SetupRoutes(app *fiber.App, svc *Services) {
	// Initialize controllers with their respective loggers
	roomController := controller.NewRoomController(svc.Rooms, log.New(os.Stdout, "ROOM: ", log.LstdFlags))
	messageController := controller.NewMessageController(svc.Messages, log.New(os.Stdout, "MESSAGE: ", log.LstdFlags))
	notificationController := controller.NewNotificationController(svc.Notifications, log.New(os.Stdout, "NOTIFY: ", log.LstdFlags))
	preferenceController := controller.NewPreferenceController(svc.Notifications, log.New(os.Stdout, "PREFS: ", log.LstdFlags))
	moderationController := controller.NewModerationController(svc.Moderation, log.New(os.Stdout, "MOD: ", log.LstdFlags))
	wsController := controller.NewChatWSController(svc.Hub, svc.Rooms, svc.Messages, svc.Notifications, log.New(os.Stdout, "WS: ", log.LstdFlags))
	webhookController := controller.NewRaftAIWebhookController(svc.Rooms, svc.Notifications, config.AppConfig.RaftAI.WebhookSecret, logrus.StandardLogger())

	// Webhook is authenticated by signature, not JWT
	app.Post("/webhooks/raftai", webhookController.Handle)

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}), middleware.Protected())

	// Rooms
	rooms := api.Group("/rooms")
	rooms.Post("/", roomController.CreateRoom)
	rooms.Get("/", roomController.ListRooms)
	rooms.Get("/:id", roomController.GetRoom)
	rooms.Post("/:id/members", roomController.AddMember)
	rooms.Delete("/:id/members/:userId", roomController.RemoveMember)
	rooms.Patch("/:id/name", roomController.RenameRoom)
	rooms.Post("/:id/mute", roomController.MuteRoom)
	rooms.Delete("/:id/mute", roomController.UnmuteRoom)

	// Messages
	rooms.Post("/:id/messages", messageController.SendMessage)
	rooms.Get("/:id/messages", messageController.ListMessages)
	rooms.Post("/:id/messages/:messageId/reactions", messageController.AddReaction)
	rooms.Delete("/:id/messages/:messageId/reactions", messageController.RemoveReaction)
	rooms.Post("/:id/messages/:messageId/read", messageController.MarkRead)
	rooms.Patch("/:id/messages/:messageId", messageController.EditMessage)
	rooms.Delete("/:id/messages/:messageId", messageController.DeleteMessage)
	rooms.Post("/:id/messages/:messageId/pin", roomController.PinMessage)
	rooms.Delete("/:id/messages/:messageId/pin", roomController.UnpinMessage)

	// Moderation
	rooms.Post("/:id/moderation", moderationController.Apply)
	rooms.Get("/:id/moderation", moderationController.Log)
	rooms.Post("/:id/moderation/replay", moderationController.Replay)

	// Notifications
	notifications := api.Group("/notifications")
	notifications.Get("/", notificationController.ListNotifications)
	notifications.Get("/unread-count", notificationController.UnreadCount)
	notifications.Post("/:id/read", notificationController.MarkRead)
	notifications.Post("/read-all", notificationController.MarkAllRead)

	// Preferences
	api.Get("/preferences", preferenceController.GetPreferences)
	api.Put("/preferences", preferenceController.UpdatePreferences)

	// Websocket streams. The upgrade check runs before the handshake.
	api.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/ws/rooms/:id", websocket.New(wsController.RoomStream()))
	api.Get("/ws/rooms/:id/messages", websocket.New(wsController.MessageStream()))
	api.Get("/ws/notifications", websocket.New(wsController.NotificationStream()))
}
