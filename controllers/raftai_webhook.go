package controller

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"dealrooms/models"
	"dealrooms/services"
)

// RaftAIWebhookController receives async analysis results pushed by the
// RaftAI engine. Every request is authenticated with an HMAC-SHA256
// signature over the raw body; a bad signature produces no side effects.
type RaftAIWebhookController struct {
	Rooms         *services.RoomService
	Notifications *services.NotificationService
	Secret        string
	Logger        *logrus.Logger
}

func NewRaftAIWebhookController(rooms *services.RoomService, notifications *services.NotificationService, secret string, logger *logrus.Logger) *RaftAIWebhookController {
	return &RaftAIWebhookController{
		Rooms:         rooms,
		Notifications: notifications,
		Secret:        secret,
		Logger:        logger,
	}
}

var webhookEventTitles = map[string]string{
	"pitch_analysis_complete":   "Pitch Analysis Ready",
	"deal_analysis_complete":    "Deal Analysis Ready",
	"compliance_check_complete": "Compliance Check Ready",
	"risk_assessment_complete":  "Risk Assessment Ready",
}

type webhookEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	RoomID   string `json:"roomId,omitempty"`
	Result   string `json:"result,omitempty"`
	Analysis string `json:"analysis,omitempty"`
}

func (wc *RaftAIWebhookController) Handle(c *fiber.Ctx) error {
	body := c.Body()

	if !wc.verify(body, c.Get("X-RaftAI-Signature")) {
		wc.Logger.WithField("ip", c.IP()).Warn("Rejected webhook with bad signature")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid signature",
		})
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}

	title, ok := webhookEventTitles[event.Type]
	if !ok {
		wc.Logger.WithField("type", event.Type).Warn("Ignoring unknown webhook event type")
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	text := event.Result
	if text == "" {
		text = event.Analysis
	}

	wc.Logger.WithFields(logrus.Fields{
		"type":    event.Type,
		"user_id": event.UserID,
		"room_id": event.RoomID,
	}).Info("Processing RaftAI webhook event")

	notifyEvent := services.Event{
		Type:    models.NotificationTypeMessage,
		RoomID:  event.RoomID,
		ActorID: models.SenderRaftAI,
		Title:   title,
		Body:    text,
	}

	// Completion events carry a room only when the analysis was requested
	// in one; otherwise the notification goes straight to the user.
	if event.RoomID != "" {
		room, err := wc.Rooms.GetRoom(c.Context(), event.RoomID)
		if err != nil {
			return serviceError(c, err)
		}
		notifyEvent.Recipients = []string{event.UserID}
		if event.UserID == "" {
			notifyEvent.Recipients = []string(room.Members)
		}
		wc.Notifications.Notify(c.Context(), room, notifyEvent)
	} else if event.UserID != "" {
		if err := wc.Notifications.NotifyUser(c.Context(), event.UserID, notifyEvent); err != nil {
			return serviceError(c, err)
		}
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (wc *RaftAIWebhookController) verify(body []byte, signature string) bool {
	if wc.Secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(wc.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
