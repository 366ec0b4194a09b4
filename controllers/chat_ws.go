package controller

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/websocket/v2"

	"dealrooms/models"
	"dealrooms/realtime"
	"dealrooms/services"
	"dealrooms/utils"
)

// ChatWSController bridges hub subscriptions onto websocket connections.
// Each connection gets its own subscription; the first frame is a full
// snapshot and every later frame is the new full state.
type ChatWSController struct {
	Hub           *realtime.Hub
	Rooms         *services.RoomService
	Messages      *services.MessageService
	Notifications *services.NotificationService
	Policy        realtime.ReconnectPolicy
	Logger        *log.Logger
}

func NewChatWSController(hub *realtime.Hub, rooms *services.RoomService, messages *services.MessageService, notifications *services.NotificationService, logger *log.Logger) *ChatWSController {
	return &ChatWSController{
		Hub:           hub,
		Rooms:         rooms,
		Messages:      messages,
		Notifications: notifications,
		Policy:        realtime.DefaultReconnectPolicy(),
		Logger:        logger,
	}
}

// RoomStream streams room document updates for /ws/rooms/:id.
func (wc *ChatWSController) RoomStream() func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		roomID := c.Params("id")
		if !wc.authorize(c, roomID) {
			return
		}
		sub, err := wc.Hub.Subscribe(realtime.RoomTopic(roomID), wc.Rooms.RoomSnapshot(roomID))
		if err != nil {
			wc.Logger.Printf("Room subscription failed for %s: %v", roomID, err)
			c.Close()
			return
		}
		wc.pump(c, sub)
	}
}

// MessageStream streams the ordered message log for /ws/rooms/:id/messages.
func (wc *ChatWSController) MessageStream() func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		roomID := c.Params("id")
		if !wc.authorize(c, roomID) {
			return
		}
		sub, err := wc.Hub.Subscribe(realtime.MessagesTopic(roomID), wc.Messages.MessagesSnapshot(roomID))
		if err != nil {
			wc.Logger.Printf("Message subscription failed for %s: %v", roomID, err)
			c.Close()
			return
		}
		wc.pump(c, sub)
	}
}

// NotificationStream streams the caller's unread count for /ws/notifications.
func (wc *ChatWSController) NotificationStream() func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		user, ok := c.Locals("user").(*models.User)
		if !ok {
			c.Close()
			return
		}
		sub, err := wc.Hub.Subscribe(realtime.NotificationsTopic(user.PublicID), wc.Notifications.UnreadSnapshot(user.PublicID))
		if err != nil {
			wc.Logger.Printf("Notification subscription failed for %s: %v", user.PublicID, err)
			c.Close()
			return
		}
		wc.pump(c, sub)
	}
}

func (wc *ChatWSController) authorize(c *websocket.Conn, roomID string) bool {
	user, ok := c.Locals("user").(*models.User)
	if !ok {
		c.Close()
		return false
	}

	cacheKey := roomID + ":" + user.PublicID
	if member, ok := utils.MembershipCache.Get(cacheKey); ok {
		if member.(bool) {
			return true
		}
		c.Close()
		return false
	}

	room, err := wc.Rooms.GetRoom(context.Background(), roomID)
	if err != nil {
		c.Close()
		return false
	}
	member := room.IsMember(user.PublicID)
	utils.MembershipCache.SetDefault(cacheKey, member)
	if !member {
		c.Close()
		return false
	}
	return true
}

// pump copies subscription updates onto the socket until either side goes
// away. Transient write failures are retried per the reconnect policy;
// anything the policy gives up on closes the connection.
func (wc *ChatWSController) pump(c *websocket.Conn, sub *realtime.Subscription) {
	defer sub.Cancel()
	defer c.Close()

	// Reader goroutine: its only job is to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case state, ok := <-sub.Updates():
			if !ok {
				return
			}
			if !wc.write(c, state) {
				return
			}
		}
	}
}

func (wc *ChatWSController) write(c *websocket.Conn, state interface{}) bool {
	for attempt := 0; ; attempt++ {
		err := c.WriteJSON(state)
		if err == nil {
			return true
		}
		delay, retry := wc.Policy.NextDelay(attempt)
		if !retry {
			wc.Logger.Printf("Dropping websocket client after %d attempts: %v", attempt+1, err)
			return false
		}
		time.Sleep(delay)
	}
}
