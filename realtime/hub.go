package realtime

import (
	"fmt"
	"sync"
)

// Topic identifies one subscribable target.
type Topic string

func RoomTopic(roomID string) Topic          { return Topic("room:" + roomID) }
func MessagesTopic(roomID string) Topic      { return Topic("messages:" + roomID) }
func NotificationsTopic(userID string) Topic { return Topic("notifications:" + userID) }

// SnapshotFunc loads the full current state for a topic.
type SnapshotFunc func() (interface{}, error)

// Subscription is one consumer of a topic. The first value on Updates() is a
// full snapshot; every later value is the new full state, delivered in commit
// order. Cancel is idempotent and safe from any goroutine.
type Subscription struct {
	topic Topic
	id    uint64
	ch    chan interface{}
	hub   *Hub
	once  sync.Once
}

func (s *Subscription) Updates() <-chan interface{} { return s.ch }

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.unregister(s)
		close(s.ch)
	})
}

// Hub fans server-side writes out to per-client subscriptions. Each
// subscription is served by its own consumer goroutine; the hub itself holds
// no domain state beyond the registered channels.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Topic]map[uint64]*Subscription
	nextID uint64
	buffer int
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[Topic]map[uint64]*Subscription),
		buffer: 64,
	}
}

// Subscribe registers a consumer and queues the snapshot as its first value.
// The hub lock is held across the snapshot read and registration so no
// committed write can slip between the snapshot and the update stream.
func (h *Hub) Subscribe(topic Topic, snapshot SnapshotFunc) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	initial, err := snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot for %s failed: %w", topic, err)
	}

	h.nextID++
	sub := &Subscription{
		topic: topic,
		id:    h.nextID,
		ch:    make(chan interface{}, h.buffer),
		hub:   h,
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[uint64]*Subscription)
	}
	h.subs[topic][sub.id] = sub
	sub.ch <- initial

	return sub, nil
}

// Publish delivers the new full state to every subscriber of the topic.
// Per-subscriber queues are FIFO, so delivery order equals publish order. A
// consumer whose queue is full is disconnected rather than reordered.
func (h *Hub) Publish(topic Topic, state interface{}) {
	h.mu.RLock()
	var stalled []*Subscription
	for _, sub := range h.subs[topic] {
		select {
		case sub.ch <- state:
		default:
			stalled = append(stalled, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range stalled {
		sub.Cancel()
	}
}

// SubscriberCount reports live subscriptions for a topic.
func (h *Hub) SubscriberCount(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

func (h *Hub) unregister(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if topicSubs, ok := h.subs[sub.topic]; ok {
		delete(topicSubs, sub.id)
		if len(topicSubs) == 0 {
			delete(h.subs, sub.topic)
		}
	}
}
