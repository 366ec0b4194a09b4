package realtime

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticSnapshot(v interface{}) SnapshotFunc {
	return func() (interface{}, error) { return v, nil }
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	hub := NewHub()
	topic := RoomTopic("r1")

	sub, err := hub.Subscribe(topic, staticSnapshot("snapshot"))
	require.NoError(t, err)
	defer sub.Cancel()

	hub.Publish(topic, "update-1")

	assert.Equal(t, "snapshot", <-sub.Updates())
	assert.Equal(t, "update-1", <-sub.Updates())
}

func TestSubscribeFailsWhenSnapshotFails(t *testing.T) {
	hub := NewHub()

	_, err := hub.Subscribe(RoomTopic("r1"), func() (interface{}, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)
	assert.Zero(t, hub.SubscriberCount(RoomTopic("r1")))
}

func TestPublishPreservesOrder(t *testing.T) {
	hub := NewHub()
	topic := MessagesTopic("r1")

	sub, err := hub.Subscribe(topic, staticSnapshot(0))
	require.NoError(t, err)
	defer sub.Cancel()

	for i := 1; i <= 10; i++ {
		hub.Publish(topic, i)
	}

	for want := 0; want <= 10; want++ {
		assert.Equal(t, want, <-sub.Updates())
	}
}

func TestPublishOnlyReachesMatchingTopic(t *testing.T) {
	hub := NewHub()

	roomSub, err := hub.Subscribe(RoomTopic("r1"), staticSnapshot("room"))
	require.NoError(t, err)
	defer roomSub.Cancel()
	otherSub, err := hub.Subscribe(RoomTopic("r2"), staticSnapshot("other"))
	require.NoError(t, err)
	defer otherSub.Cancel()

	<-roomSub.Updates()
	<-otherSub.Updates()

	hub.Publish(RoomTopic("r1"), "only-r1")

	assert.Equal(t, "only-r1", <-roomSub.Updates())
	select {
	case v := <-otherSub.Updates():
		t.Fatalf("unexpected delivery to other topic: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelIsIdempotentAndConcurrencySafe(t *testing.T) {
	hub := NewHub()
	topic := NotificationsTopic("u1")

	sub, err := hub.Subscribe(topic, staticSnapshot(nil))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub.Cancel()
		}()
	}
	wg.Wait()

	assert.Zero(t, hub.SubscriberCount(topic))

	// Publishing after cancel must not panic or block.
	hub.Publish(topic, "late")
}

func TestCancelClosesUpdates(t *testing.T) {
	hub := NewHub()
	sub, err := hub.Subscribe(RoomTopic("r1"), staticSnapshot("s"))
	require.NoError(t, err)

	sub.Cancel()

	// Drain: snapshot then closed channel.
	<-sub.Updates()
	_, open := <-sub.Updates()
	assert.False(t, open)
}

func TestSlowConsumerIsDisconnected(t *testing.T) {
	hub := NewHub()
	topic := MessagesTopic("r1")

	_, err := hub.Subscribe(topic, staticSnapshot(0))
	require.NoError(t, err)

	// Never read: fill the buffer (snapshot occupies one slot) and overflow.
	for i := 0; i < 70; i++ {
		hub.Publish(topic, i)
	}

	assert.Zero(t, hub.SubscriberCount(topic), "stalled subscriber should be dropped")
}

func TestExponentialBackoffBounds(t *testing.T) {
	policy := DefaultReconnectPolicy()

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		delay, retry := policy.NextDelay(attempt)
		require.True(t, retry)
		assert.Greater(t, delay, time.Duration(0))
		assert.LessOrEqual(t, delay, policy.Max)
	}

	_, retry := policy.NextDelay(policy.MaxAttempts)
	assert.False(t, retry)
}

func TestNoRetryPolicy(t *testing.T) {
	_, retry := NoRetry{}.NextDelay(0)
	assert.False(t, retry)
}
