package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubPublishDeliversToSubscriber(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("run:abc")
	defer cancel()

	h.Publish("run:abc", Event{Type: EventTypeRunStarted, RunID: "abc"})

	select {
	case evt := <-ch:
		assert.Equal(t, EventTypeRunStarted, evt.Type)
		assert.Equal(t, "abc", evt.RunID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestHubPublishOnlyReachesSubscribersOfThatChannel(t *testing.T) {
	h := NewHub()
	chA, cancelA := h.Subscribe("run:a")
	defer cancelA()
	chB, cancelB := h.Subscribe("run:b")
	defer cancelB()

	h.Publish("run:a", Event{Type: EventTypeRunProgress, RunID: "a"})

	select {
	case evt := <-chA:
		assert.Equal(t, "a", evt.RunID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event on run:a")
	}

	select {
	case <-chB:
		t.Fatal("run:b subscriber should not have received run:a's event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubPublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	h := NewHub()
	done := make(chan struct{})
	go func() {
		h.Publish("run:nobody-listening", Event{Type: EventTypeRunCompleted})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked with no subscribers")
	}
}

func TestHubPublishDropsEventForSlowSubscriberInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	_, cancel := h.Subscribe("run:slow")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			h.Publish("run:slow", Event{Type: EventTypeRunProgress})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer instead of dropping")
	}
}

func TestHubCancelUnsubscribesAndClosesChannel(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("run:abc")
	require.Equal(t, 1, h.SubscriberCount("run:abc"))

	cancel()

	assert.Equal(t, 0, h.SubscriberCount("run:abc"))
	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancel")
}

func TestHubSubscriberCountReflectsMultipleSubscribers(t *testing.T) {
	h := NewHub()
	_, cancel1 := h.Subscribe("run:abc")
	defer cancel1()
	_, cancel2 := h.Subscribe("run:abc")
	defer cancel2()

	assert.Equal(t, 2, h.SubscriberCount("run:abc"))
}
