package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testEvent struct {
	payload string
}

func (testEvent) EventName() string { return "test" }

func TestBusPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	var got1, got2 []string
	bus.Subscribe(func(e Event) {
		got1 = append(got1, e.(testEvent).payload)
	})
	bus.Subscribe(func(e Event) {
		got2 = append(got2, e.(testEvent).payload)
	})

	bus.Publish(testEvent{payload: "a"})
	bus.Publish(testEvent{payload: "b"})

	assert.Equal(t, []string{"a", "b"}, got1)
	assert.Equal(t, []string{"a", "b"}, got2)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	var got []string
	unsub := bus.Subscribe(func(e Event) {
		got = append(got, e.(testEvent).payload)
	})

	bus.Publish(testEvent{payload: "a"})
	unsub()
	bus.Publish(testEvent{payload: "b"})

	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 0, bus.Len())
}

func TestBusPublishWithNoSubscribers(t *testing.T) {
	bus := NewBus()
	// Must not panic
	bus.Publish(testEvent{payload: "a"})
}
