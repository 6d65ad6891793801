package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOutPerStudent(t *testing.T) {
	h := NewHub()
	a1 := h.Subscribe("s1")
	a2 := h.Subscribe("s1")
	b := h.Subscribe("s2")

	assert.Equal(t, 2, h.Publish("s1", "state"))
	assert.Equal(t, "state", <-a1.C)
	assert.Equal(t, "state", <-a2.C)
	assert.Empty(t, b.C)

	assert.Equal(t, 0, h.Publish("nobody", "state"))
}

func TestHub_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("s1")

	for i := 0; i < subscriberBuffer; i++ {
		require.Equal(t, 1, h.Publish("s1", i))
	}
	assert.Equal(t, 0, h.Publish("s1", "overflow"))
	assert.Len(t, sub.C, subscriberBuffer)
}

func TestHub_UnsubscribeClosesOnce(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe("s1")

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers("s1"))
	assert.Equal(t, 0, h.Publish("s1", "state"))
}
