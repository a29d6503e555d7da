package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	t.Parallel()
	b := NewBus()
	a := b.Subscribe()
	c := b.Subscribe()

	b.Publish(Event{Type: TypePositionOpened, UserID: "u1"})

	for _, ch := range []chan Event{a, c} {
		evt := <-ch
		assert.Equal(t, TypePositionOpened, evt.Type)
		assert.Equal(t, "u1", evt.UserID)
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()
	b := NewBus()
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	b.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Type: TypeLedgerEntry})
}

func TestBusDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := NewBus()
	ch := b.Subscribe()
	for i := 0; i < 150; i++ {
		b.Publish(Event{Type: TypeLedgerEntry})
	}
	require.Len(t, ch, 100)
}
