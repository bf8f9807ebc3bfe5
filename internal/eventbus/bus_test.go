package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishSubscribe(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(4)
	defer b.Unsubscribe(id)

	b.PublishNew(EventTaskCreated, "owner-1", "task-1", map[string]string{"priority": "high"})

	event := <-ch
	assert.Equal(t, EventTaskCreated, event.Type)
	assert.Equal(t, "owner-1", event.OwnerID)
	assert.Equal(t, "task-1", event.TaskID)
	assert.Equal(t, "high", event.Metadata["priority"])
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestBusFanOut(t *testing.T) {
	b := New()
	id1, ch1 := b.Subscribe(1)
	id2, ch2 := b.Subscribe(1)
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	b.PublishNew(EventTaskCompleted, "owner-1", "task-1", nil)

	assert.Equal(t, EventTaskCompleted, (<-ch1).Type)
	assert.Equal(t, EventTaskCompleted, (<-ch2).Type)
}

func TestBusDropsWhenBufferFull(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)
	defer b.Unsubscribe(id)

	b.PublishNew(EventTaskCreated, "owner-1", "task-1", nil)
	b.PublishNew(EventTaskCreated, "owner-1", "task-2", nil)

	// Only the first event fits; the second is dropped rather than blocking.
	assert.Equal(t, "task-1", (<-ch).TaskID)
	select {
	case e := <-ch:
		t.Fatalf("expected no more events, got %v", e.TaskID)
	default:
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)

	b.Unsubscribe(id)
	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	b.PublishNew(EventTaskCreated, "owner-1", "task-1", nil)
}
