package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryQueuePublishConsume(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}

	want := &ReminderEvent{ID: uuid.New(), TaskID: uuid.New(), Title: "Gym", Kind: KindUpcoming}
	if err := q.Publish(ctx, want); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-events:
		if got.ID != want.ID || got.Title != "Gym" {
			t.Errorf("got event %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestMemoryQueueDropsWhenFull(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()

	ctx := context.Background()
	if err := q.Publish(ctx, &ReminderEvent{ID: uuid.New()}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := q.Publish(ctx, &ReminderEvent{ID: uuid.New()}); err == nil {
		t.Error("second publish should report a dropped event")
	}
}

func TestMemoryQueuePublishAfterClose(t *testing.T) {
	q := NewMemoryQueue(1)
	_ = q.Close()
	if err := q.Publish(context.Background(), &ReminderEvent{}); err == nil {
		t.Error("publish after close should fail")
	}
}
