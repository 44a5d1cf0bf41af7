package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pace-go-api/internal/dto"
)

func TestRescheduleEventPublisherLocalFanout(t *testing.T) {
	publisher := NewRescheduleEventPublisher(nil, "", nil, testLogger())

	events, cleanup := publisher.Subscribe(1)
	defer cleanup()

	publisher.Publish(context.Background(), RescheduleEvent{
		Type:       RescheduleEventCreated,
		Reschedule: dto.RescheduleResponse{ID: 10, StudentID: 1},
	})

	select {
	case event := <-events:
		require.Equal(t, RescheduleEventCreated, event.Type)
		require.Equal(t, uint(10), event.Reschedule.ID)
		require.False(t, event.SentAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected reschedule event")
	}
}

func TestRescheduleEventPublisherScopesByStudent(t *testing.T) {
	publisher := NewRescheduleEventPublisher(nil, "", nil, testLogger())

	other, cleanup := publisher.Subscribe(2)
	defer cleanup()

	publisher.Publish(context.Background(), RescheduleEvent{
		Type:       RescheduleEventCancelled,
		Reschedule: dto.RescheduleResponse{ID: 11, StudentID: 1},
	})

	select {
	case <-other:
		t.Fatal("event leaked to another student's subscription")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRescheduleEventPublisherUnsubscribeClosesChannel(t *testing.T) {
	publisher := NewRescheduleEventPublisher(nil, "", nil, testLogger())

	events, cleanup := publisher.Subscribe(1)
	cleanup()

	_, open := <-events
	require.False(t, open)
}
