package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/events"
)

func newNotificationFixture() (*NotificationService, *observer.ObservedLogs) {
	core, logs := observer.New(zap.InfoLevel)
	svc := NewNotificationService(nil, zap.New(core), config.NotificationConfig{
		EmailFrom: "helpdesk@example.com",
	})
	return svc, logs
}

func TestNotificationTicketReceived(t *testing.T) {
	svc, logs := newNotificationFixture()

	err := svc.handleTicketReceived(context.Background(), events.Event{
		Type: events.EventTicketReceived,
		Payload: events.TicketReceivedPayload{
			TicketNumber:   "TICK-20240305-0001",
			Subject:        "Printer jam",
			RequesterEmail: "a@x.com",
		},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("email notification").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "a@x.com", fields["to"])
	assert.Contains(t, fields["subject"], "TICK-20240305-0001")
}

func TestNotificationResolvedIncludesResolution(t *testing.T) {
	svc, logs := newNotificationFixture()

	resolution := "replaced toner"
	err := svc.handleStatusChanged(context.Background(), events.Event{
		Type: events.EventTicketStatusChanged,
		Payload: events.StatusChangedPayload{
			TicketNumber:   "TICK-20240305-0001",
			Subject:        "Printer jam",
			RequesterEmail: "a@x.com",
			OldStatus:      domain.TicketStatusInProgress,
			NewStatus:      domain.TicketStatusResolved,
			Resolution:     &resolution,
		},
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("email notification").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["subject"], "resolved")
}

func TestNotificationRejectsMismatchedPayload(t *testing.T) {
	svc, _ := newNotificationFixture()

	event := events.Event{
		Type:    events.EventCommentAdded,
		Payload: events.TicketReceivedPayload{},
	}
	assert.Error(t, svc.handleCommentAdded(context.Background(), event))
}

func TestNotificationSkipsEmailWithoutSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	svc := NewNotificationService(nil, zap.New(core), config.NotificationConfig{})

	err := svc.handleCommentAdded(context.Background(), events.Event{
		Type: events.EventCommentAdded,
		Payload: events.CommentAddedPayload{
			TicketNumber:   "TICK-20240305-0001",
			RequesterEmail: "a@x.com",
			Content:        "hello",
		},
	})
	require.NoError(t, err)
	assert.Empty(t, logs.FilterMessage("email notification").All())
}
