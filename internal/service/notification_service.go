package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/bug-tracker/internal/config"
	"github.com/spec-kit/bug-tracker/internal/events"
)

// NotificationService handles emitting notifications for domain events.
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

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventBugCreated, n.handleBugCreated)
	n.dispatcher.Subscribe(events.EventBugUpdated, n.handleBugUpdated)
	n.dispatcher.Subscribe(events.EventBugClosed, n.handleBugClosed)
	n.dispatcher.Subscribe(events.EventBugDeleted, n.handleBugDeleted)
}

func (n *NotificationService) handleBugCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("BugCreated", zap.Int64("bug_id", event.BugID), zap.Any("payload", event.Payload))
	if payload, ok := event.Payload.(events.BugCreatedPayload); ok && payload.AssigneeID != nil {
		n.sendEmailNotificationStub(ctx, event)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleBugUpdated(ctx context.Context, event events.Event) error {
	n.logger.Info("BugUpdated", zap.Int64("bug_id", event.BugID), zap.Any("payload", event.Payload))
	if payload, ok := event.Payload.(events.BugUpdatedPayload); ok && !sameID(payload.OldAssigneeID, payload.NewAssigneeID) && payload.NewAssigneeID != nil {
		n.sendEmailNotificationStub(ctx, event)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleBugClosed(ctx context.Context, event events.Event) error {
	n.logger.Info("BugClosed", zap.Int64("bug_id", event.BugID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleBugDeleted(ctx context.Context, event events.Event) error {
	n.logger.Info("BugDeleted", zap.Int64("bug_id", event.BugID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.Int64("bug_id", event.BugID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.Int64("bug_id", event.BugID),
		zap.String("event_type", string(event.Type)))
}
