package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/events"
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
	n.dispatcher.Subscribe(events.EventChangeSubmitted, n.handleChangeSubmitted)
	n.dispatcher.Subscribe(events.EventChangeStatusChanged, n.handleChangeStatusChanged)
	n.dispatcher.Subscribe(events.EventApprovalDecisionRecorded, n.handleApprovalDecision)
	n.dispatcher.Subscribe(events.EventApprovalLevelActivated, n.handleApprovalLevelActivated)
	n.dispatcher.Subscribe(events.EventChangeResubmitted, n.handleChangeResubmitted)
	n.dispatcher.Subscribe(events.EventChangeOverdue, n.handleChangeOverdue)
}

func (n *NotificationService) handleChangeSubmitted(ctx context.Context, event events.Event) error {
	n.logger.Info("ChangeSubmitted", zap.String("change_id", event.ChangeID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleChangeStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("ChangeStatusChanged", zap.String("change_id", event.ChangeID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleApprovalDecision(ctx context.Context, event events.Event) error {
	n.logger.Info("ApprovalDecisionRecorded", zap.String("change_id", event.ChangeID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// handleApprovalLevelActivated tells a level's approvers their action is
// required.
func (n *NotificationService) handleApprovalLevelActivated(ctx context.Context, event events.Event) error {
	n.logger.Info("ApprovalLevelActivated", zap.String("change_id", event.ChangeID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleChangeResubmitted(ctx context.Context, event events.Event) error {
	n.logger.Info("ChangeResubmitted", zap.String("change_id", event.ChangeID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleChangeOverdue(ctx context.Context, event events.Event) error {
	n.logger.Info("ChangeOverdue", zap.String("change_id", event.ChangeID), zap.Any("payload", event.Payload))
	n.sendEmailNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("change_id", event.ChangeID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("change_id", event.ChangeID),
		zap.String("event_type", string(event.Type)))
}
