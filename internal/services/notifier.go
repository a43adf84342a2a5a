package services

import (
	"context"

	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

// INotifier receives domain events that trigger background work.
type INotifier interface {
	DisputeEscalated(ctx context.Context, d *models.Dispute, reason string) error
	DisputeResolved(ctx context.Context, d *models.Dispute) error
	AttachmentsAdded(ctx context.Context, chatID, messageID utils.SixID, attachments []models.Attachment) error
}

// NoopNotifier drops every event.
type NoopNotifier struct{}

func (NoopNotifier) DisputeEscalated(context.Context, *models.Dispute, string) error { return nil }
func (NoopNotifier) DisputeResolved(context.Context, *models.Dispute) error          { return nil }
func (NoopNotifier) AttachmentsAdded(context.Context, utils.SixID, utils.SixID, []models.Attachment) error {
	return nil
}
