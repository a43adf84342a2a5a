package tasks

import (
	"context"
	"fmt"
	"log"

	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/email"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

// Notifier turns domain events into queued tasks.
type Notifier struct {
	cfg    *config.Config
	client IAsynqClient
}

func NewNotifier(cfg *config.Config, client IAsynqClient) *Notifier {
	return &Notifier{cfg: cfg, client: client}
}

func (n *Notifier) enqueueEmail(ctx context.Context, msg email.Message) error {
	task, err := NewEmailDeliveryTask(msg)
	if err != nil {
		return err
	}
	info, err := n.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s email: %w", msg.Kind, err)
	}
	log.Printf("Enqueued %s email task %s", msg.Kind, info.ID)
	return nil
}

// DisputeEscalated mails the dispute desk. Nothing is sent when no desk
// address is configured.
func (n *Notifier) DisputeEscalated(ctx context.Context, d *models.Dispute, reason string) error {
	if n.cfg.DisputeDeskEmail == "" {
		return nil
	}
	msg, err := email.DisputeEscalatedMessage(n.cfg.AppName, n.cfg.DisputeDeskEmail, d, reason)
	if err != nil {
		return err
	}
	return n.enqueueEmail(ctx, msg)
}

func (n *Notifier) DisputeResolved(ctx context.Context, d *models.Dispute) error {
	if n.cfg.DisputeDeskEmail == "" {
		return nil
	}
	msg, err := email.DisputeResolvedMessage(n.cfg.AppName, n.cfg.DisputeDeskEmail, d)
	if err != nil {
		return err
	}
	return n.enqueueEmail(ctx, msg)
}

// AttachmentsAdded queues a thumbnail job for every stored image attachment.
func (n *Notifier) AttachmentsAdded(ctx context.Context, chatID, messageID utils.SixID, attachments []models.Attachment) error {
	for _, a := range attachments {
		if a.Kind != models.AttachmentImage || a.Key == "" {
			continue
		}
		task, err := NewAttachmentThumbnailTask(chatID, messageID, a.Key)
		if err != nil {
			return err
		}
		if _, err := n.client.EnqueueContext(ctx, task); err != nil {
			return fmt.Errorf("failed to enqueue thumbnail for %s: %w", a.Key, err)
		}
	}
	return nil
}
