package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/email"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/services"
	"fixitnow/chatdesk/internal/storage"
	"fixitnow/chatdesk/internal/utils"
)

// Task types.
const (
	TypeEmailDelivery          = "email:deliver"
	TypeAttachmentThumbnail    = "chat:attachment_thumbnail"
	TypeChatCloseInactive      = "chat:close_inactive"
	TypeDisputeEscalateOverdue = "dispute:escalate_overdue"
)

// Queues.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueImages   = "images"
	QueueLow      = "low"
)

// Periodic schedules.
const (
	CloseInactiveSchedule   = "@hourly"
	EscalateOverdueSchedule = "@every 15m"
)

// IAsynqClient is the subset of *asynq.Client used to enqueue work.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	o := rdb.Options()
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

// NewClient returns an asynq client on the same Redis as rdb.
func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// --- Payloads ---

// EmailTaskPayload is a fully rendered message waiting for delivery.
type EmailTaskPayload = email.Message

type ThumbnailTaskPayload struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Key       string `json:"key"`
}

func NewEmailDeliveryTask(msg email.Message) (*asynq.Task, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal email payload: %w", err)
	}
	return asynq.NewTask(TypeEmailDelivery, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(5)), nil
}

func NewAttachmentThumbnailTask(chatID, messageID utils.SixID, key string) (*asynq.Task, error) {
	payload, err := json.Marshal(ThumbnailTaskPayload{ChatID: chatID.String(), MessageID: messageID.String(), Key: key})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal thumbnail payload: %w", err)
	}
	return asynq.NewTask(TypeAttachmentThumbnail, payload, asynq.Queue(QueueImages), asynq.MaxRetry(3)), nil
}

// ThumbnailKey is where the thumbnail of the object at key is stored.
func ThumbnailKey(key string) string {
	return key + "_thumb.jpg"
}

// --- Task Server (Processing tasks) ---

// TaskProcessor holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg            *config.Config
	emailSender    email.Sender
	storage        storage.IS3Storage
	chatService    services.IChatService
	disputeService services.IDisputeService
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IS3Storage,
	chatService services.IChatService,
	disputeService services.IDisputeService,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:            cfg,
		emailSender:    emailSender,
		storage:        storageService,
		chatService:    chatService,
		disputeService: disputeService,
	}
}

// SetupServer configures an asynq server and its handlers. The caller runs it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				QueueCritical: 6,
				QueueImages:   4,
				QueueDefault:  3,
				QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("[Asynq Error] Task Type: %s, Payload: %s, Error: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)
	return srv, NewServeMux(processor)
}

// NewServeMux registers every task handler.
func NewServeMux(processor *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeAttachmentThumbnail, processor.HandleAttachmentThumbnailTask)
	mux.HandleFunc(TypeChatCloseInactive, processor.HandleChatCloseInactiveTask)
	mux.HandleFunc(TypeDisputeEscalateOverdue, processor.HandleDisputeEscalateOverdueTask)
	return mux
}

// NewScheduler registers the periodic maintenance jobs.
func NewScheduler(rdb *redis.Client) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt(rdb), &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := scheduler.Register(CloseInactiveSchedule, asynq.NewTask(TypeChatCloseInactive, nil, asynq.Queue(QueueLow), asynq.MaxRetry(1))); err != nil {
		return nil, fmt.Errorf("failed to schedule %s: %w", TypeChatCloseInactive, err)
	}
	if _, err := scheduler.Register(EscalateOverdueSchedule, asynq.NewTask(TypeDisputeEscalateOverdue, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))); err != nil {
		return nil, fmt.Errorf("failed to schedule %s: %w", TypeDisputeEscalateOverdue, err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.To) == 0 {
		return fmt.Errorf("email task has no recipients: %w", asynq.SkipRetry)
	}

	fromAddress := p.cfg.SmtpFromAddress
	if fromAddress == "" {
		fromAddress = "noreply@example.com"
		log.Printf("Warning: SmtpFromAddress not configured, using fallback %s", fromAddress)
	}

	if err := p.emailSender.Send(ctx, payload.To, payload.Subject, payload.Raw(fromAddress, time.Now())); err != nil {
		log.Printf("Email sending failed for %v: %v", payload.To, err)
		return err
	}

	log.Printf("Email task processed: To=%s, Kind=%s", strings.Join(payload.To, ","), payload.Kind)
	return nil
}

// HandleAttachmentThumbnailTask renders a JPEG thumbnail for an image
// attachment and records its URL on the message.
func (p *TaskProcessor) HandleAttachmentThumbnailTask(ctx context.Context, t *asynq.Task) error {
	var payload ThumbnailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal thumbnail task payload: %v: %w", err, asynq.SkipRetry)
	}
	chatID, err := utils.ParseSixID(payload.ChatID)
	if err != nil {
		return fmt.Errorf("invalid chat ID in payload: %w", asynq.SkipRetry)
	}
	messageID, err := utils.ParseSixID(payload.MessageID)
	if err != nil {
		return fmt.Errorf("invalid message ID in payload: %w", asynq.SkipRetry)
	}

	imgData, _, err := p.storage.GetObject(ctx, payload.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Printf("S3 object %s not found, upload likely never completed.", payload.Key)
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return err
	}
	if int64(len(imgData)) > p.cfg.ChatMaxFileSize {
		return fmt.Errorf("attachment %s exceeds max size (%d bytes): %w", payload.Key, len(imgData), asynq.SkipRetry)
	}

	if maxDim := p.cfg.ImageMaxDimension; maxDim > 0 {
		if ic, _, err := image.DecodeConfig(bytes.NewReader(imgData)); err == nil && (ic.Width > maxDim || ic.Height > maxDim) {
			return fmt.Errorf("attachment %s is %dx%d, over %d px: %w", payload.Key, ic.Width, ic.Height, maxDim, asynq.SkipRetry)
		}
	}

	thumb, err := Thumbnail(imgData, uint(p.cfg.ThumbnailDimension))
	if err != nil {
		return fmt.Errorf("attachment %s: %v: %w", payload.Key, err, asynq.SkipRetry)
	}

	thumbKey := ThumbnailKey(payload.Key)
	if err := p.storage.PutObject(ctx, thumbKey, thumb, "image/jpeg"); err != nil {
		return err
	}

	err = p.chatService.SetAttachmentThumbnail(ctx, chatID, messageID, payload.Key, p.storage.PublicURL(thumbKey))
	if errors.Is(err, mongo.ErrNoDocuments) || errors.Is(err, models.ErrMessageNotFound) {
		log.Printf("Chat %s message %s no longer holds attachment %s", payload.ChatID, payload.MessageID, payload.Key)
		return fmt.Errorf("attachment target gone: %w", asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to record thumbnail for %s: %w", payload.Key, err)
	}

	log.Printf("Thumbnail stored: %s", thumbKey)
	return nil
}

// Thumbnail decodes a JPEG, PNG or GIF image and returns a JPEG no larger
// than dim on either side.
func Thumbnail(data []byte, dim uint) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unsupported image format or corrupt image: %w", err)
	}
	b := img.Bounds()
	if uint(b.Dx()) > dim || uint(b.Dy()) > dim {
		img = resize.Thumbnail(dim, dim, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode %s thumbnail: %w", format, err)
	}
	return buf.Bytes(), nil
}

func (p *TaskProcessor) HandleChatCloseInactiveTask(ctx context.Context, t *asynq.Task) error {
	closed, err := p.chatService.CloseInactive(ctx, models.Now())
	if err != nil {
		return err
	}
	log.Printf("Inactive chat sweep closed %d chats.", closed)
	return nil
}

func (p *TaskProcessor) HandleDisputeEscalateOverdueTask(ctx context.Context, t *asynq.Task) error {
	escalated, err := p.disputeService.EscalateOverdue(ctx, models.Now())
	if err != nil {
		return err
	}
	log.Printf("Overdue dispute sweep escalated %d disputes.", escalated)
	return nil
}
