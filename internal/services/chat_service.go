package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/db"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

const maxChatListLimit = 100

// ChatListOptions filters and pages FindUserChats.
type ChatListOptions struct {
	Kind   models.ChatKind
	Status models.ChatStatus
	Limit  int
	Skip   int
}

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID  utils.SixID
	IsAdmin bool
}

// IChatService defines the interface for conversation operations.
type IChatService interface {
	FindOrCreate(ctx context.Context, participants []models.Participant, bookingID *utils.SixID, kind models.ChatKind) (*models.Conversation, bool, error)
	FindByID(ctx context.Context, chatID utils.SixID) (*models.Conversation, error)
	FindUserChats(ctx context.Context, userID utils.SixID, opts ChatListOptions) ([]models.Conversation, int64, error)
	AddMessage(ctx context.Context, chatID, senderID utils.SixID, content string, opts models.MessageOptions) (*models.Conversation, *models.Message, error)
	MarkAsRead(ctx context.Context, chatID, userID utils.SixID) (*models.Conversation, error)
	EditMessage(ctx context.Context, chatID, messageID, editorID utils.SixID, content string) (*models.Conversation, error)
	DeleteMessage(ctx context.Context, chatID, messageID utils.SixID, actor Actor) (*models.Conversation, error)
	PinMessage(ctx context.Context, chatID, messageID utils.SixID, actor Actor) (*models.Conversation, error)
	UnpinMessage(ctx context.Context, chatID, messageID utils.SixID, actor Actor) (*models.Conversation, error)
	UpdateSettings(ctx context.Context, chatID utils.SixID, actor Actor, patch models.ChatSettingsPatch) (*models.Conversation, error)
	Moderate(ctx context.Context, chatID, adminID utils.SixID, moderated bool, reason string) (*models.Conversation, error)
	Close(ctx context.Context, chatID utils.SixID, actor Actor) (*models.Conversation, error)
	Reopen(ctx context.Context, chatID utils.SixID, actor Actor) (*models.Conversation, error)
	Archive(ctx context.Context, chatID utils.SixID, actor Actor) (*models.Conversation, error)
	SetAttachmentThumbnail(ctx context.Context, chatID, messageID utils.SixID, key, thumbnailURL string) error
	CloseInactive(ctx context.Context, now time.Time) (int, error)
}

// chatService implements IChatService.
type chatService struct {
	db       *mongo.Database
	cfg      *config.Config
	notifier INotifier
}

// NewChatService creates a new ChatService. A nil notifier drops events.
func NewChatService(db *mongo.Database, cfg *config.Config, notifier INotifier) IChatService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &chatService{db: db, cfg: cfg, notifier: notifier}
}

func (s *chatService) coll() *mongo.Collection {
	return s.db.Collection(db.ChatsCollection)
}

func refreshConversation(c *models.Conversation, now time.Time) {
	c.RefreshDerived(now)
}

// update runs apply inside the versioned read-modify-write cycle.
func (s *chatService) update(ctx context.Context, chatID utils.SixID, apply func(*models.Conversation, time.Time) error) (*models.Conversation, error) {
	return mutate(ctx, s.coll(), chatID, apply, refreshConversation)
}

func requireMember(c *models.Conversation, actor Actor) error {
	if actor.IsAdmin || c.HasParticipant(actor.UserID) {
		return nil
	}
	return models.ErrNotParticipant
}

// FindOrCreate returns the live conversation for the participant set and booking, creating it when
// none exists. The unique thread_key index arbitrates concurrent creators.
func (s *chatService) FindOrCreate(ctx context.Context, participants []models.Participant, bookingID *utils.SixID, kind models.ChatKind) (*models.Conversation, bool, error) {
	conv, err := models.NewConversation(participants, bookingID, kind, s.cfg.ChatDefaults(), models.Now())
	if err != nil {
		return nil, false, err
	}
	key := *conv.ThreadKey

	existing, err := s.findByThreadKey(ctx, key)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	var winner *models.Conversation
	err = db.Try(func() error {
		conv.GenID()
		if _, err := db.InsertOne(ctx, s.coll(), conv); err != nil {
			if db.IsMongoDuplicateKeyError(err) {
				if found, ferr := s.findByThreadKey(ctx, key); ferr == nil {
					winner = found
					return nil
				}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create conversation: %w", err)
	}
	if winner != nil {
		return winner, false, nil
	}
	return conv, true, nil
}

func (s *chatService) findByThreadKey(ctx context.Context, key string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.coll().FindOne(ctx, bson.M{"thread_key": key}).Decode(&conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *chatService) FindByID(ctx context.Context, chatID utils.SixID) (*models.Conversation, error) {
	return findDoc[models.Conversation](ctx, s.coll(), chatID)
}

// FindUserChats lists the user's conversations, most recently active first. Message logs are
// not loaded.
func (s *chatService) FindUserChats(ctx context.Context, userID utils.SixID, opts ChatListOptions) ([]models.Conversation, int64, error) {
	if opts.Status == "" {
		opts.Status = models.ChatActive
	}
	if opts.Limit <= 0 {
		opts.Limit = s.cfg.ChatListLimit
	}
	if opts.Limit > maxChatListLimit {
		opts.Limit = maxChatListLimit
	}
	if opts.Skip < 0 {
		opts.Skip = 0
	}

	filter := bson.M{
		"participants.user_id": userID,
		"status":               opts.Status,
	}
	if opts.Kind != "" {
		filter["kind"] = opts.Kind
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "last_message.timestamp", Value: -1}, {Key: "updated_at", Value: -1}}).
		SetSkip(int64(opts.Skip)).
		SetLimit(int64(opts.Limit)).
		SetProjection(bson.M{"messages": 0})

	cursor, err := s.coll().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query chats for user %s: %w", userID, err)
	}
	defer cursor.Close(ctx)

	chats := []models.Conversation{}
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, 0, fmt.Errorf("failed to decode chats for user %s: %w", userID, err)
	}

	total, err := s.coll().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count chats for user %s: %w", userID, err)
	}
	return chats, total, nil
}

func (s *chatService) AddMessage(ctx context.Context, chatID, senderID utils.SixID, content string, opts models.MessageOptions) (*models.Conversation, *models.Message, error) {
	var msgID utils.SixID
	conv, err := s.update(ctx, chatID, func(c *models.Conversation, now time.Time) error {
		m, err := c.AddMessage(senderID, content, opts, now)
		if err != nil {
			return err
		}
		msgID = m.ID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var msg *models.Message
	for i := range conv.Messages {
		if conv.Messages[i].ID == msgID {
			msg = &conv.Messages[i]
			break
		}
	}
	if len(opts.Attachments) > 0 {
		if err := s.notifier.AttachmentsAdded(ctx, chatID, msgID, opts.Attachments); err != nil {
			log.Printf("Failed to enqueue attachment processing for chat %s: %v", chatID, err)
		}
	}
	return conv, msg, nil
}

func (s *chatService) MarkAsRead(ctx context.Context, chatID, userID utils.SixID) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, now time.Time) error {
		return c.MarkAsRead(userID, now)
	})
}

func (s *chatService) EditMessage(ctx context.Context, chatID, messageID, editorID utils.SixID, content string) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, now time.Time) error {
		_, err := c.EditMessage(messageID, editorID, content, now)
		return err
	})
}

func (s *chatService) DeleteMessage(ctx context.Context, chatID, messageID utils.SixID, actor Actor) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, now time.Time) error {
		if err := requireMember(c, actor); err != nil {
			return err
		}
		return c.DeleteMessage(messageID, actor.UserID, actor.IsAdmin, now)
	})
}

func (s *chatService) PinMessage(ctx context.Context, chatID, messageID utils.SixID, actor Actor) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, _ time.Time) error {
		if err := requireMember(c, actor); err != nil {
			return err
		}
		return c.PinMessage(messageID)
	})
}

func (s *chatService) UnpinMessage(ctx context.Context, chatID, messageID utils.SixID, actor Actor) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, _ time.Time) error {
		if err := requireMember(c, actor); err != nil {
			return err
		}
		return c.UnpinMessage(messageID)
	})
}

func (s *chatService) UpdateSettings(ctx context.Context, chatID utils.SixID, actor Actor, patch models.ChatSettingsPatch) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, _ time.Time) error {
		if err := requireMember(c, actor); err != nil {
			return err
		}
		return c.ApplySettings(patch)
	})
}

func (s *chatService) Moderate(ctx context.Context, chatID, adminID utils.SixID, moderated bool, reason string) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, now time.Time) error {
		c.Moderate(adminID, moderated, reason, now)
		return nil
	})
}

func (s *chatService) Close(ctx context.Context, chatID utils.SixID, actor Actor) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, _ time.Time) error {
		if err := requireMember(c, actor); err != nil {
			return err
		}
		return c.Close()
	})
}

func (s *chatService) Reopen(ctx context.Context, chatID utils.SixID, actor Actor) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, now time.Time) error {
		if err := requireMember(c, actor); err != nil {
			return err
		}
		return c.Reopen(now)
	})
}

func (s *chatService) Archive(ctx context.Context, chatID utils.SixID, actor Actor) (*models.Conversation, error) {
	return s.update(ctx, chatID, func(c *models.Conversation, _ time.Time) error {
		if err := requireMember(c, actor); err != nil {
			return err
		}
		c.Archive()
		return nil
	})
}

func (s *chatService) SetAttachmentThumbnail(ctx context.Context, chatID, messageID utils.SixID, key, thumbnailURL string) error {
	_, err := s.update(ctx, chatID, func(c *models.Conversation, _ time.Time) error {
		return c.SetAttachmentThumbnail(messageID, key, thumbnailURL)
	})
	return err
}

// CloseInactive closes active conversations whose scheduled close date has passed.
// It returns the number of conversations closed.
func (s *chatService) CloseInactive(ctx context.Context, now time.Time) (int, error) {
	filter := bson.M{
		"status":               models.ChatActive,
		"scheduled_close_date": bson.M{"$lte": now},
	}
	cursor, err := s.coll().Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, fmt.Errorf("failed to query inactive chats: %w", err)
	}
	var ids []struct {
		ID utils.SixID `bson:"_id"`
	}
	if err := cursor.All(ctx, &ids); err != nil {
		return 0, fmt.Errorf("failed to decode inactive chats: %w", err)
	}

	closed := 0
	for _, row := range ids {
		_, err := s.update(ctx, row.ID, func(c *models.Conversation, _ time.Time) error {
			// A message may have arrived since the query.
			if c.Status != models.ChatActive || c.ScheduledCloseDate == nil || c.ScheduledCloseDate.After(now) {
				return errSkip
			}
			return c.Close()
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			log.Printf("Failed to auto-close chat %s: %v", row.ID, err)
			continue
		}
		closed++
	}
	return closed, nil
}

// errSkip aborts a mutation without writing.
var errSkip = errors.New("skip")
