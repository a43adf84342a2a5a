package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/services"
	"fixitnow/chatdesk/internal/storage"
	"fixitnow/chatdesk/internal/utils"
)

// --- Mocks ---

func convResult(args mock.Arguments) (*models.Conversation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func disputeResult(args mock.Arguments) (*models.Dispute, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

// MockChatService implements services.IChatService
type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) FindOrCreate(ctx context.Context, participants []models.Participant, bookingID *utils.SixID, kind models.ChatKind) (*models.Conversation, bool, error) {
	args := m.Called(ctx, participants, bookingID, kind)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.Conversation), args.Bool(1), args.Error(2)
}
func (m *MockChatService) FindByID(ctx context.Context, chatID utils.SixID) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID))
}
func (m *MockChatService) FindUserChats(ctx context.Context, userID utils.SixID, opts services.ChatListOptions) ([]models.Conversation, int64, error) {
	args := m.Called(ctx, userID, opts)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Conversation), args.Get(1).(int64), args.Error(2)
}
func (m *MockChatService) AddMessage(ctx context.Context, chatID, senderID utils.SixID, content string, opts models.MessageOptions) (*models.Conversation, *models.Message, error) {
	args := m.Called(ctx, chatID, senderID, content, opts)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Conversation), args.Get(1).(*models.Message), args.Error(2)
}
func (m *MockChatService) MarkAsRead(ctx context.Context, chatID, userID utils.SixID) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, userID))
}
func (m *MockChatService) EditMessage(ctx context.Context, chatID, messageID, editorID utils.SixID, content string) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, messageID, editorID, content))
}
func (m *MockChatService) DeleteMessage(ctx context.Context, chatID, messageID utils.SixID, actor services.Actor) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, messageID, actor))
}
func (m *MockChatService) PinMessage(ctx context.Context, chatID, messageID utils.SixID, actor services.Actor) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, messageID, actor))
}
func (m *MockChatService) UnpinMessage(ctx context.Context, chatID, messageID utils.SixID, actor services.Actor) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, messageID, actor))
}
func (m *MockChatService) UpdateSettings(ctx context.Context, chatID utils.SixID, actor services.Actor, patch models.ChatSettingsPatch) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, actor, patch))
}
func (m *MockChatService) Moderate(ctx context.Context, chatID, adminID utils.SixID, moderated bool, reason string) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, adminID, moderated, reason))
}
func (m *MockChatService) Close(ctx context.Context, chatID utils.SixID, actor services.Actor) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, actor))
}
func (m *MockChatService) Reopen(ctx context.Context, chatID utils.SixID, actor services.Actor) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, actor))
}
func (m *MockChatService) Archive(ctx context.Context, chatID utils.SixID, actor services.Actor) (*models.Conversation, error) {
	return convResult(m.Called(ctx, chatID, actor))
}
func (m *MockChatService) SetAttachmentThumbnail(ctx context.Context, chatID, messageID utils.SixID, key, thumbnailURL string) error {
	return m.Called(ctx, chatID, messageID, key, thumbnailURL).Error(0)
}
func (m *MockChatService) CloseInactive(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

// MockDisputeService implements services.IDisputeService
type MockDisputeService struct {
	mock.Mock
}

func (m *MockDisputeService) Create(ctx context.Context, in models.NewDisputeInput) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, in))
}
func (m *MockDisputeService) FindByID(ctx context.Context, id utils.SixID) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id))
}
func (m *MockDisputeService) FindByDisputeID(ctx context.Context, disputeID string) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, disputeID))
}
func (m *MockDisputeService) FindByStatus(ctx context.Context, status models.DisputeStatus, opts models.ListOptions) ([]models.Dispute, int64, error) {
	args := m.Called(ctx, status, opts)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Dispute), args.Get(1).(int64), args.Error(2)
}
func (m *MockDisputeService) FindByBooking(ctx context.Context, bookingID utils.SixID) ([]models.Dispute, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Dispute), args.Error(1)
}
func (m *MockDisputeService) FindForUser(ctx context.Context, userID utils.SixID, opts models.ListOptions) ([]models.Dispute, int64, error) {
	args := m.Called(ctx, userID, opts)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]models.Dispute), args.Get(1).(int64), args.Error(2)
}
func (m *MockDisputeService) UpdateStatus(ctx context.Context, id utils.SixID, status models.DisputeStatus) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, status))
}
func (m *MockDisputeService) AddCommunication(ctx context.Context, id utils.SixID, in services.CommunicationInput) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, in))
}
func (m *MockDisputeService) Resolve(ctx context.Context, id utils.SixID, decision models.ResolutionDecision, explanation string, resolvedBy utils.SixID, opts models.ResolveOptions) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, decision, explanation, resolvedBy, opts))
}
func (m *MockDisputeService) Escalate(ctx context.Context, id utils.SixID, reason string, escalatedBy utils.SixID) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, reason, escalatedBy))
}
func (m *MockDisputeService) AddEvidence(ctx context.Context, id utils.SixID, actor services.Actor, ev models.Evidence) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, actor, ev))
}
func (m *MockDisputeService) AddInternalNote(ctx context.Context, id, adminID utils.SixID, note string, visibleToCustomer, visibleToTechnician bool) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, adminID, note, visibleToCustomer, visibleToTechnician))
}
func (m *MockDisputeService) AddFollowUpAction(ctx context.Context, id utils.SixID, action string, assignedTo *utils.SixID, dueDate *time.Time) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, action, assignedTo, dueDate))
}
func (m *MockDisputeService) Assign(ctx context.Context, id, adminID utils.SixID) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, adminID))
}
func (m *MockDisputeService) SubmitSatisfaction(ctx context.Context, id, userID utils.SixID, rating int, feedback string) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, userID, rating, feedback))
}
func (m *MockDisputeService) Cancel(ctx context.Context, id utils.SixID, actor services.Actor, reason string) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id, actor, reason))
}
func (m *MockDisputeService) Close(ctx context.Context, id utils.SixID) (*models.Dispute, error) {
	return disputeResult(m.Called(ctx, id))
}
func (m *MockDisputeService) EscalateOverdue(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}
func (m *MockDisputeService) GetDisputeStats(ctx context.Context, start, end *time.Time) (*models.DisputeStats, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DisputeStats), args.Error(1)
}

// MockStorage implements storage.IS3Storage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) PresignUpload(ctx context.Context, prefix, ownerID, filename, contentType string, size int64) (*storage.PresignedUpload, error) {
	args := m.Called(ctx, prefix, ownerID, filename, contentType, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PresignedUpload), args.Error(1)
}
func (m *MockStorage) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	args := m.Called(ctx, key)
	data, _ := args.Get(0).([]byte)
	return data, args.String(1), args.Error(2)
}
func (m *MockStorage) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	return m.Called(ctx, key, body, contentType).Error(0)
}
func (m *MockStorage) PublicURL(key string) string {
	return storage.JoinURL("https://cdn.example.com", key)
}

var (
	_ services.IChatService    = (*MockChatService)(nil)
	_ services.IDisputeService = (*MockDisputeService)(nil)
	_ storage.IS3Storage       = (*MockStorage)(nil)
)
