package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/db"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

func testConfig() *config.Config {
	return &config.Config{
		ChatAllowFileUploads:   true,
		ChatMaxFileSize:        5242880,
		ChatAutoCloseAfterDays: 30,
		ChatListLimit:          20,
		DisputeDeadline:        168 * time.Hour,
		DisputeEscalationAfter: 72 * time.Hour,
		StatsCacheTTL:          time.Minute,
	}
}

func setupServiceDB(t *testing.T, prefix string) *mongo.Database {
	database := utils.SetupTestDB(t, prefix)
	require.NoError(t, db.EnsureIndexes(context.Background(), database))
	return database
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) DisputeEscalated(ctx context.Context, d *models.Dispute, reason string) error {
	args := m.Called(ctx, d, reason)
	return args.Error(0)
}

func (m *mockNotifier) DisputeResolved(ctx context.Context, d *models.Dispute) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *mockNotifier) AttachmentsAdded(ctx context.Context, chatID, messageID utils.SixID, attachments []models.Attachment) error {
	args := m.Called(ctx, chatID, messageID, attachments)
	return args.Error(0)
}
