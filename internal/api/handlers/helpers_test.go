package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"fixitnow/chatdesk/internal/api"
	"fixitnow/chatdesk/internal/auth"
	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

type testEnv struct {
	cfg      *config.Config
	router   *gin.Engine
	chats    *MockChatService
	disputes *MockDisputeService
	store    *MockStorage
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		JwtSecret:           "handler-test-secret",
		CorsAllowedOrigin:   "*",
		ChatListLimit:       20,
		ChatMaxFileSize:     5 * 1024 * 1024,
		RateLimitBucketSize: 1000,
		RateLimitRefillRate: 1000,
	}
	env := &testEnv{
		cfg:      cfg,
		chats:    new(MockChatService),
		disputes: new(MockDisputeService),
		store:    new(MockStorage),
	}
	env.router = api.SetupRouter(cfg, env.chats, env.disputes, env.store)
	return env
}

func (e *testEnv) token(t *testing.T, id utils.SixID, role models.ParticipantRole) string {
	t.Helper()
	tok, err := auth.GenerateJWT(id, role, e.cfg.JwtSecret, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
	return env
}
