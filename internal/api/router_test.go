package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/email"
	"fixitnow/chatdesk/internal/utils"
)

func callService(t *testing.T, r http.Handler, body string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func TestServiceRouter_PingAndShutdown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	shutdown := make(chan struct{}, 1)
	r := SetupServiceRouter(&config.Config{RunMode: "api"}, nil, shutdown)

	code, out := callService(t, r, `{"method":"ping"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", out["result"])
	assert.Equal(t, "api", out["mode"])

	code, _ = callService(t, r, `{"method":"shutdown"}`)
	assert.Equal(t, http.StatusOK, code)
	select {
	case <-shutdown:
	default:
		t.Fatal("shutdown was not signalled")
	}

	// A second request must not block on the full channel.
	shutdown <- struct{}{}
	code, _ = callService(t, r, `{"method":"shutdown"}`)
	assert.Equal(t, http.StatusOK, code)

	code, _ = callService(t, r, `{"method":"reboot"}`)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = callService(t, r, `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = callService(t, r, `{"method":"getTestEmail","arguments":["k","a@b.c"]}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestServiceRouter_GetTestEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rdb := utils.SetupTestRedis(t)
	r := SetupServiceRouter(&config.Config{}, rdb, make(chan struct{}, 1))
	ctx := context.Background()

	recipient := "desk-" + utils.NewSixID().String() + "@fixitnow.test"
	msg := email.Message{To: []string{recipient}, Subject: "Dispute escalated", Body: "body", Kind: email.KindDisputeEscalated}
	require.NoError(t, email.NewRedisSender(rdb).Send(ctx, msg.To, msg.Subject, msg.Raw("noreply@fixitnow.test", time.Now())))

	code, out := callService(t, r, `{"method":"getTestEmail","arguments":["`+email.KindDisputeEscalated+`","`+recipient+`"]}`)
	require.Equal(t, http.StatusOK, code, out)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "Dispute escalated", data["subject"])
	assert.Equal(t, email.KindDisputeEscalated, data["kind"])

	// Reading consumes the capture.
	exists, err := rdb.Exists(ctx, email.CaptureKey(recipient, email.KindDisputeEscalated)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	code, _ = callService(t, r, `{"method":"getTestEmail","arguments":["only-one"]}`)
	assert.Equal(t, http.StatusBadRequest, code)
}
