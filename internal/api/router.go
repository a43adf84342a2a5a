package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"fixitnow/chatdesk/internal/api/handlers"
	"fixitnow/chatdesk/internal/api/middleware"
	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/email"
	"fixitnow/chatdesk/internal/services"
	"fixitnow/chatdesk/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, chatService services.IChatService, disputeService services.IDisputeService, storageService storage.IS3Storage) *gin.Engine {
	if err := handlers.RegisterValidators(); err != nil {
		log.Fatalf("CRITICAL: Failed to register request validators: %v", err)
	}

	r := gin.Default()
	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigin))

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg.RateLimitRefillRate, cfg.RateLimitBucketSize)
	chatHandler := handlers.NewChatHandler(cfg, chatService, storageService)
	disputeHandler := handlers.NewDisputeHandler(cfg, disputeService, storageService)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), rateLimiter.Limit())
		{
			chats := authRequired.Group("/chats")
			chats.POST("", chatHandler.FindOrCreate)
			chats.GET("", chatHandler.List)
			chats.GET("/:id", chatHandler.Get)
			chats.POST("/:id/messages", chatHandler.SendMessage)
			chats.PATCH("/:id/messages/:messageId", chatHandler.EditMessage)
			chats.DELETE("/:id/messages/:messageId", chatHandler.DeleteMessage)
			chats.POST("/:id/read", chatHandler.MarkRead)
			chats.POST("/:id/pins/:messageId", chatHandler.Pin)
			chats.DELETE("/:id/pins/:messageId", chatHandler.Unpin)
			chats.PATCH("/:id/settings", chatHandler.UpdateSettings)
			chats.POST("/:id/close", chatHandler.Close)
			chats.POST("/:id/reopen", chatHandler.Reopen)
			chats.POST("/:id/archive", chatHandler.Archive)
			chats.POST("/:id/attachments/upload-url", chatHandler.UploadURL)

			disputes := authRequired.Group("/disputes")
			disputes.POST("", disputeHandler.Create)
			disputes.GET("/mine", disputeHandler.Mine)
			disputes.GET("/:id", disputeHandler.Get)
			disputes.POST("/:id/evidence", disputeHandler.AddEvidence)
			disputes.POST("/:id/evidence/upload-url", disputeHandler.EvidenceUploadURL)
			disputes.POST("/:id/satisfaction", disputeHandler.SubmitSatisfaction)
			disputes.POST("/:id/cancel", disputeHandler.Cancel)
		}

		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
		{
			adminRequired.POST("/chats/:id/moderate", chatHandler.Moderate)

			disputes := adminRequired.Group("/disputes")
			disputes.GET("", disputeHandler.List)
			disputes.GET("/stats", disputeHandler.Stats)
			disputes.PATCH("/:id/status", disputeHandler.UpdateStatus)
			disputes.POST("/:id/communications", disputeHandler.AddCommunication)
			disputes.POST("/:id/notes", disputeHandler.AddNote)
			disputes.POST("/:id/follow-ups", disputeHandler.AddFollowUp)
			disputes.POST("/:id/assign", disputeHandler.Assign)
			disputes.POST("/:id/resolve", disputeHandler.Resolve)
			disputes.POST("/:id/escalate", disputeHandler.Escalate)
			disputes.POST("/:id/cancel", disputeHandler.Cancel)
			disputes.POST("/:id/close", disputeHandler.Close)
		}
	}

	return r
}

// testEmailPollAttempts and testEmailPollInterval bound how long getTestEmail
// waits for a queued message to be delivered.
const (
	testEmailPollAttempts = 10
	testEmailPollInterval = 200 * time.Millisecond
)

// SetupServiceRouter configures the internal service engine. rdb may be nil,
// in which case getTestEmail is unavailable.
func SetupServiceRouter(cfg *config.Config, rdb redis.Cmdable, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "ping":
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "pong", "mode": cfg.RunMode})
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Println("Shutdown channel already signaled.")
			}
		case "getTestEmail":
			getTestEmail(c, rdb, req.Arguments)
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// getTestEmail returns and removes a captured message. Arguments are
// [kind, recipient].
func getTestEmail(c *gin.Context, rdb redis.Cmdable, rawArgs json.RawMessage) {
	if rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Email capture not available"})
		return
	}
	var args []string
	if err := json.Unmarshal(rawArgs, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [kind, email]"})
		return
	}
	key := email.CaptureKey(args[1], args[0])

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var data []byte
	for i := 0; i < testEmailPollAttempts; i++ {
		b, err := rdb.GetDel(ctx, key).Bytes()
		if err == nil {
			data = b
			break
		}
		if !errors.Is(err, redis.Nil) {
			log.Printf("Service API: Error getting key %s from Redis: %v", key, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(testEmailPollInterval)
	}
	if data == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found for key %s", key)})
		return
	}

	var captured email.CapturedEmail
	if err := json.Unmarshal(data, &captured); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": captured})
}
