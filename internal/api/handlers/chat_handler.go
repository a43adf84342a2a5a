package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fixitnow/chatdesk/internal/api/middleware"
	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/services"
	"fixitnow/chatdesk/internal/storage"
	"fixitnow/chatdesk/internal/utils"
)

// ChatHandler serves the /v1/chats routes.
type ChatHandler struct {
	cfg         *config.Config
	chatService services.IChatService
	storage     storage.IS3Storage
}

func NewChatHandler(cfg *config.Config, chatService services.IChatService, storageService storage.IS3Storage) *ChatHandler {
	return &ChatHandler{cfg: cfg, chatService: chatService, storage: storageService}
}

// ChatView adds the caller-specific counters to a conversation.
type ChatView struct {
	*models.Conversation
	ParticipantCount int `json:"participantCount"`
	UnreadCount      int `json:"unreadCount"`
}

func chatView(c *models.Conversation, viewer utils.SixID) ChatView {
	return ChatView{Conversation: c, ParticipantCount: c.ParticipantCount(), UnreadCount: c.UnreadCountFor(viewer)}
}

type participantRequest struct {
	UserID utils.SixID            `json:"userId" binding:"required,sixid"`
	Role   models.ParticipantRole `json:"role" binding:"required"`
}

type createChatRequest struct {
	Participants []participantRequest `json:"participants" binding:"required,min=2,dive"`
	BookingID    *utils.SixID         `json:"bookingId"`
	Kind         models.ChatKind      `json:"kind"`
}

type sendMessageRequest struct {
	Content     string              `json:"content" binding:"required"`
	Kind        models.MessageKind  `json:"kind"`
	Attachments []models.Attachment `json:"attachments" binding:"max=10"`
	Location    *models.Location    `json:"location"`
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type moderateRequest struct {
	Moderated *bool  `json:"moderated" binding:"required"`
	Reason    string `json:"reason" binding:"max=500"`
}

type uploadURLRequest struct {
	Filename    string `json:"filename" binding:"required,max=255"`
	ContentType string `json:"contentType" binding:"required"`
	Size        int64  `json:"size" binding:"required,gt=0"`
}

// loadMember fetches the chat and checks the caller may see it.
func (h *ChatHandler) loadMember(c *gin.Context, actor services.Actor) (*models.Conversation, bool) {
	chatID, ok := idParam(c, "id")
	if !ok {
		return nil, false
	}
	conv, err := h.chatService.FindByID(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !actor.IsAdmin && !conv.HasParticipant(actor.UserID) {
		respondError(c, models.ErrNotParticipant)
		return nil, false
	}
	return conv, true
}

// FindOrCreate handles POST /v1/chats.
func (h *ChatHandler) FindOrCreate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var req createChatRequest
	if !bindJSON(c, &req) {
		return
	}

	// The caller's own role always comes from the token.
	callerRole := middleware.CurrentRole(c)
	member := false
	participants := make([]models.Participant, 0, len(req.Participants))
	for _, p := range req.Participants {
		role := p.Role
		if p.UserID == actor.UserID {
			member = true
			role = callerRole
		}
		if role == models.RoleAdmin && !actor.IsAdmin {
			respondFail(c, http.StatusForbidden, "Only administrators may add admin participants")
			return
		}
		participants = append(participants, models.Participant{UserID: p.UserID, Role: role})
	}
	if !actor.IsAdmin && !member {
		respondFail(c, http.StatusForbidden, "Caller must be a participant")
		return
	}

	conv, created, err := h.chatService.FindOrCreate(c.Request.Context(), participants, req.BookingID, req.Kind)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondOK(c, status, gin.H{"chat": chatView(conv, actor.UserID), "created": created})
}

// List handles GET /v1/chats.
func (h *ChatHandler) List(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	page, limit, ok := paging(c, h.cfg.ChatListLimit)
	if !ok {
		return
	}
	kind := models.ChatKind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		respondFail(c, http.StatusBadRequest, "Invalid kind")
		return
	}
	status := models.ChatStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		respondFail(c, http.StatusBadRequest, "Invalid status")
		return
	}

	chats, total, err := h.chatService.FindUserChats(c.Request.Context(), actor.UserID, services.ChatListOptions{
		Kind:   kind,
		Status: status,
		Limit:  limit,
		Skip:   (page - 1) * limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	views := make([]ChatView, 0, len(chats))
	for i := range chats {
		views = append(views, chatView(&chats[i], actor.UserID))
	}
	respondOK(c, http.StatusOK, gin.H{"chats": views, "pagination": models.NewPagination(page, limit, total)})
}

// Get handles GET /v1/chats/:id.
func (h *ChatHandler) Get(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	conv, ok := h.loadMember(c, actor)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, gin.H{"chat": chatView(conv, actor.UserID)})
}

// SendMessage handles POST /v1/chats/:id/messages.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	chatID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	// Stored attachments must come from this chat's upload prefix.
	prefix := fmt.Sprintf("%s/%s/", storage.PrefixChats, chatID)
	for _, a := range req.Attachments {
		if !a.Kind.Valid() {
			respondFail(c, http.StatusBadRequest, "Invalid attachment kind")
			return
		}
		if a.Key != "" && !strings.HasPrefix(a.Key, prefix) {
			respondFail(c, http.StatusBadRequest, "Attachment key does not belong to this chat")
			return
		}
	}

	conv, msg, err := h.chatService.AddMessage(c.Request.Context(), chatID, actor.UserID, req.Content, models.MessageOptions{
		Kind:          req.Kind,
		Attachments:   req.Attachments,
		Location:      req.Location,
		SenderIsAdmin: actor.IsAdmin,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"message": msg, "chat": chatView(conv, actor.UserID)})
}

// MarkRead handles POST /v1/chats/:id/read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	chatID, ok := idParam(c, "id")
	if !ok {
		return
	}
	conv, err := h.chatService.MarkAsRead(c.Request.Context(), chatID, actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"chat": chatView(conv, actor.UserID)})
}

// EditMessage handles PATCH /v1/chats/:id/messages/:messageId.
func (h *ChatHandler) EditMessage(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	chatID, ok := idParam(c, "id")
	if !ok {
		return
	}
	messageID, ok := idParam(c, "messageId")
	if !ok {
		return
	}
	var req editMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	conv, err := h.chatService.EditMessage(c.Request.Context(), chatID, messageID, actor.UserID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"chat": chatView(conv, actor.UserID)})
}

// messageAction runs an actor-scoped operation on /v1/chats/:id/.../:messageId.
func (h *ChatHandler) messageAction(op func(*gin.Context, utils.SixID, utils.SixID, services.Actor) (*models.Conversation, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		chatID, ok := idParam(c, "id")
		if !ok {
			return
		}
		messageID, ok := idParam(c, "messageId")
		if !ok {
			return
		}
		conv, err := op(c, chatID, messageID, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, gin.H{"chat": chatView(conv, actor.UserID)})
	}
}

// DeleteMessage handles DELETE /v1/chats/:id/messages/:messageId.
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	h.messageAction(func(c *gin.Context, chatID, messageID utils.SixID, actor services.Actor) (*models.Conversation, error) {
		return h.chatService.DeleteMessage(c.Request.Context(), chatID, messageID, actor)
	})(c)
}

// Pin handles POST /v1/chats/:id/pins/:messageId.
func (h *ChatHandler) Pin(c *gin.Context) {
	h.messageAction(func(c *gin.Context, chatID, messageID utils.SixID, actor services.Actor) (*models.Conversation, error) {
		return h.chatService.PinMessage(c.Request.Context(), chatID, messageID, actor)
	})(c)
}

// Unpin handles DELETE /v1/chats/:id/pins/:messageId.
func (h *ChatHandler) Unpin(c *gin.Context) {
	h.messageAction(func(c *gin.Context, chatID, messageID utils.SixID, actor services.Actor) (*models.Conversation, error) {
		return h.chatService.UnpinMessage(c.Request.Context(), chatID, messageID, actor)
	})(c)
}

// UpdateSettings handles PATCH /v1/chats/:id/settings.
func (h *ChatHandler) UpdateSettings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	chatID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var patch models.ChatSettingsPatch
	if !bindJSON(c, &patch) {
		return
	}
	conv, err := h.chatService.UpdateSettings(c.Request.Context(), chatID, actor, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"chat": chatView(conv, actor.UserID)})
}

// lifecycle wraps close, reopen and archive.
func (h *ChatHandler) lifecycle(op func(c *gin.Context, chatID utils.SixID, actor services.Actor) (*models.Conversation, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		chatID, ok := idParam(c, "id")
		if !ok {
			return
		}
		conv, err := op(c, chatID, actor)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, gin.H{"chat": chatView(conv, actor.UserID)})
	}
}

// Close handles POST /v1/chats/:id/close.
func (h *ChatHandler) Close(c *gin.Context) {
	h.lifecycle(func(c *gin.Context, chatID utils.SixID, actor services.Actor) (*models.Conversation, error) {
		return h.chatService.Close(c.Request.Context(), chatID, actor)
	})(c)
}

// Reopen handles POST /v1/chats/:id/reopen.
func (h *ChatHandler) Reopen(c *gin.Context) {
	h.lifecycle(func(c *gin.Context, chatID utils.SixID, actor services.Actor) (*models.Conversation, error) {
		return h.chatService.Reopen(c.Request.Context(), chatID, actor)
	})(c)
}

// Archive handles POST /v1/chats/:id/archive.
func (h *ChatHandler) Archive(c *gin.Context) {
	h.lifecycle(func(c *gin.Context, chatID utils.SixID, actor services.Actor) (*models.Conversation, error) {
		return h.chatService.Archive(c.Request.Context(), chatID, actor)
	})(c)
}

// Moderate handles POST /v1/admin/chats/:id/moderate.
func (h *ChatHandler) Moderate(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	chatID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req moderateRequest
	if !bindJSON(c, &req) {
		return
	}
	conv, err := h.chatService.Moderate(c.Request.Context(), chatID, actor.UserID, *req.Moderated, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"chat": chatView(conv, actor.UserID)})
}

// UploadURL handles POST /v1/chats/:id/attachments/upload-url.
func (h *ChatHandler) UploadURL(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	conv, ok := h.loadMember(c, actor)
	if !ok {
		return
	}
	var req uploadURLRequest
	if !bindJSON(c, &req) {
		return
	}
	if !conv.Settings.AllowFileUploads {
		respondFail(c, http.StatusBadRequest, "File uploads are disabled for this chat")
		return
	}
	if conv.Settings.MaxFileSize > 0 && req.Size > conv.Settings.MaxFileSize {
		respondFail(c, http.StatusBadRequest, fmt.Sprintf("File exceeds %d bytes", conv.Settings.MaxFileSize))
		return
	}

	upload, err := h.storage.PresignUpload(c.Request.Context(), storage.PrefixChats, conv.ID.String(), req.Filename, req.ContentType, req.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, upload)
}
