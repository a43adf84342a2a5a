package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/services"
	"fixitnow/chatdesk/internal/storage"
	"fixitnow/chatdesk/internal/utils"
)

// DisputeHandler serves the /v1/disputes and /v1/admin/disputes routes.
type DisputeHandler struct {
	cfg            *config.Config
	disputeService services.IDisputeService
	storage        storage.IS3Storage
}

func NewDisputeHandler(cfg *config.Config, disputeService services.IDisputeService, storageService storage.IS3Storage) *DisputeHandler {
	return &DisputeHandler{cfg: cfg, disputeService: disputeService, storage: storageService}
}

// DisputeView adds the derived age fields to a dispute.
type DisputeView struct {
	*models.Dispute
	AgeInDays        int  `json:"ageInDays"`
	TimeToResolution *int `json:"timeToResolution"`
}

func disputeView(d *models.Dispute, actor services.Actor, now time.Time) DisputeView {
	r := d.RedactFor(actor.UserID, actor.IsAdmin)
	return DisputeView{Dispute: r, AgeInDays: r.AgeInDays(now), TimeToResolution: r.TimeToResolution()}
}

func disputeViews(ds []models.Dispute, actor services.Actor) []DisputeView {
	now := models.Now()
	views := make([]DisputeView, 0, len(ds))
	for i := range ds {
		views = append(views, disputeView(&ds[i], actor, now))
	}
	return views
}

type statusRequest struct {
	Status models.DisputeStatus `json:"status" binding:"required"`
}

type resolveRequest struct {
	Decision    models.ResolutionDecision `json:"decision" binding:"required"`
	Explanation string                    `json:"explanation" binding:"required,max=2000"`
	models.ResolveOptions
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
}

type noteRequest struct {
	Note                string `json:"note" binding:"required,max=2000"`
	VisibleToCustomer   bool   `json:"visibleToCustomer"`
	VisibleToTechnician bool   `json:"visibleToTechnician"`
}

type assignRequest struct {
	AdminID *utils.SixID `json:"adminId"`
}

type followUpRequest struct {
	Action     string       `json:"action" binding:"required,max=500"`
	AssignedTo *utils.SixID `json:"assignedTo"`
	DueDate    *time.Time   `json:"dueDate"`
}

type satisfactionRequest struct {
	Rating   int    `json:"rating" binding:"required,min=1,max=5"`
	Feedback string `json:"feedback" binding:"max=1000"`
}

// loadVisible fetches a dispute by SixID or DIS- identifier and checks the
// caller is a party or an admin.
func (h *DisputeHandler) loadVisible(c *gin.Context, actor services.Actor) (*models.Dispute, bool) {
	raw := c.Param("id")
	var (
		d   *models.Dispute
		err error
	)
	if strings.HasPrefix(raw, "DIS-") {
		d, err = h.disputeService.FindByDisputeID(c.Request.Context(), raw)
	} else {
		id, ok := idParam(c, "id")
		if !ok {
			return nil, false
		}
		d, err = h.disputeService.FindByID(c.Request.Context(), id)
	}
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !actor.IsAdmin && !d.IsParty(actor.UserID) {
		respondError(c, models.ErrForbidden)
		return nil, false
	}
	return d, true
}

// Create handles POST /v1/disputes.
func (h *DisputeHandler) Create(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	var in models.NewDisputeInput
	if !bindJSON(c, &in) {
		return
	}
	in.InitiatedBy = actor.UserID

	d, err := h.disputeService.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, gin.H{"dispute": disputeView(d, actor, models.Now())})
}

// Get handles GET /v1/disputes/:id.
func (h *DisputeHandler) Get(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	d, ok := h.loadVisible(c, actor)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, gin.H{"dispute": disputeView(d, actor, models.Now())})
}

// Mine handles GET /v1/disputes/mine.
func (h *DisputeHandler) Mine(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	page, limit, ok := paging(c, h.cfg.ChatListLimit)
	if !ok {
		return
	}
	ds, total, err := h.disputeService.FindForUser(c.Request.Context(), actor.UserID, models.ListOptions{
		Limit: limit,
		Skip:  (page - 1) * limit,
		Sort:  c.Query("sort"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"disputes": disputeViews(ds, actor), "pagination": models.NewPagination(page, limit, total)})
}

// AddEvidence handles POST /v1/disputes/:id/evidence.
func (h *DisputeHandler) AddEvidence(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var ev models.Evidence
	if !bindJSON(c, &ev) {
		return
	}
	d, err := h.disputeService.AddEvidence(c.Request.Context(), id, actor, ev)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"dispute": disputeView(d, actor, models.Now())})
}

// EvidenceUploadURL handles POST /v1/disputes/:id/evidence/upload-url.
func (h *DisputeHandler) EvidenceUploadURL(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	d, ok := h.loadVisible(c, actor)
	if !ok {
		return
	}
	if d.Status.Terminal() {
		respondError(c, models.ErrInvalidTransition)
		return
	}
	var req uploadURLRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Size > h.cfg.ChatMaxFileSize {
		respondFail(c, http.StatusBadRequest, "File too large")
		return
	}
	upload, err := h.storage.PresignUpload(c.Request.Context(), storage.PrefixDisputes, d.ID.String(), req.Filename, req.ContentType, req.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, upload)
}

// SubmitSatisfaction handles POST /v1/disputes/:id/satisfaction.
func (h *DisputeHandler) SubmitSatisfaction(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req satisfactionRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.disputeService.SubmitSatisfaction(c.Request.Context(), id, actor.UserID, req.Rating, req.Feedback)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"dispute": disputeView(d, actor, models.Now())})
}

// --- Admin ---

// List handles GET /v1/admin/disputes.
func (h *DisputeHandler) List(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	page, limit, ok := paging(c, h.cfg.ChatListLimit)
	if !ok {
		return
	}
	ds, total, err := h.disputeService.FindByStatus(c.Request.Context(), models.DisputeStatus(c.Query("status")), models.ListOptions{
		Limit: limit,
		Skip:  (page - 1) * limit,
		Sort:  c.Query("sort"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"disputes": disputeViews(ds, actor), "pagination": models.NewPagination(page, limit, total)})
}

// disputeAction binds req and runs op on the dispute named by :id. An empty
// body is accepted only when bodyOptional is set.
func disputeAction[R any](bodyOptional bool, op func(c *gin.Context, id utils.SixID, actor services.Actor, req *R) (*models.Dispute, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			return
		}
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var req R
		if !(bodyOptional && c.Request.ContentLength == 0) && !bindJSON(c, &req) {
			return
		}
		d, err := op(c, id, actor, &req)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, http.StatusOK, gin.H{"dispute": disputeView(d, actor, models.Now())})
	}
}

// UpdateStatus handles PATCH /v1/admin/disputes/:id/status.
func (h *DisputeHandler) UpdateStatus(c *gin.Context) {
	disputeAction(false, func(c *gin.Context, id utils.SixID, _ services.Actor, req *statusRequest) (*models.Dispute, error) {
		return h.disputeService.UpdateStatus(c.Request.Context(), id, req.Status)
	})(c)
}

// AddCommunication handles POST /v1/admin/disputes/:id/communications.
func (h *DisputeHandler) AddCommunication(c *gin.Context) {
	disputeAction(false, func(c *gin.Context, id utils.SixID, _ services.Actor, req *services.CommunicationInput) (*models.Dispute, error) {
		return h.disputeService.AddCommunication(c.Request.Context(), id, *req)
	})(c)
}

// AddNote handles POST /v1/admin/disputes/:id/notes.
func (h *DisputeHandler) AddNote(c *gin.Context) {
	disputeAction(false, func(c *gin.Context, id utils.SixID, actor services.Actor, req *noteRequest) (*models.Dispute, error) {
		return h.disputeService.AddInternalNote(c.Request.Context(), id, actor.UserID, req.Note, req.VisibleToCustomer, req.VisibleToTechnician)
	})(c)
}

// AddFollowUp handles POST /v1/admin/disputes/:id/follow-ups.
func (h *DisputeHandler) AddFollowUp(c *gin.Context) {
	disputeAction(false, func(c *gin.Context, id utils.SixID, _ services.Actor, req *followUpRequest) (*models.Dispute, error) {
		return h.disputeService.AddFollowUpAction(c.Request.Context(), id, req.Action, req.AssignedTo, req.DueDate)
	})(c)
}

// Assign handles POST /v1/admin/disputes/:id/assign. Without a body the
// dispute is assigned to the caller.
func (h *DisputeHandler) Assign(c *gin.Context) {
	disputeAction(true, func(c *gin.Context, id utils.SixID, actor services.Actor, req *assignRequest) (*models.Dispute, error) {
		adminID := actor.UserID
		if req.AdminID != nil && !req.AdminID.IsZero() {
			adminID = *req.AdminID
		}
		return h.disputeService.Assign(c.Request.Context(), id, adminID)
	})(c)
}

// Resolve handles POST /v1/admin/disputes/:id/resolve.
func (h *DisputeHandler) Resolve(c *gin.Context) {
	disputeAction(false, func(c *gin.Context, id utils.SixID, actor services.Actor, req *resolveRequest) (*models.Dispute, error) {
		return h.disputeService.Resolve(c.Request.Context(), id, req.Decision, req.Explanation, actor.UserID, req.ResolveOptions)
	})(c)
}

// Escalate handles POST /v1/admin/disputes/:id/escalate.
func (h *DisputeHandler) Escalate(c *gin.Context) {
	disputeAction(false, func(c *gin.Context, id utils.SixID, actor services.Actor, req *reasonRequest) (*models.Dispute, error) {
		return h.disputeService.Escalate(c.Request.Context(), id, req.Reason, actor.UserID)
	})(c)
}

// Cancel handles POST /v1/admin/disputes/:id/cancel and /v1/disputes/:id/cancel.
func (h *DisputeHandler) Cancel(c *gin.Context) {
	disputeAction(false, func(c *gin.Context, id utils.SixID, actor services.Actor, req *reasonRequest) (*models.Dispute, error) {
		return h.disputeService.Cancel(c.Request.Context(), id, actor, req.Reason)
	})(c)
}

// Close handles POST /v1/admin/disputes/:id/close.
func (h *DisputeHandler) Close(c *gin.Context) {
	disputeAction(true, func(c *gin.Context, id utils.SixID, _ services.Actor, _ *struct{}) (*models.Dispute, error) {
		return h.disputeService.Close(c.Request.Context(), id)
	})(c)
}

// Stats handles GET /v1/admin/disputes/stats.
func (h *DisputeHandler) Stats(c *gin.Context) {
	start, ok := timeQuery(c, "start")
	if !ok {
		return
	}
	end, ok := timeQuery(c, "end")
	if !ok {
		return
	}
	stats, err := h.disputeService.GetDisputeStats(c.Request.Context(), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"stats": stats})
}
