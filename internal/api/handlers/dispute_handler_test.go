package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/services"
	"fixitnow/chatdesk/internal/storage"
	"fixitnow/chatdesk/internal/utils"
)

func newDisputeInput(customer, tech utils.SixID) models.NewDisputeInput {
	return models.NewDisputeInput{
		BookingID:    utils.NewSixID(),
		CustomerID:   customer,
		TechnicianID: tech,
		Category:     models.CategoryNoShow,
		Title:        "Technician never arrived",
		Description:  "Waited all afternoon.",
		RequestedResolution: models.RequestedResolution{
			Kind:        models.RequestFullRefund,
			Description: "Refund the call-out fee",
		},
	}
}

func newDispute(t *testing.T, customer, tech utils.SixID) *models.Dispute {
	t.Helper()
	in := newDisputeInput(customer, tech)
	in.InitiatedBy = customer
	d, err := models.NewDispute(in, models.DisputeTimings{Deadline: 7 * 24 * time.Hour, EscalationAfter: 72 * time.Hour}, models.Now())
	require.NoError(t, err)
	d.DisputeID, err = models.NewDisputeID(models.Now())
	require.NoError(t, err)
	return d
}

func TestCreateDispute(t *testing.T) {
	env := newTestEnv(t)
	customer, tech := utils.NewSixID(), utils.NewSixID()
	in := newDisputeInput(customer, tech)
	d := newDispute(t, customer, tech)

	env.disputes.On("Create", mock.Anything, mock.MatchedBy(func(got models.NewDisputeInput) bool {
		return got.InitiatedBy == customer && got.BookingID == in.BookingID && got.Category == models.CategoryNoShow
	})).Return(d, nil).Once()

	w := env.do(t, http.MethodPost, "/v1/disputes", in, env.token(t, customer, models.RoleCustomer))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var data struct {
		Dispute struct {
			DisputeID string `json:"disputeId"`
			AgeInDays int    `json:"ageInDays"`
		} `json:"dispute"`
	}
	decode(t, w, &data)
	assert.Equal(t, d.DisputeID, data.Dispute.DisputeID)
	assert.Equal(t, 0, data.Dispute.AgeInDays)
	env.disputes.AssertExpectations(t)
}

func TestCreateDispute_Validation(t *testing.T) {
	env := newTestEnv(t)
	customer, tech := utils.NewSixID(), utils.NewSixID()
	tok := env.token(t, customer, models.RoleCustomer)

	noTitle := newDisputeInput(customer, tech)
	noTitle.Title = ""
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/disputes", noTitle, tok).Code)

	noBooking := newDisputeInput(customer, tech)
	noBooking.BookingID = utils.SixID{}
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/disputes", noBooking, tok).Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/disputes", "{not json", tok).Code)

	badCategory := newDisputeInput(customer, tech)
	badCategory.Category = "weather"
	env.disputes.On("Create", mock.Anything, mock.Anything).Return(nil, models.ErrValidation).Once()
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/disputes", badCategory, tok).Code)
	env.disputes.AssertNumberOfCalls(t, "Create", 1)
}

func TestGetDispute_VisibilityAndRedaction(t *testing.T) {
	env := newTestEnv(t)
	customer, tech, stranger, admin := utils.NewSixID(), utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	d := newDispute(t, customer, tech)
	d.InternalNotes = []models.InternalNote{
		{Note: "for everyone", AddedBy: admin, VisibleToCustomer: true, VisibleToTechnician: true},
		{Note: "admins only", AddedBy: admin},
	}
	env.disputes.On("FindByDisputeID", mock.Anything, d.DisputeID).Return(d, nil)
	env.disputes.On("FindByID", mock.Anything, d.ID).Return(d, nil)

	type notesView struct {
		Dispute struct {
			InternalNotes []models.InternalNote `json:"internalNotes"`
		} `json:"dispute"`
	}

	w := env.do(t, http.MethodGet, "/v1/disputes/"+d.DisputeID, nil, env.token(t, customer, models.RoleCustomer))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var party notesView
	decode(t, w, &party)
	require.Len(t, party.Dispute.InternalNotes, 1)
	assert.Equal(t, "for everyone", party.Dispute.InternalNotes[0].Note)

	w = env.do(t, http.MethodGet, "/v1/disputes/"+d.ID.String(), nil, env.token(t, admin, models.RoleAdmin))
	require.Equal(t, http.StatusOK, w.Code)
	var full notesView
	decode(t, w, &full)
	assert.Len(t, full.Dispute.InternalNotes, 2)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/v1/disputes/"+d.ID.String(), nil, env.token(t, stranger, models.RoleTechnician)).Code)
	assert.Len(t, d.InternalNotes, 2, "stored dispute must not be redacted in place")
}

func TestMyDisputes(t *testing.T) {
	env := newTestEnv(t)
	customer, tech := utils.NewSixID(), utils.NewSixID()
	d := newDispute(t, customer, tech)
	env.disputes.On("FindForUser", mock.Anything, tech, models.ListOptions{Limit: 20, Skip: 0, Sort: "priority"}).
		Return([]models.Dispute{*d}, int64(1), nil).Once()

	w := env.do(t, http.MethodGet, "/v1/disputes/mine?sort=priority", nil, env.token(t, tech, models.RoleTechnician))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Disputes   []map[string]interface{} `json:"disputes"`
		Pagination models.Pagination        `json:"pagination"`
	}
	decode(t, w, &data)
	assert.Len(t, data.Disputes, 1)
	assert.Equal(t, int64(1), data.Pagination.Total)
	env.disputes.AssertExpectations(t)
}

func TestResolveDispute(t *testing.T) {
	env := newTestEnv(t)
	customer, tech, admin := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	d := newDispute(t, customer, tech)
	path := "/v1/admin/disputes/" + d.ID.String() + "/resolve"
	refund := 40.0
	body := map[string]interface{}{"decision": "partial_refund", "explanation": "Half the job was done", "refundAmount": refund}

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, path, body, env.token(t, customer, models.RoleCustomer)).Code)

	tok := env.token(t, admin, models.RoleAdmin)
	opts := models.ResolveOptions{RefundAmount: &refund}
	env.disputes.On("Resolve", mock.Anything, d.ID, models.DecisionPartialRefund, "Half the job was done", admin, opts).Return(d, nil).Once()
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, path, body, tok).Code)

	env.disputes.On("Resolve", mock.Anything, d.ID, models.DecisionPartialRefund, "Half the job was done", admin, opts).Return(nil, models.ErrAlreadyResolved).Once()
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, path, body, tok).Code)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, path, map[string]string{"decision": "customer_favor"}, tok).Code)
	env.disputes.AssertExpectations(t)
}

func TestAdminDisputeActions(t *testing.T) {
	env := newTestEnv(t)
	customer, tech, admin, other := utils.NewSixID(), utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
	d := newDispute(t, customer, tech)
	base := "/v1/admin/disputes/" + d.ID.String()
	tok := env.token(t, admin, models.RoleAdmin)

	env.disputes.On("Assign", mock.Anything, d.ID, admin).Return(d, nil).Once()
	env.disputes.On("Assign", mock.Anything, d.ID, other).Return(d, nil).Once()
	env.disputes.On("UpdateStatus", mock.Anything, d.ID, models.DisputeInvestigating).Return(d, nil).Once()
	env.disputes.On("UpdateStatus", mock.Anything, d.ID, models.DisputeResolved).Return(nil, models.ErrInvalidTransition).Once()
	env.disputes.On("Escalate", mock.Anything, d.ID, "No response", admin).Return(d, nil).Once()
	env.disputes.On("AddInternalNote", mock.Anything, d.ID, admin, "called the customer", true, false).Return(d, nil).Once()
	env.disputes.On("Close", mock.Anything, d.ID).Return(d, nil).Once()
	env.disputes.On("Cancel", mock.Anything, d.ID, services.Actor{UserID: admin, IsAdmin: true}, "duplicate").Return(d, nil).Once()

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/assign", nil, tok).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/assign", map[string]string{"adminId": other.String()}, tok).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPatch, base+"/status", map[string]string{"status": "investigating"}, tok).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPatch, base+"/status", map[string]string{"status": "resolved"}, tok).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPatch, base+"/status", nil, tok).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/escalate", map[string]string{"reason": "No response"}, tok).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/notes", map[string]interface{}{"note": "called the customer", "visibleToCustomer": true}, tok).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/close", nil, tok).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/cancel", map[string]string{"reason": "duplicate"}, tok).Code)
	env.disputes.AssertExpectations(t)
}

func TestDisputeStats(t *testing.T) {
	env := newTestEnv(t)
	admin := utils.NewSixID()
	tok := env.token(t, admin, models.RoleAdmin)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	stats := &models.DisputeStats{TotalDisputes: 3, OpenDisputes: 1, ResolvedDisputes: 2}
	env.disputes.On("GetDisputeStats", mock.Anything, &start, (*time.Time)(nil)).Return(stats, nil).Once()

	w := env.do(t, http.MethodGet, "/v1/admin/disputes/stats?start=2024-01-01", nil, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Stats models.DisputeStats `json:"stats"`
	}
	decode(t, w, &data)
	assert.Equal(t, 3, data.Stats.TotalDisputes)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/v1/admin/disputes/stats?end=yesterday", nil, tok).Code)
	env.disputes.AssertExpectations(t)
}

func TestSatisfactionAndEvidence(t *testing.T) {
	env := newTestEnv(t)
	customer, tech := utils.NewSixID(), utils.NewSixID()
	d := newDispute(t, customer, tech)
	tok := env.token(t, customer, models.RoleCustomer)
	base := "/v1/disputes/" + d.ID.String()

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, base+"/satisfaction", map[string]int{"rating": 6}, tok).Code)
	env.disputes.On("SubmitSatisfaction", mock.Anything, d.ID, customer, 5, "fair").Return(d, nil).Once()
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/satisfaction", map[string]interface{}{"rating": 5, "feedback": "fair"}, tok).Code)

	ev := map[string]string{"kind": string(models.EvidencePhoto), "url": "https://cdn.example.com/disputes/x.jpg"}
	env.disputes.On("AddEvidence", mock.Anything, d.ID, services.Actor{UserID: customer}, mock.MatchedBy(func(e models.Evidence) bool {
		return e.Kind == models.EvidencePhoto && e.URL == ev["url"]
	})).Return(d, nil).Once()
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/evidence", ev, tok).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, base+"/evidence", map[string]string{"kind": "photo", "url": "not a url"}, tok).Code)
	env.disputes.AssertExpectations(t)
}

func TestEvidenceUploadURL(t *testing.T) {
	env := newTestEnv(t)
	customer, tech := utils.NewSixID(), utils.NewSixID()
	d := newDispute(t, customer, tech)
	env.disputes.On("FindByID", mock.Anything, d.ID).Return(d, nil)
	path := "/v1/disputes/" + d.ID.String() + "/evidence/upload-url"
	tok := env.token(t, customer, models.RoleCustomer)
	req := map[string]interface{}{"filename": "receipt.pdf", "contentType": "application/pdf", "size": 1024}

	upload := &storage.PresignedUpload{UploadURL: "https://s3.example.com/put", Key: "disputes/k", PublicURL: "https://cdn.example.com/k"}
	env.store.On("PresignUpload", mock.Anything, storage.PrefixDisputes, d.ID.String(), "receipt.pdf", "application/pdf", int64(1024)).Return(upload, nil).Once()
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, path, req, tok).Code)

	req["size"] = env.cfg.ChatMaxFileSize + 1
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, path, req, tok).Code)

	d.Status = models.DisputeClosed
	req["size"] = 10
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, path, req, tok).Code)
	env.store.AssertExpectations(t)
}
