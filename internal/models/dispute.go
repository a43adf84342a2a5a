package models

import (
	"fmt"
	"strings"
	"time"

	"fixitnow/chatdesk/internal/utils"
)

type DisputeCategory string

const (
	CategoryServiceQuality         DisputeCategory = "service_quality"
	CategoryIncompleteWork         DisputeCategory = "incomplete_work"
	CategoryPropertyDamage         DisputeCategory = "property_damage"
	CategoryBilling                DisputeCategory = "billing"
	CategoryNoShow                 DisputeCategory = "no_show"
	CategoryLateArrival            DisputeCategory = "late_arrival"
	CategoryUnprofessionalBehavior DisputeCategory = "unprofessional_behavior"
	CategorySafetyConcern          DisputeCategory = "safety_concern"
	CategoryWarrantyClaim          DisputeCategory = "warranty_claim"
	CategoryOther                  DisputeCategory = "other"
)

var disputeCategories = map[DisputeCategory]bool{
	CategoryServiceQuality: true, CategoryIncompleteWork: true, CategoryPropertyDamage: true,
	CategoryBilling: true, CategoryNoShow: true, CategoryLateArrival: true,
	CategoryUnprofessionalBehavior: true, CategorySafetyConcern: true, CategoryWarrantyClaim: true,
	CategoryOther: true,
}

func (c DisputeCategory) Valid() bool { return disputeCategories[c] }

type DisputePriority string

const (
	PriorityLow    DisputePriority = "low"
	PriorityMedium DisputePriority = "medium"
	PriorityHigh   DisputePriority = "high"
	PriorityUrgent DisputePriority = "urgent"
)

func (p DisputePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type DisputeStatus string

const (
	DisputeOpen          DisputeStatus = "open"
	DisputeUnderReview   DisputeStatus = "under_review"
	DisputeInvestigating DisputeStatus = "investigating"
	DisputeMediation     DisputeStatus = "mediation"
	DisputeResolved      DisputeStatus = "resolved"
	DisputeClosed        DisputeStatus = "closed"
	DisputeEscalated     DisputeStatus = "escalated"
	DisputeCancelled     DisputeStatus = "cancelled"
)

// mainChain is the forward workflow; a status may skip ahead but never move back.
var mainChain = []DisputeStatus{DisputeOpen, DisputeUnderReview, DisputeInvestigating, DisputeMediation, DisputeResolved, DisputeClosed}

func chainIndex(s DisputeStatus) int {
	for i, c := range mainChain {
		if c == s {
			return i
		}
	}
	return -1
}

func (s DisputeStatus) Valid() bool {
	return chainIndex(s) >= 0 || s == DisputeEscalated || s == DisputeCancelled
}

// Terminal reports whether no side exit (escalate, cancel) is possible anymore.
func (s DisputeStatus) Terminal() bool {
	return s == DisputeResolved || s == DisputeClosed || s == DisputeCancelled
}

// IsResolved reports whether a resolution has been recorded for this status.
func (s DisputeStatus) IsResolved() bool {
	return s == DisputeResolved || s == DisputeClosed
}

type EvidenceKind string

const (
	EvidencePhoto    EvidenceKind = "photo"
	EvidenceVideo    EvidenceKind = "video"
	EvidenceDocument EvidenceKind = "document"
	EvidenceReceipt  EvidenceKind = "receipt"
	EvidenceOther    EvidenceKind = "other"
)

func (k EvidenceKind) Valid() bool {
	switch k {
	case EvidencePhoto, EvidenceVideo, EvidenceDocument, EvidenceReceipt, EvidenceOther:
		return true
	}
	return false
}

type RequestedResolutionKind string

const (
	RequestFullRefund    RequestedResolutionKind = "full_refund"
	RequestPartialRefund RequestedResolutionKind = "partial_refund"
	RequestRedoService   RequestedResolutionKind = "redo_service"
	RequestCompensation  RequestedResolutionKind = "compensation"
	RequestApology       RequestedResolutionKind = "apology"
	RequestOther         RequestedResolutionKind = "other"
)

func (k RequestedResolutionKind) Valid() bool {
	switch k {
	case RequestFullRefund, RequestPartialRefund, RequestRedoService, RequestCompensation, RequestApology, RequestOther:
		return true
	}
	return false
}

type CommunicationKind string

const (
	CommEmail   CommunicationKind = "email"
	CommPhone   CommunicationKind = "phone"
	CommChat    CommunicationKind = "chat"
	CommMeeting CommunicationKind = "meeting"
	CommNote    CommunicationKind = "note"
)

func (k CommunicationKind) Valid() bool {
	switch k {
	case CommEmail, CommPhone, CommChat, CommMeeting, CommNote:
		return true
	}
	return false
}

type CommunicationDirection string

const (
	DirectionInbound  CommunicationDirection = "inbound"
	DirectionOutbound CommunicationDirection = "outbound"
	DirectionInternal CommunicationDirection = "internal"
)

func (d CommunicationDirection) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound || d == DirectionInternal
}

type ResolutionDecision string

const (
	DecisionCustomerFavor   ResolutionDecision = "customer_favor"
	DecisionTechnicianFavor ResolutionDecision = "technician_favor"
	DecisionPartialRefund   ResolutionDecision = "partial_refund"
	DecisionMutualAgreement ResolutionDecision = "mutual_agreement"
	DecisionNoAction        ResolutionDecision = "no_action"
)

func (d ResolutionDecision) Valid() bool {
	switch d {
	case DecisionCustomerFavor, DecisionTechnicianFavor, DecisionPartialRefund, DecisionMutualAgreement, DecisionNoAction:
		return true
	}
	return false
}

type Evidence struct {
	Kind        EvidenceKind `bson:"kind" json:"kind" binding:"required"`
	URL         string       `bson:"url" json:"url" binding:"required,url"`
	Description string       `bson:"description,omitempty" json:"description,omitempty" binding:"max=500"`
	UploadedBy  utils.SixID  `bson:"uploaded_by" json:"uploadedBy"`
	UploadedAt  time.Time    `bson:"uploaded_at" json:"uploadedAt"`
}

type RequestedResolution struct {
	Kind        RequestedResolutionKind `bson:"kind" json:"kind" binding:"required"`
	Amount      *float64                `bson:"amount,omitempty" json:"amount,omitempty" binding:"omitempty,gte=0"`
	Description string                  `bson:"description" json:"description" binding:"required,max=1000"`
}

type Communication struct {
	Kind        CommunicationKind      `bson:"kind" json:"kind"`
	Direction   CommunicationDirection `bson:"direction" json:"direction"`
	Participant string                 `bson:"participant" json:"participant"`
	Summary     string                 `bson:"summary" json:"summary"`
	Notes       string                 `bson:"notes,omitempty" json:"notes,omitempty"`
	Attachments []string               `bson:"attachments" json:"attachments"`
	Timestamp   time.Time              `bson:"timestamp" json:"timestamp"`
}

type Resolution struct {
	Decision     ResolutionDecision `bson:"decision" json:"decision"`
	FinalAmount  *float64           `bson:"final_amount,omitempty" json:"finalAmount,omitempty"`
	RefundAmount *float64           `bson:"refund_amount,omitempty" json:"refundAmount,omitempty"`
	Compensation *float64           `bson:"compensation,omitempty" json:"compensation,omitempty"`
	Explanation  string             `bson:"explanation" json:"explanation"`
	ResolvedBy   utils.SixID        `bson:"resolved_by" json:"resolvedBy"`
	ResolvedAt   time.Time          `bson:"resolved_at" json:"resolvedAt"`
	Notes        string             `bson:"notes,omitempty" json:"notes,omitempty"`
}

type Satisfaction struct {
	Rating      int       `bson:"rating" json:"rating"`
	Feedback    string    `bson:"feedback" json:"feedback"`
	SubmittedAt time.Time `bson:"submitted_at" json:"submittedAt"`
}

type FollowUpAction struct {
	Action      string       `bson:"action" json:"action"`
	AssignedTo  *utils.SixID `bson:"assigned_to,omitempty" json:"assignedTo,omitempty"`
	DueDate     *time.Time   `bson:"due_date,omitempty" json:"dueDate,omitempty"`
	Completed   bool         `bson:"completed" json:"completed"`
	CompletedAt *time.Time   `bson:"completed_at,omitempty" json:"completedAt,omitempty"`
}

type InternalNote struct {
	Note                string      `bson:"note" json:"note"`
	AddedBy             utils.SixID `bson:"added_by" json:"addedBy"`
	VisibleToCustomer   bool        `bson:"visible_to_customer" json:"visibleToCustomer"`
	VisibleToTechnician bool        `bson:"visible_to_technician" json:"visibleToTechnician"`
	AddedAt             time.Time   `bson:"added_at" json:"addedAt"`
}

// Dispute is the case record filed against one booking.
type Dispute struct {
	Base                `bson:",inline"`
	DisputeID           string              `bson:"dispute_id" json:"disputeId"`
	BookingID           utils.SixID         `bson:"booking_id" json:"bookingId"`
	CustomerID          utils.SixID         `bson:"customer_id" json:"customerId"`
	TechnicianID        utils.SixID         `bson:"technician_id" json:"technicianId"`
	InitiatedBy         utils.SixID         `bson:"initiated_by" json:"initiatedBy"`
	InitiatorRole       ParticipantRole     `bson:"initiator_role" json:"initiatorRole"`
	Category            DisputeCategory     `bson:"category" json:"category"`
	Priority            DisputePriority     `bson:"priority" json:"priority"`
	Title               string              `bson:"title" json:"title"`
	Description         string              `bson:"description" json:"description"`
	Evidence            []Evidence          `bson:"evidence" json:"evidence"`
	RequestedResolution RequestedResolution `bson:"requested_resolution" json:"requestedResolution"`
	Status              DisputeStatus       `bson:"status" json:"status"`
	Deadline            *time.Time          `bson:"deadline,omitempty" json:"deadline,omitempty"`
	EscalationDeadline  *time.Time          `bson:"escalation_deadline,omitempty" json:"escalationDeadline,omitempty"`
	AssignedTo          *utils.SixID        `bson:"assigned_to,omitempty" json:"assignedTo,omitempty"`
	Communication       []Communication     `bson:"communication" json:"communication"`
	Resolution          *Resolution         `bson:"resolution,omitempty" json:"resolution,omitempty"`
	Satisfaction        *Satisfaction       `bson:"satisfaction,omitempty" json:"satisfaction,omitempty"`
	FollowUpActions     []FollowUpAction    `bson:"follow_up_actions" json:"followUpActions"`
	InternalNotes       []InternalNote      `bson:"internal_notes" json:"internalNotes"`
	RelatedDisputes     []string            `bson:"related_disputes" json:"relatedDisputes"`
	Tags                []string            `bson:"tags" json:"tags"`
	FirstResponseAt     *time.Time          `bson:"first_response_at,omitempty" json:"firstResponseAt,omitempty"`
	ClosedAt            *time.Time          `bson:"closed_at,omitempty" json:"closedAt,omitempty"`
}

// NewDisputeInput is what a customer or technician files.
type NewDisputeInput struct {
	BookingID           utils.SixID         `json:"bookingId" binding:"required,sixid"`
	CustomerID          utils.SixID         `json:"customerId" binding:"required,sixid"`
	TechnicianID        utils.SixID         `json:"technicianId" binding:"required,sixid"`
	Category            DisputeCategory     `json:"category" binding:"required"`
	Priority            DisputePriority     `json:"priority"`
	Title               string              `json:"title" binding:"required,max=200"`
	Description         string              `json:"description" binding:"required,max=2000"`
	Evidence            []Evidence          `json:"evidence" binding:"dive"`
	RequestedResolution RequestedResolution `json:"requestedResolution" binding:"required"`
	Tags                []string            `json:"tags"`
	RelatedDisputes     []string            `json:"relatedDisputes"`

	InitiatedBy utils.SixID `json:"-"`
}

// DisputeTimings are the configured response windows of a new dispute.
type DisputeTimings struct {
	Deadline        time.Duration
	EscalationAfter time.Duration
}

// NewDisputeID renders DIS-<unix millis>-<9 chars [A-Z0-9]>.
func NewDisputeID(now time.Time) (string, error) {
	code, err := utils.RandomCode(9)
	if err != nil {
		return "", fmt.Errorf("failed to generate dispute id: %w", err)
	}
	return fmt.Sprintf("DIS-%d-%s", now.UnixMilli(), code), nil
}

// NewDispute validates the input and builds an open dispute. DisputeID is assigned by the caller.
func NewDispute(in NewDisputeInput, timings DisputeTimings, now time.Time) (*Dispute, error) {
	if !in.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrValidation, in.Category)
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if !in.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, in.Priority)
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" || in.Description == "" {
		return nil, fmt.Errorf("%w: title and description are required", ErrValidation)
	}
	if in.CustomerID == in.TechnicianID {
		return nil, fmt.Errorf("%w: customer and technician must differ", ErrValidation)
	}
	if !in.RequestedResolution.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown requested resolution %q", ErrValidation, in.RequestedResolution.Kind)
	}
	if a := in.RequestedResolution.Amount; a != nil && *a < 0 {
		return nil, fmt.Errorf("%w: requested amount must not be negative", ErrValidation)
	}

	var role ParticipantRole
	switch in.InitiatedBy {
	case in.CustomerID:
		role = RoleCustomer
	case in.TechnicianID:
		role = RoleTechnician
	default:
		return nil, fmt.Errorf("%w: only the booking's customer or technician can file a dispute", ErrForbidden)
	}

	d := &Dispute{
		Base:                NewBase(now),
		BookingID:           in.BookingID,
		CustomerID:          in.CustomerID,
		TechnicianID:        in.TechnicianID,
		InitiatedBy:         in.InitiatedBy,
		InitiatorRole:       role,
		Category:            in.Category,
		Priority:            in.Priority,
		Title:               in.Title,
		Description:         in.Description,
		Evidence:            []Evidence{},
		RequestedResolution: in.RequestedResolution,
		Status:              DisputeOpen,
		Communication:       []Communication{},
		FollowUpActions:     []FollowUpAction{},
		InternalNotes:       []InternalNote{},
		RelatedDisputes:     nonNil(in.RelatedDisputes),
		Tags:                nonNil(in.Tags),
	}
	for _, ev := range in.Evidence {
		if err := d.AddEvidence(ev, in.InitiatedBy, now); err != nil {
			return nil, err
		}
	}
	if timings.Deadline > 0 {
		at := now.Add(timings.Deadline)
		d.Deadline = &at
	}
	if timings.EscalationAfter > 0 {
		at := now.Add(timings.EscalationAfter)
		d.EscalationDeadline = &at
	}
	return d, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (d *Dispute) canTransition(to DisputeStatus) bool {
	from := d.Status
	switch {
	case from == DisputeResolved:
		return to == DisputeClosed
	case from == DisputeClosed || from == DisputeCancelled:
		return false
	case to == DisputeEscalated || to == DisputeCancelled:
		return true
	case from == DisputeEscalated:
		return to == DisputeUnderReview || to == DisputeInvestigating || to == DisputeMediation || to == DisputeResolved
	case to == DisputeClosed:
		return false
	}
	fi, ti := chainIndex(from), chainIndex(to)
	return fi >= 0 && ti > fi
}

// TransitionTo moves the dispute along the workflow. firstResponseAt is set the first time
// the dispute leaves open; closedAt the first time it reaches resolved or closed.
func (d *Dispute) TransitionTo(to DisputeStatus, now time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if to == d.Status {
		return nil
	}
	if !d.canTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, to)
	}
	if to.IsResolved() && d.Resolution == nil {
		return fmt.Errorf("%w: %s requires a resolution", ErrInvalidTransition, to)
	}
	if d.Status == DisputeOpen && d.FirstResponseAt == nil {
		d.FirstResponseAt = &now
	}
	if to.IsResolved() && d.ClosedAt == nil {
		d.ClosedAt = &now
	}
	d.Status = to
	return nil
}

// CommunicationOptions are the optional parts of a communication log entry.
type CommunicationOptions struct {
	Notes       string
	Attachments []string
}

// AddCommunication appends to the communication log without touching the status.
func (d *Dispute) AddCommunication(kind CommunicationKind, direction CommunicationDirection, participant, summary string, opts CommunicationOptions, now time.Time) error {
	if !kind.Valid() || !direction.Valid() {
		return fmt.Errorf("%w: unknown communication kind or direction", ErrValidation)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" || strings.TrimSpace(participant) == "" {
		return fmt.Errorf("%w: participant and summary are required", ErrValidation)
	}
	d.Communication = append(d.Communication, Communication{
		Kind:        kind,
		Direction:   direction,
		Participant: participant,
		Summary:     summary,
		Notes:       opts.Notes,
		Attachments: nonNil(opts.Attachments),
		Timestamp:   now,
	})
	return nil
}

// ResolveOptions are the optional amounts and notes of a resolution.
type ResolveOptions struct {
	FinalAmount  *float64 `json:"finalAmount" binding:"omitempty,gte=0"`
	RefundAmount *float64 `json:"refundAmount" binding:"omitempty,gte=0"`
	Compensation *float64 `json:"compensation" binding:"omitempty,gte=0"`
	Notes        string   `json:"notes"`
}

// Resolve records the decision and moves the dispute to resolved. resolvedAt is always now.
func (d *Dispute) Resolve(decision ResolutionDecision, explanation string, resolvedBy utils.SixID, opts ResolveOptions, now time.Time) error {
	if d.Status.IsResolved() {
		return ErrAlreadyResolved
	}
	if d.Status == DisputeCancelled {
		return fmt.Errorf("%w: dispute is cancelled", ErrInvalidTransition)
	}
	if !decision.Valid() {
		return fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}
	explanation = strings.TrimSpace(explanation)
	if explanation == "" {
		return fmt.Errorf("%w: explanation is required", ErrValidation)
	}
	for _, amount := range []*float64{opts.FinalAmount, opts.RefundAmount, opts.Compensation} {
		if amount != nil && *amount < 0 {
			return fmt.Errorf("%w: amounts must not be negative", ErrValidation)
		}
	}

	d.Resolution = &Resolution{
		Decision:     decision,
		FinalAmount:  opts.FinalAmount,
		RefundAmount: opts.RefundAmount,
		Compensation: opts.Compensation,
		Explanation:  explanation,
		ResolvedBy:   resolvedBy,
		ResolvedAt:   now,
		Notes:        opts.Notes,
	}
	if err := d.TransitionTo(DisputeResolved, now); err != nil {
		d.Resolution = nil
		return err
	}
	return nil
}

// Escalate moves the dispute to escalated and records the reason as an admin-only note.
// Escalating an already escalated dispute only appends the note. The escalation
// deadline is cleared so the overdue sweep fires at most once per dispute.
func (d *Dispute) Escalate(reason string, escalatedBy utils.SixID, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: escalation reason is required", ErrValidation)
	}
	if err := d.TransitionTo(DisputeEscalated, now); err != nil {
		return err
	}
	d.EscalationDeadline = nil
	d.InternalNotes = append(d.InternalNotes, InternalNote{
		Note:    "Escalated: " + reason,
		AddedBy: escalatedBy,
		AddedAt: now,
	})
	return nil
}

// AddEvidence attaches evidence while the dispute is still open to decisions.
func (d *Dispute) AddEvidence(ev Evidence, uploadedBy utils.SixID, now time.Time) error {
	if d.Status.Terminal() {
		return fmt.Errorf("%w: dispute is %s", ErrInvalidTransition, d.Status)
	}
	if !ev.Kind.Valid() {
		return fmt.Errorf("%w: unknown evidence kind %q", ErrValidation, ev.Kind)
	}
	if strings.TrimSpace(ev.URL) == "" {
		return fmt.Errorf("%w: evidence url is required", ErrValidation)
	}
	ev.UploadedBy = uploadedBy
	ev.UploadedAt = now
	d.Evidence = append(d.Evidence, ev)
	return nil
}

func (d *Dispute) AddInternalNote(note string, addedBy utils.SixID, visibleToCustomer, visibleToTechnician bool, now time.Time) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return fmt.Errorf("%w: note is required", ErrValidation)
	}
	d.InternalNotes = append(d.InternalNotes, InternalNote{
		Note:                note,
		AddedBy:             addedBy,
		VisibleToCustomer:   visibleToCustomer,
		VisibleToTechnician: visibleToTechnician,
		AddedAt:             now,
	})
	return nil
}

// Assign hands the case to an admin.
func (d *Dispute) Assign(adminID utils.SixID) error {
	if d.Status == DisputeClosed || d.Status == DisputeCancelled {
		return fmt.Errorf("%w: dispute is %s", ErrInvalidTransition, d.Status)
	}
	id := adminID
	d.AssignedTo = &id
	return nil
}

func (d *Dispute) AddFollowUpAction(action string, assignedTo *utils.SixID, dueDate *time.Time) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return fmt.Errorf("%w: action is required", ErrValidation)
	}
	d.FollowUpActions = append(d.FollowUpActions, FollowUpAction{Action: action, AssignedTo: assignedTo, DueDate: dueDate})
	return nil
}

// SubmitSatisfaction records the customer's rating once the dispute is resolved.
func (d *Dispute) SubmitSatisfaction(userID utils.SixID, rating int, feedback string, now time.Time) error {
	if userID != d.CustomerID {
		return fmt.Errorf("%w: only the customer can rate the resolution", ErrForbidden)
	}
	if !d.Status.IsResolved() {
		return fmt.Errorf("%w: dispute is not resolved yet", ErrInvalidTransition)
	}
	if d.Satisfaction != nil {
		return fmt.Errorf("%w: satisfaction already submitted", ErrInvalidTransition)
	}
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	d.Satisfaction = &Satisfaction{Rating: rating, Feedback: strings.TrimSpace(feedback), SubmittedAt: now}
	return nil
}

// Cancel withdraws the dispute. The reason is recorded as a note visible to both parties.
func (d *Dispute) Cancel(reason string, cancelledBy utils.SixID, now time.Time) error {
	if err := d.TransitionTo(DisputeCancelled, now); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}
	d.InternalNotes = append(d.InternalNotes, InternalNote{
		Note:                "Cancelled: " + reason,
		AddedBy:             cancelledBy,
		VisibleToCustomer:   true,
		VisibleToTechnician: true,
		AddedAt:             now,
	})
	return nil
}

// Close archives a resolved dispute.
func (d *Dispute) Close(now time.Time) error {
	return d.TransitionTo(DisputeClosed, now)
}

// IsParty reports whether userID is the booking's customer or technician.
func (d *Dispute) IsParty(userID utils.SixID) bool {
	return userID == d.CustomerID || userID == d.TechnicianID
}

// AgeInDays is the number of whole days since the dispute was filed.
func (d *Dispute) AgeInDays(now time.Time) int {
	return int(now.Sub(d.CreatedAt) / (24 * time.Hour))
}

// TimeToResolution is the number of whole days from filing to resolution, nil while unresolved.
func (d *Dispute) TimeToResolution() *int {
	if d.Resolution == nil {
		return nil
	}
	days := int(d.Resolution.ResolvedAt.Sub(d.CreatedAt) / (24 * time.Hour))
	return &days
}

// RedactFor returns a copy holding only the internal notes the viewer may see.
func (d *Dispute) RedactFor(viewerID utils.SixID, isAdmin bool) *Dispute {
	cp := *d
	if isAdmin {
		return &cp
	}
	notes := make([]InternalNote, 0, len(d.InternalNotes))
	for _, n := range d.InternalNotes {
		if (viewerID == d.CustomerID && n.VisibleToCustomer) || (viewerID == d.TechnicianID && n.VisibleToTechnician) {
			notes = append(notes, n)
		}
	}
	cp.InternalNotes = notes
	return &cp
}

// DisputeStats summarises disputes filed in a time window.
type DisputeStats struct {
	TotalDisputes      int                     `bson:"total_disputes" json:"totalDisputes"`
	OpenDisputes       int                     `bson:"open_disputes" json:"openDisputes"`
	ResolvedDisputes   int                     `bson:"resolved_disputes" json:"resolvedDisputes"`
	AvgResolutionTime  *float64                `bson:"avg_resolution_time" json:"avgResolutionTime"`
	DisputesByCategory []DisputeCategory       `bson:"disputes_by_category" json:"disputesByCategory"`
	CategoryCounts     map[DisputeCategory]int `bson:"-" json:"categoryCounts"`
	TotalRefundAmount  float64                 `bson:"total_refund_amount" json:"totalRefundAmount"`
}

// FillCategoryCounts derives the per-category histogram from the raw category list.
func (s *DisputeStats) FillCategoryCounts() {
	s.CategoryCounts = make(map[DisputeCategory]int, len(s.DisputesByCategory))
	for _, c := range s.DisputesByCategory {
		s.CategoryCounts[c]++
	}
	if s.DisputesByCategory == nil {
		s.DisputesByCategory = []DisputeCategory{}
	}
}
