package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fixitnow/chatdesk/internal/cache"
	"fixitnow/chatdesk/internal/config"
	"fixitnow/chatdesk/internal/db"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

const (
	maxDisputeListLimit     = 100
	defaultDisputeListLimit = 20
	overdueEscalationReason = "No resolution before the escalation deadline"
)

// SystemActor is recorded as the author of automatic actions.
var SystemActor = utils.SixID{}

// disputeSortFields maps API sort keys to stored fields.
var disputeSortFields = map[string]string{
	"createdAt":          "created_at",
	"updatedAt":          "updated_at",
	"priority":           "priority",
	"deadline":           "deadline",
	"escalationDeadline": "escalation_deadline",
	"status":             "status",
}

// CommunicationInput is an entry for the dispute communication log.
type CommunicationInput struct {
	Kind        models.CommunicationKind      `json:"kind" binding:"required"`
	Direction   models.CommunicationDirection `json:"direction" binding:"required"`
	Participant string                        `json:"participant" binding:"required,max=200"`
	Summary     string                        `json:"summary" binding:"required,max=2000"`
	Notes       string                        `json:"notes" binding:"max=5000"`
	Attachments []string                      `json:"attachments"`
}

// IDisputeService defines the interface for dispute operations.
type IDisputeService interface {
	Create(ctx context.Context, in models.NewDisputeInput) (*models.Dispute, error)
	FindByID(ctx context.Context, id utils.SixID) (*models.Dispute, error)
	FindByDisputeID(ctx context.Context, disputeID string) (*models.Dispute, error)
	FindByStatus(ctx context.Context, status models.DisputeStatus, opts models.ListOptions) ([]models.Dispute, int64, error)
	FindByBooking(ctx context.Context, bookingID utils.SixID) ([]models.Dispute, error)
	FindForUser(ctx context.Context, userID utils.SixID, opts models.ListOptions) ([]models.Dispute, int64, error)
	UpdateStatus(ctx context.Context, id utils.SixID, status models.DisputeStatus) (*models.Dispute, error)
	AddCommunication(ctx context.Context, id utils.SixID, in CommunicationInput) (*models.Dispute, error)
	Resolve(ctx context.Context, id utils.SixID, decision models.ResolutionDecision, explanation string, resolvedBy utils.SixID, opts models.ResolveOptions) (*models.Dispute, error)
	Escalate(ctx context.Context, id utils.SixID, reason string, escalatedBy utils.SixID) (*models.Dispute, error)
	AddEvidence(ctx context.Context, id utils.SixID, actor Actor, ev models.Evidence) (*models.Dispute, error)
	AddInternalNote(ctx context.Context, id, adminID utils.SixID, note string, visibleToCustomer, visibleToTechnician bool) (*models.Dispute, error)
	AddFollowUpAction(ctx context.Context, id utils.SixID, action string, assignedTo *utils.SixID, dueDate *time.Time) (*models.Dispute, error)
	Assign(ctx context.Context, id, adminID utils.SixID) (*models.Dispute, error)
	SubmitSatisfaction(ctx context.Context, id, userID utils.SixID, rating int, feedback string) (*models.Dispute, error)
	Cancel(ctx context.Context, id utils.SixID, actor Actor, reason string) (*models.Dispute, error)
	Close(ctx context.Context, id utils.SixID) (*models.Dispute, error)
	EscalateOverdue(ctx context.Context, now time.Time) (int, error)
	GetDisputeStats(ctx context.Context, start, end *time.Time) (*models.DisputeStats, error)
}

// disputeService implements IDisputeService.
type disputeService struct {
	db       *mongo.Database
	cfg      *config.Config
	rdb      redis.Cmdable
	notifier INotifier
}

// NewDisputeService creates a new DisputeService. rdb may be nil, which disables the stats cache.
func NewDisputeService(db *mongo.Database, cfg *config.Config, rdb redis.Cmdable, notifier INotifier) IDisputeService {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &disputeService{db: db, cfg: cfg, rdb: rdb, notifier: notifier}
}

func (s *disputeService) coll() *mongo.Collection {
	return s.db.Collection(db.DisputesCollection)
}

func (s *disputeService) update(ctx context.Context, id utils.SixID, apply func(*models.Dispute, time.Time) error) (*models.Dispute, error) {
	d, err := mutate(ctx, s.coll(), id, apply, nil)
	if err == nil {
		s.invalidateStats(ctx)
	}
	return d, err
}

// invalidateStats drops every cached stats window after a committed write.
func (s *disputeService) invalidateStats(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	if _, err := cache.DeleteByPrefix(ctx, s.rdb, statsCachePrefix); err != nil {
		log.Printf("Dispute stats cache invalidation failed: %v", err)
	}
}

// Create files a new dispute. The generated disputeId is retried on collision.
func (s *disputeService) Create(ctx context.Context, in models.NewDisputeInput) (*models.Dispute, error) {
	now := models.Now()
	d, err := models.NewDispute(in, s.cfg.DisputeTimings(), now)
	if err != nil {
		return nil, err
	}
	err = db.Try(func() error {
		disputeID, genErr := models.NewDisputeID(now)
		if genErr != nil {
			return genErr
		}
		d.GenID()
		d.DisputeID = disputeID
		_, insertErr := db.InsertOne(ctx, s.coll(), d)
		return insertErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispute: %w", err)
	}
	s.invalidateStats(ctx)
	return d, nil
}

func (s *disputeService) FindByID(ctx context.Context, id utils.SixID) (*models.Dispute, error) {
	return findDoc[models.Dispute](ctx, s.coll(), id)
}

func (s *disputeService) FindByDisputeID(ctx context.Context, disputeID string) (*models.Dispute, error) {
	var d models.Dispute
	if err := s.coll().FindOne(ctx, bson.M{"dispute_id": disputeID}).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to load dispute %s: %w", disputeID, err)
	}
	return &d, nil
}

func sortSpec(sort string) (bson.D, error) {
	if sort == "" {
		sort = "-createdAt"
	}
	dir := 1
	if strings.HasPrefix(sort, "-") {
		dir = -1
		sort = sort[1:]
	}
	field, ok := disputeSortFields[sort]
	if !ok {
		return nil, fmt.Errorf("%w: cannot sort by %q", models.ErrValidation, sort)
	}
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: 1}}, nil
}

func (s *disputeService) list(ctx context.Context, filter bson.M, opts models.ListOptions) ([]models.Dispute, int64, error) {
	sort, err := sortSpec(opts.Sort)
	if err != nil {
		return nil, 0, err
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultDisputeListLimit
	}
	if opts.Limit > maxDisputeListLimit {
		opts.Limit = maxDisputeListLimit
	}
	if opts.Skip < 0 {
		opts.Skip = 0
	}

	cursor, err := s.coll().Find(ctx, filter, options.Find().SetSort(sort).SetSkip(int64(opts.Skip)).SetLimit(int64(opts.Limit)))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query disputes: %w", err)
	}
	defer cursor.Close(ctx)

	disputes := []models.Dispute{}
	if err := cursor.All(ctx, &disputes); err != nil {
		return nil, 0, fmt.Errorf("failed to decode disputes: %w", err)
	}
	total, err := s.coll().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count disputes: %w", err)
	}
	return disputes, total, nil
}

// FindByStatus lists disputes in status; an empty status lists all.
func (s *disputeService) FindByStatus(ctx context.Context, status models.DisputeStatus, opts models.ListOptions) ([]models.Dispute, int64, error) {
	filter := bson.M{}
	if status != "" {
		if !status.Valid() {
			return nil, 0, fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
		}
		filter["status"] = status
	}
	return s.list(ctx, filter, opts)
}

func (s *disputeService) FindByBooking(ctx context.Context, bookingID utils.SixID) ([]models.Dispute, error) {
	disputes, _, err := s.list(ctx, bson.M{"booking_id": bookingID}, models.ListOptions{Limit: maxDisputeListLimit})
	return disputes, err
}

// FindForUser lists disputes where the user is the customer or the technician.
func (s *disputeService) FindForUser(ctx context.Context, userID utils.SixID, opts models.ListOptions) ([]models.Dispute, int64, error) {
	filter := bson.M{"$or": bson.A{bson.M{"customer_id": userID}, bson.M{"technician_id": userID}}}
	return s.list(ctx, filter, opts)
}

// UpdateStatus moves a dispute through the review stages. Resolution, escalation,
// cancellation and closing have dedicated operations.
func (s *disputeService) UpdateStatus(ctx context.Context, id utils.SixID, status models.DisputeStatus) (*models.Dispute, error) {
	switch status {
	case models.DisputeUnderReview, models.DisputeInvestigating, models.DisputeMediation:
	default:
		return nil, fmt.Errorf("%w: status %q must be set through its dedicated operation", models.ErrValidation, status)
	}
	return s.update(ctx, id, func(d *models.Dispute, now time.Time) error {
		return d.TransitionTo(status, now)
	})
}

func (s *disputeService) AddCommunication(ctx context.Context, id utils.SixID, in CommunicationInput) (*models.Dispute, error) {
	return s.update(ctx, id, func(d *models.Dispute, now time.Time) error {
		return d.AddCommunication(in.Kind, in.Direction, in.Participant, in.Summary,
			models.CommunicationOptions{Notes: in.Notes, Attachments: in.Attachments}, now)
	})
}

func (s *disputeService) Resolve(ctx context.Context, id utils.SixID, decision models.ResolutionDecision, explanation string, resolvedBy utils.SixID, opts models.ResolveOptions) (*models.Dispute, error) {
	d, err := s.update(ctx, id, func(d *models.Dispute, now time.Time) error {
		return d.Resolve(decision, explanation, resolvedBy, opts, now)
	})
	if err != nil {
		return nil, err
	}
	if err := s.notifier.DisputeResolved(ctx, d); err != nil {
		log.Printf("Failed to notify resolution of dispute %s: %v", d.DisputeID, err)
	}
	return d, nil
}

func (s *disputeService) Escalate(ctx context.Context, id utils.SixID, reason string, escalatedBy utils.SixID) (*models.Dispute, error) {
	d, err := s.update(ctx, id, func(d *models.Dispute, now time.Time) error {
		return d.Escalate(reason, escalatedBy, now)
	})
	if err != nil {
		return nil, err
	}
	if err := s.notifier.DisputeEscalated(ctx, d, reason); err != nil {
		log.Printf("Failed to notify escalation of dispute %s: %v", d.DisputeID, err)
	}
	return d, nil
}

func (s *disputeService) AddEvidence(ctx context.Context, id utils.SixID, actor Actor, ev models.Evidence) (*models.Dispute, error) {
	return s.update(ctx, id, func(d *models.Dispute, now time.Time) error {
		if !actor.IsAdmin && !d.IsParty(actor.UserID) {
			return models.ErrForbidden
		}
		return d.AddEvidence(ev, actor.UserID, now)
	})
}

func (s *disputeService) AddInternalNote(ctx context.Context, id, adminID utils.SixID, note string, visibleToCustomer, visibleToTechnician bool) (*models.Dispute, error) {
	return s.update(ctx, id, func(d *models.Dispute, now time.Time) error {
		return d.AddInternalNote(note, adminID, visibleToCustomer, visibleToTechnician, now)
	})
}

func (s *disputeService) AddFollowUpAction(ctx context.Context, id utils.SixID, action string, assignedTo *utils.SixID, dueDate *time.Time) (*models.Dispute, error) {
	return s.update(ctx, id, func(d *models.Dispute, _ time.Time) error {
		return d.AddFollowUpAction(action, assignedTo, dueDate)
	})
}

func (s *disputeService) Assign(ctx context.Context, id, adminID utils.SixID) (*models.Dispute, error) {
	return s.update(ctx, id, func(d *models.Dispute, _ time.Time) error {
		return d.Assign(adminID)
	})
}

func (s *disputeService) SubmitSatisfaction(ctx context.Context, id, userID utils.SixID, rating int, feedback string) (*models.Dispute, error) {
	return s.update(ctx, id, func(d *models.Dispute, now time.Time) error {
		return d.SubmitSatisfaction(userID, rating, feedback, now)
	})
}

// Cancel withdraws a dispute. Only the initiator or an admin may cancel.
func (s *disputeService) Cancel(ctx context.Context, id utils.SixID, actor Actor, reason string) (*models.Dispute, error) {
	return s.update(ctx, id, func(d *models.Dispute, now time.Time) error {
		if !actor.IsAdmin && actor.UserID != d.InitiatedBy {
			return models.ErrForbidden
		}
		return d.Cancel(reason, actor.UserID, now)
	})
}

func (s *disputeService) Close(ctx context.Context, id utils.SixID) (*models.Dispute, error) {
	return s.update(ctx, id, func(d *models.Dispute, now time.Time) error {
		return d.Close(now)
	})
}

// EscalateOverdue escalates unresolved disputes whose escalation deadline has passed.
// It returns the number of disputes escalated.
func (s *disputeService) EscalateOverdue(ctx context.Context, now time.Time) (int, error) {
	eligible := []models.DisputeStatus{models.DisputeOpen, models.DisputeUnderReview, models.DisputeInvestigating, models.DisputeMediation}
	filter := bson.M{
		"status":              bson.M{"$in": eligible},
		"escalation_deadline": bson.M{"$lte": now},
	}
	cursor, err := s.coll().Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return 0, fmt.Errorf("failed to query overdue disputes: %w", err)
	}
	var ids []struct {
		ID utils.SixID `bson:"_id"`
	}
	if err := cursor.All(ctx, &ids); err != nil {
		return 0, fmt.Errorf("failed to decode overdue disputes: %w", err)
	}

	escalated := 0
	for _, row := range ids {
		d, err := s.update(ctx, row.ID, func(d *models.Dispute, now time.Time) error {
			if d.Status.Terminal() || d.Status == models.DisputeEscalated {
				return errSkip
			}
			if d.EscalationDeadline == nil || d.EscalationDeadline.After(now) {
				return errSkip
			}
			return d.Escalate(overdueEscalationReason, SystemActor, now)
		})
		if errors.Is(err, errSkip) {
			continue
		}
		if err != nil {
			log.Printf("Failed to escalate overdue dispute %s: %v", row.ID, err)
			continue
		}
		escalated++
		if err := s.notifier.DisputeEscalated(ctx, d, overdueEscalationReason); err != nil {
			log.Printf("Failed to notify escalation of dispute %s: %v", d.DisputeID, err)
		}
	}
	return escalated, nil
}

const statsCachePrefix = "dispute_stats:"

func statsCacheKey(start, end *time.Time) string {
	format := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s%s:%s", statsCachePrefix, format(start), format(end))
}

// GetDisputeStats aggregates disputes created within [start, end]. Either bound may be nil.
func (s *disputeService) GetDisputeStats(ctx context.Context, start, end *time.Time) (*models.DisputeStats, error) {
	key := statsCacheKey(start, end)
	if s.rdb != nil {
		var cached models.DisputeStats
		hit, err := cache.GetJSON(ctx, s.rdb, key, &cached)
		if err != nil {
			log.Printf("Dispute stats cache read failed: %v", err)
		}
		if hit {
			return &cached, nil
		}
	}

	match := bson.M{}
	if start != nil || end != nil {
		window := bson.M{}
		if start != nil {
			window["$gte"] = *start
		}
		if end != nil {
			window["$lte"] = *end
		}
		match["created_at"] = window
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total_disputes", Value: bson.M{"$sum": 1}},
			{Key: "open_disputes", Value: bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$status", models.DisputeOpen}}, 1, 0},
			}}},
			{Key: "resolved_disputes", Value: bson.M{"$sum": bson.M{
				"$cond": bson.A{bson.M{"$in": bson.A{"$status", bson.A{models.DisputeResolved, models.DisputeClosed}}}, 1, 0},
			}}},
			// $avg skips the nulls produced for unresolved disputes.
			{Key: "avg_resolution_time", Value: bson.M{"$avg": bson.M{
				"$cond": bson.A{
					bson.M{"$eq": bson.A{bson.M{"$type": "$resolution.resolved_at"}, "date"}},
					bson.M{"$divide": bson.A{bson.M{"$subtract": bson.A{"$resolution.resolved_at", "$created_at"}}, 86400000}},
					nil,
				},
			}}},
			{Key: "disputes_by_category", Value: bson.M{"$push": "$category"}},
			{Key: "total_refund_amount", Value: bson.M{"$sum": bson.M{"$ifNull": bson.A{"$resolution.refund_amount", 0}}}},
		}}},
	}

	cursor, err := s.coll().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate dispute stats: %w", err)
	}
	defer cursor.Close(ctx)

	stats := &models.DisputeStats{}
	if cursor.Next(ctx) {
		if err := cursor.Decode(stats); err != nil {
			return nil, fmt.Errorf("failed to decode dispute stats: %w", err)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dispute stats: %w", err)
	}
	stats.FillCategoryCounts()

	if s.rdb != nil {
		if err := cache.SetJSON(ctx, s.rdb, key, stats, s.cfg.StatsCacheTTL); err != nil {
			log.Printf("Dispute stats cache write failed: %v", err)
		}
	}
	return stats, nil
}
