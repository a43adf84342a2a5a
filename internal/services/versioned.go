package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"fixitnow/chatdesk/internal/db"
	"fixitnow/chatdesk/internal/models"
	"fixitnow/chatdesk/internal/utils"
)

// document is a pointer to a versioned aggregate.
type document[T any] interface {
	*T
	models.IBase
}

// findDoc loads one aggregate by _id. mongo.ErrNoDocuments is preserved in the chain.
func findDoc[T any](ctx context.Context, coll *mongo.Collection, id utils.SixID) (*T, error) {
	var doc T
	if err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to load %s %s: %w", coll.Name(), id, err)
	}
	return &doc, nil
}

// mutate is the read-modify-write cycle shared by every aggregate operation: load, apply,
// refresh derived fields, bump the version and replace conditionally. Version conflicts are
// retried on a fresh read; when retries run out models.ErrConflict is returned.
func mutate[T any, PT document[T]](ctx context.Context, coll *mongo.Collection, id utils.SixID, apply func(PT, time.Time) error, refresh func(PT, time.Time)) (PT, error) {
	var out PT
	err := db.WithRetries(func() error {
		doc, err := findDoc[T](ctx, coll, id)
		if err != nil {
			return err
		}
		p := PT(doc)
		now := models.Now()
		if err := apply(p, now); err != nil {
			return err
		}
		if refresh != nil {
			refresh(p, now)
		}
		prev := p.GetVersion()
		p.Stamp(now)
		if err := db.ReplaceVersioned(ctx, coll, id, prev, p); err != nil {
			return err
		}
		out = p
		return nil
	}, db.DefaultMaxRetries, db.IsVersionConflict)
	if db.IsVersionConflict(err) {
		return nil, fmt.Errorf("%w: %s %s", models.ErrConflict, coll.Name(), id)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
