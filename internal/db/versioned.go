package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrVersionConflict is returned when a conditional write finds the document at another version.
var ErrVersionConflict = errors.New("document version conflict")

func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// InsertOne inserts doc and returns it. Duplicate-key errors are returned unwrapped
// so callers can retry through Try.
func InsertOne[T any](ctx context.Context, coll *mongo.Collection, doc *T) (*T, error) {
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		if IsMongoDuplicateKeyError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to insert into %s: %w", coll.Name(), err)
	}
	return doc, nil
}

// ReplaceVersioned replaces the document with _id = id only if it is still at expectedVersion.
// doc must already carry the bumped version.
func ReplaceVersioned(ctx context.Context, coll *mongo.Collection, id interface{}, expectedVersion int64, doc interface{}) error {
	res, err := coll.ReplaceOne(ctx, bson.M{"_id": id, "version": expectedVersion}, doc)
	if err != nil {
		return fmt.Errorf("failed to replace document in %s: %w", coll.Name(), err)
	}
	if res.MatchedCount == 0 {
		return ErrVersionConflict
	}
	return nil
}
