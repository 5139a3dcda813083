package repository

import (
	"context"
	"errors"

	"vip-bot/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SubscriberRepository struct {
	col *mongo.Collection
}

func NewSubscriberRepository(db *mongo.Database) *SubscriberRepository {
	return &SubscriberRepository{col: db.Collection("subscribers")}
}

// EnsureIndexes creates the unique user_id index. Safe to call on every start.
func (r *SubscriberRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Get returns nil without error when the user has no record.
func (r *SubscriberRepository) Get(ctx context.Context, userID int64) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := r.col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&sub)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpsertGrant replaces the whole record — a renewal overwrites subscription_end
// and created_at rather than accumulating.
func (r *SubscriberRepository) UpsertGrant(ctx context.Context, sub *models.Subscriber) error {
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"user_id": sub.UserID},
		sub,
		options.Replace().SetUpsert(true),
	)
	return err
}

// ClearEntitlement zeroes subscription_end and leaves the rest of the record
// untouched. A missing or already-cleared record is a no-op, not an error.
func (r *SubscriberRepository) ClearEntitlement(ctx context.Context, userID int64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"subscription_end": 0}},
	)
	return err
}

// ClearLapsed zeroes subscription_end only while it is still lapsed at
// nowMillis. A renewal that commits after the sweep's listing leaves the
// record untouched; the return value reports whether anything was cleared.
func (r *SubscriberRepository) ClearLapsed(ctx context.Context, userID int64, nowMillis int64) (bool, error) {
	res, err := r.col.UpdateOne(ctx,
		bson.M{
			"user_id":          userID,
			"subscription_end": bson.M{"$gt": 0, "$lt": nowMillis},
		},
		bson.M{"$set": bson.M{"subscription_end": 0}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// ListLapsed returns every record whose subscription_end is set but already in
// the past: 0 < subscription_end < now.
func (r *SubscriberRepository) ListLapsed(ctx context.Context, nowMillis int64) ([]models.Subscriber, error) {
	cursor, err := r.col.Find(ctx, bson.M{
		"subscription_end": bson.M{"$gt": 0, "$lt": nowMillis},
	})
	if err != nil {
		return nil, err
	}
	var subs []models.Subscriber
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *SubscriberRepository) GetAll(ctx context.Context) ([]models.Subscriber, error) {
	cursor, err := r.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var subs []models.Subscriber
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}
