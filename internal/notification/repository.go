package notification

import (
	"context"
	"time"

	"Fly8Backend/internal/auth"
	"Fly8Backend/internal/config"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationRepository handles DB operations for notifications.
type NotificationRepository struct {
	collection *mongo.Collection
}

// NewNotificationRepository creates the repository and ensures the listing and TTL indexes.
func NewNotificationRepository(db *mongo.Database) (*NotificationRepository, error) {
	collection := db.Collection("notifications")
	err := config.CreateIndexes(collection, []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "recipient.id", Value: 1},
			{Key: "recipient.role", Value: 1},
			{Key: "status", Value: 1},
			{Key: "created_at", Value: -1},
		}},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	})
	if err != nil {
		return nil, err
	}
	return &NotificationRepository{collection: collection}, nil
}

func recipientFilter(recipient auth.Principal) bson.M {
	return bson.M{"recipient.id": recipient.ID, "recipient.role": recipient.Role}
}

// visible adds the "not expired at now" clause to filter.
func visible(filter bson.M, now time.Time) bson.M {
	filter["$or"] = bson.A{
		bson.M{"expires_at": nil},
		bson.M{"expires_at": bson.M{"$gt": now}},
	}
	return filter
}

func listFilter(recipient auth.Principal, f Filter, now time.Time) bson.M {
	filter := recipientFilter(recipient)
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.Priority != "" {
		filter["priority"] = f.Priority
	}
	if f.From != nil || f.To != nil {
		created := bson.M{}
		if f.From != nil {
			created["$gte"] = *f.From
		}
		if f.To != nil {
			created["$lte"] = *f.To
		}
		filter["created_at"] = created
	}
	return visible(filter, now)
}

func (r *NotificationRepository) InsertMany(ctx context.Context, notifications []*Notification) error {
	docs := make([]interface{}, len(notifications))
	for i, n := range notifications {
		if n.ID.IsZero() {
			n.ID = primitive.NewObjectID()
		}
		docs[i] = n
	}
	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return errors.Wrap(err, "insert notifications")
}

func (r *NotificationRepository) Find(ctx context.Context, id primitive.ObjectID) (*Notification, error) {
	var n Notification
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&n)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find notification")
	}
	return &n, nil
}

func (r *NotificationRepository) List(ctx context.Context, recipient auth.Principal, f Filter, now time.Time, skip, limit int64) ([]*Notification, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "priority_rank", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cursor, err := r.collection.Find(ctx, listFilter(recipient, f, now), opts)
	if err != nil {
		return nil, errors.Wrap(err, "list notifications")
	}
	notifications := []*Notification{}
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, errors.Wrap(err, "decode notifications")
	}
	return notifications, nil
}

func (r *NotificationRepository) Count(ctx context.Context, recipient auth.Principal, f Filter, now time.Time) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, listFilter(recipient, f, now))
	return n, errors.Wrap(err, "count notifications")
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipient auth.Principal, now time.Time) (int64, error) {
	filter := recipientFilter(recipient)
	filter["status"] = StatusUnread
	n, err := r.collection.CountDocuments(ctx, visible(filter, now))
	return n, errors.Wrap(err, "count unread notifications")
}

func (r *NotificationRepository) Transition(ctx context.Context, id primitive.ObjectID, recipient auth.Principal, from []Status, to Status, at time.Time) (bool, error) {
	filter := recipientFilter(recipient)
	filter["_id"] = id
	filter["status"] = bson.M{"$in": from}

	set := bson.M{"status": to, "updated_at": at}
	if to == StatusRead {
		set["read_at"] = at
	}
	res, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, errors.Wrap(err, "update notification status")
	}
	return res.ModifiedCount == 1, nil
}

// MarkAllRead reads the recipient's live unread notifications; expired ones are left for the reaper.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipient auth.Principal, at time.Time) (int64, error) {
	filter := recipientFilter(recipient)
	filter["status"] = StatusUnread
	res, err := r.collection.UpdateMany(ctx, visible(filter, at), bson.M{"$set": bson.M{
		"status":     StatusRead,
		"read_at":    at,
		"updated_at": at,
	}})
	if err != nil {
		return 0, errors.Wrap(err, "mark all notifications read")
	}
	return res.ModifiedCount, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id primitive.ObjectID, recipient auth.Principal) (bool, error) {
	filter := bson.M{"_id": id}
	if recipient.ID != "" {
		filter = recipientFilter(recipient)
		filter["_id"] = id
	}
	res, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return false, errors.Wrap(err, "delete notification")
	}
	return res.DeletedCount == 1, nil
}

func (r *NotificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now}})
	if err != nil {
		return 0, errors.Wrap(err, "delete expired notifications")
	}
	return res.DeletedCount, nil
}
