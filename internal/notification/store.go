package notification

import (
	"context"
	"time"

	"Fly8Backend/internal/auth"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the durable notification store. Every read that faces a recipient takes now and hides expired rows.
type Store interface {
	// InsertMany writes the batch as one operation; on error nothing is written.
	InsertMany(ctx context.Context, notifications []*Notification) error
	// Find returns nil, nil when the notification does not exist.
	Find(ctx context.Context, id primitive.ObjectID) (*Notification, error)
	List(ctx context.Context, recipient auth.Principal, filter Filter, now time.Time, skip, limit int64) ([]*Notification, error)
	Count(ctx context.Context, recipient auth.Principal, filter Filter, now time.Time) (int64, error)
	CountUnread(ctx context.Context, recipient auth.Principal, now time.Time) (int64, error)
	// Transition moves a recipient's notification to status if it currently holds one of from.
	Transition(ctx context.Context, id primitive.ObjectID, recipient auth.Principal, from []Status, to Status, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, recipient auth.Principal, at time.Time) (int64, error)
	// Delete removes a notification. A zero recipient matches any owner.
	Delete(ctx context.Context, id primitive.ObjectID, recipient auth.Principal) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
