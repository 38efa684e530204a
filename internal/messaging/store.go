package messaging

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the conversation store. Missing documents are reported as nil, nil.
type Store interface {
	Insert(ctx context.Context, m *Message) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Message, error)
	// CountParticipation counts messages of the conversation sent or received by userID, deleted ones included.
	CountParticipation(ctx context.Context, conversationID, userID string) (int64, error)
	// ListConversation returns non-deleted messages newest first.
	ListConversation(ctx context.Context, conversationID string, skip, limit int64) ([]*Message, error)
	CountConversation(ctx context.Context, conversationID string) (int64, error)
	// Unread returns non-deleted messages addressed to recipientID that are not read and were created at or before cutoff.
	Unread(ctx context.Context, conversationID, recipientID string, cutoff time.Time) ([]*Message, error)
	// AdvanceStatus moves the message addressed to recipientID forward to status. It reports false when nothing changed.
	AdvanceStatus(ctx context.Context, id primitive.ObjectID, recipientID string, status Status, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID, senderID string, at time.Time) error
	Conversations(ctx context.Context, viewerID string) ([]Conversation, error)
	Search(ctx context.Context, viewerID, query, conversationID string, limit int64) ([]*Message, error)
}
