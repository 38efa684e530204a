package messaging

import (
	"context"
	"regexp"
	"time"

	"Fly8Backend/internal/config"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository is the MongoDB conversation store.
type MessageRepository struct {
	collection *mongo.Collection
}

// NewMessageRepository binds the messages collection and ensures its indexes.
func NewMessageRepository(db *mongo.Database) (*MessageRepository, error) {
	collection := db.Collection("messages")
	err := config.CreateIndexes(collection, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "sender.id", Value: 1}, {Key: "recipient.id", Value: 1}}},
		{Keys: bson.D{{Key: "recipient.id", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return nil, err
	}
	return &MessageRepository{collection: collection}, nil
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func participantFilter(userID string) bson.A {
	return bson.A{bson.M{"sender.id": userID}, bson.M{"recipient.id": userID}}
}

func (r *MessageRepository) Insert(ctx context.Context, m *Message) error {
	res, err := r.collection.InsertOne(ctx, m)
	if err != nil {
		return errors.Wrap(err, "insert message")
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		m.ID = oid
	}
	return nil
}

func (r *MessageRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Message, error) {
	var m Message
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, errors.Wrap(err, "find message")
	}
	return &m, nil
}

func (r *MessageRepository) CountParticipation(ctx context.Context, conversationID, userID string) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{
		"conversation_id": conversationID,
		"$or":             participantFilter(userID),
	})
	return n, errors.Wrap(err, "count participation")
}

func (r *MessageRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]*Message, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	messages := []*Message{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *MessageRepository) ListConversation(ctx context.Context, conversationID string, skip, limit int64) ([]*Message, error) {
	opts := options.Find().SetSort(newestFirst).SetSkip(skip).SetLimit(limit)
	messages, err := r.find(ctx, bson.M{"conversation_id": conversationID, "is_deleted": false}, opts)
	return messages, errors.Wrap(err, "list conversation")
}

func (r *MessageRepository) CountConversation(ctx context.Context, conversationID string) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"conversation_id": conversationID, "is_deleted": false})
	return n, errors.Wrap(err, "count conversation")
}

func (r *MessageRepository) Unread(ctx context.Context, conversationID, recipientID string, cutoff time.Time) ([]*Message, error) {
	filter := bson.M{
		"conversation_id": conversationID,
		"recipient.id":    recipientID,
		"status":          bson.M{"$ne": StatusRead},
		"is_deleted":      false,
		"created_at":      bson.M{"$lte": cutoff},
	}
	messages, err := r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	return messages, errors.Wrap(err, "find unread")
}

func (r *MessageRepository) AdvanceStatus(ctx context.Context, id primitive.ObjectID, recipientID string, status Status, at time.Time) (bool, error) {
	set := bson.M{"status": status, "updated_at": at}
	if status == StatusRead {
		set["read_at"] = at
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{
		"_id":          id,
		"recipient.id": recipientID,
		"status":       bson.M{"$in": status.before()},
	}, bson.M{"$set": set})
	if err != nil {
		return false, errors.Wrap(err, "advance message status")
	}
	return res.ModifiedCount > 0, nil
}

func (r *MessageRepository) SoftDelete(ctx context.Context, id primitive.ObjectID, senderID string, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "sender.id": senderID},
		bson.M{"$set": bson.M{"is_deleted": true, "updated_at": at}})
	return errors.Wrap(err, "soft delete message")
}

// Conversations groups the viewer's messages by conversation, keeping the latest message and the unread count.
func (r *MessageRepository) Conversations(ctx context.Context, viewerID string) ([]Conversation, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": participantFilter(viewerID), "is_deleted": false}}},
		{{Key: "$sort", Value: newestFirst}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$conversation_id",
			"lastMessage": bson.M{"$first": "$$ROOT"},
			"unreadCount": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$recipient.id", viewerID}},
					bson.M{"$ne": bson.A{"$status", StatusRead}},
				}},
				1, 0,
			}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastMessage.created_at", Value: -1}, {Key: "lastMessage._id", Value: -1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrap(err, "aggregate conversations")
	}
	var rows []struct {
		ID          string   `bson:"_id"`
		LastMessage *Message `bson:"lastMessage"`
		UnreadCount int64    `bson:"unreadCount"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, errors.Wrap(err, "decode conversations")
	}

	conversations := make([]Conversation, 0, len(rows))
	for _, row := range rows {
		conversations = append(conversations, summarize(row.ID, viewerID, row.LastMessage, row.UnreadCount))
	}
	return conversations, nil
}

func (r *MessageRepository) Search(ctx context.Context, viewerID, query, conversationID string, limit int64) ([]*Message, error) {
	filter := bson.M{
		"$or":        participantFilter(viewerID),
		"content":    primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"},
		"is_deleted": false,
	}
	if conversationID != "" {
		filter["conversation_id"] = conversationID
	}
	messages, err := r.find(ctx, filter, options.Find().SetSort(newestFirst).SetLimit(limit))
	return messages, errors.Wrap(err, "search messages")
}

func summarize(conversationID, viewerID string, last *Message, unread int64) Conversation {
	counterparty := last.Sender
	if last.Sender.ID == viewerID {
		counterparty = last.Recipient
	}
	return Conversation{
		ConversationID: conversationID,
		Counterparty:   counterparty,
		LastMessage:    last,
		UnreadCount:    unread,
	}
}
