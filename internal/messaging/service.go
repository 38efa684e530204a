package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"Fly8Backend/internal/apperror"
	"Fly8Backend/internal/auth"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Events pushed to connected clients after a successful mutation.
const (
	EventNewMessage       = "new-message"
	EventMessageRead      = "message-read"
	EventMessageDelivered = "message-delivered"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	searchLimit     = 50
)

// Broadcaster pushes an event to live connections. Delivery is fire-and-forget.
type Broadcaster interface {
	EmitToUser(userID, event string, payload interface{})
	EmitToConversation(conversationID, event string, payload interface{})
}

// MessageEvent is the payload of new-message and message-sent.
type MessageEvent struct {
	Message *Message `json:"message"`
}

// ReceiptEvent is the payload of message-read and message-delivered.
type ReceiptEvent struct {
	MessageID      primitive.ObjectID `json:"messageId"`
	ConversationID string             `json:"conversationId"`
	ReadAt         *time.Time         `json:"readAt,omitempty"`
	DeliveredAt    *time.Time         `json:"deliveredAt,omitempty"`
}

// SendInput describes a new message. The sender is always the verified principal.
type SendInput struct {
	Sender        auth.Principal
	RecipientID   string
	RecipientRole auth.Role
	Content       string
	Attachments   []Attachment
}

// Service implements direct messaging between students and advisors.
type Service struct {
	store       Store
	directory   auth.Directory
	broadcaster Broadcaster
	log         *zap.Logger
	now         func() time.Time
}

func NewService(store Store, directory auth.Directory, broadcaster Broadcaster, log *zap.Logger) *Service {
	return &Service{
		store:       store,
		directory:   directory,
		broadcaster: broadcaster,
		log:         log.Named("messaging"),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperror.Validation("Invalid message ID")
	}
	return oid, nil
}

func infra(msg string, err error) error {
	return apperror.Infrastructure(msg, err)
}

// Send stores a new message and pushes it to the recipient and the conversation channel.
func (s *Service) Send(ctx context.Context, in SendInput) (*Message, error) {
	content := strings.TrimSpace(in.Content)
	if in.RecipientID == "" {
		return nil, apperror.Validation("Recipient ID is required")
	}
	if content == "" {
		return nil, apperror.Validation("Message content cannot be empty")
	}
	if !in.RecipientRole.Valid() {
		return nil, apperror.Validation("Invalid recipient role %q", in.RecipientRole)
	}
	for _, a := range in.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			return nil, apperror.Validation("Attachment url is required")
		}
		if a.FileSize < 0 {
			return nil, apperror.Validation("Attachment size cannot be negative")
		}
	}

	conversationID, err := DeriveConversationID(in.Sender.ID, in.RecipientID)
	if errors.Is(err, ErrAmbiguousID) {
		return nil, apperror.Validation("Invalid participant ID")
	}
	if err != nil {
		return nil, apperror.Validation("Cannot send a message to yourself")
	}

	recipient := auth.Principal{ID: in.RecipientID, Role: in.RecipientRole}
	exists, err := s.directory.Exists(ctx, recipient)
	if err != nil {
		return nil, infra("Error sending message", err)
	}
	if !exists {
		return nil, apperror.NotFound("Recipient not found")
	}

	now := s.now()
	attachments := in.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	msg := &Message{
		ConversationID: conversationID,
		Sender:         in.Sender,
		Recipient:      recipient,
		Content:        content,
		Attachments:    attachments,
		Status:         StatusSent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Insert(ctx, msg); err != nil {
		return nil, infra("Error sending message", err)
	}

	s.log.Debug("message sent",
		zap.String("message_id", msg.ID.Hex()),
		zap.String("conversation_id", conversationID))

	event := MessageEvent{Message: msg}
	s.broadcaster.EmitToUser(recipient.ID, EventNewMessage, event)
	s.broadcaster.EmitToConversation(conversationID, EventNewMessage, event)
	return msg, nil
}

// ListConversations returns one summary per conversation touching the viewer, most recent first.
func (s *Service) ListConversations(ctx context.Context, viewer auth.Principal) ([]Conversation, error) {
	conversations, err := s.store.Conversations(ctx, viewer.ID)
	if err != nil {
		return nil, infra("Error fetching conversations", err)
	}
	return conversations, nil
}

// ListMessages returns one page of a conversation, oldest first, and marks the viewer's unread messages as read.
// Page 1 holds the most recent messages.
func (s *Service) ListMessages(ctx context.Context, conversationID string, viewer auth.Principal, page, pageSize int) (*Page, error) {
	if page < 1 {
		return nil, apperror.Validation("page must be a positive integer")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, apperror.Validation("limit must be between 1 and %d", MaxPageSize)
	}

	participated, err := s.store.CountParticipation(ctx, conversationID, viewer.ID)
	if err != nil {
		return nil, infra("Error fetching messages", err)
	}
	if participated == 0 {
		return nil, apperror.AccessDenied("You do not have access to this conversation")
	}

	snapshot := s.now()
	total, err := s.store.CountConversation(ctx, conversationID)
	if err != nil {
		return nil, infra("Error fetching messages", err)
	}
	messages, err := s.store.ListConversation(ctx, conversationID, int64(page-1)*int64(pageSize), int64(pageSize))
	if err != nil {
		return nil, infra("Error fetching messages", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	readAt, err := s.markConversationRead(ctx, conversationID, viewer.ID, snapshot)
	if err != nil {
		return nil, infra("Error fetching messages", err)
	}
	for _, m := range messages {
		if t, ok := readAt[m.ID]; ok {
			m.Status = StatusRead
			m.ReadAt = &t
		}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &Page{
		Messages:      messages,
		CurrentPage:   page,
		TotalPages:    totalPages,
		TotalMessages: total,
		HasMore:       page < totalPages,
	}, nil
}

// markConversationRead reads every unread message addressed to recipientID that existed at cutoff.
// Each message is advanced on its own so a receipt is emitted exactly once per newly read message.
func (s *Service) markConversationRead(ctx context.Context, conversationID, recipientID string, cutoff time.Time) (map[primitive.ObjectID]time.Time, error) {
	unread, err := s.store.Unread(ctx, conversationID, recipientID, cutoff)
	if err != nil {
		return nil, err
	}
	marked := make(map[primitive.ObjectID]time.Time, len(unread))
	for _, m := range unread {
		now := s.now()
		changed, err := s.store.AdvanceStatus(ctx, m.ID, recipientID, StatusRead, now)
		if err != nil {
			return nil, err
		}
		if !changed {
			continue
		}
		marked[m.ID] = now
		s.broadcaster.EmitToUser(m.Sender.ID, EventMessageRead, ReceiptEvent{
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
			ReadAt:         &now,
		})
	}
	return marked, nil
}

// recipientMessage loads a live message addressed to viewer, or fails with NotFound.
func (s *Service) recipientMessage(ctx context.Context, messageID string, viewer auth.Principal) (*Message, error) {
	id, err := parseID(messageID)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, infra("Error updating message", err)
	}
	if msg == nil || msg.IsDeleted || msg.Recipient.ID != viewer.ID {
		return nil, apperror.NotFound("Message not found")
	}
	return msg, nil
}

// MarkRead is idempotent: a message that is already read is returned unchanged and no receipt is emitted.
func (s *Service) MarkRead(ctx context.Context, messageID string, viewer auth.Principal) (*Message, error) {
	msg, err := s.recipientMessage(ctx, messageID, viewer)
	if err != nil {
		return nil, err
	}
	if msg.Status == StatusRead {
		return msg, nil
	}

	now := s.now()
	changed, err := s.store.AdvanceStatus(ctx, msg.ID, viewer.ID, StatusRead, now)
	if err != nil {
		return nil, infra("Error updating message", err)
	}
	if !changed {
		return s.reload(ctx, msg)
	}

	msg.Status = StatusRead
	msg.ReadAt = &now
	msg.UpdatedAt = now
	s.broadcaster.EmitToUser(msg.Sender.ID, EventMessageRead, ReceiptEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		ReadAt:         &now,
	})
	return msg, nil
}

// MarkDelivered advances sent -> delivered. Delivered and read messages are left alone.
func (s *Service) MarkDelivered(ctx context.Context, messageID string, viewer auth.Principal) (*Message, error) {
	msg, err := s.recipientMessage(ctx, messageID, viewer)
	if err != nil {
		return nil, err
	}
	if msg.Status != StatusSent {
		return msg, nil
	}

	now := s.now()
	changed, err := s.store.AdvanceStatus(ctx, msg.ID, viewer.ID, StatusDelivered, now)
	if err != nil {
		return nil, infra("Error updating message", err)
	}
	if !changed {
		return s.reload(ctx, msg)
	}

	msg.Status = StatusDelivered
	msg.UpdatedAt = now
	s.broadcaster.EmitToUser(msg.Sender.ID, EventMessageDelivered, ReceiptEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		DeliveredAt:    &now,
	})
	return msg, nil
}

// reload re-reads a message whose conditional update lost a race with a concurrent writer.
func (s *Service) reload(ctx context.Context, msg *Message) (*Message, error) {
	current, err := s.store.FindByID(ctx, msg.ID)
	if err != nil {
		return nil, infra("Error updating message", err)
	}
	if current == nil {
		return msg, nil
	}
	return current, nil
}

// SoftDelete hides a message from conversation views. Only the sender may delete, and repeating it is harmless.
func (s *Service) SoftDelete(ctx context.Context, messageID string, sender auth.Principal) error {
	id, err := parseID(messageID)
	if err != nil {
		return err
	}
	msg, err := s.store.FindByID(ctx, id)
	if err != nil {
		return infra("Error deleting message", err)
	}
	if msg == nil {
		return apperror.NotFound("Message not found")
	}
	if msg.Sender.ID != sender.ID {
		return apperror.AccessDenied("Only the sender can delete this message")
	}
	if msg.IsDeleted {
		return nil
	}
	if err := s.store.SoftDelete(ctx, id, sender.ID, s.now()); err != nil {
		return infra("Error deleting message", err)
	}
	return nil
}

// Get returns a message to either participant, soft-deleted or not.
func (s *Service) Get(ctx context.Context, messageID string, viewer auth.Principal) (*Message, error) {
	id, err := parseID(messageID)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, infra("Error fetching message", err)
	}
	if msg == nil || !involves(msg, viewer.ID) {
		return nil, apperror.NotFound("Message not found")
	}
	return msg, nil
}

// Search does a case-insensitive substring match over the viewer's visible messages, newest first.
func (s *Service) Search(ctx context.Context, viewer auth.Principal, query, conversationID string) ([]*Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperror.Validation("Search query is required")
	}
	messages, err := s.store.Search(ctx, viewer.ID, query, conversationID, searchLimit)
	if err != nil {
		return nil, infra("Error searching messages", err)
	}
	return messages, nil
}
