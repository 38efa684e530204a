package messaging

import (
	"errors"
	"strings"
	"time"

	"Fly8Backend/internal/auth"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status is the delivery lifecycle of a message. It only moves forward.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

// before lists every status a message may hold and still advance to s.
func (s Status) before() []Status {
	var out []Status
	for _, st := range []Status{StatusSent, StatusDelivered} {
		if st.rank() < s.rank() {
			out = append(out, st)
		}
	}
	return out
}

type Attachment struct {
	URL      string `bson:"url" json:"url"`
	FileName string `bson:"file_name" json:"fileName"`
	FileType string `bson:"file_type" json:"fileType"`
	FileSize int64  `bson:"file_size" json:"fileSize"`
}

// Message is one direct message between a student and an advisor.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID string             `bson:"conversation_id" json:"conversationId"`
	Sender         auth.Principal     `bson:"sender" json:"sender"`
	Recipient      auth.Principal     `bson:"recipient" json:"recipient"`
	Content        string             `bson:"content" json:"content"`
	Attachments    []Attachment       `bson:"attachments" json:"attachments"`
	Status         Status             `bson:"status" json:"status"`
	ReadAt         *time.Time         `bson:"read_at,omitempty" json:"readAt,omitempty"`
	IsDeleted      bool               `bson:"is_deleted" json:"isDeleted"`
	CreatedAt      time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updatedAt"`
}

func (m *Message) clone() *Message {
	c := *m
	c.Attachments = append([]Attachment(nil), m.Attachments...)
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	return &c
}

// Conversation is computed on read from the messages sharing a conversation id.
type Conversation struct {
	ConversationID string         `json:"conversationId"`
	Counterparty   auth.Principal `json:"counterparty"`
	LastMessage    *Message       `json:"lastMessage"`
	UnreadCount    int64          `json:"unreadCount"`
}

// Page is one page of a conversation, oldest message first.
type Page struct {
	Messages      []*Message `json:"messages"`
	CurrentPage   int        `json:"currentPage"`
	TotalPages    int        `json:"totalPages"`
	TotalMessages int64      `json:"totalMessages"`
	HasMore       bool       `json:"hasMore"`
}

const conversationSeparator = "-"

var (
	ErrSelfConversation = errors.New("a conversation needs two distinct participants")
	ErrAmbiguousID      = errors.New("participant ids cannot contain the conversation separator")
)

// DeriveConversationID joins the two participant ids in lexicographic order, so both directions share one id.
// Ids containing the separator are refused so a conversation id always splits back into exactly two parties.
func DeriveConversationID(a, b string) (string, error) {
	if a == "" || b == "" || a == b {
		return "", ErrSelfConversation
	}
	if strings.Contains(a, conversationSeparator) || strings.Contains(b, conversationSeparator) {
		return "", ErrAmbiguousID
	}
	if b < a {
		a, b = b, a
	}
	return a + conversationSeparator + b, nil
}

// ConversationIncludes reports whether userID is one of the two parties encoded in conversationID.
func ConversationIncludes(conversationID, userID string) bool {
	parts := strings.Split(conversationID, conversationSeparator)
	if userID == "" || len(parts) != 2 {
		return false
	}
	return parts[0] == userID || parts[1] == userID
}
