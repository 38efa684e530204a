package notification

import (
	"time"

	"Fly8Backend/internal/auth"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Type classifies a notification for the client UI.
type Type string

const (
	TypeInfo        Type = "info"
	TypeSuccess     Type = "success"
	TypeWarning     Type = "warning"
	TypeError       Type = "error"
	TypeAppointment Type = "appointment"
	TypeMessage     Type = "message"
	TypeSystem      Type = "system"
	TypeApplication Type = "application"
	TypeOffer       Type = "offer"
)

func (t Type) Valid() bool {
	switch t {
	case TypeInfo, TypeSuccess, TypeWarning, TypeError, TypeAppointment,
		TypeMessage, TypeSystem, TypeApplication, TypeOffer:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank orders priorities by severity; it is persisted so storage can sort on it.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityUrgent:
		return 4
	}
	return 0
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Status is the recipient-side lifecycle: unread -> read -> archived, never backward.
type Status string

const (
	StatusUnread   Status = "unread"
	StatusRead     Status = "read"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool {
	return s == StatusUnread || s == StatusRead || s == StatusArchived
}

// Metadata links a notification to the object that produced it.
type Metadata struct {
	AppointmentID  string            `bson:"appointment_id,omitempty" json:"appointmentId,omitempty"`
	MessageID      string            `bson:"message_id,omitempty" json:"messageId,omitempty"`
	ConversationID string            `bson:"conversation_id,omitempty" json:"conversationId,omitempty"`
	SenderID       string            `bson:"sender_id,omitempty" json:"senderId,omitempty"`
	Extra          map[string]string `bson:"extra,omitempty" json:"extra,omitempty"`
}

// Notification is a persisted notice addressed to exactly one recipient.
type Notification struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Recipient    auth.Principal     `bson:"recipient" json:"recipient"`
	Title        string             `bson:"title" json:"title"`
	Message      string             `bson:"message" json:"message"`
	Type         Type               `bson:"type" json:"type"`
	Priority     Priority           `bson:"priority" json:"priority"`
	PriorityRank int                `bson:"priority_rank" json:"-"`
	Link         string             `bson:"link,omitempty" json:"link,omitempty"`
	Metadata     Metadata           `bson:"metadata" json:"metadata"`
	Status       Status             `bson:"status" json:"status"`
	ReadAt       *time.Time         `bson:"read_at,omitempty" json:"readAt,omitempty"`
	ExpiresAt    *time.Time         `bson:"expires_at,omitempty" json:"expiresAt,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Expired reports whether n is past its expiry at now.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

func (n *Notification) clone() *Notification {
	c := *n
	if n.ReadAt != nil {
		t := *n.ReadAt
		c.ReadAt = &t
	}
	if n.ExpiresAt != nil {
		t := *n.ExpiresAt
		c.ExpiresAt = &t
	}
	if n.Metadata.Extra != nil {
		c.Metadata.Extra = make(map[string]string, len(n.Metadata.Extra))
		for k, v := range n.Metadata.Extra {
			c.Metadata.Extra[k] = v
		}
	}
	return &c
}

// Filter narrows a recipient's listing. Zero fields match everything.
type Filter struct {
	Status   Status
	Type     Type
	Priority Priority
	From     *time.Time
	To       *time.Time
}

// Page is one page of a recipient's notifications, newest first.
type Page struct {
	Notifications      []*Notification `json:"notifications"`
	CurrentPage        int             `json:"currentPage"`
	TotalPages         int             `json:"totalPages"`
	TotalNotifications int64           `json:"totalNotifications"`
	HasMore            bool            `json:"hasMore"`
}
