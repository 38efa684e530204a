package realtime

import (
	"encoding/json"
	"time"

	"Fly8Backend/internal/auth"
)

// Server-originated events that are not produced by the messaging or notification services.
const (
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
	EventUserTyping        = "user-typing"
	EventUserStopTyping    = "user-stop-typing"
	EventError             = "error"
	EventMessageSent       = "message-sent"
	EventNotificationsList = "notifications-list"
	EventUnreadCount       = "unread-count"
)

// Client-originated events.
const (
	ClientJoin                 = "join"
	ClientLeave                = "leave"
	ClientJoinConversation     = "join-conversation"
	ClientLeaveConversation    = "leave-conversation"
	ClientTyping               = "typing"
	ClientStopTyping           = "stop-typing"
	ClientMarkMessageRead      = "mark-message-read"
	ClientMarkMessageDelivered = "mark-message-delivered"
	ClientMarkNotificationRead = "mark-notification-read"
	ClientGetNotifications     = "get-notifications"
	ClientGetUnreadCount       = "get-unread-count"
	ClientSendMessage          = "send-message"
)

// Envelope is a single text frame in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outgoing struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(outgoing{Event: event, Data: payload})
}

type PresenceEvent struct {
	UserID   string     `json:"userId"`
	Role     auth.Role  `json:"userType"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
