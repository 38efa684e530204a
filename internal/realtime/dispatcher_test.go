package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"Fly8Backend/internal/auth"
	"Fly8Backend/internal/messaging"
	"Fly8Backend/internal/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	hub           *Hub
	dispatcher    *Dispatcher
	messages      *messaging.Service
	notifications *notification.NotificationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	hub, _ := newHub(t)
	log := zaptest.NewLogger(t)

	dir := auth.NewStaticDirectory()
	dir.Add(student, true)
	dir.Add(advisor, true)

	messages := messaging.NewService(messaging.NewMemoryStore(), dir, hub, log)
	notifications := notification.NewNotificationService(notification.NewMemoryStore(), notification.NewUnreadCache(nil, nil, log), hub, log)
	return &harness{
		hub:           hub,
		dispatcher:    NewDispatcher(hub, messages, notifications, log),
		messages:      messages,
		notifications: notifications,
	}
}

func (h *harness) dispatch(s *Session, event string, data interface{}) {
	raw, _ := json.Marshal(data)
	h.dispatcher.Dispatch(context.Background(), s, Envelope{Event: event, Data: raw})
}

func (h *harness) joined(t *testing.T, p auth.Principal) *Session {
	s := h.hub.Connect(p)
	h.dispatch(s, ClientJoin, p.ID)
	drain(t, s)
	return s
}

func errorCode(t *testing.T, frames []frame) string {
	t.Helper()
	require.Len(t, frames, 1)
	require.Equal(t, EventError, frames[0].Event)
	var e ErrorEvent
	require.NoError(t, json.Unmarshal(frames[0].Data, &e))
	return e.Code
}

func TestSendMessageOverSocket(t *testing.T) {
	h := newHarness(t)
	s := h.joined(t, student)
	a := h.joined(t, advisor)
	drain(t, s)

	h.dispatch(s, ClientSendMessage, map[string]string{"recipientId": "a1", "content": "Hello", "tempId": "t-1"})

	sent := drain(t, s)
	require.Equal(t, []string{EventMessageSent}, events(sent))
	var ack messageSentEvent
	require.NoError(t, json.Unmarshal(sent[0].Data, &ack))
	assert.Equal(t, "t-1", ack.TempID)
	assert.Equal(t, conversation, ack.Message.ConversationID)
	assert.Equal(t, auth.RoleAdmin, ack.Message.Recipient.Role)

	assert.Equal(t, []string{messaging.EventNewMessage}, events(drain(t, a)))
}

func TestReadReceiptReachesSender(t *testing.T) {
	h := newHarness(t)
	s := h.joined(t, student)
	a := h.joined(t, advisor)
	drain(t, s)

	msg, err := h.messages.Send(context.Background(), messaging.SendInput{
		Sender: student, RecipientID: "a1", RecipientRole: auth.RoleAdmin, Content: "Hi",
	})
	require.NoError(t, err)
	drain(t, a)

	h.dispatch(a, ClientMarkMessageDelivered, map[string]string{"messageId": msg.ID.Hex()})
	h.dispatch(a, ClientMarkMessageRead, msg.ID.Hex())
	h.dispatch(a, ClientMarkMessageRead, msg.ID.Hex())

	assert.Equal(t, []string{messaging.EventMessageDelivered, messaging.EventMessageRead}, events(drain(t, s)))
	assert.Empty(t, drain(t, a))
}

func TestNotificationEventsOverSocket(t *testing.T) {
	h := newHarness(t)
	s := h.joined(t, student)

	n, err := h.notifications.Notify(context.Background(), student, notification.Content{Title: "Offer", Message: "Congratulations"})
	require.NoError(t, err)
	assert.Equal(t, []string{notification.EventNewNotification}, events(drain(t, s)))

	h.dispatch(s, ClientGetUnreadCount, nil)
	got := drain(t, s)
	require.Equal(t, []string{EventUnreadCount}, events(got))
	assert.JSONEq(t, `{"count":1}`, string(got[0].Data))

	h.dispatch(s, ClientGetNotifications, map[string]string{"status": "unread"})
	got = drain(t, s)
	require.Equal(t, []string{EventNotificationsList}, events(got))
	var list struct {
		Notifications []notification.Notification `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(got[0].Data, &list))
	require.Len(t, list.Notifications, 1)

	h.dispatch(s, ClientMarkNotificationRead, map[string]string{"notificationId": n.ID.Hex()})
	assert.Equal(t, []string{notification.EventNotificationRead}, events(drain(t, s)))
}

func TestSocketErrors(t *testing.T) {
	h := newHarness(t)
	s := h.hub.Connect(student)

	h.dispatch(s, ClientJoin, "a1")
	assert.Equal(t, "ACCESS_DENIED", errorCode(t, drain(t, s)))

	h.dispatch(s, ClientJoinConversation, map[string]string{"conversationId": "a9-s2"})
	assert.Equal(t, "ACCESS_DENIED", errorCode(t, drain(t, s)))

	h.dispatch(s, ClientSendMessage, map[string]string{"recipientId": "a1", "content": "  "})
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, drain(t, s)))

	h.dispatch(s, ClientMarkMessageRead, "64b7f0a1c2d3e4f5a6b7c8d9")
	assert.Equal(t, "NOT_FOUND", errorCode(t, drain(t, s)))

	h.dispatch(s, "status-update", "busy")
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, drain(t, s)))
}
