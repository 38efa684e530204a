package realtime

import (
	"context"
	"encoding/json"

	"Fly8Backend/internal/apperror"
	"Fly8Backend/internal/messaging"
	"Fly8Backend/internal/notification"

	"go.uber.org/zap"
)

const socketNotificationLimit = 20

// Dispatcher routes client events to the hub and the services. Results and failures go back to
// the originating session as events; nothing is returned to the caller.
type Dispatcher struct {
	hub           *Hub
	messages      *messaging.Service
	notifications *notification.NotificationService
	log           *zap.Logger
}

func NewDispatcher(hub *Hub, messages *messaging.Service, notifications *notification.NotificationService, log *zap.Logger) *Dispatcher {
	return &Dispatcher{hub: hub, messages: messages, notifications: notifications, log: log.Named("realtime.dispatch")}
}

type idPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	NotificationID string `json:"notificationId"`
}

// decodeID accepts either a bare JSON string or an object carrying the named field.
func decodeID(data json.RawMessage, pick func(idPayload) string) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, nil
	}
	var p idPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", apperror.Validation("Invalid event payload")
	}
	return pick(p), nil
}

type getNotificationsPayload struct {
	Status notification.Status `json:"status"`
	Limit  int                 `json:"limit"`
}

type sendMessagePayload struct {
	RecipientID string                 `json:"recipientId"`
	Content     string                 `json:"content"`
	Attachments []messaging.Attachment `json:"attachments"`
	TempID      string                 `json:"tempId,omitempty"`
}

type messageSentEvent struct {
	Message *messaging.Message `json:"message"`
	TempID  string             `json:"tempId,omitempty"`
}

// Dispatch handles one inbound envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, env Envelope) {
	if err := d.handle(ctx, s, env); err != nil {
		d.fail(s, env.Event, err)
	}
}

func (d *Dispatcher) fail(s *Session, event string, err error) {
	fields := []zap.Field{zap.String("event", event), zap.String("session_id", s.ID), zap.Error(err)}
	if apperror.KindOf(err) == apperror.KindInfrastructure {
		d.log.Error("socket event failed", fields...)
	} else {
		d.log.Debug("socket event rejected", fields...)
	}
	d.hub.Send(s, EventError, ErrorEvent{Code: apperror.Code(err), Message: apperror.PublicMessage(err)})
}

func (d *Dispatcher) handle(ctx context.Context, s *Session, env Envelope) error {
	caller := s.Principal

	switch env.Event {
	case ClientJoin:
		id, err := decodeID(env.Data, func(p idPayload) string { return p.UserID })
		if err != nil {
			return err
		}
		return d.hub.Join(s, id)

	case ClientLeave:
		id, err := decodeID(env.Data, func(p idPayload) string { return p.UserID })
		if err != nil {
			return err
		}
		d.hub.Leave(s, id)
		return nil

	case ClientJoinConversation, ClientLeaveConversation, ClientTyping, ClientStopTyping:
		id, err := decodeID(env.Data, func(p idPayload) string { return p.ConversationID })
		if err != nil {
			return err
		}
		if id == "" {
			return apperror.Validation("conversationId is required")
		}
		switch env.Event {
		case ClientJoinConversation:
			return d.hub.JoinConversation(s, id)
		case ClientLeaveConversation:
			d.hub.LeaveConversation(s, id)
			return nil
		case ClientTyping:
			return d.hub.Typing(s, id)
		default:
			return d.hub.StopTyping(s, id)
		}

	case ClientMarkMessageRead:
		id, err := decodeID(env.Data, func(p idPayload) string { return p.MessageID })
		if err != nil {
			return err
		}
		_, err = d.messages.MarkRead(ctx, id, caller)
		return err

	case ClientMarkMessageDelivered:
		id, err := decodeID(env.Data, func(p idPayload) string { return p.MessageID })
		if err != nil {
			return err
		}
		_, err = d.messages.MarkDelivered(ctx, id, caller)
		return err

	case ClientMarkNotificationRead:
		id, err := decodeID(env.Data, func(p idPayload) string { return p.NotificationID })
		if err != nil {
			return err
		}
		_, err = d.notifications.MarkRead(ctx, id, caller)
		return err

	case ClientGetNotifications:
		var req getNotificationsPayload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &req); err != nil {
				return apperror.Validation("Invalid event payload")
			}
		}
		if req.Limit <= 0 {
			req.Limit = socketNotificationLimit
		}
		page, err := d.notifications.List(ctx, caller, notification.Filter{Status: req.Status}, 1, req.Limit)
		if err != nil {
			return err
		}
		d.hub.Send(s, EventNotificationsList, map[string]interface{}{"notifications": page.Notifications})
		return nil

	case ClientGetUnreadCount:
		count, err := d.notifications.UnreadCount(ctx, caller)
		if err != nil {
			return err
		}
		d.hub.Send(s, EventUnreadCount, map[string]int64{"count": count})
		return nil

	case ClientSendMessage:
		var req sendMessagePayload
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return apperror.Validation("Invalid event payload")
		}
		msg, err := d.messages.Send(ctx, messaging.SendInput{
			Sender:        caller,
			RecipientID:   req.RecipientID,
			RecipientRole: caller.Role.Counterpart(),
			Content:       req.Content,
			Attachments:   req.Attachments,
		})
		if err != nil {
			return err
		}
		d.hub.Send(s, EventMessageSent, messageSentEvent{Message: msg, TempID: req.TempID})
		return nil
	}

	return apperror.Validation("Unsupported event %q", env.Event)
}
