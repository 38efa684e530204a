package realtime

import (
	"sync"
	"time"

	"Fly8Backend/internal/apperror"
	"Fly8Backend/internal/auth"
	"Fly8Backend/internal/messaging"
	"Fly8Backend/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sendBuffer = 64

// Session is one live connection. Its channel memberships are owned by the Hub.
type Session struct {
	ID        string
	Principal auth.Principal

	send   chan []byte
	log    *zap.Logger
	closed bool
	// joined is the personal channel this session belongs to, empty until join.
	joined        string
	conversations map[string]struct{}
}

// Outbox is the stream of encoded frames for the connection's writer.
func (s *Session) Outbox() <-chan []byte {
	return s.send
}

type set map[*Session]struct{}

// Hub maps user ids and conversation ids to live sessions. State is per process and never persisted.
type Hub struct {
	mu            sync.RWMutex
	sessions      set
	users         map[string]set
	conversations map[string]set

	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewHub(m *metrics.Metrics, log *zap.Logger) *Hub {
	return &Hub{
		sessions:      set{},
		users:         map[string]set{},
		conversations: map[string]set{},
		metrics:       m,
		log:           log.Named("realtime"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Connect registers a new session for p.
func (h *Hub) Connect(p auth.Principal) *Session {
	s := &Session{
		ID:            uuid.NewString(),
		Principal:     p,
		send:          make(chan []byte, sendBuffer),
		conversations: map[string]struct{}{},
	}
	s.log = h.log.With(zap.String("session_id", s.ID), zap.String("user_id", p.ID))

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	h.metrics.Connections.Inc()
	s.log.Debug("session connected")
	return s
}

// Join adds s to the personal channel of userID, which must be the session's own id.
// The first connection of a user announces user-online to everyone.
func (h *Hub) Join(s *Session, userID string) error {
	if userID != s.Principal.ID {
		return apperror.AccessDenied("Cannot join another user's channel")
	}

	h.mu.Lock()
	if s.closed || s.joined == userID {
		h.mu.Unlock()
		return nil
	}
	s.joined = userID
	members, ok := h.users[userID]
	if !ok {
		members = set{}
		h.users[userID] = members
	}
	members[s] = struct{}{}
	first := len(members) == 1
	h.mu.Unlock()

	if first {
		h.broadcast(EventUserOnline, PresenceEvent{UserID: userID, Role: s.Principal.Role})
	}
	return nil
}

// Leave removes s from its personal channel without closing it.
func (h *Hub) Leave(s *Session, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.joined != userID {
		return
	}
	h.leaveUserLocked(s)
}

// leaveUserLocked reports whether s was the user's last session.
func (h *Hub) leaveUserLocked(s *Session) bool {
	if s.joined == "" {
		return false
	}
	userID := s.joined
	s.joined = ""
	members := h.users[userID]
	delete(members, s)
	if len(members) == 0 {
		delete(h.users, userID)
		return true
	}
	return false
}

// JoinConversation subscribes s to a conversation the session's user takes part in.
func (h *Hub) JoinConversation(s *Session, conversationID string) error {
	if !messaging.ConversationIncludes(conversationID, s.Principal.ID) {
		return apperror.AccessDenied("You do not have access to this conversation")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return nil
	}
	members, ok := h.conversations[conversationID]
	if !ok {
		members = set{}
		h.conversations[conversationID] = members
	}
	members[s] = struct{}{}
	s.conversations[conversationID] = struct{}{}
	return nil
}

func (h *Hub) LeaveConversation(s *Session, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveConversationLocked(s, conversationID)
}

func (h *Hub) leaveConversationLocked(s *Session, conversationID string) {
	delete(s.conversations, conversationID)
	if members, ok := h.conversations[conversationID]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.conversations, conversationID)
		}
	}
}

// Typing relays a typing signal to the other subscribers of the conversation.
func (h *Hub) Typing(s *Session, conversationID string) error {
	return h.relayTyping(s, conversationID, EventUserTyping)
}

func (h *Hub) StopTyping(s *Session, conversationID string) error {
	return h.relayTyping(s, conversationID, EventUserStopTyping)
}

func (h *Hub) relayTyping(s *Session, conversationID, event string) error {
	if !messaging.ConversationIncludes(conversationID, s.Principal.ID) {
		return apperror.AccessDenied("You do not have access to this conversation")
	}
	frame, err := encode(event, TypingEvent{ConversationID: conversationID, UserID: s.Principal.ID})
	if err != nil {
		return apperror.Infrastructure("Failed to encode event", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliverLocked(event, h.conversations[conversationID], s, frame)
	return nil
}

// EmitToUser delivers to every session joined to userID. Offline users simply miss the event.
func (h *Hub) EmitToUser(userID, event string, payload interface{}) {
	h.emit(event, payload, func() set { return h.users[userID] })
}

// EmitToConversation delivers to every session subscribed to conversationID.
func (h *Hub) EmitToConversation(conversationID, event string, payload interface{}) {
	h.emit(event, payload, func() set { return h.conversations[conversationID] })
}

// Send delivers an event to a single session, used for acknowledgements and errors.
func (h *Hub) Send(s *Session, event string, payload interface{}) {
	h.emit(event, payload, func() set { return set{s: {}} })
}

func (h *Hub) broadcast(event string, payload interface{}) {
	h.emit(event, payload, func() set { return h.sessions })
}

func (h *Hub) emit(event string, payload interface{}, targets func() set) {
	frame, err := encode(event, payload)
	if err != nil {
		h.log.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliverLocked(event, targets(), nil, frame)
}

// deliverLocked queues frame on every target except skip. A session whose buffer is full loses the frame.
// Callers hold at least the read lock, which keeps Disconnect from closing a channel mid-send.
func (h *Hub) deliverLocked(event string, targets set, skip *Session, frame []byte) {
	attempted, delivered := 0, 0
	for s := range targets {
		if s == skip || s.closed {
			continue
		}
		attempted++
		select {
		case s.send <- frame:
			delivered++
		default:
			h.metrics.EventsDropped.WithLabelValues(event, "buffer_full").Inc()
			s.log.Warn("send buffer full, dropping event", zap.String("event", event))
		}
	}
	if attempted == 0 {
		h.metrics.EventsDropped.WithLabelValues(event, "no_subscriber").Inc()
		return
	}
	h.metrics.EventsDelivered.WithLabelValues(event).Add(float64(delivered))
}

// Disconnect drops every membership of s and closes its outbox.
// When it was the user's last joined session, everyone is told the user went offline.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	if s.closed {
		h.mu.Unlock()
		return
	}
	s.closed = true
	userID := s.joined
	last := h.leaveUserLocked(s)
	for conversationID := range s.conversations {
		h.leaveConversationLocked(s, conversationID)
	}
	delete(h.sessions, s)
	close(s.send)
	h.mu.Unlock()

	h.metrics.Connections.Dec()
	s.log.Debug("session disconnected")
	if last {
		seen := h.now()
		h.broadcast(EventUserOffline, PresenceEvent{UserID: userID, Role: s.Principal.Role, LastSeen: &seen})
	}
}

// Online reports whether userID has at least one joined session.
func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// Shutdown disconnects every session.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	all := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		all = append(all, s)
	}
	h.mu.RUnlock()

	for _, s := range all {
		h.Disconnect(s)
	}
	h.log.Info("realtime hub stopped", zap.Int("sessions", len(all)))
}
