package messaging

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps messages in process memory. It backs the memory storage mode and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[primitive.ObjectID]*Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[primitive.ObjectID]*Message)}
}

func newer(a, b *Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.Hex() > b.ID.Hex()
}

func (s *MemoryStore) collect(match func(*Message) bool) []*Message {
	out := []*Message{}
	for _, m := range s.messages {
		if match(m) {
			out = append(out, m.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out
}

func involves(m *Message, userID string) bool {
	return m.Sender.ID == userID || m.Recipient.ID == userID
}

func (s *MemoryStore) Insert(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	s.messages[m.ID] = m.clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id primitive.ObjectID) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.messages[id]; ok {
		return m.clone(), nil
	}
	return nil, nil
}

func (s *MemoryStore) CountParticipation(_ context.Context, conversationID, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID && involves(m, userID) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListConversation(_ context.Context, conversationID string, skip, limit int64) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.collect(func(m *Message) bool { return m.ConversationID == conversationID && !m.IsDeleted })
	if skip >= int64(len(all)) {
		return []*Message{}, nil
	}
	end := skip + limit
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	return all[skip:end], nil
}

func (s *MemoryStore) CountConversation(_ context.Context, conversationID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, m := range s.messages {
		if m.ConversationID == conversationID && !m.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Unread(_ context.Context, conversationID, recipientID string, cutoff time.Time) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.collect(func(m *Message) bool {
		return m.ConversationID == conversationID && m.Recipient.ID == recipientID &&
			m.Status != StatusRead && !m.IsDeleted && !m.CreatedAt.After(cutoff)
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *MemoryStore) AdvanceStatus(_ context.Context, id primitive.ObjectID, recipientID string, status Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.Recipient.ID != recipientID || m.Status.rank() >= status.rank() {
		return false, nil
	}
	m.Status = status
	m.UpdatedAt = at
	if status == StatusRead {
		readAt := at
		m.ReadAt = &readAt
	}
	return true, nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, id primitive.ObjectID, senderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok && m.Sender.ID == senderID {
		m.IsDeleted = true
		m.UpdatedAt = at
	}
	return nil
}

func (s *MemoryStore) Conversations(_ context.Context, viewerID string) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := map[string]*Conversation{}
	var order []string
	for _, m := range s.collect(func(m *Message) bool { return involves(m, viewerID) && !m.IsDeleted }) {
		c, ok := byID[m.ConversationID]
		if !ok {
			conv := summarize(m.ConversationID, viewerID, m, 0)
			c = &conv
			byID[m.ConversationID] = c
			order = append(order, m.ConversationID)
		}
		if m.Recipient.ID == viewerID && m.Status != StatusRead {
			c.UnreadCount++
		}
	}

	out := make([]Conversation, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (s *MemoryStore) Search(_ context.Context, viewerID, query, conversationID string, limit int64) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(query)
	out := s.collect(func(m *Message) bool {
		return involves(m, viewerID) && !m.IsDeleted &&
			(conversationID == "" || m.ConversationID == conversationID) &&
			strings.Contains(strings.ToLower(m.Content), q)
	})
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}
