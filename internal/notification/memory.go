package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"Fly8Backend/internal/auth"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps notifications in process memory. It backs the memory storage mode and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications map[primitive.ObjectID]*Notification
	// failInsert makes the next InsertMany fail, for exercising the all-or-nothing path.
	failInsert error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notifications: make(map[primitive.ObjectID]*Notification)}
}

func (f Filter) matches(n *Notification) bool {
	if f.Status != "" && n.Status != f.Status {
		return false
	}
	if f.Type != "" && n.Type != f.Type {
		return false
	}
	if f.Priority != "" && n.Priority != f.Priority {
		return false
	}
	if f.From != nil && n.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && n.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func (s *MemoryStore) matching(recipient auth.Principal, f Filter, now time.Time) []*Notification {
	out := []*Notification{}
	for _, n := range s.notifications {
		if n.Recipient == recipient && !n.Expired(now) && f.matches(n) {
			out = append(out, n.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.PriorityRank != b.PriorityRank {
			return a.PriorityRank > b.PriorityRank
		}
		return a.ID.Hex() > b.ID.Hex()
	})
	return out
}

func (s *MemoryStore) InsertMany(_ context.Context, notifications []*Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failInsert; err != nil {
		s.failInsert = nil
		return err
	}
	for _, n := range notifications {
		if n.ID.IsZero() {
			n.ID = primitive.NewObjectID()
		}
		s.notifications[n.ID] = n.clone()
	}
	return nil
}

func (s *MemoryStore) Find(_ context.Context, id primitive.ObjectID) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.notifications[id]; ok {
		return n.clone(), nil
	}
	return nil, nil
}

func (s *MemoryStore) List(_ context.Context, recipient auth.Principal, f Filter, now time.Time, skip, limit int64) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.matching(recipient, f, now)
	if skip >= int64(len(all)) {
		return []*Notification{}, nil
	}
	end := skip + limit
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	return all[skip:end], nil
}

func (s *MemoryStore) Count(_ context.Context, recipient auth.Principal, f Filter, now time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matching(recipient, f, now))), nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, recipient auth.Principal, now time.Time) (int64, error) {
	return s.Count(ctx, recipient, Filter{Status: StatusUnread}, now)
}

func (s *MemoryStore) Transition(_ context.Context, id primitive.ObjectID, recipient auth.Principal, from []Status, to Status, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.Recipient != recipient {
		return false, nil
	}
	for _, st := range from {
		if n.Status == st {
			n.Status = to
			n.UpdatedAt = at
			if to == StatusRead {
				readAt := at
				n.ReadAt = &readAt
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, recipient auth.Principal, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.notifications {
		if item.Recipient == recipient && item.Status == StatusUnread && !item.Expired(at) {
			readAt := at
			item.Status = StatusRead
			item.ReadAt = &readAt
			item.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Delete(_ context.Context, id primitive.ObjectID, recipient auth.Principal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || (recipient.ID != "" && n.Recipient != recipient) {
		return false, nil
	}
	delete(s.notifications, id)
	return true, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, item := range s.notifications {
		if item.Expired(now) {
			delete(s.notifications, id)
			n++
		}
	}
	return n, nil
}
