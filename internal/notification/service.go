package notification

import (
	"context"
	"strings"
	"time"

	"Fly8Backend/internal/apperror"
	"Fly8Backend/internal/auth"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	EventNewNotification  = "new-notification"
	EventNotificationRead = "notification-read"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Broadcaster pushes an event to a user's live connections.
type Broadcaster interface {
	EmitToUser(userID, event string, payload interface{})
}

// Content is everything about a notification except who receives it.
type Content struct {
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      Type       `json:"type"`
	Priority  Priority   `json:"priority"`
	Link      string     `json:"link"`
	Metadata  Metadata   `json:"metadata"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// ReadEvent is the payload of notification-read.
type ReadEvent struct {
	NotificationID primitive.ObjectID `json:"notificationId"`
	ReadAt         time.Time          `json:"readAt"`
}

// NotificationService creates notifications and applies recipient-scoped state changes.
type NotificationService struct {
	store       Store
	cache       UnreadCache
	broadcaster Broadcaster
	log         *zap.Logger
	now         func() time.Time
}

func NewNotificationService(store Store, cache UnreadCache, broadcaster Broadcaster, log *zap.Logger) *NotificationService {
	return &NotificationService{
		store:       store,
		cache:       cache,
		broadcaster: broadcaster,
		log:         log.Named("notification"),
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperror.Validation("Invalid notification ID")
	}
	return oid, nil
}

// normalize trims and defaults c, rejecting anything that cannot be stored.
func (s *NotificationService) normalize(c Content) (Content, error) {
	c.Title = strings.TrimSpace(c.Title)
	c.Message = strings.TrimSpace(c.Message)
	c.Link = strings.TrimSpace(c.Link)
	if c.Title == "" || c.Message == "" {
		return c, apperror.Validation("Title and message are required")
	}
	if c.Type == "" {
		c.Type = TypeInfo
	}
	if !c.Type.Valid() {
		return c, apperror.Validation("Invalid notification type %q", c.Type)
	}
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
	if !c.Priority.Valid() {
		return c, apperror.Validation("Invalid notification priority %q", c.Priority)
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(s.now()) {
		return c, apperror.Validation("expiresAt must be in the future")
	}
	return c, nil
}

func (s *NotificationService) build(recipient auth.Principal, c Content, now time.Time) *Notification {
	return &Notification{
		Recipient:    recipient,
		Title:        c.Title,
		Message:      c.Message,
		Type:         c.Type,
		Priority:     c.Priority,
		PriorityRank: c.Priority.Rank(),
		Link:         c.Link,
		Metadata:     c.Metadata,
		Status:       StatusUnread,
		ExpiresAt:    c.ExpiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Notify creates one unread notification and pushes it to the recipient.
func (s *NotificationService) Notify(ctx context.Context, recipient auth.Principal, c Content) (*Notification, error) {
	created, err := s.NotifyMany(ctx, []auth.Principal{recipient}, c)
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// NotifyMany creates one notification per distinct recipient in a single batch write.
// Either every notification is stored or none is.
func (s *NotificationService) NotifyMany(ctx context.Context, recipients []auth.Principal, c Content) ([]*Notification, error) {
	if len(recipients) == 0 {
		return nil, apperror.Validation("At least one recipient is required")
	}
	c, err := s.normalize(c)
	if err != nil {
		return nil, err
	}

	now := s.now()
	seen := make(map[auth.Principal]bool, len(recipients))
	batch := make([]*Notification, 0, len(recipients))
	for _, r := range recipients {
		if r.ID == "" || !r.Role.Valid() {
			return nil, apperror.Validation("Invalid recipient")
		}
		if seen[r] {
			continue
		}
		seen[r] = true
		batch = append(batch, s.build(r, c, now))
	}

	if err := s.store.InsertMany(ctx, batch); err != nil {
		return nil, apperror.Infrastructure("Error creating notifications", err)
	}
	s.log.Debug("notifications created", zap.Int("count", len(batch)), zap.String("type", string(c.Type)))

	for _, n := range batch {
		s.cache.Invalidate(ctx, n.Recipient)
		s.broadcaster.EmitToUser(n.Recipient.ID, EventNewNotification, n)
	}
	return batch, nil
}

// List returns a page of the recipient's live notifications, newest first and most urgent first within a tie.
func (s *NotificationService) List(ctx context.Context, recipient auth.Principal, filter Filter, page, pageSize int) (*Page, error) {
	if page < 1 {
		return nil, apperror.Validation("page must be a positive integer")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, apperror.Validation("limit must be between 1 and %d", MaxPageSize)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperror.Validation("Invalid status %q", filter.Status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, apperror.Validation("Invalid type %q", filter.Type)
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, apperror.Validation("Invalid priority %q", filter.Priority)
	}

	now := s.now()
	total, err := s.store.Count(ctx, recipient, filter, now)
	if err != nil {
		return nil, apperror.Infrastructure("Error fetching notifications", err)
	}
	notifications, err := s.store.List(ctx, recipient, filter, now, int64(page-1)*int64(pageSize), int64(pageSize))
	if err != nil {
		return nil, apperror.Infrastructure("Error fetching notifications", err)
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &Page{
		Notifications:      notifications,
		CurrentPage:        page,
		TotalPages:         totalPages,
		TotalNotifications: total,
		HasMore:            page < totalPages,
	}, nil
}

// owned loads a live notification belonging to recipient, or fails with NotFound.
func (s *NotificationService) owned(ctx context.Context, id string, recipient auth.Principal) (*Notification, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	n, err := s.store.Find(ctx, oid)
	if err != nil {
		return nil, apperror.Infrastructure("Error fetching notification", err)
	}
	if n == nil || n.Recipient != recipient || n.Expired(s.now()) {
		return nil, apperror.NotFound("Notification not found")
	}
	return n, nil
}

func (s *NotificationService) Get(ctx context.Context, id string, recipient auth.Principal) (*Notification, error) {
	return s.owned(ctx, id, recipient)
}

// MarkRead moves an unread notification to read. Read notifications are returned as they are;
// archived ones cannot go back.
func (s *NotificationService) MarkRead(ctx context.Context, id string, recipient auth.Principal) (*Notification, error) {
	n, err := s.owned(ctx, id, recipient)
	if err != nil {
		return nil, err
	}
	switch n.Status {
	case StatusRead:
		return n, nil
	case StatusArchived:
		return nil, apperror.Conflict("Archived notifications cannot be marked as read")
	}

	now := s.now()
	changed, err := s.store.Transition(ctx, n.ID, recipient, []Status{StatusUnread}, StatusRead, now)
	if err != nil {
		return nil, apperror.Infrastructure("Error updating notification", err)
	}
	if !changed {
		// Lost a race with another writer; report whatever state won.
		return s.MarkRead(ctx, id, recipient)
	}

	n.Status = StatusRead
	n.ReadAt = &now
	n.UpdatedAt = now
	s.cache.Invalidate(ctx, recipient)
	s.broadcaster.EmitToUser(recipient.ID, EventNotificationRead, ReadEvent{NotificationID: n.ID, ReadAt: now})
	return n, nil
}

// MarkAllRead reads every live unread notification of recipient and reports how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, recipient auth.Principal) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, recipient, s.now())
	if err != nil {
		return 0, apperror.Infrastructure("Error updating notifications", err)
	}
	s.cache.Invalidate(ctx, recipient)
	return count, nil
}

// Archive is terminal and idempotent.
func (s *NotificationService) Archive(ctx context.Context, id string, recipient auth.Principal) (*Notification, error) {
	n, err := s.owned(ctx, id, recipient)
	if err != nil {
		return nil, err
	}
	if n.Status == StatusArchived {
		return n, nil
	}

	now := s.now()
	changed, err := s.store.Transition(ctx, n.ID, recipient, []Status{StatusUnread, StatusRead}, StatusArchived, now)
	if err != nil {
		return nil, apperror.Infrastructure("Error archiving notification", err)
	}
	if !changed {
		return s.owned(ctx, id, recipient)
	}
	n.Status = StatusArchived
	n.UpdatedAt = now
	s.cache.Invalidate(ctx, recipient)
	return n, nil
}

// Remove hard-deletes one of the recipient's notifications.
func (s *NotificationService) Remove(ctx context.Context, id string, recipient auth.Principal) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	deleted, err := s.store.Delete(ctx, oid, recipient)
	if err != nil {
		return apperror.Infrastructure("Error deleting notification", err)
	}
	if !deleted {
		return apperror.NotFound("Notification not found")
	}
	s.cache.Invalidate(ctx, recipient)
	return nil
}

// RemoveAny hard-deletes a notification regardless of its recipient.
func (s *NotificationService) RemoveAny(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	n, err := s.store.Find(ctx, oid)
	if err != nil {
		return apperror.Infrastructure("Error deleting notification", err)
	}
	if n == nil {
		return apperror.NotFound("Notification not found")
	}
	deleted, err := s.store.Delete(ctx, oid, auth.Principal{})
	if err != nil {
		return apperror.Infrastructure("Error deleting notification", err)
	}
	if !deleted {
		return apperror.NotFound("Notification not found")
	}
	s.cache.Invalidate(ctx, n.Recipient)
	return nil
}

// UnreadCount counts live unread notifications, served from the cache when possible.
func (s *NotificationService) UnreadCount(ctx context.Context, recipient auth.Principal) (int64, error) {
	n, gen, ok := s.cache.Get(ctx, recipient)
	if ok {
		return n, nil
	}
	n, err := s.store.CountUnread(ctx, recipient, s.now())
	if err != nil {
		return 0, apperror.Infrastructure("Error counting notifications", err)
	}
	s.cache.Set(ctx, recipient, gen, n)
	return n, nil
}

// DeleteExpired evicts notifications whose expiry has passed.
func (s *NotificationService) DeleteExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, apperror.Infrastructure("Error deleting expired notifications", err)
	}
	return n, nil
}
