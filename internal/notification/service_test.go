package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Fly8Backend/internal/apperror"
	"Fly8Backend/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type pushed struct {
	userID  string
	event   string
	payload interface{}
}

type recorder struct {
	mu     sync.Mutex
	events []pushed
}

func (r *recorder) EmitToUser(userID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, pushed{userID, event, payload})
}

func (r *recorder) count(userID, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.userID == userID && e.event == event {
			n++
		}
	}
	return n
}

// mapCache is an in-process UnreadCache with Redis-like generations that records invalidations.
type mapCache struct {
	mu          sync.Mutex
	gens        map[auth.Principal]int64
	counts      map[auth.Principal]map[int64]int64
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{gens: map[auth.Principal]int64{}, counts: map[auth.Principal]map[int64]int64{}}
}

func (c *mapCache) Get(_ context.Context, p auth.Principal) (int64, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[p]
	n, ok := c.counts[p][gen]
	return n, gen, ok
}

func (c *mapCache) Set(_ context.Context, p auth.Principal, gen, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[p] == nil {
		c.counts[p] = map[int64]int64{}
	}
	c.counts[p][gen] = n
}

func (c *mapCache) Invalidate(_ context.Context, p auth.Principal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[p]++
	c.invalidated++
}

// interleavedStore runs during once, right after CountUnread has read the store.
type interleavedStore struct {
	*MemoryStore
	during func()
}

func (s *interleavedStore) CountUnread(ctx context.Context, recipient auth.Principal, now time.Time) (int64, error) {
	n, err := s.MemoryStore.CountUnread(ctx, recipient, now)
	if d := s.during; d != nil {
		s.during = nil
		d()
	}
	return n, err
}

var (
	s1 = auth.Principal{ID: "s1", Role: auth.RoleStudent}
	s2 = auth.Principal{ID: "s2", Role: auth.RoleStudent}
	s3 = auth.Principal{ID: "s3", Role: auth.RoleStudent}
)

type fixture struct {
	svc   *NotificationService
	store *MemoryStore
	cache *mapCache
	rec   *recorder
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: NewMemoryStore(),
		cache: newMapCache(),
		rec:   &recorder{},
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewNotificationService(f.store, f.cache, f.rec, zaptest.NewLogger(t))
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) notify(t *testing.T, to auth.Principal, c Content) *Notification {
	t.Helper()
	n, err := f.svc.Notify(context.Background(), to, c)
	require.NoError(t, err)
	f.advance(time.Second)
	return n
}

func reminder() Content {
	return Content{Title: "Reminder", Message: "Upload your transcript"}
}

func TestNotifyDefaultsAndEmits(t *testing.T) {
	f := newFixture(t)
	n := f.notify(t, s1, Content{Title: "  Welcome ", Message: "Hello"})

	assert.Equal(t, "Welcome", n.Title)
	assert.Equal(t, TypeInfo, n.Type)
	assert.Equal(t, PriorityMedium, n.Priority)
	assert.Equal(t, PriorityMedium.Rank(), n.PriorityRank)
	assert.Equal(t, StatusUnread, n.Status)
	assert.Equal(t, 1, f.rec.count("s1", EventNewNotification))
}

func TestNotifyValidation(t *testing.T) {
	f := newFixture(t)
	past := f.clock.Add(-time.Minute)

	tests := []struct {
		name      string
		recipient auth.Principal
		content   Content
	}{
		{"empty title", s1, Content{Message: "body"}},
		{"empty body", s1, Content{Title: "title", Message: "  "}},
		{"bad type", s1, Content{Title: "t", Message: "m", Type: "promo"}},
		{"bad priority", s1, Content{Title: "t", Message: "m", Priority: "critical"}},
		{"past expiry", s1, Content{Title: "t", Message: "m", ExpiresAt: &past}},
		{"bad role", auth.Principal{ID: "x", Role: "guest"}, reminder()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Notify(context.Background(), tt.recipient, tt.content)
			assert.True(t, apperror.Is(err, apperror.KindValidation), "got %v", err)
		})
	}
	assert.Empty(t, f.rec.events)
}

func TestNotifyManyCreatesOnePerRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.NotifyMany(ctx, []auth.Principal{s1, s2, s3}, reminder())
	require.NoError(t, err)
	assert.Len(t, created, 3)

	for _, p := range []auth.Principal{s1, s2, s3} {
		n, err := f.svc.UnreadCount(ctx, p)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n, p.ID)
		assert.Equal(t, 1, f.rec.count(p.ID, EventNewNotification), p.ID)
	}
}

func TestNotifyManyIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.failInsert = errors.New("write concern timeout")

	_, err := f.svc.NotifyMany(ctx, []auth.Principal{s1, s2}, reminder())
	assert.True(t, apperror.Is(err, apperror.KindInfrastructure))
	assert.Empty(t, f.rec.events)

	n, err := f.svc.UnreadCount(ctx, s1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNotifyManyDeduplicatesRecipients(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.NotifyMany(context.Background(), []auth.Principal{s1, s1, s2}, reminder())
	require.NoError(t, err)
	assert.Len(t, created, 2)
}

func TestListHidesExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soon := f.clock.Add(time.Hour)

	f.notify(t, s1, Content{Title: "Offer", Message: "Deadline", Type: TypeOffer, ExpiresAt: &soon})
	f.notify(t, s1, reminder())

	page, err := f.svc.List(ctx, s1, Filter{}, 1, DefaultPageSize)
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 2)

	f.advance(2 * time.Hour)
	page, err = f.svc.List(ctx, s1, Filter{}, 1, DefaultPageSize)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, "Reminder", page.Notifications[0].Title)
	assert.EqualValues(t, 1, page.TotalNotifications)

	n, err := f.svc.UnreadCount(ctx, s1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	removed, err := f.svc.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}

func TestListOrderingAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	older := f.notify(t, s1, Content{Title: "Old", Message: "m", Type: TypeSystem})
	// Same creation time: the urgent one must come first.
	low, err := f.svc.Notify(ctx, s1, Content{Title: "Low", Message: "m", Priority: PriorityLow})
	require.NoError(t, err)
	urgent, err := f.svc.Notify(ctx, s1, Content{Title: "Urgent", Message: "m", Priority: PriorityUrgent})
	require.NoError(t, err)
	f.notify(t, s2, reminder())

	page, err := f.svc.List(ctx, s1, Filter{}, 1, DefaultPageSize)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 3)
	assert.Equal(t, urgent.ID, page.Notifications[0].ID)
	assert.Equal(t, low.ID, page.Notifications[1].ID)
	assert.Equal(t, older.ID, page.Notifications[2].ID)

	page, err = f.svc.List(ctx, s1, Filter{Type: TypeSystem}, 1, DefaultPageSize)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, older.ID, page.Notifications[0].ID)

	from := older.CreatedAt.Add(time.Millisecond)
	page, err = f.svc.List(ctx, s1, Filter{From: &from}, 1, DefaultPageSize)
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 2)

	page, err = f.svc.List(ctx, s1, Filter{}, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page.Notifications, 1)
	assert.False(t, page.HasMore)

	page, err = f.svc.List(ctx, s1, Filter{}, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Notifications)

	_, err = f.svc.List(ctx, s1, Filter{Status: "pending"}, 1, DefaultPageSize)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
	_, err = f.svc.List(ctx, s1, Filter{}, 0, DefaultPageSize)
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestMarkReadStateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.notify(t, s1, reminder())
	id := n.ID.Hex()

	read, err := f.svc.MarkRead(ctx, id, s1)
	require.NoError(t, err)
	assert.Equal(t, StatusRead, read.Status)
	require.NotNil(t, read.ReadAt)

	again, err := f.svc.MarkRead(ctx, id, s1)
	require.NoError(t, err)
	assert.Equal(t, *read.ReadAt, *again.ReadAt)
	assert.Equal(t, 1, f.rec.count("s1", EventNotificationRead))

	archived, err := f.svc.Archive(ctx, id, s1)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, archived.Status)

	_, err = f.svc.MarkRead(ctx, id, s1)
	assert.True(t, apperror.Is(err, apperror.KindConflict))

	archived, err = f.svc.Archive(ctx, id, s1)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, archived.Status)

	stored, err := f.store.Find(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, stored.Status)
}

func TestArchiveFromUnread(t *testing.T) {
	f := newFixture(t)
	n := f.notify(t, s1, reminder())

	archived, err := f.svc.Archive(context.Background(), n.ID.Hex(), s1)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, archived.Status)
	assert.Nil(t, archived.ReadAt)
}

func TestOperationsAreScopedToRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.notify(t, s1, reminder())
	id := n.ID.Hex()

	_, err := f.svc.Get(ctx, id, s2)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	_, err = f.svc.MarkRead(ctx, id, s2)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	_, err = f.svc.Archive(ctx, id, s2)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	assert.True(t, apperror.Is(f.svc.Remove(ctx, id, s2), apperror.KindNotFound))

	// Same id, different role, is a different principal.
	_, err = f.svc.Get(ctx, id, auth.Principal{ID: "s1", Role: auth.RoleAdmin})
	assert.True(t, apperror.Is(err, apperror.KindNotFound))

	_, err = f.svc.Get(ctx, "zzz", s1)
	assert.True(t, apperror.Is(err, apperror.KindValidation))

	require.NoError(t, f.svc.Remove(ctx, id, s1))
	_, err = f.svc.Get(ctx, id, s1)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
}

func TestRemoveAny(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.notify(t, s2, reminder())

	require.NoError(t, f.svc.RemoveAny(ctx, n.ID.Hex()))
	assert.True(t, apperror.Is(f.svc.RemoveAny(ctx, n.ID.Hex()), apperror.KindNotFound))
}

func TestConcurrentMarkAllRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.notify(t, s1, reminder())
	}
	f.notify(t, s2, reminder())

	var wg sync.WaitGroup
	counts := make([]int64, 2)
	errs := make([]error, 2)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			counts[i], errs[i] = f.svc.MarkAllRead(ctx, s1)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.EqualValues(t, 5, counts[0]+counts[1])

	n, err := f.svc.UnreadCount(ctx, s1)
	require.NoError(t, err)
	assert.Zero(t, n)
	other, err := f.svc.UnreadCount(ctx, s2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, other)
}

func TestMarkAllReadSkipsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soon := f.clock.Add(time.Minute)
	expiring := f.notify(t, s1, Content{Title: "Flash", Message: "Ends soon", ExpiresAt: &soon})
	f.notify(t, s1, reminder())
	f.advance(time.Hour)

	count, err := f.svc.MarkAllRead(ctx, s1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	stored, err := f.store.Find(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUnread, stored.Status)
}

func TestUnreadCountUsesCacheUntilWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	n := f.notify(t, s1, reminder())
	f.notify(t, s1, reminder())

	count, err := f.svc.UnreadCount(ctx, s1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	cached, _, ok := f.cache.Get(ctx, s1)
	require.True(t, ok)
	assert.EqualValues(t, 2, cached)

	_, err = f.svc.MarkRead(ctx, n.ID.Hex(), s1)
	require.NoError(t, err)
	_, _, ok = f.cache.Get(ctx, s1)
	assert.False(t, ok)

	count, err = f.svc.UnreadCount(ctx, s1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestUnreadCountIgnoresCountComputedBeforeConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	store := &interleavedStore{MemoryStore: NewMemoryStore()}
	cache := newMapCache()
	svc := NewNotificationService(store, cache, &recorder{}, zaptest.NewLogger(t))
	store.during = func() {
		_, err := svc.Notify(ctx, s1, reminder())
		require.NoError(t, err)
	}

	first, err := svc.UnreadCount(ctx, s1)
	require.NoError(t, err)
	assert.Zero(t, first)
	assert.Equal(t, 1, cache.invalidated)

	second, err := svc.UnreadCount(ctx, s1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, second)

	third, err := svc.UnreadCount(ctx, s1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, third)
}
