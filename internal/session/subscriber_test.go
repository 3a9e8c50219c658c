package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collab-service/internal/feed"
	"collab-service/internal/models"
)

type fakeSubscription struct {
	done chan struct{}
	once sync.Once
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeSubscription) Done() <-chan struct{} { return s.done }

type fakeFeed struct {
	sub     *fakeSubscription
	handler feed.Handler
	err     error
}

func (f *fakeFeed) Publish(_ context.Context, event feed.Event) error {
	if f.handler != nil {
		f.handler(event)
	}
	return nil
}

func (f *fakeFeed) Subscribe(_ string, handler feed.Handler) (feed.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.handler = handler
	f.sub = &fakeSubscription{done: make(chan struct{})}
	return f.sub, nil
}

type recorder struct {
	mu            sync.Mutex
	appended      []string
	deleted       []string
	notifications []Notification
}

func (r *recorder) hooks() (func(models.MessageWithSender), func(string), func(Notification)) {
	onAppend := func(m models.MessageWithSender) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.appended = append(r.appended, m.ID)
	}
	onDelete := func(id string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.deleted = append(r.deleted, id)
	}
	notify := func(n Notification) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.notifications = append(r.notifications, n)
	}
	return onAppend, onDelete, notify
}

func newTestSubscriber(t *testing.T, viewerID string, f feed.Feed) (*Subscriber, *recorder) {
	t.Helper()
	rec := &recorder{}
	onAppend, onDelete, notify := rec.hooks()
	sub := NewSubscriber(SubscriberConfig{
		GroupID:  "g1",
		ViewerID: viewerID,
		Feed:     f,
		Profiles: &profilesStub{},
		OnAppend: onAppend,
		OnDelete: onDelete,
		Notify:   notify,
	})
	return sub, rec
}

func TestSubscriberBuffersEventsUntilSeed(t *testing.T) {
	bus := feed.NewBus()
	sub, rec := newTestSubscriber(t, "alice", bus)
	require.NoError(t, sub.Attach(context.Background()))

	m2 := textMessage("m2", "g1", "bob", "arrived during load")
	require.NoError(t, bus.Publish(context.Background(), feed.NewInsert(m2)))

	assert.Empty(t, sub.Messages(), "events before the seed stay buffered")
	assert.Empty(t, rec.appended)

	history := []models.MessageWithSender{
		hydratedMessage(textMessage("m1", "g1", "alice", "from history")),
	}
	sub.Seed(history)

	msgs := sub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, []string{"m2"}, rec.appended)
}

func TestSubscriberSeedDeduplicatesBufferedEvents(t *testing.T) {
	bus := feed.NewBus()
	sub, rec := newTestSubscriber(t, "alice", bus)
	require.NoError(t, sub.Attach(context.Background()))

	// the same message lands both via the feed and in the history fetch
	m2 := textMessage("m2", "g1", "bob", "double delivery")
	require.NoError(t, bus.Publish(context.Background(), feed.NewInsert(m2)))

	sub.Seed([]models.MessageWithSender{
		hydratedMessage(textMessage("m1", "g1", "alice", "first")),
		hydratedMessage(m2),
	})

	msgs := sub.Messages()
	require.Len(t, msgs, 2)
	assert.Empty(t, rec.appended, "a message already in history must not replay")
	assert.Zero(t, sub.Unread())
}

func TestSubscriberAppendsLiveEventsInOrder(t *testing.T) {
	bus := feed.NewBus()
	sub, rec := newTestSubscriber(t, "alice", bus)
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed(nil)

	for _, id := range []string{"m1", "m2", "m3"} {
		msg := textMessage(id, "g1", "bob", "body "+id)
		require.NoError(t, bus.Publish(context.Background(), feed.NewInsert(msg)))
	}

	msgs := sub.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "m3", msgs[2].ID)
	assert.Equal(t, []string{"m1", "m2", "m3"}, rec.appended)
	assert.Equal(t, "bob@example.com", msgs[0].Sender.Email)
}

func TestSubscriberIgnoresDuplicateLiveEvent(t *testing.T) {
	bus := feed.NewBus()
	sub, rec := newTestSubscriber(t, "alice", bus)
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed(nil)

	msg := textMessage("m1", "g1", "bob", "hello")
	require.NoError(t, bus.Publish(context.Background(), feed.NewInsert(msg)))
	require.NoError(t, bus.Publish(context.Background(), feed.NewInsert(msg)))

	assert.Len(t, sub.Messages(), 1)
	assert.Equal(t, []string{"m1"}, rec.appended)
	assert.Equal(t, 1, sub.Unread())
}

func TestSubscriberUnreadAndNotifications(t *testing.T) {
	bus := feed.NewBus()
	sub, rec := newTestSubscriber(t, "alice", bus)
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed(nil)

	own := textMessage("m1", "g1", "alice", "mine")
	other := textMessage("m2", "g1", "bob", "theirs")
	require.NoError(t, bus.Publish(context.Background(), feed.NewInsert(own)))
	require.NoError(t, bus.Publish(context.Background(), feed.NewInsert(other)))

	assert.Equal(t, 1, sub.Unread(), "own messages do not count as unread")
	require.Len(t, rec.notifications, 1)
	n := rec.notifications[0]
	assert.Equal(t, "g1", n.GroupID)
	assert.Equal(t, "m2", n.MessageID)
	assert.Equal(t, "bob@example.com", n.SenderName)
	assert.Equal(t, "theirs", n.Preview)
	assert.Equal(t, 2, n.Total)
	assert.Equal(t, 1, n.Unread)

	sub.ResetUnread()
	assert.Zero(t, sub.Unread())
}

func TestSubscriberNotificationPreviewTruncated(t *testing.T) {
	bus := feed.NewBus()
	sub, rec := newTestSubscriber(t, "alice", bus)
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed(nil)

	long := strings.Repeat("x", 200)
	require.NoError(t, bus.Publish(context.Background(),
		feed.NewInsert(textMessage("m1", "g1", "bob", long))))

	require.Len(t, rec.notifications, 1)
	preview := rec.notifications[0].Preview
	assert.Equal(t, previewLimit+1, len([]rune(preview)))
	assert.True(t, strings.HasSuffix(preview, "…"))
}

func TestSubscriberDeletionAppliedInPlace(t *testing.T) {
	bus := feed.NewBus()
	sub, rec := newTestSubscriber(t, "alice", bus)
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed([]models.MessageWithSender{
		hydratedMessage(textMessage("m1", "g1", "alice", "first")),
		hydratedMessage(textMessage("m2", "g1", "bob", "second")),
		hydratedMessage(textMessage("m3", "g1", "alice", "third")),
	})

	now := time.Now()
	update := textMessage("m2", "g1", "bob", "")
	update.Content = nil
	update.DeletedAt = &now
	require.NoError(t, bus.Publish(context.Background(), feed.NewUpdate(update)))

	msgs := sub.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "m2", msgs[1].ID, "deleted messages keep their position")
	assert.Nil(t, msgs[1].Content)
	assert.True(t, msgs[1].Deleted())
	assert.Equal(t, []string{"m2"}, rec.deleted)
}

func TestSubscriberDeletionOfUnknownMessageIgnored(t *testing.T) {
	bus := feed.NewBus()
	sub, rec := newTestSubscriber(t, "alice", bus)
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed(nil)

	now := time.Now()
	update := textMessage("ghost", "g1", "bob", "")
	update.DeletedAt = &now
	require.NoError(t, bus.Publish(context.Background(), feed.NewUpdate(update)))

	assert.Empty(t, rec.deleted)
}

func TestSubscriberSenderLookupFailureDropsEvent(t *testing.T) {
	bus := feed.NewBus()
	rec := &recorder{}
	onAppend, onDelete, notify := rec.hooks()
	sub := NewSubscriber(SubscriberConfig{
		GroupID:  "g1",
		ViewerID: "alice",
		Feed:     bus,
		Profiles: &profilesStub{fail: map[string]error{"bob": errors.New("profile service down")}},
		OnAppend: onAppend,
		OnDelete: onDelete,
		Notify:   notify,
	})
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed(nil)

	require.NoError(t, bus.Publish(context.Background(),
		feed.NewInsert(textMessage("m1", "g1", "bob", "hi"))))
	require.NoError(t, bus.Publish(context.Background(),
		feed.NewInsert(textMessage("m2", "g1", "carol", "hello"))))

	msgs := sub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m2", msgs[0].ID)
}

func TestSubscriberIgnoresOtherGroupEvents(t *testing.T) {
	f := &fakeFeed{}
	sub, rec := newTestSubscriber(t, "alice", f)
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed(nil)

	require.NoError(t, f.Publish(context.Background(),
		feed.NewInsert(textMessage("m1", "other-group", "bob", "wrong room"))))

	assert.Empty(t, sub.Messages())
	assert.Empty(t, rec.appended)
}

func TestSubscriberAttachTwiceFails(t *testing.T) {
	sub, _ := newTestSubscriber(t, "alice", feed.NewBus())
	require.NoError(t, sub.Attach(context.Background()))

	err := sub.Attach(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyAttached)
}

func TestSubscriberAttachSubscribeError(t *testing.T) {
	f := &fakeFeed{err: errors.New("broker unavailable")}
	sub, _ := newTestSubscriber(t, "alice", f)

	err := sub.Attach(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDetached, sub.State())
}

func TestSubscriberDetachIsIdempotent(t *testing.T) {
	bus := feed.NewBus()
	sub, rec := newTestSubscriber(t, "alice", bus)
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed(nil)

	sub.Detach()
	sub.Detach()
	assert.Equal(t, StateDetached, sub.State())

	require.NoError(t, bus.Publish(context.Background(),
		feed.NewInsert(textMessage("m1", "g1", "bob", "too late"))))
	assert.Empty(t, sub.Messages())
	assert.Empty(t, rec.appended)
}

func TestSubscriberTransportDropMarksErrored(t *testing.T) {
	f := &fakeFeed{}
	sub, _ := newTestSubscriber(t, "alice", f)
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed(nil)
	require.Equal(t, StateAttached, sub.State())

	close(f.sub.done)

	require.Eventually(t, func() bool {
		return sub.State() == StateErrored
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriberWritesThroughToCache(t *testing.T) {
	clock := newFakeClock()
	cache := NewCache(5*time.Minute, clock.Now)
	bus := feed.NewBus()
	sub := NewSubscriber(SubscriberConfig{
		GroupID:  "g1",
		ViewerID: "alice",
		Feed:     bus,
		Profiles: &profilesStub{},
		Cache:    cache,
	})
	require.NoError(t, sub.Attach(context.Background()))
	sub.Seed([]models.MessageWithSender{
		hydratedMessage(textMessage("m1", "g1", "alice", "first")),
	})

	require.NoError(t, bus.Publish(context.Background(),
		feed.NewInsert(textMessage("m2", "g1", "bob", "second"))))

	snap, ok := cache.Get("g1")
	require.True(t, ok)
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "m2", snap.Messages[1].ID)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "detached", StateDetached.String())
	assert.Equal(t, "attaching", StateAttaching.String())
	assert.Equal(t, "attached", StateAttached.String())
	assert.Equal(t, "errored", StateErrored.String())
}
