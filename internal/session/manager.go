package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"collab-service/internal/feed"
	"collab-service/internal/models"
	"collab-service/internal/observability"
	"collab-service/internal/repositories"
)

var ErrSessionClosed = errors.New("session closed")

// Hooks receive live updates for one opener of a session. All fields are
// optional.
type Hooks struct {
	OnAppend func(models.MessageWithSender)
	OnDelete func(messageID string)
	Notify   func(Notification)
}

// Session is one viewer's live view of a conversation: the merged message
// list, the roster, the viewer's personal hidden set, and the change-feed
// attachment behind them. Sessions are shared between concurrent openers of
// the same conversation and torn down when the last one releases.
type Session struct {
	GroupID string

	subscriber *Subscriber

	mu        sync.Mutex
	group     models.Group
	members   []models.MemberWithProfile
	hidden    map[string]struct{}
	isAdmin   bool
	observers map[int]Hooks
	nextObs   int
	refs      int
	closed    bool

	ready     chan struct{}
	readyOnce sync.Once
}

// Ready is closed once the history seed has been applied. Openers that join
// an in-flight load can wait on it before rendering.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Messages returns the merged message list, unfiltered.
func (s *Session) Messages() []models.MessageWithSender {
	return s.subscriber.Messages()
}

// VisibleMessages returns the merged list with the viewer's personally hidden
// messages removed.
func (s *Session) VisibleMessages() []models.MessageWithSender {
	msgs := s.subscriber.Messages()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Visible(msgs, s.hidden)
}

// Group returns the conversation's metadata.
func (s *Session) Group() models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group
}

// Members returns the roster captured at load time.
func (s *Session) Members() []models.MemberWithProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MemberWithProfile(nil), s.members...)
}

// IsAdmin reports whether the viewer has admin capability in this
// conversation.
func (s *Session) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAdmin
}

// Hidden reports whether the viewer has personally hidden a message.
func (s *Session) Hidden(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.hidden[messageID]
	return ok
}

// Hide records a personal hide locally so the message drops out of
// VisibleMessages without a reload.
func (s *Session) Hide(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hidden[messageID] = struct{}{}
}

// State reports the underlying subscription state.
func (s *Session) State() State { return s.subscriber.State() }

// Unread reports the number of other-sender messages merged since the last
// reset.
func (s *Session) Unread() int { return s.subscriber.Unread() }

// ResetUnread clears the unread counter.
func (s *Session) ResetUnread() { s.subscriber.ResetUnread() }

func (s *Session) addObserver(h Hooks) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = h
	return id
}

func (s *Session) removeObserver(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
}

func (s *Session) observerList() []Hooks {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Hooks, 0, len(s.observers))
	for _, h := range s.observers {
		out = append(out, h)
	}
	return out
}

func (s *Session) fanoutAppend(m models.MessageWithSender) {
	for _, h := range s.observerList() {
		if h.OnAppend != nil {
			h.OnAppend(m)
		}
	}
}

func (s *Session) fanoutDelete(messageID string) {
	for _, h := range s.observerList() {
		if h.OnDelete != nil {
			h.OnDelete(messageID)
		}
	}
}

func (s *Session) fanoutNotify(n Notification) {
	for _, h := range s.observerList() {
		if h.Notify != nil {
			h.Notify(n)
		}
	}
}

// ManagerConfig wires a Manager's collaborators. A Manager serves a single
// viewer; the gateway keeps one per authenticated user.
type ManagerConfig struct {
	ViewerID string
	Cache    *Cache
	Loader   *Loader
	Feed     feed.Feed
	Profiles SenderResolver
	Messages repositories.MessageRepository
	Logger   *zap.SugaredLogger
}

// Manager owns one viewer's conversation sessions, keyed by conversation id.
// Opening a conversation that already has a live session reuses it, so a
// conversation never carries more than one feed subscription per viewer.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a Manager for one viewer.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Manager{cfg: cfg, sessions: make(map[string]*Session)}
}

// Open returns a live session for the conversation, creating one if needed.
// A new session attaches to the change-feed before fetching history, so no
// event can slip between fetch and subscribe. Open does not return until the
// history seed has been applied, so every opener observes a hydrated view.
// The returned release function is idempotent; the session detaches when the
// last opener releases.
func (m *Manager) Open(ctx context.Context, groupID string, hooks Hooks) (*Session, func(), error) {
	m.mu.Lock()
	if existing, ok := m.sessions[groupID]; ok {
		existing.mu.Lock()
		alive := !existing.closed
		if alive {
			existing.refs++
		}
		existing.mu.Unlock()
		if alive {
			m.mu.Unlock()
			return m.join(ctx, existing, hooks)
		}
		// a final release marked it closed but has not swept it out yet
		delete(m.sessions, groupID)
	}

	sess := &Session{
		GroupID:   groupID,
		hidden:    make(map[string]struct{}),
		observers: make(map[int]Hooks),
		refs:      1,
		ready:     make(chan struct{}),
	}
	sess.subscriber = NewSubscriber(SubscriberConfig{
		GroupID:  groupID,
		ViewerID: m.cfg.ViewerID,
		Feed:     m.cfg.Feed,
		Profiles: m.cfg.Profiles,
		Cache:    m.cfg.Cache,
		Logger:   m.cfg.Logger,
		OnAppend: sess.fanoutAppend,
		OnDelete: sess.fanoutDelete,
		Notify:   sess.fanoutNotify,
	})
	m.sessions[groupID] = sess
	m.mu.Unlock()

	obsID := sess.addObserver(hooks)

	if err := sess.subscriber.Attach(ctx); err != nil {
		m.fail(sess)
		return nil, nil, fmt.Errorf("%w: %s", ErrLoadFailed, err)
	}

	history, err := m.hydrate(ctx, groupID)
	if err != nil {
		sess.subscriber.Detach()
		m.fail(sess)
		return nil, nil, err
	}

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		sess.readyOnce.Do(func() { close(sess.ready) })
		return nil, nil, ErrSessionClosed
	}
	sess.group = history.Group
	sess.members = history.Members
	sess.hidden = history.Hidden
	sess.isAdmin = history.IsAdmin
	sess.mu.Unlock()

	sess.subscriber.Seed(history.Messages)
	sess.readyOnce.Do(func() { close(sess.ready) })
	observability.IncSessionActive()

	return sess, m.releaseFunc(sess, obsID), nil
}

// join adds an opener to a live session and waits for its history seed. The
// creating opener may still be loading; returning before the seed would hand
// the caller an empty view that live hooks alone can never fill.
func (m *Manager) join(ctx context.Context, sess *Session, hooks Hooks) (*Session, func(), error) {
	obsID := sess.addObserver(hooks)
	release := m.releaseFunc(sess, obsID)

	select {
	case <-sess.ready:
	case <-ctx.Done():
		release()
		return nil, nil, ctx.Err()
	}

	sess.mu.Lock()
	closed := sess.closed
	sess.mu.Unlock()
	if closed {
		release()
		return nil, nil, ErrSessionClosed
	}
	return sess, release, nil
}

// fail tears down a session whose initial load never completed: it is marked
// closed so it cannot be reused, its ready channel is closed so joiners wake
// and observe the failure, and it is dropped from the registry.
func (m *Manager) fail(sess *Session) {
	sess.mu.Lock()
	sess.closed = true
	sess.mu.Unlock()
	sess.readyOnce.Do(func() { close(sess.ready) })
	m.discard(sess)
}

// hydrate returns the conversation's initial state, served from the cache
// when the snapshot is fresh and from the loader otherwise. Personal markers
// are never cached; they are fetched per viewer either way.
func (m *Manager) hydrate(ctx context.Context, groupID string) (History, error) {
	snap, ok := m.cfg.Cache.Get(groupID)
	if !ok || snap.Group == nil {
		return m.cfg.Loader.Load(ctx, groupID, m.cfg.ViewerID)
	}

	hiddenIDs, err := m.cfg.Messages.ListHiddenForViewer(ctx, groupID, m.cfg.ViewerID)
	if err != nil {
		return History{}, fmt.Errorf("%w: %s", ErrLoadFailed, err)
	}
	return History{
		Group:    *snap.Group,
		Messages: snap.Messages,
		Members:  snap.Members,
		Hidden:   HiddenSet(hiddenIDs),
		IsAdmin:  isAdmin(*snap.Group, snap.Members, m.cfg.ViewerID),
	}, nil
}

func (m *Manager) releaseFunc(sess *Session, obsID int) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			sess.removeObserver(obsID)

			sess.mu.Lock()
			sess.refs--
			last := sess.refs == 0
			if last {
				sess.closed = true
			}
			sess.mu.Unlock()

			if last {
				sess.subscriber.Detach()
				m.discard(sess)
				observability.DecSessionActive()
			}
		})
	}
}

// discard removes a session from the registry if it is still the tracked one.
func (m *Manager) discard(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[sess.GroupID] == sess {
		delete(m.sessions, sess.GroupID)
	}
}

// Close detaches every live session. Used on gateway teardown for a viewer.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		wasOpen := !s.closed
		s.closed = true
		s.mu.Unlock()
		s.subscriber.Detach()
		if wasOpen {
			observability.DecSessionActive()
		}
	}
}
