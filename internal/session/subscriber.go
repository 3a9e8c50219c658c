package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"collab-service/internal/feed"
	"collab-service/internal/models"
)

// Subscriber states.
type State int32

const (
	StateDetached State = iota
	StateAttaching
	StateAttached
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

var ErrAlreadyAttached = errors.New("subscriber already attached")

const previewLimit = 80

// Notification is a transient signal that a message from another user
// arrived while the conversation is open.
type Notification struct {
	GroupID    string
	MessageID  string
	SenderName string
	Preview    string
	Total      int
	Unread     int
}

// SenderResolver looks up the profile for a message's sender. One lookup per
// event; message throughput is human-paced.
type SenderResolver interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
}

// SubscriberConfig wires a Subscriber's collaborators.
type SubscriberConfig struct {
	GroupID  string
	ViewerID string
	Feed     feed.Feed
	Profiles SenderResolver
	Cache    *Cache
	Logger   *zap.SugaredLogger

	// OnAppend fires for every message merged after the history seed.
	OnAppend func(models.MessageWithSender)
	// OnDelete fires when a message is deleted for everyone.
	OnDelete func(messageID string)
	// Notify fires for messages sent by someone other than the viewer.
	Notify func(Notification)
}

// Subscriber maintains one live change-feed attachment for a conversation
// and keeps the in-memory message list consistent with arriving events.
//
// Events observed between Attach and Seed are buffered; Seed installs the
// history fetch result, flushes the buffer deduplicated by message id, and
// switches to direct live delivery. This closes the race between the initial
// fetch and the subscription handshake without relying on their ordering.
type Subscriber struct {
	cfg SubscriberConfig

	mu       sync.Mutex
	state    State
	sub      feed.Subscription
	seeded   bool
	buffer   []models.MessageWithSender
	messages []models.MessageWithSender
	seen     map[string]struct{}
	unread   int

	detachOnce sync.Once
}

// NewSubscriber builds a detached Subscriber.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Subscriber{cfg: cfg, seen: make(map[string]struct{})}
}

// Attach opens the conversation's change-feed subscription. Events delivered
// before Seed are buffered.
func (s *Subscriber) Attach(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDetached {
		s.mu.Unlock()
		return ErrAlreadyAttached
	}
	s.state = StateAttaching
	s.mu.Unlock()

	sub, err := s.cfg.Feed.Subscribe(s.cfg.GroupID, s.handleEvent)
	if err != nil {
		s.mu.Lock()
		s.state = StateDetached
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.state = StateAttached
	s.mu.Unlock()

	go s.watch(sub)
	return nil
}

// watch marks the subscriber errored if the transport drops while attached.
// There is no automatic reconnect; the caller re-attaches on next open.
func (s *Subscriber) watch(sub feed.Subscription) {
	<-sub.Done()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAttached {
		s.state = StateErrored
		s.cfg.Logger.Warnw("feed subscription dropped", "group_id", s.cfg.GroupID)
	}
}

// Seed installs the history loader's result as the base message list and
// flushes any events buffered during the load, deduplicated by message id.
func (s *Subscriber) Seed(history []models.MessageWithSender) {
	s.mu.Lock()
	s.messages = append([]models.MessageWithSender(nil), history...)
	s.seen = make(map[string]struct{}, len(history))
	for _, m := range history {
		s.seen[m.ID] = struct{}{}
	}

	var appended []models.MessageWithSender
	for _, m := range s.buffer {
		if s.appendLocked(m) {
			appended = append(appended, m)
		}
	}
	s.buffer = nil
	s.seeded = true
	s.syncCacheLocked()

	notifications := s.notificationsLocked(appended)
	s.mu.Unlock()

	s.fire(appended, notifications)
}

// handleEvent merges a single feed event into the in-memory list.
func (s *Subscriber) handleEvent(event feed.Event) {
	if event.Message.GroupID != s.cfg.GroupID {
		return
	}

	switch event.Type {
	case feed.EventInsert:
		s.handleInsert(event.Message)
	case feed.EventUpdate:
		s.handleUpdate(event.Message)
	}
}

func (s *Subscriber) handleInsert(msg models.Message) {
	sender, err := s.cfg.Profiles.GetProfile(context.Background(), msg.SenderID)
	if err != nil {
		s.cfg.Logger.Warnw("sender lookup failed, dropping event",
			"group_id", s.cfg.GroupID, "message_id", msg.ID, "error", err)
		return
	}
	hydrated := models.MessageWithSender{Message: msg, Sender: sender}

	s.mu.Lock()
	if !s.seeded {
		s.buffer = append(s.buffer, hydrated)
		s.mu.Unlock()
		return
	}

	if !s.appendLocked(hydrated) {
		s.mu.Unlock()
		return
	}
	s.syncCacheLocked()
	appended := []models.MessageWithSender{hydrated}
	notifications := s.notificationsLocked(appended)
	s.mu.Unlock()

	s.fire(appended, notifications)
}

// handleUpdate applies a delete-for-everyone marker in place: content is
// cleared and the deletion timestamp set, but the message keeps its position
// so conversation flow reads naturally.
func (s *Subscriber) handleUpdate(msg models.Message) {
	if msg.DeletedAt == nil {
		return
	}

	s.mu.Lock()
	applied := markDeleted(s.messages, msg) || markDeleted(s.buffer, msg)
	if applied && s.seeded {
		s.syncCacheLocked()
	}
	onDelete := s.cfg.OnDelete
	s.mu.Unlock()

	if applied && onDelete != nil {
		onDelete(msg.ID)
	}
}

func markDeleted(list []models.MessageWithSender, update models.Message) bool {
	for i := range list {
		if list[i].ID == update.ID {
			list[i].Content = nil
			list[i].FileURL = nil
			list[i].DeletedAt = update.DeletedAt
			return true
		}
	}
	return false
}

// appendLocked appends a hydrated message unless its id was already merged.
func (s *Subscriber) appendLocked(m models.MessageWithSender) bool {
	if _, dup := s.seen[m.ID]; dup {
		return false
	}
	s.seen[m.ID] = struct{}{}
	s.messages = append(s.messages, m)
	if m.SenderID != s.cfg.ViewerID {
		s.unread++
	}
	return true
}

func (s *Subscriber) notificationsLocked(appended []models.MessageWithSender) []Notification {
	if s.cfg.Notify == nil {
		return nil
	}
	var out []Notification
	for _, m := range appended {
		if m.SenderID == s.cfg.ViewerID {
			continue
		}
		out = append(out, Notification{
			GroupID:    s.cfg.GroupID,
			MessageID:  m.ID,
			SenderName: m.Sender.DisplayName(),
			Preview:    preview(m.Message),
			Total:      len(s.messages),
			Unread:     s.unread,
		})
	}
	return out
}

func (s *Subscriber) syncCacheLocked() {
	if s.cfg.Cache == nil {
		return
	}
	snapshot := append([]models.MessageWithSender(nil), s.messages...)
	s.cfg.Cache.Put(s.cfg.GroupID, SnapshotUpdate{Messages: snapshot})
}

func (s *Subscriber) fire(appended []models.MessageWithSender, notifications []Notification) {
	if s.cfg.OnAppend != nil {
		for _, m := range appended {
			s.cfg.OnAppend(m)
		}
	}
	if s.cfg.Notify != nil {
		for _, n := range notifications {
			s.cfg.Notify(n)
		}
	}
}

// Detach releases the underlying subscription. Safe to call more than once;
// the handle is closed exactly once.
func (s *Subscriber) Detach() {
	s.detachOnce.Do(func() {
		s.mu.Lock()
		sub := s.sub
		s.state = StateDetached
		s.mu.Unlock()
		if sub != nil {
			_ = sub.Close()
		}
	})
}

// State reports the subscriber's lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the merged in-memory message list.
func (s *Subscriber) Messages() []models.MessageWithSender {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MessageWithSender(nil), s.messages...)
}

// Unread reports how many messages from other users arrived since the last
// reset.
func (s *Subscriber) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// ResetUnread clears the unread counter.
func (s *Subscriber) ResetUnread() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread = 0
}

func preview(m models.Message) string {
	text := RenderedContent(m)
	if text == "" && m.FileName != nil {
		text = *m.FileName
	}
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "…"
}
