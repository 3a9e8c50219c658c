package feed

import (
	"context"
	"sync"

	"collab-service/internal/models"
	"collab-service/internal/observability"
)

// Event types mirror the row-level changes the persistence layer emits.
const (
	EventInsert = "insert"
	EventUpdate = "update"
)

// Event is a row-level change notification for the messages table.
type Event struct {
	Type    string         `json:"type"`
	Table   string         `json:"table"`
	Message models.Message `json:"new_row"`
}

// NewInsert builds an insert event for a message row.
func NewInsert(msg models.Message) Event {
	return Event{Type: EventInsert, Table: "messages", Message: msg}
}

// NewUpdate builds an update event for a message row.
func NewUpdate(msg models.Message) Event {
	return Event{Type: EventUpdate, Table: "messages", Message: msg}
}

// Handler consumes feed events. Handlers are invoked in delivery order for a
// given subscription.
type Handler func(Event)

// Subscription is a live attachment to one conversation's change feed.
// Close is idempotent. Done is closed when delivery stops for any reason,
// including transport failure.
type Subscription interface {
	Close() error
	Done() <-chan struct{}
}

// Feed publishes and delivers message change events scoped by group id.
type Feed interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(groupID string, handler Handler) (Subscription, error)
}

// Bus is an in-process Feed. It backs tests and brokerless local runs, the
// same role the noop publisher plays for audit events.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]*busSubscription
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]*busSubscription)}
}

// Publish delivers the event to every subscription for its group, in order.
func (b *Bus) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	targets := make([]*busSubscription, 0, len(b.subs[event.Message.GroupID]))
	for _, sub := range b.subs[event.Message.GroupID] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	if len(targets) > 0 {
		observability.IncFeedEvent(event.Type)
	}
	for _, sub := range targets {
		sub.handler(event)
	}
	return nil
}

// Subscribe registers a handler for one group's events.
func (b *Bus) Subscribe(groupID string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &busSubscription{
		bus:     b,
		groupID: groupID,
		id:      b.nextID,
		handler: handler,
		done:    make(chan struct{}),
	}
	if _, ok := b.subs[groupID]; !ok {
		b.subs[groupID] = make(map[int]*busSubscription)
	}
	b.subs[groupID][sub.id] = sub
	return sub, nil
}

type busSubscription struct {
	bus     *Bus
	groupID string
	id      int
	handler Handler
	done    chan struct{}
	once    sync.Once
}

func (s *busSubscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if subs, ok := s.bus.subs[s.groupID]; ok {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(s.bus.subs, s.groupID)
			}
		}
		s.bus.mu.Unlock()
		close(s.done)
	})
	return nil
}

func (s *busSubscription) Done() <-chan struct{} {
	return s.done
}
