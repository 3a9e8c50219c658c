package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"collab-service/internal/observability"
)

// AMQPFeed is a Feed backed by a RabbitMQ topic exchange. Events are routed
// as messages.<group_id>.<event_type>; each subscription gets its own
// exclusive auto-delete queue bound to messages.<group_id>.*.
type AMQPFeed struct {
	conn     *amqp.Connection
	pub      *amqp.Channel
	exchange string
	logger   *zap.SugaredLogger

	mu sync.Mutex
}

// NewAMQPFeed dials the broker and declares the feed exchange.
func NewAMQPFeed(url, exchange string, logger *zap.SugaredLogger) (*AMQPFeed, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPFeed{conn: conn, pub: ch, exchange: exchange, logger: logger}, nil
}

// Publish sends the event to the feed exchange.
func (f *AMQPFeed) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	err = f.pub.PublishWithContext(ctx, f.exchange, routingKey(event.Message.GroupID, event.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		observability.IncFeedPublishError()
	}
	return err
}

// Subscribe binds a fresh queue for the group and delivers its events to the
// handler until the subscription is closed or the channel fails.
func (f *AMQPFeed) Subscribe(groupID string, handler Handler) (Subscription, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, err
	}

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}

	if err := ch.QueueBind(queue.Name, routingKey(groupID, "*"), f.exchange, false, nil); err != nil {
		ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}

	sub := &amqpSubscription{ch: ch, done: make(chan struct{})}
	go func() {
		defer sub.markDone()
		for delivery := range deliveries {
			var event Event
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				f.logger.Warnw("feed event decode failed", "group_id", groupID, "error", err)
				continue
			}
			observability.IncFeedEvent(event.Type)
			handler(event)
		}
	}()
	return sub, nil
}

// Close shuts the publishing channel and connection.
func (f *AMQPFeed) Close() error {
	if f.pub != nil {
		_ = f.pub.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

type amqpSubscription struct {
	ch       *amqp.Channel
	done     chan struct{}
	doneOnce sync.Once
	once     sync.Once
}

func (s *amqpSubscription) Close() error {
	s.once.Do(func() {
		_ = s.ch.Close()
	})
	return nil
}

func (s *amqpSubscription) Done() <-chan struct{} {
	return s.done
}

func (s *amqpSubscription) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func routingKey(groupID, eventType string) string {
	return fmt.Sprintf("messages.%s.%s", groupID, eventType)
}
