package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/example/libseat/internal/reservation"
)

const DefaultQueue = "libseat.outcome"

// Message is the JSON body published for a finished run.
type Message struct {
	RunID   string    `json:"run_id"`
	JobID   int64     `json:"job_id,omitempty"`
	State   string    `json:"state"`
	Kind    string    `json:"kind,omitempty"`
	SlotID  int       `json:"slot_id,omitempty"`
	Attempt int       `json:"attempt,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func NewMessage(jobID int64, e reservation.Event) Message {
	m := Message{
		RunID:   e.RunID,
		JobID:   jobID,
		State:   e.State.String(),
		SlotID:  e.SlotID,
		Attempt: e.Attempt,
		Message: e.Message,
		At:      e.Time.UTC(),
	}
	if e.State == reservation.StateFatal {
		m.Kind = e.Kind.String()
	}
	return m
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends terminal outcomes to a durable RabbitMQ queue. Publish
// failures are logged and never interrupt a reservation run.
type Publisher struct {
	conn  *amqp.Connection
	ch    channel
	queue string
	log   *zap.Logger

	mu sync.Mutex
}

func Dial(url, queue string, log *zap.Logger) (*Publisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare %s: %w", queue, err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue, log: log.Named("amqp")}, nil
}

func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    m.At,
		MessageId:    m.RunID,
		Body:         body,
	})
}

// Outcomes returns a notifier that publishes the terminal event of each run.
func (p *Publisher) Outcomes(jobID int64) reservation.Notifier {
	return reservation.NotifierFunc(func(e reservation.Event) {
		if !e.State.Terminal() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, NewMessage(jobID, e)); err != nil {
			p.log.Warn("publish outcome failed", zap.String("run_id", e.RunID), zap.Error(err))
		}
	})
}
