// Package messaging publishes exam outcomes and violations for live proctor
// dashboards.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// OutcomeEvent is published whenever an attempt ends or a deferred attempt
// is finally delivered.
type OutcomeEvent struct {
	StudentID     string        `json:"studentId"`
	CourseID      string        `json:"courseId"`
	Outcome       model.Outcome `json:"outcome"`
	IsMalpractice bool          `json:"isMalpractice"`
	Delivered     bool          `json:"delivered"`
	FinishedAt    time.Time     `json:"finishedAt"`
}

// Publisher sends events to the broker.
type Publisher interface {
	PublishOutcome(ctx context.Context, ev *OutcomeEvent) error
	PublishViolation(ctx context.Context, ev *model.MalpracticeEvent) error
	Close() error
}

// RabbitMQPublisher publishes JSON messages to durable queues on the default
// exchange.
type RabbitMQPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
	log      zerolog.Logger
}

// NewRabbitMQPublisher dials url and opens a channel.
func NewRabbitMQPublisher(url string, log zerolog.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  channel,
		declared: make(map[string]bool),
		log:      log.With().Str("component", "rabbitmq_publisher").Logger(),
	}, nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *RabbitMQPublisher) PublishOutcome(ctx context.Context, ev *OutcomeEvent) error {
	return p.publish(ctx, config.WorkerKey.ExamOutcomesQueue, ev)
}

func (p *RabbitMQPublisher) PublishViolation(ctx context.Context, ev *model.MalpracticeEvent) error {
	return p.publish(ctx, config.WorkerKey.MalpracticeEventsQueue, ev)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[queue] {
		if _, err := p.channel.QueueDeclare(
			queue,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		p.declared[queue] = true
	}

	return p.channel.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// NoopPublisher drops every event. Used when AMQP_URL is unset.
type NoopPublisher struct{}

func (NoopPublisher) PublishOutcome(context.Context, *OutcomeEvent) error { return nil }

func (NoopPublisher) PublishViolation(context.Context, *model.MalpracticeEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }

// Connect returns a RabbitMQ publisher, or a NoopPublisher when url is empty.
func Connect(url string, log zerolog.Logger) (Publisher, error) {
	if url == "" {
		log.Info().Msg("AMQP_URL not set, event publishing disabled")
		return NoopPublisher{}, nil
	}
	pub, err := NewRabbitMQPublisher(url, log)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("RabbitMQ connected")
	return pub, nil
}
