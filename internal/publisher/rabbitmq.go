package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"news_verifier/internal/domain"
)

const ActionRatingDelivered = "rating.delivered"

type RabbitMQ struct {
	conn         *amqp.Connection
	channel      *amqp.Channel
	exchange     string
	routingKey   string
	deliveryMode uint8
	logger       *slog.Logger
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
	// ExchangeKind is one of the amqp exchange types; empty means direct.
	ExchangeKind string
	// Transient declares a non-durable exchange and queue and publishes
	// non-persistent messages.
	Transient bool
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	kind := cfg.ExchangeKind
	if kind == "" {
		kind = amqp.ExchangeDirect
	}
	switch kind {
	case amqp.ExchangeDirect, amqp.ExchangeTopic, amqp.ExchangeFanout:
	default:
		return nil, fmt.Errorf("unsupported exchange kind %q", kind)
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg, kind); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	deliveryMode := amqp.Persistent
	if cfg.Transient {
		deliveryMode = amqp.Transient
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"exchange_kind", kind,
		"durable", !cfg.Transient,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:         conn,
		channel:      ch,
		exchange:     cfg.Exchange,
		routingKey:   cfg.RoutingKey,
		deliveryMode: deliveryMode,
		logger:       logger,
	}, nil
}

// declareTopology creates the rating exchange and the event queue bound to
// it. Declaring an existing exchange with a different kind or durability
// fails with a channel error.
func declareTopology(ch *amqp.Channel, cfg Config, kind string) error {
	durable := !cfg.Transient

	if err := ch.ExchangeDeclare(cfg.Exchange, kind, durable, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s exchange %q: %w", kind, cfg.Exchange, err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, durable, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", cfg.QueueName, err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q to %q: %w", q.Name, cfg.Exchange, err)
	}
	return nil
}

// RatingEvent announces a rating that reached the backend.
type RatingEvent struct {
	Action     string            `json:"action"`
	NewsItemID int64             `json:"news_item_id"`
	Rating     domain.RatingItem `json:"rating"`
	Timestamp  time.Time         `json:"timestamp"`
}

func (r *RabbitMQ) PublishRating(ctx context.Context, rating *domain.RatingItem) error {
	msg := RatingEvent{
		Action:     ActionRatingDelivered,
		NewsItemID: rating.NewsItemID,
		Rating:     *rating,
		Timestamp:  time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: r.deliveryMode,
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published rating",
		"rating_item_id", rating.ID,
		"news_item_id", rating.NewsItemID,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
