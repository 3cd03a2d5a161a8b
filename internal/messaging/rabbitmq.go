package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName            = "civicreport.events"
	RoutingKeyReportCreated = "report.created"
	RoutingKeyStatusUpdated = "report.status.updated"

	reconnectDelay = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// ReportCreatedEvent is emitted once a report has been persisted.
type ReportCreatedEvent struct {
	ReportID  string  `json:"report_id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

// StatusUpdatedEvent is emitted after a successful status transition.
type StatusUpdatedEvent struct {
	ReportID  string `json:"report_id"`
	Title     string `json:"title"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Note      string `json:"note,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// RabbitMQ publishes report lifecycle events to a topic exchange. It
// reconnects in the background when the broker connection drops.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	mu      sync.RWMutex
	done    chan struct{}
}

func NewRabbitMQ(host, port, user, password string) (*RabbitMQ, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, password, host, port)

	rmq := &RabbitMQ{
		url:  url,
		done: make(chan struct{}),
	}

	if err := rmq.connect(); err != nil {
		return nil, err
	}

	go rmq.handleReconnect()

	return rmq, nil
}

func (r *RabbitMQ) connect() error {
	var err error

	r.conn, err = amqp.Dial(r.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		r.conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	err = r.channel.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	log.Infof("RabbitMQ connected, exchange %s declared", ExchangeName)
	return nil
}

func (r *RabbitMQ) handleReconnect() {
	for {
		select {
		case <-r.done:
			return
		case err := <-r.conn.NotifyClose(make(chan *amqp.Error)):
			if err != nil {
				log.Warnf("RabbitMQ connection lost: %v, reconnecting", err)
			}

			r.mu.Lock()
			for {
				if err := r.connect(); err != nil {
					log.WithError(err).Warnf("reconnect failed, retrying in %v", reconnectDelay)
					time.Sleep(reconnectDelay)
					continue
				}
				break
			}
			r.mu.Unlock()
		}
	}
}

func (r *RabbitMQ) publish(ctx context.Context, routingKey string, message interface{}) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.channel == nil {
		return fmt.Errorf("channel not available")
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = r.channel.PublishWithContext(
		ctx,
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

func (r *RabbitMQ) PublishReportCreated(ctx context.Context, evt ReportCreatedEvent) error {
	if err := r.publish(ctx, RoutingKeyReportCreated, evt); err != nil {
		return err
	}
	log.Infof("published created event for report %s", evt.ReportID)
	return nil
}

func (r *RabbitMQ) PublishStatusUpdated(ctx context.Context, evt StatusUpdatedEvent) error {
	if err := r.publish(ctx, RoutingKeyStatusUpdated, evt); err != nil {
		return err
	}
	log.Infof("published status event for report %s", evt.ReportID)
	return nil
}

func (r *RabbitMQ) Close() {
	close(r.done)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}

	log.Info("RabbitMQ connection closed")
}
