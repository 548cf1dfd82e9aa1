package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"hookdeploy/internal/deployment"

	amqp "github.com/rabbitmq/amqp091-go"
)

// publisher is the part of *amqp.Channel used for publishing.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes every run as JSON to a durable RabbitMQ queue.
type AMQP struct {
	conn      *amqp.Connection
	publishMu sync.Mutex // amqp091-go channels are not goroutine-safe
	pubCh     publisher
	queue     string
}

// NewAMQP dials the broker at url, opens a publish channel and declares queue.
func NewAMQP(url, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: failed to connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed to open publish channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue, // queue name
		true,  // durable
		false, // auto-delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // additional arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: failed to declare queue %q: %w", queue, err)
	}

	return &AMQP{conn: conn, pubCh: ch, queue: queue}, nil
}

func (a *AMQP) Notify(ctx context.Context, run *deployment.Run) error {
	body, err := json.Marshal(runMessage{Run: run, Status: run.Status()})
	if err != nil {
		return fmt.Errorf("rabbitmq: failed to marshal run: %w", err)
	}

	a.publishMu.Lock()
	defer a.publishMu.Unlock()

	if err := a.pubCh.PublishWithContext(ctx,
		"",      // default exchange
		a.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    run.ID,
			Timestamp:    run.FinishedAt,
			Type:         "deployment.run",
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("rabbitmq: failed to publish run %s: %w", run.ID, err)
	}
	return nil
}

// Close closes the publish channel and the connection.
func (a *AMQP) Close() error {
	a.publishMu.Lock()
	defer a.publishMu.Unlock()

	var err error
	if a.pubCh != nil {
		err = a.pubCh.Close()
	}
	if a.conn != nil {
		if cerr := a.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// runMessage is the published body: the run plus its derived status.
type runMessage struct {
	*deployment.Run
	Status string `json:"status"`
}
