package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// OrphanMessage names an artifact that was stored but is not referenced by
// any view.
type OrphanMessage struct {
	StoragePath string `json:"storage_path"`
	Reason      string `json:"reason"`
}

func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := DeclareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// DeclareQueues declares the main queue with its retry and dead-letter
// queues. Publisher and worker must agree on these arguments.
func DeclareQueues(ch *amqp.Channel, queue string) error {
	mainQ := queue
	retryQ := RetryQueue(queue)
	dlqQ := DeadLetterQueue(queue)

	// DLQ
	if _, err := ch.QueueDeclare(
		dlqQ,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false,
		nil,
	); err != nil {
		return err
	}

	// Retry queue: message TTL -> dead-letter back to main queue
	if _, err := ch.QueueDeclare(
		retryQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": mainQ,
		},
	); err != nil {
		return err
	}

	// Main queue: dead-letter to DLQ on reject/nack(requeue=false)
	_, err := ch.QueueDeclare(
		mainQ,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": dlqQ,
		},
	)
	return err
}

func RetryQueue(queue string) string      { return queue + ".retry" }
func DeadLetterQueue(queue string) string { return queue + ".dlq" }

func (p *Publisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *Publisher) PublishOrphan(ctx context.Context, storagePath, reason string) error {
	body, err := json.Marshal(OrphanMessage{StoragePath: storagePath, Reason: reason})
	if err != nil {
		return err
	}
	return p.publish(ctx, p.queue, body, nil)
}

// PublishRetry parks body on the retry queue; it returns to the main queue
// once delay expires.
func (p *Publisher) PublishRetry(ctx context.Context, body []byte, delay time.Duration, attempt int) error {
	return p.publish(ctx, RetryQueue(p.queue), body, &retryOpts{delay: delay, attempt: attempt})
}

type retryOpts struct {
	delay   time.Duration
	attempt int
}

func (p *Publisher) publish(ctx context.Context, routingKey string, body []byte, retry *retryOpts) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	}
	if retry != nil {
		msg.Expiration = formatExpiration(retry.delay)
		msg.Headers = amqp.Table{AttemptHeader: int32(retry.attempt)}
	}

	return p.ch.PublishWithContext(cctx,
		"",         // default exchange
		routingKey, // routing key = queue
		false,
		false,
		msg,
	)
}
