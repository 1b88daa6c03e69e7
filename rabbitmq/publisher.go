package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"storefront-payment/models"
)

const publishTimeout = 5 * time.Second

type Publisher struct {
	pool      *ChannelPool
	queueName string
	logger    *zap.Logger
}

func NewPublisher(pool *ChannelPool, queueName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		pool:      pool,
		queueName: queueName,
		logger:    logger,
	}
}

func submissionMessage(submission models.PaymentSubmission) (amqp.Publishing, error) {
	body, err := json.Marshal(submission)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal submission: %w", err)
	}

	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    submission.Reference,
		Timestamp:    submission.SubmittedAt,
		Type:         "payment.submitted",
		Body:         body,
	}, nil
}

// PublishSubmission publishes an accepted payment form to the storefront's order queue.
func (p *Publisher) PublishSubmission(ctx context.Context, submission models.PaymentSubmission) error {
	msg, err := submissionMessage(submission)
	if err != nil {
		return err
	}

	// the timeout covers waiting for a channel too
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ch, err := p.pool.GetChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get channel from pool: %w", err)
	}
	defer p.pool.ReturnChannel(ch)

	err = ch.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("failed to publish submission: %w", err)
	}

	p.logger.Info("Published payment submission",
		zap.String("reference", submission.Reference),
		zap.String("queue", p.queueName),
	)
	return nil
}
