// Package checkout hands accepted payment forms off to the storefront's order backend.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-payment/models"
	"storefront-payment/paymentform"
	"storefront-payment/queue"
	"storefront-payment/utils"
)

const (
	TransportHTTP  = "http"
	TransportRedis = "redis"
	TransportAMQP  = "amqp"

	submitPath = "/orders/payment/"
)

var (
	ErrUnknownTransport = errors.New("unknown submit transport")
	ErrRejected         = errors.New("submission rejected by storefront")
)

// Forwarder delivers a submission to whoever places the order.
type Forwarder interface {
	Forward(ctx context.Context, submission models.PaymentSubmission) error
}

// BuildSubmission turns an allowed submit into the hand-off payload. Card
// values are only carried for the card method.
func BuildSubmission(req models.SubmitRequest, shopper models.Shopper, lang string, now time.Time) models.PaymentSubmission {
	sub := models.PaymentSubmission{
		Reference:         uuid.New().String(),
		PaymentMethod:     req.PaymentMethod,
		Shopper:           shopper,
		ShippingAddressID: req.ShippingAddressID,
		Language:          lang,
		SubmittedAt:       now.UTC(),
	}

	if !paymentform.Method(req.PaymentMethod).IsCard() {
		return sub
	}

	number := strings.Join(strings.Fields(req.CardNumber), "")
	sub.CardNumber = number
	sub.CardNumberMasked = utils.MaskCardNumber(number)
	sub.CardName = strings.TrimSpace(req.CardName)
	sub.ExpiryDate = strings.TrimSpace(req.ExpiryDate)
	sub.CVV = strings.TrimSpace(req.CVV)
	sub.ChecksumOK = utils.ValidateLuhn(number)
	return sub
}

// HTTPForwarder posts submissions to the storefront.
type HTTPForwarder struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPForwarder(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPForwarder {
	return &HTTPForwarder{
		endpoint: strings.TrimRight(baseURL, "/") + submitPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (f *HTTPForwarder) Forward(ctx context.Context, submission models.PaymentSubmission) error {
	body, err := json.Marshal(submission)
	if err != nil {
		return fmt.Errorf("failed to marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Payment-Reference", submission.Reference)
	if submission.Language != "" {
		req.Header.Set("Accept-Language", submission.Language)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call storefront: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	f.logger.Info("Forwarded payment submission",
		zap.String("reference", submission.Reference),
		zap.String("card", submission.CardNumberMasked),
	)
	return nil
}

// Enqueuer is satisfied by queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType queue.JobType, payload interface{}) (*queue.Job, error)
}

// QueueForwarder defers delivery to the relay worker through Redis.
type QueueForwarder struct {
	queue Enqueuer
}

func NewQueueForwarder(q Enqueuer) *QueueForwarder {
	return &QueueForwarder{queue: q}
}

func (f *QueueForwarder) Forward(ctx context.Context, submission models.PaymentSubmission) error {
	if _, err := f.queue.Enqueue(ctx, queue.JobTypeSubmitPayment, submission); err != nil {
		return fmt.Errorf("failed to enqueue submission: %w", err)
	}
	return nil
}

// SubmissionPublisher is satisfied by rabbitmq.Publisher.
type SubmissionPublisher interface {
	PublishSubmission(ctx context.Context, submission models.PaymentSubmission) error
}

type AMQPForwarder struct {
	publisher SubmissionPublisher
}

func NewAMQPForwarder(p SubmissionPublisher) *AMQPForwarder {
	return &AMQPForwarder{publisher: p}
}

func (f *AMQPForwarder) Forward(ctx context.Context, submission models.PaymentSubmission) error {
	return f.publisher.PublishSubmission(ctx, submission)
}

// ForwarderFunc adapts a function to Forwarder.
type ForwarderFunc func(ctx context.Context, submission models.PaymentSubmission) error

func (fn ForwarderFunc) Forward(ctx context.Context, submission models.PaymentSubmission) error {
	return fn(ctx, submission)
}

// ParseTransport validates a SUBMIT_TRANSPORT value.
func ParseTransport(name string) (string, error) {
	switch t := strings.ToLower(strings.TrimSpace(name)); t {
	case TransportHTTP, TransportRedis, TransportAMQP:
		return t, nil
	case "":
		return TransportHTTP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
}
