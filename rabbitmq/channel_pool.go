package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrNoChannel   = errors.New("no channels available in pool")
	ErrInvalidSize = errors.New("channel pool size must be positive")
	ErrPoolClosed  = errors.New("channel pool is closed")
)

// Channel is the part of *amqp.Channel the pool and publisher use.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type connection interface {
	Channel() (Channel, error)
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

type dialFunc func(url string) (connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// ChannelPool hands out at most size channels at a time. A slot is held from
// GetChannel until ReturnChannel, whatever state the channel is in by then.
// When the connection drops the pool redials on the next GetChannel.
type ChannelPool struct {
	url       string
	queueName string
	size      int
	dial      dialFunc
	logger    *zap.Logger

	slots chan struct{}
	done  chan struct{}

	mu     sync.Mutex
	conn   connection
	idle   []Channel
	closed bool
}

// NewChannelPool dials the broker and pre-opens size channels, each with the
// durable queue declared.
func NewChannelPool(rabbitmqURL, queueName string, size int, logger *zap.Logger) (*ChannelPool, error) {
	return newChannelPool(rabbitmqURL, queueName, size, dialAMQP, logger)
}

func newChannelPool(rabbitmqURL, queueName string, size int, dial dialFunc, logger *zap.Logger) (*ChannelPool, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	pool := &ChannelPool{
		url:       rabbitmqURL,
		queueName: queueName,
		size:      size,
		dial:      dial,
		logger:    logger,
		slots:     make(chan struct{}, size),
		done:      make(chan struct{}),
	}

	pool.mu.Lock()
	err := pool.fill()
	pool.mu.Unlock()
	if err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Created RabbitMQ channel pool", zap.Int("size", size), zap.String("queue", queueName))
	return pool, nil
}

// fill connects and opens channels until size are idle. Callers hold mu.
func (p *ChannelPool) fill() error {
	if err := p.ensureConn(); err != nil {
		return err
	}
	for i := len(p.idle); i < p.size; i++ {
		ch, err := p.createChannel()
		if err != nil {
			return fmt.Errorf("failed to create channel %d: %w", i, err)
		}
		p.idle = append(p.idle, ch)
	}
	return nil
}

// ensureConn redials when there is no live connection. Callers hold mu.
func (p *ChannelPool) ensureConn() error {
	if p.conn != nil && !p.conn.IsClosed() {
		return nil
	}
	if p.conn != nil {
		p.logger.Warn("Redialing RabbitMQ")
	}

	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	// channels of the old connection are gone with it
	p.conn = conn
	p.idle = nil
	p.watch(conn)
	return nil
}

func (p *ChannelPool) watch(conn connection) {
	notify := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		amqpErr, ok := <-notify
		if !ok {
			// graceful close
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed || p.conn != conn {
			return
		}
		p.logger.Warn("RabbitMQ connection lost", zap.Error(amqpErr))
		p.conn = nil
		p.idle = nil
	}()
}

func (p *ChannelPool) createChannel() (Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}

	_, err = ch.QueueDeclare(
		p.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return ch, nil
}

// GetChannel waits for a free slot until ctx is done. Every channel it
// returns must go back through ReturnChannel.
func (p *ChannelPool) GetChannel(ctx context.Context) (Channel, error) {
	select {
	case p.slots <- struct{}{}:
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNoChannel, ctx.Err())
	}

	ch, err := p.acquire()
	if err != nil {
		<-p.slots
		return nil, err
	}
	return ch, nil
}

func (p *ChannelPool) acquire() (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	for len(p.idle) > 0 {
		ch := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if !ch.IsClosed() {
			return ch, nil
		}
	}

	if err := p.ensureConn(); err != nil {
		return nil, err
	}
	return p.createChannel()
}

// ReturnChannel frees the slot taken by GetChannel. Closed channels are
// dropped and replaced lazily.
func (p *ChannelPool) ReturnChannel(ch Channel) {
	if ch == nil {
		return
	}

	p.mu.Lock()
	switch {
	case ch.IsClosed():
	case p.closed:
		ch.Close()
	default:
		p.idle = append(p.idle, ch)
	}
	p.mu.Unlock()

	<-p.slots
}

func (p *ChannelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)

	for _, ch := range p.idle {
		ch.Close()
	}
	p.idle = nil
	if p.conn != nil {
		p.conn.Close()
	}
	p.logger.Info("Closed RabbitMQ channel pool")
}
