package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	redialInitialDelay = time.Second
	redialMaxDelay     = 30 * time.Second
)

var (
	errNoChannel        = errors.New("no channel available")
	errConnectionClosed = errors.New("connection closed")
)

// Connection — AMQP соединение с одним каналом и автоматическим redial.
//
// После разрыва соединение переоткрывается в фоне с экспоненциальной
// задержкой (1s..30s, без ограничения по времени). Consumer'ы ждут
// сигнала ReconnectNotify и заново объявляют свои очереди.
type Connection struct {
	url    string
	logger *slog.Logger

	mu   sync.RWMutex
	conn *amqp.Connection
	ch   *amqp.Channel

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	redialed chan struct{}
}

// NewConnection подключается к брокеру. Первая попытка синхронная:
// недоступный брокер даёт ошибку сразу.
func NewConnection(url string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		url:      url,
		logger:   logger.With("component", "amqp"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		redialed: make(chan struct{}, 1),
	}

	closed, err := c.dial()
	if err != nil {
		cancel()
		return nil, err
	}

	go c.supervise(closed)
	return c, nil
}

// dial открывает соединение и канал. Возвращает канал уведомления о закрытии.
func (c *Connection) dial() (<-chan *amqp.Error, error) {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	installed := c.adopt(func() { c.conn, c.ch = conn, ch })
	if !installed {
		_ = conn.Close()
		return nil, backoff.Permanent(errConnectionClosed)
	}

	c.logger.Info("connected to RabbitMQ")
	return conn.NotifyClose(make(chan *amqp.Error, 1)), nil
}

// adopt выполняет install под мьютексом, если соединение ещё не закрыто.
// Close отменяет ctx до захвата мьютекса, поэтому соединение, открытое
// во время Close, либо закрывается здесь, либо достаётся Close.
func (c *Connection) adopt(install func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx.Err() != nil {
		return false
	}
	install()
	return true
}

// supervise ждёт разрыва и переподключается, пока соединение не закрыто.
func (c *Connection) supervise(closed <-chan *amqp.Error) {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case amqpErr, ok := <-closed:
			if !ok && c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("connection lost", "error", amqpErr)
		}

		next, err := c.redial()
		if err != nil {
			return
		}
		closed = next

		select {
		case c.redialed <- struct{}{}:
		default:
		}
	}
}

func (c *Connection) redial() (<-chan *amqp.Error, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = redialInitialDelay
	b.MaxInterval = redialMaxDelay
	b.MaxElapsedTime = 0

	var closed <-chan *amqp.Error
	op := func() error {
		var err error
		closed, err = c.dial()
		return err
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn("redial failed", "error", err, "retry_in", next)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, c.ctx), notify); err != nil {
		return nil, err
	}
	c.logger.Info("reconnected to RabbitMQ")
	return closed, nil
}

// Channel возвращает текущий канал (nil, пока соединение не установлено).
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ch
}

// ReconnectNotify срабатывает после каждого успешного redial.
func (c *Connection) ReconnectNotify() <-chan struct{} {
	return c.redialed
}

// IsConnected проверяет, открыто ли соединение.
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// WithChannel вызывает fn с текущим каналом.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if c.ctx.Err() != nil {
		return errConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.Channel()
	if ch == nil {
		return errNoChannel
	}
	return fn(ch)
}

// Close закрывает канал и соединение. Повторный вызов — no-op.
func (c *Connection) Close() error {
	if c.ctx.Err() != nil {
		return nil
	}
	c.cancel()

	c.mu.Lock()
	conn, ch := c.conn, c.ch
	c.conn, c.ch = nil, nil
	c.mu.Unlock()

	var errs []error
	if ch != nil {
		if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	<-c.done
	c.logger.Info("connection closed")
	return errors.Join(errs...)
}
