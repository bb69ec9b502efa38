package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	heartbeat     = 10 * time.Second
	redialInitial = time.Second
	redialMax     = 30 * time.Second
)

// Connection держит одно AMQP соединение с одним каналом.
// При разрыве соединение переоткрывается в фоне до вызова Close.
type Connection struct {
	url    string
	name   string
	logger *slog.Logger

	mu   sync.RWMutex
	amqp *amqp.Connection
	ch   *amqp.Channel
	// up закрывается при следующем успешном переподключении и заменяется новым.
	up chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewConnection подключается к брокеру; name виден в management UI.
func NewConnection(url, name string, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connection{
		url:    url,
		name:   name,
		logger: logger.With("component", "mq", "connection_name", name),
		up:     make(chan struct{}),
		done:   make(chan struct{}),
	}

	conn, ch, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.swap(conn, ch)
	c.logger.Info("connected to RabbitMQ")

	go c.supervise(conn)
	return c, nil
}

func (c *Connection) dial() (*amqp.Connection, *amqp.Channel, error) {
	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName(c.name)

	conn, err := amqp.DialConfig(c.url, amqp.Config{Heartbeat: heartbeat, Properties: props})
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

// swap ставит новую пару соединение/канал и будит ждущих Reconnected.
func (c *Connection) swap(conn *amqp.Connection, ch *amqp.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.amqp, c.ch = conn, ch
	close(c.up)
	c.up = make(chan struct{})
}

// supervise ждёт разрыва текущего соединения и переоткрывает его.
func (c *Connection) supervise(conn *amqp.Connection) {
	for {
		lost := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.done:
			return
		case err := <-lost:
			if err != nil {
				c.logger.Warn("connection lost", "error", err)
			}
		}

		next, ok := c.redial()
		if !ok {
			return
		}
		conn = next
	}
}

func (c *Connection) redial() (*amqp.Connection, bool) {
	for attempt := 0; ; attempt++ {
		delay := redialDelay(attempt)
		select {
		case <-c.done:
			return nil, false
		case <-time.After(delay):
		}

		conn, ch, err := c.dial()
		if err != nil {
			c.logger.Warn("reconnect failed", "attempt", attempt+1, "next_delay", redialDelay(attempt+1), "error", err)
			continue
		}

		select {
		case <-c.done:
			_ = conn.Close()
			return nil, false
		default:
		}
		c.swap(conn, ch)
		c.logger.Info("reconnected to RabbitMQ", "attempts", attempt+1)
		return conn, true
	}
}

// redialDelay удваивает паузу с каждой попыткой, не больше redialMax.
func redialDelay(attempt int) time.Duration {
	if attempt >= 5 {
		return redialMax
	}
	return min(redialInitial<<attempt, redialMax)
}

// Channel возвращает текущий канал; nil, если соединение ещё не открыто.
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ch
}

// Reconnected возвращает канал, который закроется при следующем переподключении.
// Брать его нужно до работы с Channel, чтобы не пропустить переподключение.
func (c *Connection) Reconnected() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.up
}

// WithChannel вызывает fn с живым каналом или возвращает ErrNoChannel.
func (c *Connection) WithChannel(ctx context.Context, fn func(ch *amqp.Channel) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := c.Channel()
	if ch == nil || ch.IsClosed() {
		return ErrNoChannel
	}
	return fn(ch)
}

// Close останавливает переподключение и закрывает канал и соединение.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		conn, ch := c.amqp, c.ch
		c.amqp, c.ch = nil, nil
		c.mu.Unlock()

		var errs []error
		if ch != nil && !ch.IsClosed() {
			if cerr := ch.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close channel: %w", cerr))
			}
		}
		if conn != nil && !conn.IsClosed() {
			if cerr := conn.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close connection: %w", cerr))
			}
		}
		err = errors.Join(errs...)
		c.logger.Info("connection closed")
	})
	return err
}
