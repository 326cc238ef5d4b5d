// Package feed provides the NATS-backed change-notification feed for the
// Recetario chat room. The server publishes an insert-event to a subject
// whenever a row is appended to one of the watched logs (chat messages,
// typing signals), and consumers receive those events in publish order.
// Ordering is guaranteed per subject only; nothing may be assumed about the
// interleaving of the message and typing channels.
package feed

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects watched by the chat components.
const (
	SubjectMessageInsert = "recetario.chat.messages.insert"
	SubjectTypingInsert  = "recetario.chat.typing.insert"
)

// Client wraps the NATS connection with helper methods for the two chat
// subjects and tracks connection health so consumers can detect a dead feed
// and resubscribe.
type Client struct {
	conn *nats.Conn

	mu      sync.Mutex
	subs    map[string]*nats.Subscription
	lastErr error
	closed  bool
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "recetario",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Connect dials NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func Connect(config Config) (*Client, error) {
	c := &Client{
		subs: make(map[string]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.mu.Lock()
			if err != nil {
				c.lastErr = err
			}
			c.mu.Unlock()
			if err != nil {
				log.Printf("[feed] disconnected: %v", err)
			} else {
				log.Printf("[feed] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.mu.Lock()
			c.lastErr = nil
			c.mu.Unlock()
			log.Printf("[feed] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			log.Printf("[feed] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("feed: connect: %w", err)
	}

	log.Printf("[feed] connected to %s", nc.ConnectedUrl())

	c.conn = nc
	return c, nil
}

// Healthy reports whether the feed connection is usable. A false return is
// the reconnect-needed state: consumers should tear down and resubscribe
// once a fresh client is available.
func (c *Client) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.lastErr == nil
}

// LastError returns the most recent connection error, or nil. It is cleared
// on successful reconnect.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("feed: connection closed")
	}
	return c.lastErr
}

// Publish sends data to the given subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// PublishMessageInsert publishes a chat-message insert-event.
func (c *Client) PublishMessageInsert(data []byte) error {
	return c.Publish(SubjectMessageInsert, data)
}

// PublishTypingInsert publishes a typing insert-event.
func (c *Client) PublishTypingInsert(data []byte) error {
	return c.Publish(SubjectTypingInsert, data)
}

// Subscribe registers a handler for the given subject under a caller-chosen
// key and stores the subscription for later cleanup. The key allows several
// consumers on the same server to subscribe to the same subject without
// overwriting each other.
func (c *Client) Subscribe(key, subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("feed: subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[key] = sub
	c.mu.Unlock()
	return nil
}

// SubscribeMessageInserts subscribes a consumer to chat-message insert-events.
func (c *Client) SubscribeMessageInserts(key string, handler func(data []byte)) error {
	return c.Subscribe(key, SubjectMessageInsert, handler)
}

// SubscribeTypingInserts subscribes a consumer to typing insert-events.
func (c *Client) SubscribeTypingInserts(key string, handler func(data []byte)) error {
	return c.Subscribe(key, SubjectTypingInsert, handler)
}

// Unsubscribe removes and unsubscribes the subscription stored under key.
func (c *Client) Unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("feed: no subscription for key %s", key)
	}
	delete(c.subs, key)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("feed: unsubscribe %s: %w", key, err)
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *Client) Close() {
	c.mu.Lock()
	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[feed] drain %s: %v", key, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	if err := c.conn.Drain(); err != nil {
		log.Printf("[feed] connection drain: %v", err)
	}

	log.Printf("[feed] client closed")
}
