package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stolenhq/notify/internal/models"
)

// Transport is the underlying subscription the client keeps alive. The
// production transport is a websocket session; tests substitute a fake.
type Transport interface {
	Connect(ctx context.Context) error
}

// Callbacks are the typed hooks fired as updates arrive. Any nil hook is
// skipped. OnToast fires for every non-low-priority update when
// notifications are enabled, independent of the typed hooks.
type Callbacks struct {
	OnBalanceUpdate     func(models.RealTimeUpdate)
	OnTransactionUpdate func(models.RealTimeUpdate)
	OnSecurityAlert     func(models.RealTimeUpdate)
	OnSystemUpdate      func(models.RealTimeUpdate)
	OnToast             func(models.RealTimeUpdate)
}

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// Client maintains one user's live feed: a capped newest-first sequence of
// updates, an unread counter, and the connection state machine. It is owned
// by a single session; a mutex guards against the transport goroutine and
// the UI goroutine touching the feed at once.
type Client struct {
	mu                   sync.Mutex
	userID               string
	maxUpdates           int
	updates              []models.RealTimeUpdate
	unread               int
	state                connState
	lastUpdate           *time.Time
	reconnectAttempts    int
	callbacks            Callbacks
	notificationsEnabled bool
	transport            Transport
	baseDelay            time.Duration
	maxAttempts          int
	sleep                func(time.Duration)
	log                  *zap.Logger
}

type ClientOption func(*Client)

func WithCallbacks(cb Callbacks) ClientOption {
	return func(c *Client) { c.callbacks = cb }
}

func WithMaxUpdates(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxUpdates = n
		}
	}
}

func WithReconnectPolicy(baseDelay time.Duration, maxAttempts int) ClientOption {
	return func(c *Client) {
		c.baseDelay = baseDelay
		c.maxAttempts = maxAttempts
	}
}

func WithNotificationsEnabled(enabled bool) ClientOption {
	return func(c *Client) { c.notificationsEnabled = enabled }
}

func NewClient(userID string, transport Transport, log *zap.Logger, opts ...ClientOption) *Client {
	c := &Client{
		userID:               userID,
		maxUpdates:           10,
		state:                stateDisconnected,
		notificationsEnabled: true,
		transport:            transport,
		baseDelay:            500 * time.Millisecond,
		maxAttempts:          5,
		sleep:                time.Sleep,
		log:                  log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) UserID() string { return c.userID }

// Connect performs the initial handshake. On success the client is
// Connected and the attempt counter resets; on failure it stays
// Disconnected and the counter increments so the UI can show it.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == stateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = stateConnecting
	c.mu.Unlock()

	err := c.transport.Connect(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = stateDisconnected
		c.reconnectAttempts++
		c.log.Warn("realtime connect failed",
			zap.String("user_id", c.userID),
			zap.Int("reconnect_attempts", c.reconnectAttempts),
			zap.Error(err))
		return fmt.Errorf("realtime connect: %w", err)
	}
	c.state = stateConnected
	c.reconnectAttempts = 0
	return nil
}

// HandleDisconnect is called by the transport when the connection drops.
// It surfaces connected=false and bumps the attempt counter.
func (c *Client) HandleDisconnect(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = stateDisconnected
	c.reconnectAttempts++
	c.log.Warn("realtime connection dropped",
		zap.String("user_id", c.userID),
		zap.Int("reconnect_attempts", c.reconnectAttempts),
		zap.Error(err))
}

// Reconnect retries the handshake with exponential backoff until it
// succeeds or the attempt cap is reached.
func (c *Client) Reconnect(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.reconnectAttempts >= c.maxAttempts {
			attempts := c.reconnectAttempts
			c.mu.Unlock()
			return fmt.Errorf("reconnect gave up after %d attempts", attempts)
		}
		delay := c.baseDelay << uint(c.reconnectAttempts)
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.sleep(delay)

		if err := c.Connect(ctx); err == nil {
			return nil
		}
	}
}

// AddUpdate prepends an update to the feed, evicting the oldest entry past
// the cap, and fires the matching typed callback. Arrival also counts as
// proof of liveness: a Connecting client becomes Connected.
func (c *Client) AddUpdate(update models.RealTimeUpdate) {
	c.mu.Lock()
	now := time.Now()
	c.lastUpdate = &now
	if c.state == stateConnecting {
		c.state = stateConnected
	}
	if c.state == stateConnected {
		c.reconnectAttempts = 0
	}

	c.updates = append([]models.RealTimeUpdate{update}, c.updates...)
	if len(c.updates) > c.maxUpdates {
		// an evicted entry can never be marked read, so it must not keep
		// inflating the unread counter
		for _, evicted := range c.updates[c.maxUpdates:] {
			if !evicted.Read && c.unread > 0 {
				c.unread--
			}
		}
		c.updates = c.updates[:c.maxUpdates]
	}
	if !update.Read {
		c.unread++
	}
	cb := c.typedCallback(update.Type)
	toast := c.callbacks.OnToast
	notify := c.notificationsEnabled
	c.mu.Unlock()

	if cb != nil {
		cb(update)
	}
	if toast != nil && notify && update.Priority != models.PriorityLow {
		toast(update)
	}
}

func (c *Client) typedCallback(t models.UpdateType) func(models.RealTimeUpdate) {
	switch t {
	case models.UpdateBalance:
		return c.callbacks.OnBalanceUpdate
	case models.UpdateTransaction:
		return c.callbacks.OnTransactionUpdate
	case models.UpdateSecurity:
		return c.callbacks.OnSecurityAlert
	case models.UpdateSystem:
		return c.callbacks.OnSystemUpdate
	}
	return nil
}

// MarkAsRead flags one entry as read. Marking an already-read entry again
// is a no-op.
func (c *Client) MarkAsRead(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.updates {
		if c.updates[i].ID == id {
			if !c.updates[i].Read {
				c.updates[i].Read = true
				if c.unread > 0 {
					c.unread--
				}
			}
			return
		}
	}
}

func (c *Client) MarkAllAsRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.updates {
		c.updates[i].Read = true
	}
	c.unread = 0
}

// ClearAll empties the feed. Connection state is untouched.
func (c *Client) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = nil
	c.unread = 0
}

// Updates returns a copy of the feed, newest first.
func (c *Client) Updates() []models.RealTimeUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.RealTimeUpdate, len(c.updates))
	copy(out, c.updates)
	return out
}

func (c *Client) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

func (c *Client) Status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.ConnectionStatus{
		Connected:         c.state == stateConnected,
		LastUpdate:        c.lastUpdate,
		ReconnectAttempts: c.reconnectAttempts,
	}
}
