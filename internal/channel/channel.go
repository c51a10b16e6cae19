package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"separation-service/internal/models"
	"separation-service/internal/util"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the lifecycle state of the channel session
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

var (
	// ErrAuthRejected means the server refused the credentials; the
	// session must not be retried until the user logs in again.
	ErrAuthRejected = errors.New("channel: authentication rejected")
	// ErrReconnectExhausted means the reconnect budget ran out.
	ErrReconnectExhausted = errors.New("channel: reconnect attempts exhausted")
)

// StatusFunc observes every channel state transition. The error is
// non-nil only for fatal transitions to StateClosed.
type StatusFunc func(state State, err error)

// Options configures a Channel
type Options struct {
	// URL is the websocket endpoint including the token query param
	URL     string
	OrderID int64
	Router  *Router

	OnStatus StatusFunc

	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxAttempts  int
	PingInterval time.Duration

	Dialer *websocket.Dialer
}

// Channel owns exactly one live websocket session for the currently
// viewed order, reconnecting with exponential backoff on abnormal
// closure.
type Channel struct {
	opts   Options
	logger *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	conn     *websocket.Conn
	timer    *time.Timer
	attempts int
	state    State
	closed   bool
}

// New creates a channel for one order. Connect must be called to open it.
func New(opts Options) *Channel {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Router == nil {
		opts.Router = NewRouter()
	}
	return &Channel{
		opts:   opts,
		logger: util.GetLogger(),
		state:  StateClosed,
	}
}

// Backoff computes the reconnect delay for a given attempt index:
// min(base << attempt, cap).
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base << uint(attempt)
	if d <= 0 || d > cap {
		return cap
	}
	return d
}

// Connect dials the server, joins the order and starts the read loop.
// A dial failure schedules a reconnect unless the rejection was an
// authentication failure.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.notify(StateConnecting, nil)

	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			c.logger.Error("Channel authentication rejected",
				zap.Int64("order_id", c.opts.OrderID),
				zap.Int("status", resp.StatusCode))
			c.fail(ErrAuthRejected)
			return ErrAuthRejected
		}
		c.logger.Warn("Channel dial failed",
			zap.Int64("order_id", c.opts.OrderID),
			zap.Error(err))
		c.scheduleReconnect()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.attempts = 0
	c.state = StateOpen
	c.mu.Unlock()

	// Joining records presence; subscribing routes this order's
	// broadcasts to us.
	c.writeCommand(conn, models.CommandJoinOrder, models.OrderCommand{OrderID: c.opts.OrderID})
	c.writeCommand(conn, models.CommandSubscribe, models.OrderCommand{OrderID: c.opts.OrderID})

	c.logger.Info("Channel connected", zap.Int64("order_id", c.opts.OrderID))
	c.notify(StateOpen, nil)

	done := make(chan struct{})
	go c.readLoop(conn, done)
	if c.opts.PingInterval > 0 {
		go c.pingLoop(conn, done)
	}
	return nil
}

// Disconnect tears the session down deterministically: sends
// leave_order, closes with a normal code and cancels any pending
// reconnect timer. Safe to call more than once.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateClosed
	c.mu.Unlock()

	if conn != nil {
		c.writeCommand(conn, models.CommandLeaveOrder, models.OrderCommand{OrderID: c.opts.OrderID})
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "view closed"), deadline)
		conn.Close()
	}

	c.logger.Info("Channel disconnected", zap.Int64("order_id", c.opts.OrderID))
	c.notify(StateClosed, nil)
}

// State returns the current lifecycle state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleClosed(err)
			return
		}
		c.opts.Router.HandleFrame(raw)
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeCommand(conn, models.CommandPing,
				models.PingCommand{Timestamp: time.Now().UnixMilli()})
		}
	}
}

func (c *Channel) handleClosed(err error) {
	c.mu.Lock()
	intentional := c.closed
	c.conn = nil
	c.mu.Unlock()

	if intentional {
		return
	}

	switch {
	case isAuthRejection(err):
		c.logger.Error("Channel closed by auth rejection", zap.Error(err))
		util.ChannelFailuresTotal.WithLabelValues("auth").Inc()
		c.fail(ErrAuthRejected)
	case isNormalClosure(err):
		c.logger.Info("Channel closed by server")
		c.fail(nil)
	default:
		c.logger.Warn("Channel closed abnormally", zap.Error(err))
		c.scheduleReconnect()
	}
}

func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.timer != nil {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.opts.MaxAttempts {
		c.state = StateClosed
		c.mu.Unlock()
		util.ChannelFailuresTotal.WithLabelValues("exhausted").Inc()
		c.logger.Error("Reconnect attempts exhausted",
			zap.Int64("order_id", c.opts.OrderID),
			zap.Int("attempts", c.opts.MaxAttempts))
		c.notify(StateClosed, ErrReconnectExhausted)
		return
	}

	delay := Backoff(c.attempts, c.opts.BackoffBase, c.opts.BackoffCap)
	attempt := c.attempts
	c.state = StateConnecting
	c.timer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.timer = nil
		c.attempts++
		c.mu.Unlock()
		util.ChannelReconnectsTotal.Inc()
		_ = c.Connect(context.Background())
	})
	c.mu.Unlock()

	c.logger.Info("Reconnect scheduled",
		zap.Int64("order_id", c.opts.OrderID),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	c.notify(StateConnecting, nil)
}

func (c *Channel) fail(err error) {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.notify(StateClosed, err)
}

func (c *Channel) notify(state State, err error) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(state, err)
	}
}

func (c *Channel) writeCommand(conn *websocket.Conn, commandType string, payload interface{}) {
	env, err := models.NewEnvelope(commandType, payload)
	if err != nil {
		c.logger.Error("Failed to encode command", zap.String("type", commandType), zap.Error(err))
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		c.logger.Warn("Failed to send command", zap.String("type", commandType), zap.Error(err))
	}
}

// isAuthRejection reports whether the closure carried the policy
// violation code the server uses to reject bad tokens.
func isAuthRejection(err error) bool {
	return websocket.IsCloseError(err, websocket.ClosePolicyViolation)
}

// isNormalClosure reports whether the peer closed intentionally
func isNormalClosure(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
