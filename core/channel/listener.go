// Package channel keeps the progress websocket of one watch session open and
// feeds normalized lifecycle events to a Handler.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cinethos/core/lifecycle"
	"cinethos/logger"
	"cinethos/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultPongWait = 60 * time.Second
	closeGrace      = time.Second
	maxMessageSize  = 64 << 10
)

// ErrClosedByServer reports a close frame received before a terminal stage.
var ErrClosedByServer = errors.New("progress channel closed by server")

// Handler receives everything the listener observes. Calls come from the
// listener goroutine, one at a time.
type Handler interface {
	OnOpen()
	OnLifecycle(lc model.DownloadLifecycle)
	// OnParseError reports a message that could not be normalized. The
	// lifecycle is left as it was.
	OnParseError(err error)
	// OnConnectionError reports a failed dial or a dropped connection.
	// retrying is false once the reconnect budget is spent.
	OnConnectionError(err error, retrying bool)
}

// Options tunes a Listener. The zero value is usable.
type Options struct {
	// MaxRetries bounds consecutive reconnect attempts; 0 disables reconnects.
	MaxRetries   int
	NewBackOff   func() backoff.BackOff
	Dialer       *websocket.Dialer
	PongWait     time.Duration
	PingInterval time.Duration
	Logger       *zap.Logger
}

func (o *Options) defaults() {
	if o.NewBackOff == nil {
		o.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.Logger == nil {
		o.Logger = logger.Named("channel")
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
}

// URL builds {base with ws scheme}/ws/{contentID}?token={token}. The token
// travels in the query because browsers cannot set headers on websockets.
func URL(base, contentID, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	// Path holds the decoded form and RawPath the encoded one, so an id
	// containing "/" stays a single segment like the manifest path.
	u.RawPath = strings.TrimRight(u.EscapedPath(), "/") + "/ws/" + url.PathEscape(contentID)
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + contentID
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Listener owns one progress websocket.
type Listener struct {
	url     string
	handler Handler
	opts    Options
	log     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	conn     *websocket.Conn
	terminal atomic.Bool
}

// Open starts listening on the channel for contentID. Dialing happens in the
// background; failures reach the handler.
func Open(base, contentID, token string, h Handler, opts Options) (*Listener, error) {
	target, err := URL(base, contentID, token)
	if err != nil {
		return nil, err
	}
	opts.defaults()

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		url:     target,
		handler: h,
		opts:    opts,
		log:     opts.Logger.With(zap.String("contentId", contentID)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Done is closed when the listener goroutine has exited.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Close stops the listener without waiting for it. Safe to call repeatedly.
func (l *Listener) Close() {
	l.cancel()

	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return
	}
	go func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		_ = conn.Close()
	}()
}

func (l *Listener) run() {
	defer close(l.done)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(l.opts.NewBackOff(), uint64(l.opts.MaxRetries)),
		l.ctx,
	)

	for {
		connected, err := l.session()
		if l.ctx.Err() != nil {
			return
		}
		if l.terminal.Load() {
			l.log.Debug("progress channel finished after terminal stage")
			return
		}
		if errors.Is(err, ErrClosedByServer) {
			l.log.Warn("progress channel closed by server")
			l.handler.OnConnectionError(err, false)
			return
		}
		if connected {
			policy.Reset()
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			l.log.Warn("progress channel lost, giving up", zap.Error(err))
			l.handler.OnConnectionError(err, false)
			return
		}
		l.log.Warn("progress channel lost, reconnecting", zap.Error(err), zap.Duration("wait", wait))
		l.handler.OnConnectionError(err, true)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-l.ctx.Done():
			timer.Stop()
			return
		}
	}
}

// session dials once and reads until the connection ends.
func (l *Listener) session() (bool, error) {
	conn, resp, err := l.opts.Dialer.DialContext(l.ctx, l.url, nil)
	if err != nil {
		if resp != nil {
			return false, fmt.Errorf("dial progress channel: %w (status %d)", err, resp.StatusCode)
		}
		return false, fmt.Errorf("dial progress channel: %w", err)
	}

	l.mu.Lock()
	if l.ctx.Err() != nil {
		l.mu.Unlock()
		_ = conn.Close()
		return true, l.ctx.Err()
	}
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	l.handler.OnOpen()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(l.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(l.opts.PongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go l.ping(conn, stopPing)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, ErrClosedByServer
			}
			return true, fmt.Errorf("read progress channel: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(l.opts.PongWait))
		if messageType != websocket.TextMessage {
			continue
		}

		lc, err := lifecycle.Normalize(data)
		if err != nil {
			l.log.Debug("dropping malformed progress message", zap.Error(err))
			l.handler.OnParseError(err)
			continue
		}
		if lc.Stage.Terminal() {
			l.terminal.Store(true)
		}
		l.handler.OnLifecycle(lc)
	}
}

func (l *Listener) ping(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(l.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(closeGrace * 10)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
