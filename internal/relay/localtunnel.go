package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	localtunnel "github.com/localtunnel/go-localtunnel"
	"github.com/sirupsen/logrus"

	"localpub/internal/constants"
)

// listener is the part of *localtunnel.Listener the client uses.
type listener interface {
	Accept() (net.Conn, error)
	URL() string
	Close() error
}

type listenFunc func(localtunnel.Options) (listener, error)

func listenLocaltunnel(opts localtunnel.Options) (listener, error) {
	l, err := localtunnel.Listen(opts)
	if err != nil {
		return nil, err
	}
	return l, nil
}

type localtunnelClient struct {
	base
	opts   Options
	listen listenFunc

	mu       sync.Mutex
	opened   bool
	listener listener
}

func newLocaltunnel(opts Options) *localtunnelClient {
	c := &localtunnelClient{opts: opts, listen: listenLocaltunnel}
	c.base.init(opts.Log.WithField("relay", "localtunnel"))
	return c
}

// debugLogger routes go-localtunnel's chatter to debug level.
type debugLogger struct {
	log logrus.FieldLogger
}

func (d debugLogger) Println(v ...interface{}) {
	d.log.Debugln(v...)
}

type listenResult struct {
	l   listener
	err error
}

func (c *localtunnelClient) Open(ctx context.Context, port int) (string, error) {
	const op = "relay open"

	c.mu.Lock()
	if c.opened {
		c.mu.Unlock()
		return "", relayError(op, "relay already opened", nil)
	}
	c.opened = true
	c.mu.Unlock()

	if c.isClosing() {
		return "", relayError(op, "relay closed", net.ErrClosed)
	}

	ltOpts := localtunnel.Options{
		Subdomain:      c.opts.Subdomain,
		BaseURL:        c.opts.Host,
		MaxConnections: constants.MaxLocaltunnelConns,
		Log:            debugLogger{log: c.log},
	}

	// localtunnel.Listen has no context, so it runs aside and a late
	// listener is closed when nobody is waiting for it any more.
	done := make(chan listenResult, 1)
	go func() {
		l, err := c.listen(ltOpts)
		done <- listenResult{l: l, err: err}
	}()

	var res listenResult
	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.l != nil {
				r.l.Close()
			}
		}()
		return "", relayError(op, fmt.Sprintf("failed to reach %s", c.opts.Host), ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		return "", relayError(op, fmt.Sprintf("failed to open tunnel on %s", c.opts.Host), res.err)
	}

	c.mu.Lock()
	c.listener = res.l
	c.mu.Unlock()

	if c.isClosing() {
		res.l.Close()
		return "", relayError(op, "relay closed", net.ErrClosed)
	}

	c.log.Debugf("🌍 Tunnel established: %s", res.l.URL())
	go c.acceptLoop(res.l, port)
	return res.l.URL(), nil
}

func (c *localtunnelClient) acceptLoop(l listener, port int) {
	b := &backoff.Backoff{
		Min:    constants.AcceptBackoffMin,
		Max:    constants.AcceptBackoffMax,
		Factor: 2,
		Jitter: true,
	}

	for {
		conn, err := l.Accept()
		if err == nil {
			b.Reset()
			c.log.Debug("Accepting new relay connection")
			c.forward(conn, port)
			continue
		}

		if c.isClosing() {
			return
		}
		if errors.Is(err, localtunnel.ErrListenerClosed) || errors.Is(err, net.ErrClosed) ||
			int(b.Attempt()) >= constants.AcceptMaxFailures {
			c.events.emit(Event{Kind: EventClosed, Err: relayError("relay accept", "tunnel closed", err)})
			return
		}

		d := b.Duration()
		c.log.WithError(err).Warnf("Relay accept failed, retrying in %s", d)
		c.events.emit(Event{Kind: EventError, Err: relayError("relay accept", "accept failed", err)})

		select {
		case <-c.closing:
			return
		case <-time.After(d):
		}
	}
}

func (c *localtunnelClient) Close() error {
	return c.shutdown(func() error {
		c.mu.Lock()
		l := c.listener
		c.mu.Unlock()
		if l == nil {
			return nil
		}
		if err := l.Close(); err != nil && !errors.Is(err, localtunnel.ErrListenerClosed) {
			return err
		}
		return nil
	})
}
