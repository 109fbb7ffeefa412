package relay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set"
	"github.com/hashicorp/yamux"
	"github.com/jpillora/sizestr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"localpub/internal/constants"
	"localpub/internal/utils"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, constants.CopyBufferSize)
		return &b
	},
}

func getBuffer() *[]byte { return bufferPool.Get().(*[]byte) }

func putBuffer(b *[]byte) { bufferPool.Put(b) }

type stats struct {
	in       atomic.Int64
	out      atomic.Int64
	accepted atomic.Int64
}

func (s *stats) String() string {
	return fmt.Sprintf("%d connections, sent %s received %s",
		s.accepted.Load(), sizestr.ToString(s.out.Load()), sizestr.ToString(s.in.Load()))
}

// base carries what both providers share: the event sink, the set of live
// forwarders and the byte counters.
type base struct {
	log        logrus.FieldLogger
	events     *eventSink
	forwarders mapset.Set
	stats      stats

	closing   chan struct{}
	closeOnce sync.Once
}

func (b *base) init(log logrus.FieldLogger) {
	b.log = log
	b.events = newEventSink()
	b.forwarders = mapset.NewSet()
	b.closing = make(chan struct{})
}

func (b *base) Events() <-chan Event {
	return b.events.ch
}

func (b *base) isClosing() bool {
	select {
	case <-b.closing:
		return true
	default:
		return false
	}
}

// shutdown runs closeTransport once, drops every live forwarder and closes
// the event channel.
func (b *base) shutdown(closeTransport func() error) error {
	var err error
	b.closeOnce.Do(func() {
		close(b.closing)
		if closeTransport != nil {
			err = closeTransport()
		}
		for _, f := range b.forwarders.ToSlice() {
			f.(*forwarder).kill()
		}
		b.events.close()
		b.log.Debugf("Relay closed (%s)", &b.stats)
	})
	return err
}

// forward pipes remote to localhost:port in the background.
func (b *base) forward(remote net.Conn, port int) {
	f := &forwarder{remote: remote, addr: utils.LocalAddr(port), stats: &b.stats, log: b.log}
	b.stats.accepted.Add(1)
	b.forwarders.Add(f)
	if b.isClosing() {
		f.kill()
	}
	go func() {
		defer b.forwarders.Remove(f)
		f.forward()
	}()
}

type forwarder struct {
	remote net.Conn
	addr   string
	stats  *stats
	log    logrus.FieldLogger

	mu     sync.Mutex
	local  net.Conn
	killed bool
}

func (f *forwarder) forward() {
	defer f.kill()

	local, err := net.DialTimeout("tcp", f.addr, constants.DialTimeout)
	if err != nil {
		f.log.WithError(err).Debugf("Local dial to %s failed", f.addr)
		return
	}
	if tcp, ok := local.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	f.mu.Lock()
	if f.killed {
		f.mu.Unlock()
		local.Close()
		return
	}
	f.local = local
	f.mu.Unlock()

	if err := pipe(f.remote, local, f.stats); err != nil {
		f.log.WithError(err).Debug("Forwarder ended with error")
	}
}

func (f *forwarder) kill() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = true
	if f.remote != nil {
		_ = f.remote.Close()
	}
	if f.local != nil {
		_ = f.local.Close()
	}
}

// pipe copies both directions until one ends, then closes both ends so the
// other copy unblocks.
func pipe(remote, local net.Conn, st *stats) error {
	var g errgroup.Group

	g.Go(func() error {
		buf := getBuffer()
		defer putBuffer(buf)
		n, err := io.CopyBuffer(local, remote, *buf)
		st.in.Add(n)
		_ = local.Close()
		return quiet(err)
	})
	g.Go(func() error {
		buf := getBuffer()
		defer putBuffer(buf)
		n, err := io.CopyBuffer(remote, local, *buf)
		st.out.Add(n)
		_ = remote.Close()
		return quiet(err)
	})

	return g.Wait()
}

// quiet drops the errors every connection ends with.
func quiet(err error) error {
	switch {
	case err == nil,
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, yamux.ErrStreamClosed),
		errors.Is(err, yamux.ErrSessionShutdown):
		return nil
	}
	return err
}
