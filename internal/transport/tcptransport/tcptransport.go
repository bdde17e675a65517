// Package tcptransport implements transport.Transport over TCP connections.
package tcptransport

import (
	"container/list"
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/juju/ratelimit"

	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/transport"
)

var (
	errClosed           = errors.New("transport closed")
	errAlreadyConnected = errors.New("transport already connected")
)

// Config for Transport.
type Config struct {
	DialTimeout    time.Duration
	ReadBufferSize int
	// Optional buckets limiting read and write speed.
	ReadBucket, WriteBucket *ratelimit.Bucket
}

// DefaultConfig for Transport.
var DefaultConfig = Config{
	DialTimeout:    10 * time.Second,
	ReadBufferSize: 32 * 1024,
}

// Post runs a function on the goroutine that owns the Transport.
// It returns false if the function will never run.
type Post func(f func()) bool

type write struct {
	b    []byte
	done func()
}

// Transport is a TCP connection. I/O happens on background goroutines and every
// event is delivered through Post.
type Transport struct {
	cfg     Config
	post    Post
	handler transport.Handler
	log     logger.Logger

	// fields below are accessed on the owner goroutine only
	conn       net.Conn
	connecting bool
	connected  bool
	closed     bool
	reported   bool
	pending    [][]byte // data received before a handler is set

	queueC    chan write
	writeC    chan write
	closeC    chan struct{}
	closeOnce sync.Once
}

var _ transport.Transport = (*Transport)(nil)

// New returns a Transport that connects with Connect.
func New(post Post, cfg Config, l logger.Logger) *Transport {
	return &Transport{
		cfg:    cfg,
		post:   post,
		log:    l,
		queueC: make(chan write),
		writeC: make(chan write),
		closeC: make(chan struct{}),
	}
}

// NewConn returns a Transport for an accepted connection. It starts reading immediately.
// NewConn may be called from any goroutine.
func NewConn(conn net.Conn, post Post, cfg Config, l logger.Logger) *Transport {
	t := New(post, cfg, l)
	t.conn = conn
	t.connected = true
	t.start(conn)
	return t
}

// SetHandler sets the event handler. Data received before the call is delivered to h.
func (t *Transport) SetHandler(h transport.Handler) {
	t.handler = h
	for _, b := range t.pending {
		h.TransportData(b)
	}
	t.pending = nil
}

// Connected returns true after the connection is established and until it is lost.
func (t *Transport) Connected() bool {
	return t.connected
}

// Connect dials host:port on a new goroutine.
func (t *Transport) Connect(host string, port int) error {
	if t.closed {
		return errClosed
	}
	if t.connecting || t.connected {
		return errAlreadyConnected
	}
	t.connecting = true
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	go func() {
		conn, err := net.DialTimeout("tcp", addr, t.cfg.DialTimeout)
		ok := t.post(func() {
			t.connecting = false
			if err != nil {
				t.report(err)
				return
			}
			if t.closed {
				_ = conn.Close()
				t.report(errClosed)
				return
			}
			t.conn = conn
			t.connected = true
			t.start(conn)
			if t.handler != nil {
				t.handler.TransportConnected()
			}
		})
		if !ok && conn != nil {
			_ = conn.Close()
		}
	}()
	return nil
}

// Disconnect closes the connection. Handler is notified with TransportDisconnected.
func (t *Transport) Disconnect() {
	if t.closed {
		return
	}
	t.closed = true
	if t.conn != nil {
		// Goroutines notice the closed connection and report.
		t.shutdown()
		return
	}
	if !t.connecting {
		t.report(errClosed)
	}
}

// Write queues b to be written to the connection. Writes before connect or after disconnect are dropped.
func (t *Transport) Write(b []byte, done func()) {
	if !t.connected || t.closed {
		return
	}
	select {
	case t.queueC <- write{b: b, done: done}:
	case <-t.closeC:
	}
}

func (t *Transport) start(conn net.Conn) {
	go t.reader(conn)
	go t.run()
	go t.writer(conn)
}

func (t *Transport) shutdown() {
	t.closeOnce.Do(func() {
		close(t.closeC)
		if t.conn != nil {
			_ = t.conn.Close()
		}
	})
}

// fail is called from I/O goroutines.
func (t *Transport) fail(conn net.Conn, err error) {
	t.closeOnce.Do(func() {
		close(t.closeC)
		_ = conn.Close()
	})
	t.log.Debugln("connection error:", err)
	t.post(func() {
		if t.closed && !t.reported {
			// Closed by us, hide the read error on closed connection.
			err = errClosed
		}
		t.report(err)
	})
}

// report must be called on owner goroutine.
func (t *Transport) report(err error) {
	if t.reported {
		return
	}
	t.reported = true
	t.connected = false
	t.closed = true
	if t.handler != nil {
		t.handler.TransportDisconnected(err)
	}
}

func (t *Transport) reader(conn net.Conn) {
	size := t.cfg.ReadBufferSize
	if size <= 0 {
		size = DefaultConfig.ReadBufferSize
	}
	buf := make([]byte, size)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if t.cfg.ReadBucket != nil {
				t.cfg.ReadBucket.Wait(int64(n))
			}
			b := make([]byte, n)
			copy(b, buf[:n])
			t.post(func() {
				if t.reported {
					return
				}
				if t.handler == nil {
					t.pending = append(t.pending, b)
					return
				}
				t.handler.TransportData(b)
			})
		}
		if err != nil {
			t.fail(conn, err)
			return
		}
	}
}

// run keeps the write queue so Write never blocks on a slow connection.
func (t *Transport) run() {
	queue := list.New()
	for {
		var (
			e      *list.Element
			w      write
			writeC chan write
		)
		if queue.Len() > 0 {
			e = queue.Front()
			w = e.Value.(write)
			writeC = t.writeC
		}
		select {
		case w = <-t.queueC:
			queue.PushBack(w)
		case writeC <- w:
			queue.Remove(e)
		case <-t.closeC:
			return
		}
	}
}

func (t *Transport) writer(conn net.Conn) {
	for {
		select {
		case w := <-t.writeC:
			if t.cfg.WriteBucket != nil {
				t.cfg.WriteBucket.Wait(int64(len(w.b)))
			}
			_, err := conn.Write(w.b)
			if err != nil {
				t.fail(conn, err)
				return
			}
			if w.done != nil {
				done := w.done
				t.post(func() {
					if !t.reported {
						done()
					}
				})
			}
		case <-t.closeC:
			return
		}
	}
}
