package udptracker

// http://bittorrent.org/beps/bep_0015.html

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"

	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/tracker"
)

// Connection ids are valid for this long after they are received.
const connectionIDInterval = time.Minute

// Read buffer holds an announce response with this many peers.
const maxNumWant = 1000

// ErrTimeout is returned when the tracker does not respond after all retries.
var ErrTimeout = errors.New("udp tracker did not respond")

var errClosed = errors.New("udp transport is closed")

// Transport sends requests of all UDP trackers from a single socket and matches responses by transaction id.
type Transport struct {
	timeout time.Duration
	retries int
	log     logger.Logger

	mu           sync.Mutex
	conn         *net.UDPConn
	connections  map[string]*connection
	transactions map[int32]*transaction
	closed       bool

	closeC chan struct{}
}

type connection struct {
	id         int64
	receivedAt time.Time
}

type transaction struct {
	id       int32
	addr     *net.UDPAddr
	response []byte
	err      error
	done     chan struct{}
}

// NewTransport returns a Transport that waits timeout for the first response of a request
// and doubles the wait on each retry. A request fails with ErrTimeout after retries attempts.
func NewTransport(timeout time.Duration, retries int) *Transport {
	return &Transport{
		timeout:      timeout,
		retries:      retries,
		log:          logger.New("udp tracker transport"),
		connections:  make(map[string]*connection),
		transactions: make(map[int32]*transaction),
		closeC:       make(chan struct{}),
	}
}

// Close the socket. Requests in progress return an error.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.closeC)
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// do sends req to the tracker at dest and returns the response.
// A connection id is requested first if there is no valid one for the tracker.
func (t *Transport) do(ctx context.Context, dest string, req udpRequest) ([]byte, error) {
	err := t.listen()
	if err != nil {
		return nil, err
	}
	addr, err := resolve(ctx, dest)
	if err != nil {
		return nil, err
	}
	id, err := t.connectionID(ctx, addr)
	if err != nil {
		return nil, err
	}
	req.setConnectionID(id)
	data, err := t.roundTrip(ctx, addr, req)
	var terr *tracker.Error
	if errors.As(err, &terr) {
		// Connection id may be expired on the tracker side.
		t.forget(addr)
	}
	return data, err
}

func (t *Transport) listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	if t.conn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return err
	}
	t.conn = conn
	go t.readLoop(conn)
	return nil
}

func resolve(ctx context.Context, dest string) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(dest)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() == nil {
			return nil, errors.New("ipv6 is not supported")
		}
		return &net.UDPAddr{IP: ip.To4(), Port: port}, nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if ip := a.IP.To4(); ip != nil {
			return &net.UDPAddr{IP: ip, Port: port}, nil
		}
	}
	return nil, errors.New("no ipv4 address for host: " + host)
}

func (t *Transport) connectionID(ctx context.Context, addr *net.UDPAddr) (int64, error) {
	key := addr.String()
	t.mu.Lock()
	c, ok := t.connections[key]
	t.mu.Unlock()
	if ok && time.Since(c.receivedAt) < connectionIDInterval {
		return c.id, nil
	}
	data, err := t.roundTrip(ctx, addr, newConnectRequest())
	if err != nil {
		return 0, err
	}
	var resp connectResponse
	err = binary.Read(bytes.NewReader(data), binary.BigEndian, &resp)
	if err != nil {
		return 0, tracker.ErrDecode
	}
	if resp.Action != actionConnect {
		return 0, tracker.ErrDecode
	}
	t.log.Debugln("got connection id from", key)
	t.mu.Lock()
	t.connections[key] = &connection{id: resp.ConnectionID, receivedAt: time.Now()}
	t.mu.Unlock()
	return resp.ConnectionID, nil
}

func (t *Transport) forget(addr *net.UDPAddr) {
	t.mu.Lock()
	delete(t.connections, addr.String())
	t.mu.Unlock()
}

// roundTrip writes req until a response with the same transaction id arrives.
func (t *Transport) roundTrip(ctx context.Context, addr *net.UDPAddr, req udpRequest) ([]byte, error) {
	trx := t.newTransaction(addr)
	defer t.removeTransaction(trx)
	req.setTransactionID(trx.id)
	var buf bytes.Buffer
	if _, err := req.WriteTo(&buf); err != nil {
		return nil, err
	}

	b := &udpBackOff{initial: t.timeout, max: t.retries}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			d := b.NextBackOff()
			if d == backoff.Stop {
				return nil, ErrTimeout
			}
			if _, err := t.conn.WriteToUDP(buf.Bytes(), addr); err != nil {
				return nil, err
			}
			timer.Reset(d)
		case <-trx.done:
			return trx.response, trx.err
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.closeC:
			return nil, errClosed
		}
	}
}

func (t *Transport) newTransaction(addr *net.UDPAddr) *transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	trx := &transaction{addr: addr, done: make(chan struct{})}
	for {
		trx.id = rand.Int31() // nolint: gosec
		if _, ok := t.transactions[trx.id]; !ok {
			break
		}
	}
	t.transactions[trx.id] = trx
	return trx
}

func (t *Transport) removeTransaction(trx *transaction) {
	t.mu.Lock()
	delete(t.transactions, trx.id)
	t.mu.Unlock()
}

// readLoop reads datagrams and completes the transaction they belong to.
func (t *Transport) readLoop(conn *net.UDPConn) {
	buf := make([]byte, binary.Size(announceResponse{})+6*maxNumWant)
	headerSize := binary.Size(messageHeader{})
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.closeC:
			default:
				t.log.Errorln("cannot read from udp socket:", err)
			}
			return
		}
		if n < headerSize {
			t.log.Debugln("short packet from", from)
			continue
		}
		var header messageHeader
		_ = binary.Read(bytes.NewReader(buf[:n]), binary.BigEndian, &header)

		t.mu.Lock()
		trx, ok := t.transactions[header.TransactionID]
		if ok && trx.addr.IP.Equal(from.IP) && trx.addr.Port == from.Port {
			delete(t.transactions, header.TransactionID)
		} else {
			ok = false
		}
		t.mu.Unlock()
		if !ok {
			t.log.Debugln("unexpected transaction id:", header.TransactionID, "from", from)
			continue
		}

		if header.Action == actionError {
			trx.err = &tracker.Error{FailureReason: string(buf[headerSize:n])}
		} else {
			trx.response = append([]byte(nil), buf[:n]...)
		}
		close(trx.done)
	}
}

// udpBackOff waits 15 * 2 ^ n seconds before the n'th retry, by default.
type udpBackOff struct {
	initial time.Duration
	max     int
	n       int
}

var _ backoff.BackOff = (*udpBackOff)(nil)

func (b *udpBackOff) NextBackOff() time.Duration {
	if b.n >= b.max {
		return backoff.Stop
	}
	d := b.initial << uint(b.n)
	b.n++
	return d
}

func (b *udpBackOff) Reset() { b.n = 0 }
