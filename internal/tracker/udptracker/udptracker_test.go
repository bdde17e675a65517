package udptracker_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenkalti/drizzle/internal/peerinfo"
	"github.com/cenkalti/drizzle/internal/tracker"
	"github.com/cenkalti/drizzle/internal/tracker/udptracker"
)

const (
	timeout      = 2 * time.Second
	connectionID = 0x1122334455
)

type announcePacket struct {
	ConnectionID  int64
	Action        int32
	TransactionID int32
	InfoHash      [20]byte
	PeerID        [20]byte
	Downloaded    int64
	Left          int64
	Uploaded      int64
	Event         int32
	IP            uint32
	Key           uint32
	NumWant       int32
	Port          uint16
}

// testServer answers BEP 15 requests on a loopback socket.
type testServer struct {
	conn   *net.UDPConn
	peers  []peerinfo.Info
	reason string // sent as error if not empty
	silent bool

	mu        sync.Mutex
	connects  int
	announces []announcePacket
	options   [][]byte
}

func newTestServer(t *testing.T) *testServer {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	s := &testServer{conn: conn}
	t.Cleanup(func() { conn.Close() })
	return s
}

func (s *testServer) URL() string {
	return "udp://" + s.conn.LocalAddr().String() + "/announce?key=abc"
}

func (s *testServer) serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		s.handle(buf[:n], addr)
	}
}

func (s *testServer) handle(b []byte, addr *net.UDPAddr) {
	if len(b) < 16 {
		return
	}
	action := binary.BigEndian.Uint32(b[8:12])
	trxID := b[12:16]
	s.mu.Lock()
	defer s.mu.Unlock()
	var resp bytes.Buffer
	switch action {
	case 0:
		s.connects++
		if s.silent {
			return
		}
		_ = binary.Write(&resp, binary.BigEndian, uint32(0))
		resp.Write(trxID)
		_ = binary.Write(&resp, binary.BigEndian, int64(connectionID))
	case 1:
		var p announcePacket
		if err := binary.Read(bytes.NewReader(b), binary.BigEndian, &p); err != nil {
			return
		}
		s.announces = append(s.announces, p)
		s.options = append(s.options, append([]byte(nil), b[binary.Size(p):]...))
		if s.reason != "" {
			_ = binary.Write(&resp, binary.BigEndian, uint32(3))
			resp.Write(trxID)
			resp.WriteString(s.reason)
			break
		}
		_ = binary.Write(&resp, binary.BigEndian, uint32(1))
		resp.Write(trxID)
		_ = binary.Write(&resp, binary.BigEndian, []int32{1800, 4, 5})
		resp.Write(tracker.EncodePeersCompact(s.peers))
	default:
		return
	}
	_, _ = s.conn.WriteToUDP(resp.Bytes(), addr)
}

func newTracker(t *testing.T, s *testServer, tr *udptracker.Transport) *udptracker.UDPTracker {
	u, err := url.Parse(s.URL())
	require.NoError(t, err)
	return udptracker.New(s.URL(), u, tr)
}

func newTransport(t *testing.T, d time.Duration, retries int) *udptracker.Transport {
	tr := udptracker.NewTransport(d, retries)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestAnnounce(t *testing.T) {
	s := newTestServer(t)
	s.peers = []peerinfo.Info{peerinfo.New("10.0.0.1", 1111), peerinfo.New("10.0.0.2", 2222)}
	go s.serve()
	trk := newTracker(t, s, newTransport(t, time.Second, 3))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req := tracker.AnnounceRequest{
		Torrent: tracker.Torrent{
			BytesUploaded:   10,
			BytesDownloaded: 20,
			BytesLeft:       30,
			InfoHash:        [20]byte{6},
			PeerID:          [20]byte{1},
			Port:            6881,
		},
		Event:   tracker.EventStarted,
		NumWant: 50,
	}
	resp, err := trk.Announce(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, resp.Interval)
	assert.Equal(t, int32(4), resp.Leechers)
	assert.Equal(t, int32(5), resp.Seeders)
	assert.Equal(t, s.peers, resp.Peers)

	req.Event = tracker.EventNone
	_, err = trk.Announce(ctx, req)
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 1, s.connects)
	require.Len(t, s.announces, 2)
	p := s.announces[0]
	assert.Equal(t, int64(connectionID), p.ConnectionID)
	assert.Equal(t, [20]byte{6}, p.InfoHash)
	assert.Equal(t, [20]byte{1}, p.PeerID)
	assert.Equal(t, int64(20), p.Downloaded)
	assert.Equal(t, int64(30), p.Left)
	assert.Equal(t, int64(10), p.Uploaded)
	assert.Equal(t, int32(2), p.Event)
	assert.Equal(t, int32(50), p.NumWant)
	assert.Equal(t, uint16(6881), p.Port)
	assert.Equal(t, int32(0), s.announces[1].Event)
	assert.Equal(t, p.Key, s.announces[1].Key)
	urlData := "/announce?key=abc"
	assert.Equal(t, append([]byte{0x2, byte(len(urlData))}, urlData...), s.options[0])
}

func TestAnnounceError(t *testing.T) {
	s := newTestServer(t)
	s.reason = "torrent not registered"
	go s.serve()
	trk := newTracker(t, s, newTransport(t, time.Second, 3))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := trk.Announce(ctx, tracker.AnnounceRequest{})
	var terr *tracker.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "torrent not registered", terr.FailureReason)
}

func TestAnnounceTimeout(t *testing.T) {
	s := newTestServer(t)
	s.silent = true
	go s.serve()
	trk := newTracker(t, s, newTransport(t, 20*time.Millisecond, 2))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := trk.Announce(ctx, tracker.AnnounceRequest{})
	assert.Equal(t, udptracker.ErrTimeout, err)
	s.mu.Lock()
	assert.Equal(t, 2, s.connects)
	s.mu.Unlock()
}

func TestAnnounceCanceled(t *testing.T) {
	s := newTestServer(t)
	s.silent = true
	go s.serve()
	trk := newTracker(t, s, newTransport(t, time.Second, 3))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := trk.Announce(ctx, tracker.AnnounceRequest{})
	assert.Equal(t, context.Canceled, err)
}
