package torrent

import (
	"bytes"
	"math/rand"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/cenkalti/drizzle/internal/metainfo"
	"github.com/cenkalti/drizzle/internal/peerinfo"
	"github.com/cenkalti/drizzle/internal/tracker"
)

const (
	fileName    = "sample.bin"
	pieceLength = 32 * 1024
	timeout     = 10 * time.Second
)

// sampleData spans several pieces with a shorter last piece.
func sampleData() []byte {
	b := make([]byte, 5*pieceLength+1234)
	rand.New(rand.NewSource(1)).Read(b)
	return b
}

func newMetaInfo(t *testing.T, data []byte, trackers [][]string) *metainfo.MetaInfo {
	info, err := metainfo.NewInfoBytes(fileName, []metainfo.FileDict{{Length: int64(len(data))}}, pieceLength, false, bytes.NewReader(data))
	require.NoError(t, err)
	b, err := metainfo.NewBytes(info, trackers, "")
	require.NoError(t, err)
	mi, err := metainfo.New(bytes.NewReader(b))
	require.NoError(t, err)
	return mi
}

func newConfig(dir string) Config {
	cfg := DefaultConfig
	cfg.Database = filepath.Join(dir, "resume.db")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Port = 0
	cfg.TrackerStopTimeout = time.Second
	return cfg
}

func newSeeder(t *testing.T, mi *metainfo.MetaInfo, data []byte) *Torrent {
	cfg := newConfig(t.TempDir())
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, fileName), data, 0640))
	seeder, err := New(mi, cfg)
	require.NoError(t, err)
	select {
	case <-seeder.NotifyComplete():
	default:
		t.Fatal("seeder is not complete")
	}
	require.NoError(t, seeder.Start())
	return seeder
}

func waitComplete(t *testing.T, tor *Torrent) {
	select {
	case <-tor.NotifyComplete():
	case err := <-tor.NotifyError():
		t.Fatal(err)
	case <-time.After(timeout):
		t.Fatal("download timeout")
	}
}

func TestDownloadFromManualPeer(t *testing.T) {
	data := sampleData()
	mi := newMetaInfo(t, data, nil)
	seeder := newSeeder(t, mi, data)
	defer seeder.Close()

	dir := t.TempDir()
	cfg := newConfig(dir)
	leecher, err := New(mi, cfg)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), leecher.Stats().Pieces.Have)
	require.NoError(t, leecher.Start())
	require.NoError(t, leecher.AddPeers([]string{"127.0.0.1:" + strconv.Itoa(seeder.Port())}))

	waitComplete(t, leecher)
	stats := leecher.Stats()
	assert.Equal(t, stats.Pieces.Total, stats.Pieces.Have)
	assert.Equal(t, int64(len(data)), stats.Bytes.Completed)
	assert.Equal(t, int64(0), stats.Bytes.Incomplete)
	require.NoError(t, leecher.Close())

	b, err := os.ReadFile(filepath.Join(cfg.DataDir, fileName))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data, b))

	// Pieces and counters are loaded from the resume database.
	leecher, err = New(mi, cfg)
	require.NoError(t, err)
	defer leecher.Close()
	stats = leecher.Stats()
	assert.Equal(t, stats.Pieces.Total, stats.Pieces.Have)
	assert.Equal(t, int64(len(data)), stats.Bytes.Downloaded)
	select {
	case <-leecher.NotifyComplete():
	default:
		t.Fatal("resumed torrent is not complete")
	}
}

func TestDownloadFromTracker(t *testing.T) {
	var seederPort int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		port := int(atomic.LoadInt32(&seederPort))
		var peers []peerinfo.Info
		if r.URL.Query().Get("port") != strconv.Itoa(port) {
			peers = append(peers, peerinfo.New("127.0.0.1", port))
		}
		b, err := bencode.EncodeBytes(map[string]interface{}{
			"interval": 60,
			"peers":    string(tracker.EncodePeersCompact(peers)),
		})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	data := sampleData()
	mi := newMetaInfo(t, data, [][]string{{srv.URL + "/announce"}})
	seeder := newSeeder(t, mi, data)
	defer seeder.Close()
	atomic.StoreInt32(&seederPort, int32(seeder.Port()))

	leecher, err := New(mi, newConfig(t.TempDir()))
	require.NoError(t, err)
	defer leecher.Close()
	require.NoError(t, leecher.Start())

	waitComplete(t, leecher)
	stats := leecher.Stats()
	require.Len(t, stats.Trackers, 1)
	assert.Equal(t, srv.URL+"/announce", stats.Trackers[0].URL)
	assert.Empty(t, stats.Trackers[0].Error)
}

func TestVerifyExistingFiles(t *testing.T) {
	data := sampleData()
	mi := newMetaInfo(t, data, nil)

	// First two pieces are correct, the rest is zeroed.
	partial := make([]byte, len(data))
	copy(partial, data[:2*pieceLength])
	cfg := newConfig(t.TempDir())
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, fileName), partial, 0640))

	tor, err := New(mi, cfg)
	require.NoError(t, err)
	defer tor.Close()
	stats := tor.Stats()
	assert.Equal(t, uint32(2), stats.Pieces.Have)
	assert.Equal(t, uint32(4), stats.Pieces.Missing)
	assert.Equal(t, int64(2*pieceLength), stats.Bytes.Completed)
}

func TestDatabaseLocked(t *testing.T) {
	data := sampleData()
	mi := newMetaInfo(t, data, nil)
	cfg := newConfig(t.TempDir())
	tor, err := New(mi, cfg)
	require.NoError(t, err)
	defer tor.Close()

	_, err = New(mi, cfg)
	assert.Equal(t, errDatabaseLocked, err)
}

func TestRejectIncomingWhenFull(t *testing.T) {
	data := sampleData()
	mi := newMetaInfo(t, data, nil)
	cfg := newConfig(t.TempDir())
	cfg.MaxConnectedPeers = 0
	tor, err := New(mi, cfg)
	require.NoError(t, err)
	defer tor.Close()
	require.NoError(t, tor.Start())

	conn, err := net.Dial("tcp4", "127.0.0.1:"+strconv.Itoa(tor.Port()))
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
	assert.Equal(t, 0, tor.Stats().Peers.Total)
}

func TestCloseTwice(t *testing.T) {
	mi := newMetaInfo(t, sampleData(), nil)
	tor, err := New(mi, newConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, tor.Start())
	require.NoError(t, tor.Close())
	require.NoError(t, tor.Close())
	assert.Equal(t, errClosed, tor.Start())
	assert.Equal(t, errClosed, tor.AddPeers([]string{"127.0.0.1:1"}))
}
