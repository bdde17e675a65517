package httptracker_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"

	"github.com/cenkalti/drizzle/internal/peerinfo"
	"github.com/cenkalti/drizzle/internal/tracker"
	"github.com/cenkalti/drizzle/internal/tracker/httptracker"
)

const timeout = 2 * time.Second

func newTracker(t *testing.T, rawURL string) *httptracker.HTTPTracker {
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return httptracker.New(rawURL, u, timeout, new(http.Transport), "drizzle/test", 2*1024*1024)
}

func encode(t *testing.T, v interface{}) []byte {
	b, err := bencode.EncodeBytes(v)
	require.NoError(t, err)
	return b
}

func TestAnnounceCompact(t *testing.T) {
	peers := []peerinfo.Info{peerinfo.New("10.0.0.1", 1111), peerinfo.New("10.0.0.2", 2222)}
	var query url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		assert.Equal(t, "drizzle/test", r.UserAgent())
		_, _ = w.Write(encode(t, map[string]interface{}{
			"interval":     1800,
			"min interval": 60,
			"complete":     3,
			"incomplete":   4,
			"tracker id":   "abc",
			"peers":        string(tracker.EncodePeersCompact(peers)),
		}))
	}))
	defer srv.Close()

	trk := newTracker(t, srv.URL+"/announce")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req := tracker.AnnounceRequest{
		Torrent: tracker.Torrent{
			InfoHash:        [20]byte{6},
			PeerID:          [20]byte{1},
			Port:            6881,
			BytesLeft:       100,
			BytesDownloaded: 10,
		},
		Event:   tracker.EventStarted,
		NumWant: 50,
	}
	resp, err := trk.Announce(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, resp.Interval)
	assert.Equal(t, time.Minute, resp.MinInterval)
	assert.Equal(t, int32(3), resp.Seeders)
	assert.Equal(t, int32(4), resp.Leechers)
	assert.Equal(t, peers, resp.Peers)

	assert.Equal(t, string([]byte{6, 19: 0}), query.Get("info_hash"))
	assert.Equal(t, "6881", query.Get("port"))
	assert.Equal(t, "100", query.Get("left"))
	assert.Equal(t, "10", query.Get("downloaded"))
	assert.Equal(t, "started", query.Get("event"))
	assert.Equal(t, "50", query.Get("numwant"))
	assert.Equal(t, "1", query.Get("compact"))
	assert.Empty(t, query.Get("trackerid"))

	req.Event = tracker.EventNone
	_, err = trk.Announce(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "abc", query.Get("trackerid"))
	assert.Empty(t, query.Get("event"))
}

func TestAnnounceDictionaryPeers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(encode(t, map[string]interface{}{
			"interval": 60,
			"peers": []map[string]interface{}{
				{"ip": "1.2.3.4", "port": 5000, "peer id": "xxxxxxxxxxxxxxxxxxxx"},
				{"ip": "not an ip", "port": 5000},
			},
		}))
	}))
	defer srv.Close()

	resp, err := newTracker(t, srv.URL).Announce(context.Background(), tracker.AnnounceRequest{})
	require.NoError(t, err)
	assert.Equal(t, []peerinfo.Info{peerinfo.New("1.2.3.4", 5000)}, resp.Peers)
}

func TestAnnounceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(encode(t, map[string]interface{}{
			"failure reason": "torrent not registered",
			"retry in":       "5",
		}))
	}))
	defer srv.Close()

	_, err := newTracker(t, srv.URL).Announce(context.Background(), tracker.AnnounceRequest{})
	var terr *tracker.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "torrent not registered", terr.FailureReason)
	assert.Equal(t, 5*time.Minute, terr.RetryIn)
}

func TestAnnounceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTracker(t, srv.URL).Announce(context.Background(), tracker.AnnounceRequest{})
	var serr *httptracker.StatusError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, http.StatusNotFound, serr.Code)
}

func TestAnnounceInvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := newTracker(t, srv.URL).Announce(context.Background(), tracker.AnnounceRequest{})
	assert.True(t, errors.Is(err, tracker.ErrDecode))
}

func TestAnnounceCancel(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTracker(t, srv.URL).Announce(ctx, tracker.AnnounceRequest{})
	assert.True(t, errors.Is(err, context.Canceled))
}
