// Package httptracker implements announces to HTTP trackers.
package httptracker

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/zeebo/bencode"

	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/peerinfo"
	"github.com/cenkalti/drizzle/internal/tracker"
)

// HTTPTracker announces to a tracker over HTTP.
type HTTPTracker struct {
	rawURL          string
	url             *url.URL
	log             logger.Logger
	http            *http.Client
	userAgent       string
	maxResponseSize int64

	mu        sync.Mutex
	trackerID string
}

var _ tracker.Tracker = (*HTTPTracker)(nil)

// New returns a new HTTPTracker for the announce URL.
func New(rawURL string, u *url.URL, timeout time.Duration, t *http.Transport, userAgent string, maxResponseSize int64) *HTTPTracker {
	return &HTTPTracker{
		rawURL:          rawURL,
		url:             u,
		log:             logger.New("tracker " + u.String()),
		userAgent:       userAgent,
		maxResponseSize: maxResponseSize,
		http: &http.Client{
			Timeout:   timeout,
			Transport: t,
		},
	}
}

// URL returns the announce URL.
func (t *HTTPTracker) URL() string {
	return t.rawURL
}

// Announce sends the request and parses the peer list in the response.
func (t *HTTPTracker) Announce(ctx context.Context, req tracker.AnnounceRequest) (*tracker.AnnounceResponse, error) {
	u := *t.url
	q := u.Query()
	q.Set("info_hash", string(req.Torrent.InfoHash[:]))
	q.Set("peer_id", string(req.Torrent.PeerID[:]))
	q.Set("port", strconv.Itoa(req.Torrent.Port))
	q.Set("uploaded", strconv.FormatInt(req.Torrent.BytesUploaded, 10))
	q.Set("downloaded", strconv.FormatInt(req.Torrent.BytesDownloaded, 10))
	q.Set("left", strconv.FormatInt(req.Torrent.BytesLeft, 10))
	q.Set("compact", "1")
	q.Set("no_peer_id", "1")
	q.Set("numwant", strconv.Itoa(req.NumWant))
	if req.Event != tracker.EventNone {
		q.Set("event", req.Event.String())
	}
	t.mu.Lock()
	if t.trackerID != "" {
		q.Set("trackerid", t.trackerID)
	}
	t.mu.Unlock()
	u.RawQuery = q.Encode()
	t.log.Debugf("making request to: %q", u.String())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("User-Agent", t.userAgent)

	resp, err := t.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{
			Code:   resp.StatusCode,
			Header: resp.Header,
			Body:   string(data),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > t.maxResponseSize {
		return nil, fmt.Errorf("tracker response too large: %d bytes", len(body))
	}

	var response announceResponse
	err = bencode.DecodeBytes(body, &response)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", tracker.ErrDecode, err)
	}

	if response.WarningMessage != "" {
		t.log.Warning(response.WarningMessage)
	}
	if response.FailureReason != "" {
		retryIn, _ := strconv.Atoi(response.RetryIn)
		return nil, &tracker.Error{
			FailureReason: response.FailureReason,
			RetryIn:       time.Duration(retryIn) * time.Minute,
		}
	}

	if response.TrackerID != "" {
		t.mu.Lock()
		t.trackerID = response.TrackerID
		t.mu.Unlock()
	}

	// Peers may be in binary or dictionary model.
	var peers []peerinfo.Info
	if len(response.Peers) > 0 {
		if response.Peers[0] == 'l' {
			peers, err = parsePeersDictionary(response.Peers)
		} else {
			var b []byte
			err = bencode.DecodeBytes(response.Peers, &b)
			if err == nil {
				peers, err = tracker.DecodePeersCompact(b)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s", tracker.ErrDecode, err)
		}
	}

	return &tracker.AnnounceResponse{
		Interval:       time.Duration(response.Interval) * time.Second,
		MinInterval:    time.Duration(response.MinInterval) * time.Second,
		Leechers:       response.Incomplete,
		Seeders:        response.Complete,
		WarningMessage: response.WarningMessage,
		Peers:          peers,
	}, nil
}

func parsePeersDictionary(b bencode.RawMessage) ([]peerinfo.Info, error) {
	var peers []dictPeer
	err := bencode.DecodeBytes(b, &peers)
	if err != nil {
		return nil, err
	}

	addrs := make([]peerinfo.Info, 0, len(peers))
	for _, p := range peers {
		if net.ParseIP(p.IP) == nil || p.Port == 0 {
			continue
		}
		addrs = append(addrs, peerinfo.New(p.IP, int(p.Port)))
	}
	return addrs, nil
}
