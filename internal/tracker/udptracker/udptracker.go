// Package udptracker implements announces to UDP trackers.
package udptracker

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/rand"
	"net/url"
	"time"

	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/tracker"
)

// UDPTracker announces to a tracker with the UDP tracker protocol.
type UDPTracker struct {
	rawURL    string
	dest      string
	urlData   string
	key       uint32
	log       logger.Logger
	transport *Transport
}

var _ tracker.Tracker = (*UDPTracker)(nil)

// New returns a new UDPTracker for the announce URL. Requests are sent through t.
func New(rawURL string, u *url.URL, t *Transport) *UDPTracker {
	return &UDPTracker{
		rawURL:    rawURL,
		dest:      u.Host,
		urlData:   u.RequestURI(),
		key:       rand.Uint32(), // nolint: gosec
		log:       logger.New("tracker " + u.Host),
		transport: t,
	}
}

// URL returns the announce URL.
func (t *UDPTracker) URL() string {
	return t.rawURL
}

// Announce sends the counters of the torrent and returns the peers in the response.
func (t *UDPTracker) Announce(ctx context.Context, req tracker.AnnounceRequest) (*tracker.AnnounceResponse, error) {
	data, err := t.transport.do(ctx, t.dest, newAnnounceMessage(req, t.key, t.urlData))
	if err != nil {
		return nil, err
	}
	var resp announceResponse
	err = binary.Read(bytes.NewReader(data), binary.BigEndian, &resp)
	if err != nil || resp.Action != actionAnnounce {
		return nil, tracker.ErrDecode
	}
	peers, err := tracker.DecodePeersCompact(data[binary.Size(resp):])
	if err != nil {
		return nil, tracker.ErrDecode
	}
	t.log.Debugf("announce response: interval=%d seeders=%d leechers=%d peers=%d", resp.Interval, resp.Seeders, resp.Leechers, len(peers))
	return &tracker.AnnounceResponse{
		Interval: time.Duration(resp.Interval) * time.Second,
		Leechers: resp.Leechers,
		Seeders:  resp.Seeders,
		Peers:    peers,
	}, nil
}
