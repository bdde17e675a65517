package torrent

import (
	"net"
	"net/http"
	"net/url"

	"github.com/cenkalti/drizzle/internal/tracker"
	"github.com/cenkalti/drizzle/internal/tracker/httptracker"
	"github.com/cenkalti/drizzle/internal/tracker/udptracker"
)

// newTrackers returns one tracker for each tier in the announce list.
// Tiers with multiple URLs switch to the next URL when announce fails.
// UDP trackers share t.udpTransport.
func (t *Torrent) newTrackers() []tracker.Tracker {
	t.udpTransport = udptracker.NewTransport(t.config.TrackerUDPTimeout, t.config.TrackerUDPRetries)
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: t.config.TrackerHTTPTimeout,
		}).DialContext,
		TLSHandshakeTimeout: t.config.TrackerHTTPTimeout,
		DisableKeepAlives:   true,
	}
	var ret []tracker.Tracker
	for _, tier := range t.metainfo.AnnounceList {
		var trackers []tracker.Tracker
		for _, s := range tier {
			u, err := url.Parse(s)
			if err != nil {
				t.log.Warningln("cannot parse tracker url:", err)
				continue
			}
			switch u.Scheme {
			case "http", "https":
				trackers = append(trackers, httptracker.New(s, u, t.config.TrackerHTTPTimeout, transport, t.config.TrackerHTTPUserAgent, t.config.TrackerHTTPMaxResponseSize))
			case "udp":
				trackers = append(trackers, udptracker.New(s, u, t.udpTransport))
			default:
				t.log.Warningln("unsupported tracker scheme:", s)
			}
		}
		switch len(trackers) {
		case 0:
		case 1:
			ret = append(ret, trackers[0])
		default:
			ret = append(ret, tracker.NewTier(trackers))
		}
	}
	return ret
}

// trackerTorrent returns the counters sent in announce requests.
func (t *Torrent) trackerTorrent() tracker.Torrent {
	s := t.transferredSafe()
	return tracker.Torrent{
		BytesUploaded:   s.BytesUploaded,
		BytesDownloaded: s.BytesDownloaded,
		BytesLeft:       t.progress.BytesLeft(),
		InfoHash:        t.info.Hash,
		PeerID:          t.peerID,
		Port:            t.Port(),
	}
}
