// Package announcer announces a torrent to trackers and delivers the peers in responses.
package announcer

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"

	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/peerinfo"
	"github.com/cenkalti/drizzle/internal/tracker"
)

// Status of the tracker as seen by the announcer.
type Status int

// Announcer statuses
const (
	NotContactedYet Status = iota
	Contacting
	Working
	NotWorking
)

func (s Status) String() string {
	switch s {
	case NotContactedYet:
		return "not contacted yet"
	case Contacting:
		return "contacting"
	case Working:
		return "working"
	case NotWorking:
		return "not working"
	default:
		return "unknown"
	}
}

// Stats about the tracker.
type Stats struct {
	Status   Status
	Error    *AnnounceError
	Seeders  int
	Leechers int
}

type result struct {
	seq  uint64
	resp *tracker.AnnounceResponse
	err  error
}

// PeriodicalAnnouncer announces to a single Tracker in the interval requested by the tracker.
type PeriodicalAnnouncer struct {
	Tracker tracker.Tracker

	numWant     int
	minInterval time.Duration
	getTorrent  func() tracker.Torrent
	completedC  chan struct{}
	newPeers    chan<- []peerinfo.Info
	backoff     backoff.BackOff
	log         logger.Logger

	resultC chan result
	statsC  chan chan Stats
	moreC   chan struct{}
	doneC   chan struct{}

	mu            sync.Mutex
	needMorePeers bool

	// Fields below are owned by the Run goroutine.
	stats        Stats
	lastAnnounce time.Time
	// sequence number of the last request, results of older requests are dropped
	seq    uint64
	cancel context.CancelFunc
}

// New returns a new PeriodicalAnnouncer. A completed event is sent when completedC is closed,
// unless it is closed before Run is called. Peers in responses are sent to newPeers.
func New(trk tracker.Tracker, numWant int, minInterval time.Duration, getTorrent func() tracker.Torrent, completedC chan struct{}, newPeers chan<- []peerinfo.Info, l logger.Logger) *PeriodicalAnnouncer {
	return &PeriodicalAnnouncer{
		Tracker:     trk,
		numWant:     numWant,
		minInterval: minInterval,
		getTorrent:  getTorrent,
		completedC:  completedC,
		newPeers:    newPeers,
		log:         l,
		resultC:     make(chan result),
		statsC:      make(chan chan Stats),
		moreC:       make(chan struct{}, 1),
		doneC:       make(chan struct{}),
		backoff: &backoff.ExponentialBackOff{
			InitialInterval:     5 * time.Second,
			RandomizationFactor: 0.5,
			Multiplier:          2,
			MaxInterval:         30 * time.Minute,
			MaxElapsedTime:      0, // never stop
			Clock:               backoff.SystemClock,
		},
	}
}

// Stats returns the state of the announcer. It returns zero Stats after Run returns.
func (a *PeriodicalAnnouncer) Stats() Stats {
	respC := make(chan Stats, 1)
	select {
	case a.statsC <- respC:
		return <-respC
	case <-a.doneC:
		return Stats{}
	}
}

// NeedMorePeers makes the next announce happen as soon as the tracker allows.
// The request is forgotten after a successful announce.
func (a *PeriodicalAnnouncer) NeedMorePeers() {
	a.mu.Lock()
	a.needMorePeers = true
	a.mu.Unlock()
	select {
	case a.moreC <- struct{}{}:
	default:
	}
}

func (a *PeriodicalAnnouncer) wantsMorePeers(reset bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := a.needMorePeers
	if reset {
		a.needMorePeers = false
	}
	return v
}

// Run announces until stopC is closed.
func (a *PeriodicalAnnouncer) Run(stopC chan struct{}) {
	defer close(a.doneC)
	defer a.stop()
	a.backoff.Reset()

	// BEP 3: completed is not sent if the torrent was complete when started.
	select {
	case <-a.completedC:
		a.completedC = nil
	default:
	}

	timer := time.NewTimer(math.MaxInt64)
	defer timer.Stop()

	a.start(tracker.EventStarted, a.numWant)
	for {
		select {
		case <-timer.C:
			if a.cancel == nil {
				a.start(tracker.EventNone, a.numWant)
			}
		case r := <-a.resultC:
			if r.seq != a.seq {
				break
			}
			a.stop()
			if r.err != nil {
				timer.Reset(a.failed(r.err))
				break
			}
			timer.Reset(a.succeeded(r.resp))
			if len(r.resp.Peers) == 0 {
				break
			}
			select {
			case a.newPeers <- r.resp.Peers:
			case <-stopC:
				return
			}
		case <-a.moreC:
			if a.stats.Status == Working && a.wantsMorePeers(false) {
				timer.Reset(time.Until(a.lastAnnounce.Add(a.minInterval)))
			}
		case <-a.completedC:
			a.completedC = nil
			a.stop()
			a.start(tracker.EventCompleted, 0)
		case respC := <-a.statsC:
			respC <- a.stats
		case <-stopC:
			return
		}
	}
}

// start sends a request in a new goroutine. Only one request is in flight at a time.
func (a *PeriodicalAnnouncer) start(e tracker.Event, numWant int) {
	var ctx context.Context
	ctx, a.cancel = context.WithCancel(context.Background())
	a.seq++
	a.stats.Status = Contacting
	go a.announce(ctx, a.seq, e, numWant)
}

// stop cancels the request in flight.
func (a *PeriodicalAnnouncer) stop() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}

func (a *PeriodicalAnnouncer) announce(ctx context.Context, seq uint64, e tracker.Event, numWant int) {
	req := tracker.AnnounceRequest{
		Torrent: a.getTorrent(),
		Event:   e,
		NumWant: numWant,
	}
	resp, err := a.Tracker.Announce(ctx, req)
	if errors.Is(err, context.Canceled) {
		return
	}
	select {
	case a.resultC <- result{seq: seq, resp: resp, err: err}:
	case <-ctx.Done():
	}
}

// succeeded updates stats from resp and returns the time to wait until the next announce.
func (a *PeriodicalAnnouncer) succeeded(resp *tracker.AnnounceResponse) time.Duration {
	a.lastAnnounce = time.Now()
	a.stats = Stats{
		Status:   Working,
		Seeders:  int(resp.Seeders),
		Leechers: int(resp.Leechers),
	}
	if resp.WarningMessage != "" {
		a.log.Warningln("tracker warning:", resp.WarningMessage)
	}
	if resp.MinInterval > 0 {
		a.minInterval = resp.MinInterval
	}
	a.backoff.Reset()
	a.wantsMorePeers(true)
	if resp.Interval < a.minInterval {
		return a.minInterval
	}
	return resp.Interval
}

// failed records err and returns the time to wait before trying again.
func (a *PeriodicalAnnouncer) failed(err error) time.Duration {
	a.lastAnnounce = time.Now()
	a.stats.Status = NotWorking
	a.stats.Error = newAnnounceError(err)
	if a.stats.Error.Unknown {
		a.log.Errorln("announce error:", a.stats.Error.ErrorWithType())
	} else {
		a.log.Debugln("announce error:", err.Error())
	}
	var terr *tracker.Error
	if errors.As(err, &terr) && terr.RetryIn > 0 {
		return terr.RetryIn
	}
	return a.backoff.NextBackOff()
}
