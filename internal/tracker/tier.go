package tracker

import (
	"context"
	"math/rand"
	"sync"
)

// Tier contains multiple Trackers and keeps announcing to the one that works.
type Tier struct {
	trackers []Tracker
	mu       sync.Mutex
	index    int
}

var _ Tracker = (*Tier)(nil)

// NewTier returns a new Tier. Order of trackers is shuffled.
func NewTier(trackers []Tracker) *Tier {
	trackers = append([]Tracker(nil), trackers...)
	rand.Shuffle(len(trackers), func(i, j int) { trackers[i], trackers[j] = trackers[j], trackers[i] })
	return &Tier{
		trackers: trackers,
	}
}

// Announce a torrent to the current tracker.
// If announce fails, the next announce will be made to the next Tracker in the tier.
func (t *Tier) Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error) {
	t.mu.Lock()
	index := t.index
	t.mu.Unlock()
	resp, err := t.trackers[index].Announce(ctx, req)
	if err != nil && ctx.Err() == nil {
		t.mu.Lock()
		if t.index == index {
			t.index = (index + 1) % len(t.trackers)
		}
		t.mu.Unlock()
	}
	return resp, err
}

// URL returns the URL of the current Tracker in the Tier.
func (t *Tier) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trackers[t.index].URL()
}
