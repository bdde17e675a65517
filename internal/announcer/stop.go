package announcer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/tracker"
)

// AnnounceStop sends a stopped event to all trackers concurrently and waits for
// responses until timeout. Errors are logged and otherwise ignored.
func AnnounceStop(trackers []tracker.Tracker, torrent tracker.Torrent, timeout time.Duration, l logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, trk := range trackers {
		wg.Add(1)
		go func(trk tracker.Tracker) {
			defer wg.Done()
			req := tracker.AnnounceRequest{
				Torrent: torrent,
				Event:   tracker.EventStopped,
			}
			_, err := trk.Announce(ctx, req)
			if err != nil {
				l.Debugln("cannot announce stop to", trk.URL(), err)
			}
		}(trk)
	}
	wg.Wait()
}
