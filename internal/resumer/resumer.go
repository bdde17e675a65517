// Package resumer contains an interface for persisting download state of torrents between runs.
package resumer

// Resumer saves and loads resume info, keyed by the info-hash of a torrent.
type Resumer interface {
	// ReadBitfield returns the saved bitfield bytes or nil if nothing is saved.
	ReadBitfield(infoHash [20]byte) ([]byte, error)
	WriteBitfield(infoHash [20]byte, value []byte) error
	ReadStats(infoHash [20]byte) (Stats, error)
	WriteStats(infoHash [20]byte, s Stats) error
}

// Stats are the transfer counters reported to trackers.
type Stats struct {
	BytesDownloaded int64
	BytesUploaded   int64
}
