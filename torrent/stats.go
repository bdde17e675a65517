package torrent

// Stats contains statistics about Torrent.
type Stats struct {
	Pieces struct {
		// Number of pieces that are downloaded and passed hash check.
		Have uint32
		// Number of pieces that need to be downloaded. Some of them may be being downloaded.
		Missing uint32
		// Number of pieces that are being downloaded from peers.
		Downloading int
		// Number of total pieces in torrent.
		Total uint32
	}
	Bytes struct {
		// Bytes that are downloaded and passed hash check.
		Completed int64
		// The number of bytes that is needed to complete all missing pieces.
		Incomplete int64
		// The number of total bytes of files in torrent. Total = Completed + Incomplete
		Total int64
		// Downloaded is the number of bytes downloaded from swarm, including previous runs.
		Downloaded int64
		// Uploaded is the number of bytes uploaded to the swarm, including previous runs.
		Uploaded int64
	}
	Peers struct {
		// Number of peers that are connected or waiting for a free slot.
		Total int
		// Number of connected peers.
		Connected int
		// Number of connected peers that have all pieces.
		Seeds int
	}
	Speed struct {
		// Bytes per second.
		Download int
		Upload   int
	}
	Trackers []TrackerStats
}

// TrackerStats is the announce state of a tracker.
type TrackerStats struct {
	URL      string
	Status   string
	Seeders  int
	Leechers int
	Error    string `json:",omitempty"`
}

// Stats returns statistics about the torrent.
func (t *Torrent) Stats() Stats {
	var s Stats
	s.Pieces.Have = t.progress.NumHave()
	s.Pieces.Total = t.progress.NumPieces()
	s.Pieces.Missing = s.Pieces.Total - s.Pieces.Have
	s.Pieces.Downloading = t.progress.NumDownloading()
	s.Bytes.Completed = t.progress.BytesCompleted()
	s.Bytes.Total = t.info.TotalLength
	s.Bytes.Incomplete = s.Bytes.Total - s.Bytes.Completed

	ok := t.loop.Call(func() {
		ts := t.transferred()
		s.Bytes.Downloaded = ts.BytesDownloaded
		s.Bytes.Uploaded = ts.BytesUploaded
		s.Peers.Total = t.peers.NumPeers()
		s.Peers.Connected = t.peers.NumConnected()
		s.Peers.Seeds = t.peers.NumSeeds()
		s.Speed.Download = int(t.peers.DownloadSpeed())
		s.Speed.Upload = int(t.peers.UploadSpeed())
	})
	if !ok {
		t.mu.Lock()
		s.Bytes.Downloaded = t.finalStats.BytesDownloaded
		s.Bytes.Uploaded = t.finalStats.BytesUploaded
		t.mu.Unlock()
	}

	t.mu.Lock()
	running := t.started && !t.closed
	t.mu.Unlock()
	for _, a := range t.announcers {
		ts := TrackerStats{URL: a.Tracker.URL()}
		if running {
			as := a.Stats()
			ts.Status = as.Status.String()
			ts.Seeders = as.Seeders
			ts.Leechers = as.Leechers
			if as.Error != nil {
				ts.Error = as.Error.Message
			}
		}
		s.Trackers = append(s.Trackers, ts)
	}
	return s
}
