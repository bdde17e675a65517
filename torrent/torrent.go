// Package torrent downloads and seeds a single torrent over the BitTorrent peer protocol.
package torrent

import (
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/juju/ratelimit"
	"github.com/mitchellh/go-homedir"
	"go.etcd.io/bbolt"

	"github.com/cenkalti/drizzle/internal/acceptor"
	"github.com/cenkalti/drizzle/internal/announcer"
	"github.com/cenkalti/drizzle/internal/bitfield"
	"github.com/cenkalti/drizzle/internal/eventloop"
	"github.com/cenkalti/drizzle/internal/filemanager"
	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/metainfo"
	"github.com/cenkalti/drizzle/internal/peer"
	"github.com/cenkalti/drizzle/internal/peerinfo"
	"github.com/cenkalti/drizzle/internal/peermanager"
	"github.com/cenkalti/drizzle/internal/progress"
	"github.com/cenkalti/drizzle/internal/resumer"
	"github.com/cenkalti/drizzle/internal/resumer/boltdbresumer"
	"github.com/cenkalti/drizzle/internal/storage/filestorage"
	"github.com/cenkalti/drizzle/internal/tracker"
	"github.com/cenkalti/drizzle/internal/tracker/udptracker"
	"github.com/cenkalti/drizzle/internal/transport/tcptransport"
	"github.com/cenkalti/drizzle/internal/worker"
)

var (
	errClosed          = errors.New("torrent is closed")
	errDatabaseLocked  = errors.New("resume database is locked by another process")
	errPeerIDPrefixLen = errors.New("peer id prefix is longer than 20 bytes")
)

var torrentsBucket = []byte("torrents")

// Torrent connects to peers of a single torrent and exchanges pieces with them.
type Torrent struct {
	config   Config
	metainfo *metainfo.MetaInfo
	info     *metainfo.Info
	peerID   [20]byte
	log      logger.Logger

	db       *bbolt.DB
	resumer  *boltdbresumer.Resumer
	files    *filemanager.FileManager
	progress *progress.Manager
	// counters saved in previous runs
	resumeStats resumer.Stats

	// Owns peers and their connections. Peer manager is only accessed from the loop.
	loop            *eventloop.Loop
	peers           *peermanager.PeerManager
	transportConfig tcptransport.Config

	trackers     []tracker.Tracker
	udpTransport *udptracker.Transport
	announcers   []*announcer.PeriodicalAnnouncer
	newPeersC    chan []peerinfo.Info
	workers      worker.Workers

	// piece reads and writes running on separate goroutines
	diskOps sync.WaitGroup

	completeC    chan struct{}
	completeOnce sync.Once
	errC         chan error

	mu      sync.Mutex
	port    int
	started bool
	closed  bool
	// transfer counters captured before the loop is closed
	finalStats resumer.Stats
}

// New opens the resume database and the files of the torrent under cfg.DataDir.
// Existing files are verified if there is no resume data for them.
// Peers are not contacted until Start is called.
func New(mi *metainfo.MetaInfo, cfg Config) (*Torrent, error) {
	if len(cfg.PeerIDPrefix) > 20 {
		return nil, errPeerIDPrefixLen
	}
	logName := mi.Info.Name
	if len(logName) > 20 {
		logName = logName[:20]
	}
	t := &Torrent{
		config:    cfg,
		metainfo:  mi,
		info:      &mi.Info,
		log:       logger.New("torrent " + logName),
		loop:      eventloop.New(),
		newPeersC: make(chan []peerinfo.Info),
		completeC: make(chan struct{}),
		errC:      make(chan error, 1),
		port:      cfg.Port,
	}
	copy(t.peerID[:], cfg.PeerIDPrefix)
	_, err := rand.Read(t.peerID[len(cfg.PeerIDPrefix):])
	if err != nil {
		return nil, err
	}
	err = t.openStorage()
	if err != nil {
		t.closeStorage()
		return nil, err
	}
	t.transportConfig = tcptransport.Config{
		DialTimeout:    cfg.DialTimeout,
		ReadBufferSize: cfg.ReadBufferSize,
	}
	if cfg.SpeedLimitDownload > 0 {
		t.transportConfig.ReadBucket = newBucket(cfg.SpeedLimitDownload)
	}
	if cfg.SpeedLimitUpload > 0 {
		t.transportConfig.WriteBucket = newBucket(cfg.SpeedLimitUpload)
	}
	t.peers = peermanager.New(peermanager.Config{
		MaxConnectedPeers: cfg.MaxConnectedPeers,
		MinConnectedPeers: cfg.MinConnectedPeers,
		MaxPiecesPerPeer:  cfg.MaxPiecesPerPeer,
	}, t.peerID, false, (*torrentProgress)(t), (*peerSource)(t), t.newPeer, t.log)
	t.trackers = t.newTrackers()
	for _, trk := range t.trackers {
		a := announcer.New(trk, cfg.TrackerNumWant, cfg.TrackerMinAnnounceInterval, t.trackerTorrent, t.completeC, t.newPeersC, t.log)
		t.announcers = append(t.announcers, a)
	}
	if t.progress.Complete() {
		t.completeOnce.Do(func() { close(t.completeC) })
	}
	go t.loop.Run()
	return t, nil
}

// newBucket returns a token bucket for a limit in KiB/s that can burst one second of traffic.
func newBucket(limit int64) *ratelimit.Bucket {
	rate := limit * 1024
	return ratelimit.NewBucketWithRate(float64(rate), rate)
}

func (t *Torrent) openStorage() error {
	database, err := homedir.Expand(t.config.Database)
	if err != nil {
		return err
	}
	dataDir, err := homedir.Expand(t.config.DataDir)
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(database), 0750)
	if err != nil {
		return err
	}
	t.db, err = bbolt.Open(database, 0640, &bbolt.Options{Timeout: time.Second})
	if err == bbolt.ErrTimeout {
		return errDatabaseLocked
	}
	if err != nil {
		return err
	}
	t.resumer, err = boltdbresumer.New(t.db, torrentsBucket)
	if err != nil {
		return err
	}
	t.resumeStats, err = t.resumer.ReadStats(t.info.Hash)
	if err != nil {
		return err
	}
	saved, err := t.resumer.ReadBitfield(t.info.Hash)
	if err != nil {
		return err
	}
	sto, err := filestorage.New(dataDir)
	if err != nil {
		return err
	}
	var files []filemanager.FileInfo
	for _, f := range t.info.GetFiles() {
		files = append(files, filemanager.FileInfo{Path: f.Path, Length: f.Length})
	}
	t.files, err = filemanager.Open(sto, files, t.info.PieceLength)
	if err != nil {
		return err
	}
	t.progress, err = progress.NewManager(t.info.Hash, t.files, t.resumer, t.log)
	if err != nil {
		return err
	}
	switch {
	case !t.files.Exists:
		if t.progress.NumHave() > 0 {
			t.log.Warningln("files are missing, discarding resume data")
		}
		return t.progress.Reset(bitfield.New(t.info.NumPieces))
	case saved == nil:
		t.log.Info("verifying existing files")
		bf, err := t.files.Verify(t.info.HashOf)
		if err != nil {
			return err
		}
		t.log.Infof("verified %d/%d pieces", bf.Count(), bf.Len())
		return t.progress.Reset(bf)
	}
	return nil
}

func (t *Torrent) closeStorage() error {
	var result error
	if t.files != nil {
		if err := t.files.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if t.db != nil {
		if err := t.db.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// Name of the torrent.
func (t *Torrent) Name() string { return t.info.Name }

// InfoHash returns the SHA-1 hash of the info dictionary.
func (t *Torrent) InfoHash() [20]byte { return t.info.Hash }

// PeerID is the id sent to peers in handshakes.
func (t *Torrent) PeerID() [20]byte { return t.peerID }

// Port returns the listen port. The actual port is known after Start if the configured port is zero.
func (t *Torrent) Port() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

// Start listens for incoming connections and starts announcing to trackers.
func (t *Torrent) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	if t.started {
		return nil
	}
	listener, err := net.Listen("tcp4", net.JoinHostPort("", strconv.Itoa(t.config.Port)))
	if err != nil {
		return err
	}
	t.port = listener.Addr().(*net.TCPAddr).Port
	t.started = true
	t.log.Infof("listening on port %d", t.port)
	t.workers.Start(acceptor.New(listener, t.handleConn, t.log))
	t.workers.Start(worker.Func(t.forwardPeers))
	for _, a := range t.announcers {
		t.workers.Start(a)
	}
	return nil
}

// AddPeers connects to peers at "host:port" addresses in addition to the ones returned from trackers.
func (t *Torrent) AddPeers(addrs []string) error {
	infos := make([]peerinfo.Info, 0, len(addrs))
	for _, addr := range addrs {
		info, err := peerinfo.Parse(addr)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}
	ok := t.loop.Post(func() {
		t.peers.AddPeers(infos, peer.SourceManual)
	})
	if !ok {
		return errClosed
	}
	return nil
}

// NotifyComplete returns a channel that is closed when all pieces are downloaded and written to disk.
func (t *Torrent) NotifyComplete() <-chan struct{} {
	return t.completeC
}

// NotifyError returns a channel that receives an error if files cannot be written.
func (t *Torrent) NotifyError() <-chan error {
	return t.errC
}

// Close disconnects all peers, announces stopped event to trackers and closes the files.
func (t *Torrent) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	started := t.started
	t.mu.Unlock()

	t.workers.Stop()
	t.loop.Call(func() {
		t.peers.Close()
		s := t.transferred()
		t.mu.Lock()
		t.finalStats = s
		t.mu.Unlock()
	})
	t.loop.Close()
	t.diskOps.Wait()

	if started && len(t.trackers) > 0 {
		announcer.AnnounceStop(t.trackers, t.trackerTorrent(), t.config.TrackerStopTimeout, t.log)
	}

	var result error
	if err := t.udpTransport.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	t.mu.Lock()
	s := t.finalStats
	t.mu.Unlock()
	if err := t.resumer.WriteStats(t.info.Hash, s); err != nil {
		result = multierror.Append(result, err)
	}
	if err := t.closeStorage(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// transferred returns the transfer counters including previous runs. Must be called from the loop.
func (t *Torrent) transferred() resumer.Stats {
	return resumer.Stats{
		BytesDownloaded: t.resumeStats.BytesDownloaded + t.peers.BytesDownloaded(),
		BytesUploaded:   t.resumeStats.BytesUploaded + t.peers.BytesUploaded(),
	}
}

// transferredSafe returns transfer counters from any goroutine.
func (t *Torrent) transferredSafe() resumer.Stats {
	var s resumer.Stats
	if t.loop.Call(func() { s = t.transferred() }) {
		return s
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalStats
}
