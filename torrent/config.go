package torrent

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config for Torrent.
type Config struct {
	// Database file to save resume data.
	Database string `yaml:"database"`
	// DataDir is where files are downloaded.
	DataDir string `yaml:"data-dir"`
	// Peer listen port. Random port will be picked if zero.
	Port int `yaml:"port"`
	// First bytes of the peer id. Remaining bytes are random.
	PeerIDPrefix string `yaml:"peer-id-prefix"`

	// Max number of peers to connect at once.
	MaxConnectedPeers int `yaml:"max-connected-peers"`
	// Ask trackers for more peers when connected peers drop below this number.
	MinConnectedPeers int `yaml:"min-connected-peers"`
	// Number of pieces downloaded from a single peer concurrently.
	MaxPiecesPerPeer int `yaml:"max-pieces-per-peer"`
	// Max number of blocks requested from a peer but not received yet.
	MaxPendingRequests int `yaml:"max-pending-requests"`

	// Interval of keep-alive messages.
	KeepAlivePeriod time.Duration `yaml:"keep-alive-period"`
	// Peer is disconnected if nothing is received in this duration.
	KeepAliveTimeout time.Duration `yaml:"keep-alive-timeout"`
	// Time to wait for TCP connection to open.
	DialTimeout time.Duration `yaml:"dial-timeout"`
	// Time to wait for BitTorrent handshake to complete.
	HandshakeTimeout time.Duration `yaml:"handshake-timeout"`
	// Size of the buffer used for reading from peer connections.
	ReadBufferSize int `yaml:"read-buffer-size"`

	// Download speed limit in KiB/s. Zero means no limit.
	SpeedLimitDownload int64 `yaml:"speed-limit-download"`
	// Upload speed limit in KiB/s. Zero means no limit.
	SpeedLimitUpload int64 `yaml:"speed-limit-upload"`

	// Number of peer addresses to request in announce request.
	TrackerNumWant int `yaml:"tracker-num-want"`
	// Total time to wait for an HTTP tracker response.
	TrackerHTTPTimeout time.Duration `yaml:"tracker-http-timeout"`
	// When more peers are needed, the tracker is not asked again before this interval passes.
	TrackerMinAnnounceInterval time.Duration `yaml:"tracker-min-announce-interval"`
	// Time to wait for announcing stopped event.
	TrackerStopTimeout time.Duration `yaml:"tracker-stop-timeout"`
	// User-Agent header in HTTP tracker requests.
	TrackerHTTPUserAgent string `yaml:"tracker-http-user-agent"`
	// Responses larger than this are rejected.
	TrackerHTTPMaxResponseSize int64 `yaml:"tracker-http-max-response-size"`
	// Time to wait for the first response from a UDP tracker. Doubled on every retry.
	TrackerUDPTimeout time.Duration `yaml:"tracker-udp-timeout"`
	// Number of times a UDP tracker request is sent before giving up.
	TrackerUDPRetries int `yaml:"tracker-udp-retries"`
}

// DefaultConfig for Torrent.
var DefaultConfig = Config{
	Database:     "~/.drizzle/resume.db",
	DataDir:      "~/drizzle-downloads",
	Port:         6881,
	PeerIDPrefix: "-DZ0001-",

	MaxConnectedPeers:  20,
	MinConnectedPeers:  5,
	MaxPiecesPerPeer:   2,
	MaxPendingRequests: 20,

	KeepAlivePeriod:  60 * time.Second,
	KeepAliveTimeout: 150 * time.Second,
	DialTimeout:      10 * time.Second,
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   32 * 1024,

	TrackerNumWant:             50,
	TrackerHTTPTimeout:         30 * time.Second,
	TrackerMinAnnounceInterval: time.Minute,
	TrackerStopTimeout:         5 * time.Second,
	TrackerHTTPUserAgent:       "drizzle/0001",
	TrackerHTTPMaxResponseSize: 2 << 20,
	TrackerUDPTimeout:          15 * time.Second,
	TrackerUDPRetries:          4,
}

// LoadConfig reads YAML config from filename over DefaultConfig.
// Defaults are returned if the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	c := DefaultConfig
	b, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		return &c, nil
	}
	if err != nil {
		return nil, err
	}
	if err = yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
