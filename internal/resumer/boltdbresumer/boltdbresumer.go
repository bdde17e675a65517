// Package boltdbresumer provides a Resumer implementation that uses a Bolt database file as storage.
package boltdbresumer

import (
	"encoding/hex"
	"strconv"

	"go.etcd.io/bbolt"

	"github.com/cenkalti/drizzle/internal/resumer"
)

// Keys for the persistent storage.
var Keys = struct {
	Bitfield        []byte
	BytesDownloaded []byte
	BytesUploaded   []byte
}{
	Bitfield:        []byte("bitfield"),
	BytesDownloaded: []byte("bytes_downloaded"),
	BytesUploaded:   []byte("bytes_uploaded"),
}

// Resumer contains methods for saving/loading resume information of torrents to a BoltDB database.
// Each torrent has its own nested bucket named with the hex encoded info-hash.
type Resumer struct {
	db     *bbolt.DB
	bucket []byte
}

var _ resumer.Resumer = (*Resumer)(nil)

// New returns a new Resumer.
func New(db *bbolt.DB, bucket []byte) (*Resumer, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists(bucket)
		return err2
	})
	if err != nil {
		return nil, err
	}
	return &Resumer{
		db:     db,
		bucket: bucket,
	}, nil
}

func torrentKey(infoHash [20]byte) []byte {
	return []byte(hex.EncodeToString(infoHash[:]))
}

func (r *Resumer) put(infoHash [20]byte, kv ...[]byte) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(r.bucket).CreateBucketIfNotExists(torrentKey(infoHash))
		if err != nil {
			return err
		}
		for i := 0; i+1 < len(kv); i += 2 {
			if err = b.Put(kv[i], kv[i+1]); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteBitfield saves the bitfield of torrent.
func (r *Resumer) WriteBitfield(infoHash [20]byte, value []byte) error {
	return r.put(infoHash, Keys.Bitfield, value)
}

// ReadBitfield returns the saved bitfield of torrent. Returns nil if there is none.
func (r *Resumer) ReadBitfield(infoHash [20]byte) ([]byte, error) {
	var value []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket(torrentKey(infoHash))
		if b == nil {
			return nil
		}
		if v := b.Get(Keys.Bitfield); v != nil {
			// Value is only valid during the transaction.
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	return value, err
}

// WriteStats saves transfer counters of torrent.
func (r *Resumer) WriteStats(infoHash [20]byte, s resumer.Stats) error {
	return r.put(infoHash,
		Keys.BytesDownloaded, []byte(strconv.FormatInt(s.BytesDownloaded, 10)),
		Keys.BytesUploaded, []byte(strconv.FormatInt(s.BytesUploaded, 10)),
	)
}

// ReadStats returns the saved transfer counters of torrent. Zero values are returned if there is none.
func (r *Resumer) ReadStats(infoHash [20]byte) (resumer.Stats, error) {
	var s resumer.Stats
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(r.bucket).Bucket(torrentKey(infoHash))
		if b == nil {
			return nil
		}
		var err error
		if v := b.Get(Keys.BytesDownloaded); v != nil {
			if s.BytesDownloaded, err = strconv.ParseInt(string(v), 10, 64); err != nil {
				return err
			}
		}
		if v := b.Get(Keys.BytesUploaded); v != nil {
			if s.BytesUploaded, err = strconv.ParseInt(string(v), 10, 64); err != nil {
				return err
			}
		}
		return nil
	})
	return s, err
}
