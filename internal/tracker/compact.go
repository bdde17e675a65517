package tracker

import (
	"encoding/binary"
	"errors"
	"net"

	"github.com/cenkalti/drizzle/internal/peerinfo"
)

const compactPeerLength = 6

var errInvalidCompactLength = errors.New("invalid compact peer length")

// CompactPeer is a struct value which consist of a 4-bytes IP address and a 2-bytes port value.
// CompactPeer can be used as a key in maps because it does not contain any pointers.
type CompactPeer struct {
	IP   [net.IPv4len]byte
	Port uint16
}

// NewCompactPeer returns a new CompactPeer from a peerinfo.Info. IP must be an IPv4 address.
func NewCompactPeer(info peerinfo.Info) CompactPeer {
	p := CompactPeer{Port: uint16(info.Port)}
	copy(p.IP[:], net.ParseIP(info.IP).To4())
	return p
}

// Info returns the address of the peer.
func (p CompactPeer) Info() peerinfo.Info {
	return peerinfo.New(net.IP(p.IP[:]).String(), int(p.Port))
}

// MarshalBinary returns the bytes.
func (p CompactPeer) MarshalBinary() ([]byte, error) {
	b := make([]byte, compactPeerLength)
	copy(b, p.IP[:])
	binary.BigEndian.PutUint16(b[4:], p.Port)
	return b, nil
}

// UnmarshalBinary reads bytes from a slice into the CompactPeer.
func (p *CompactPeer) UnmarshalBinary(data []byte) error {
	if len(data) != compactPeerLength {
		return errInvalidCompactLength
	}
	copy(p.IP[:], data[:4])
	p.Port = binary.BigEndian.Uint16(data[4:])
	return nil
}

// DecodePeersCompact parses and returns addresses for list of CompactPeers.
// Peers with a zero port are skipped.
func DecodePeersCompact(b []byte) ([]peerinfo.Info, error) {
	if len(b)%compactPeerLength != 0 {
		return nil, errors.New("invalid peer list length")
	}
	peers := make([]peerinfo.Info, 0, len(b)/compactPeerLength)
	for i := 0; i < len(b); i += compactPeerLength {
		var peer CompactPeer
		err := peer.UnmarshalBinary(b[i : i+compactPeerLength])
		if err != nil {
			return nil, err
		}
		if peer.Port == 0 {
			continue
		}
		peers = append(peers, peer.Info())
	}
	return peers, nil
}

// EncodePeersCompact returns the compact form of IPv4 peers. Other peers are skipped.
func EncodePeersCompact(peers []peerinfo.Info) []byte {
	b := make([]byte, 0, len(peers)*compactPeerLength)
	for _, info := range peers {
		ip := net.ParseIP(info.IP)
		if ip == nil || ip.To4() == nil {
			continue
		}
		pb, _ := NewCompactPeer(info).MarshalBinary()
		b = append(b, pb...)
	}
	return b
}
