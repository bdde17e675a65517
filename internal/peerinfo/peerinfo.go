// Package peerinfo contains the address and optional id of a remote peer.
package peerinfo

import (
	"encoding/hex"
	"net"
	"strconv"
)

// Info identifies a remote peer.
type Info struct {
	IP   string
	Port int
	// ID is nil when the peer id is not known.
	ID *[20]byte
}

// New returns Info for the address without a peer id.
func New(ip string, port int) Info {
	return Info{IP: ip, Port: port}
}

// FromTCPAddr returns Info for addr.
func FromTCPAddr(addr *net.TCPAddr) Info {
	return Info{IP: addr.IP.String(), Port: addr.Port}
}

// Parse returns Info from a "host:port" string.
func Parse(s string) (Info, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Info{}, err
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Info{}, err
	}
	return Info{IP: host, Port: int(p)}, nil
}

// Addr returns the address in "host:port" form.
func (i Info) Addr() string {
	return net.JoinHostPort(i.IP, strconv.Itoa(i.Port))
}

func (i Info) String() string {
	if i.ID == nil {
		return i.Addr()
	}
	return i.Addr() + " " + hex.EncodeToString(i.ID[:])
}

// Equal compares addresses. Peer ids are compared only if both are known.
func (i Info) Equal(o Info) bool {
	if i.IP != o.IP || i.Port != o.Port {
		return false
	}
	if i.ID == nil || o.ID == nil {
		return true
	}
	return *i.ID == *o.ID
}

// WithID returns a copy of i with id set.
func (i Info) WithID(id [20]byte) Info {
	i.ID = &id
	return i
}
