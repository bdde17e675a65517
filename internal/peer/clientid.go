package peer

import (
	"strings"
)

// clientID returns the client software part of a peer id.
func clientID(id string) string {
	// ID follows BEP 20 convention
	if len(id) >= 8 && id[0] == '-' && id[7] == '-' {
		return id[:8]
	}

	// Our own convention allows longer version strings
	if strings.HasPrefix(id, "-DZ") {
		i := strings.IndexRune(id[1:], '-')
		if i != -1 {
			return id[:i+2]
		}
	}

	return ""
}
