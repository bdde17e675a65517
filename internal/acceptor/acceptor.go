// Package acceptor accepts incoming peer connections on a listener.
package acceptor

import (
	"net"

	"github.com/cenkalti/drizzle/internal/logger"
)

// Acceptor passes accepted connections to a handler until stopped.
type Acceptor struct {
	listener net.Listener
	handler  func(net.Conn)
	log      logger.Logger
}

// New returns an Acceptor for the listener. The handler owns the accepted connection and
// must not block.
func New(listener net.Listener, handler func(net.Conn), l logger.Logger) *Acceptor {
	return &Acceptor{
		listener: listener,
		handler:  handler,
		log:      l,
	}
}

// Run accepts connections until stopC is closed. The listener is closed on return.
func (a *Acceptor) Run(stopC chan struct{}) {
	go func() {
		<-stopC
		a.listener.Close()
	}()
	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-stopC:
				return
			default:
			}
			a.log.Error(err)
			return
		}
		a.log.Debugln("accepted connection:", conn.RemoteAddr())
		a.handler(conn)
	}
}
