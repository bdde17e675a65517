package acceptor

import (
	"net"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenkalti/drizzle/internal/logger"
)

func TestAccept(t *testing.T) {
	defer leaktest.Check(t)()

	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	connC := make(chan net.Conn, 1)
	a := New(l, func(conn net.Conn) { connC <- conn }, logger.New("acceptor"))
	stopC := make(chan struct{})
	doneC := make(chan struct{})
	go func() {
		a.Run(stopC)
		close(doneC)
	}()

	c, err := net.Dial("tcp4", l.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	select {
	case conn := <-connC:
		assert.Equal(t, c.LocalAddr().String(), conn.RemoteAddr().String())
		conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("connection is not accepted")
	}

	close(stopC)
	select {
	case <-doneC:
	case <-time.After(2 * time.Second):
		t.Fatal("acceptor did not stop")
	}
	_, err = net.Dial("tcp4", l.Addr().String())
	assert.Error(t, err)
}
