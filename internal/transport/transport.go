// Package transport defines the byte stream connection used by peer connections.
package transport

// Handler receives events of a Transport. Methods are called on the goroutine that owns the Transport.
type Handler interface {
	TransportConnected()
	TransportData(b []byte)
	// TransportDisconnected is called once, after a failed connect, a read or write error,
	// or a call to Disconnect.
	TransportDisconnected(err error)
}

// Transport is an ordered byte stream to a remote peer.
// Methods must be called from a single goroutine, the same one Handler methods are called on.
type Transport interface {
	SetHandler(h Handler)
	// Connect starts connecting to the address. Result is reported to the Handler.
	Connect(host string, port int) error
	Disconnect()
	Connected() bool
	// Write queues b. done, if not nil, is called after b is written to the connection.
	Write(b []byte, done func())
}
