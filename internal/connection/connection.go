// Package connection implements the per-connection protocol state machine:
// decode/dispatch, the bounded write buffer, and the service loop that
// binds a socket to the router.
package connection

import (
	"net"
	"sync"

	"github.com/adred-codev/natsd/internal/protocol"
)

// Connection holds the state owned by one accepted TCP socket: its decoder,
// write buffer, and negotiated flags. Its subscriptions live in the router,
// keyed by this connection's ID. The router holds a Deliverer handle to it, never the socket
// itself, so closing the connection never requires coordinating with the
// router beyond removing its subscriptions.
type Connection struct {
	id   uint64
	conn net.Conn

	decoder *protocol.Decoder

	mu        sync.Mutex
	writeBuf  []byte
	bufCap    int
	closed    bool

	verbose     bool
	sslRequired bool
}

// New wraps an accepted socket with the decode/write-buffer state a
// ConnectionService needs.
func New(id uint64, conn net.Conn, writeBufCap int) *Connection {
	return &Connection{
		id:      id,
		conn:    conn,
		decoder: protocol.NewDecoder(),
		bufCap:  writeBufCap,
		verbose: true, // verbose defaults to true until CONNECT sets it false
	}
}

// ID implements router.Deliverer.
func (c *Connection) ID() uint64 { return c.id }

// Verbose reports whether +OK acknowledgements are enabled for this connection.
func (c *Connection) Verbose() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verbose
}

// SetVerbose updates the verbose flag, as CONNECT may do.
func (c *Connection) SetVerbose(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verbose = v
}

// SetSSLRequired updates the ssl_require flag, as CONNECT may do. The core
// does not perform a TLS handshake; this only tracks the negotiated value.
func (c *Connection) SetSSLRequired(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sslRequired = v
}

// RemoteAddr returns the peer address for logging.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Deliver implements router.Deliverer: it appends frame to the write
// buffer, flushing to the socket first if frame would overflow the buffer's
// capacity. It never blocks on anything but the socket write it triggers
// when the buffer is full.
func (c *Connection) Deliver(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(frame)
}

// appendLocked appends data to the write buffer, flushing first if needed.
// Callers must hold c.mu.
func (c *Connection) appendLocked(data []byte) error {
	if c.closed {
		return errClosed
	}
	if len(c.writeBuf)+len(data) > c.bufCap && len(c.writeBuf) > 0 {
		if err := c.flushLocked(); err != nil {
			return err
		}
	}
	c.writeBuf = append(c.writeBuf, data...)
	return nil
}

// flushLocked writes the buffer to the socket and resets it. Callers must
// hold c.mu.
func (c *Connection) flushLocked() error {
	if len(c.writeBuf) == 0 {
		return nil
	}
	if _, err := c.conn.Write(c.writeBuf); err != nil {
		c.closed = true
		return err
	}
	c.writeBuf = c.writeBuf[:0]
	return nil
}

// Flush writes any buffered bytes to the socket now, for use by the
// periodic flush tick.
func (c *Connection) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// Close marks the connection closed and closes the underlying socket.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}
