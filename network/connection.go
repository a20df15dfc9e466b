// network/connection.go
package network

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned by Send once the connection is no
// longer usable.
var ErrConnectionClosed = errors.New("connection closed")

// Connection abstracts the transport so the game core never touches a
// websocket type directly.
type Connection interface {
	Send(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
	RemoteAddr() net.Addr
	// Open reports whether the connection is still usable. Broadcast
	// fan-out skips closed connections without removing them; removal
	// only happens through disconnect handling.
	Open() bool
}

// WSConnection carries JSON text frames over a gorilla websocket.
type WSConnection struct {
	conn      *websocket.Conn
	sendMutex sync.Mutex
	closed    atomic.Bool
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	return &WSConnection{conn: conn}
}

func (c *WSConnection) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

func (c *WSConnection) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.closed.Store(true)
		return nil, err
	}
	return data, nil
}

func (c *WSConnection) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConnection) Open() bool {
	return !c.closed.Load()
}
