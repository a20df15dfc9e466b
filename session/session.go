// session/session.go
package session

import (
	"encoding/json"
	"time"

	"github.com/tambolahq/tambola-server/network"
)

// Session is one client connection's identity. The ID is an opaque
// string issued by the gateway at accept time; the game core only ever
// sees this ID, never the underlying transport.
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	LastActive time.Time
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Send writes a pre-encoded frame to the client.
func (s *Session) Send(data []byte) error {
	s.LastActive = time.Now()
	return s.Conn.Send(data)
}

// SendJSON marshals v and sends it.
func (s *Session) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Send(data)
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}
