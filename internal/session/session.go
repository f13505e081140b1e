// Package session implements the dual-keyed Session record from
// spec.md section 4.2: one logical connection to a remote node, keyed
// by remote address until the handshake completes and then additionally
// by remote UUID, both keys sharing the same record identity.
package session

import (
	"sync"
	"time"
)

// Socket is the minimal outbound-socket surface a Session needs. The
// concrete type lives in internal/transport; session depends only on
// this interface, so it does not import internal/transport.
type Socket interface {
	Send(frame []byte) error
	Close() error
}

// Session is the half-duplex link state between this node and one peer.
type Session struct {
	mu sync.Mutex

	handle int64

	RemoteUUID    string // empty until handshake completes
	RemoteAddress string // empty for accept-only sessions with no outbound leg
	Outbound      Socket // nil for accept-only sessions
	StartedAt     time.Time
	LastSeen      time.Time
	RefCount      int
	ConnectedTo   bool
	ConnectedFrom bool
}

// Touch records that a frame was received from this peer, resetting the
// 30s liveness timer (spec.md section 4.2).
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastSeen = now
}

func (s *Session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{
		handle:        s.handle,
		RemoteUUID:    s.RemoteUUID,
		RemoteAddress: s.RemoteAddress,
		Outbound:      s.Outbound,
		StartedAt:     s.StartedAt,
		LastSeen:      s.LastSeen,
		RefCount:      s.RefCount,
		ConnectedTo:   s.ConnectedTo,
		ConnectedFrom: s.ConnectedFrom,
	}
}

// Snapshot returns a value copy of the session's current fields, safe
// for API callers to read without racing the event loop (spec.md
// section 5's "narrow windows where the API snapshots it for read").
func (s *Session) Snapshot() Session {
	return s.snapshot()
}

// Handshaken reports whether the remote UUID is known yet.
func (s *Session) Handshaken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.RemoteUUID != ""
}
