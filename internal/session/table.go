package session

import (
	"sync"
	"time"
)

// HandshakeTimeout is how long a session may sit without a remote UUID
// before it is garbage collected (spec.md section 4.2).
const HandshakeTimeout = 30 * time.Second

// LivenessTimeout is the SessionTimeout error kind from spec.md section
// 7: no frame received from a peer in this long triggers a synthesized
// peer-loss event equivalent to SHUTDOWN.
const LivenessTimeout = 30 * time.Second

// Table is the arena/handle table described in spec.md section 9's
// "Dual-keyed sessions" design note: sessions live in one map keyed by
// an opaque handle, and the address/UUID indexes hold handles rather
// than raw pointers, so releasing one index never dangles the other.
type Table struct {
	mu sync.Mutex

	sessions   map[int64]*Session
	byAddress  map[string]int64
	byUUID     map[string]int64
	nextHandle int64
}

// NewTable returns an empty session table.
func NewTable() *Table {
	return &Table{
		sessions:  make(map[int64]*Session),
		byAddress: make(map[string]int64),
		byUUID:    make(map[string]int64),
	}
}

// Open creates an outbound session to address. sock is nil if the
// caller's socket-creation attempt failed; per spec.md section 4.2 the
// session is then discarded without entering the table, so Open returns
// nil in that case.
func (t *Table) Open(address string, sock Socket, now time.Time) *Session {
	if sock == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &Session{
		RemoteAddress: address,
		Outbound:      sock,
		StartedAt:     now,
		LastSeen:      now,
		RefCount:      1,
		ConnectedTo:   true,
	}
	t.insertLocked(s)
	t.byAddress[address] = s.handle
	return s
}

// AcceptConnectFrom handles a CONNECT_REQ received from uuid: if a
// session keyed by uuid already exists, its ConnectedFrom flag is set;
// otherwise a bare (no outbound socket) session is created.
func (t *Table) AcceptConnectFrom(uuid string, now time.Time) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.byUUID[uuid]; ok {
		s := t.sessions[h]
		s.mu.Lock()
		s.ConnectedFrom = true
		s.LastSeen = now
		s.mu.Unlock()
		return s
	}

	s := &Session{
		RemoteUUID:    uuid,
		StartedAt:     now,
		LastSeen:      now,
		ConnectedFrom: true,
	}
	t.insertLocked(s)
	t.byUUID[uuid] = s.handle
	return s
}

// BindReplyResult reports what BindReply had to reconcile.
type BindReplyResult struct {
	Session *Session
	// PreviousUUID is set when the address was previously bound to a
	// different remote UUID (peer restarted at the same address); the
	// caller must treat PreviousUUID as lost per spec.md section 4.2.
	PreviousUUID string
	HadPrevious  bool
}

// BindReply attaches replyUUID to the outbound session keyed by
// address, called on CONNECT_REP.
func (t *Table) BindReply(address, replyUUID string, now time.Time) BindReplyResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.byAddress[address]
	if !ok {
		return BindReplyResult{}
	}
	s := t.sessions[h]

	s.mu.Lock()
	prevUUID := s.RemoteUUID
	hadPrevious := prevUUID != "" && prevUUID != replyUUID
	s.RemoteUUID = replyUUID
	s.LastSeen = now
	s.mu.Unlock()

	if existingHandle, exists := t.byUUID[replyUUID]; !exists || existingHandle != h {
		t.byUUID[replyUUID] = h
	}

	return BindReplyResult{Session: s, PreviousUUID: prevUUID, HadPrevious: hadPrevious}
}

// Release decrements refCount; at zero the caller should close the
// outbound socket (the table itself never touches sockets) and the
// address key is removed. The uuid key is removed only if ConnectedFrom
// is also false, per spec.md section 4.2.
func (t *Table) Release(address string) (sock Socket, closed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.byAddress[address]
	if !ok {
		return nil, false
	}
	s := t.sessions[h]

	s.mu.Lock()
	s.RefCount--
	refZero := s.RefCount <= 0
	connectedFrom := s.ConnectedFrom
	outbound := s.Outbound
	uuid := s.RemoteUUID
	if refZero {
		s.ConnectedTo = false
		s.Outbound = nil
	}
	s.mu.Unlock()

	if !refZero {
		return nil, false
	}

	delete(t.byAddress, address)
	if !connectedFrom {
		if uuid != "" {
			delete(t.byUUID, uuid)
		}
		delete(t.sessions, h)
	}
	return outbound, true
}

// Retain increments refCount for an already-open session at address.
func (t *Table) Retain(address string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byAddress[address]
	if !ok {
		return false
	}
	s := t.sessions[h]
	s.mu.Lock()
	s.RefCount++
	s.mu.Unlock()
	return true
}

// ByAddress looks up a session by remote address.
func (t *Table) ByAddress(address string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byAddress[address]
	if !ok {
		return nil, false
	}
	return t.sessions[h], true
}

// ByUUID looks up a session by remote UUID.
func (t *Table) ByUUID(uuid string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.byUUID[uuid]
	if !ok {
		return nil, false
	}
	return t.sessions[h], true
}

// All returns a snapshot slice of every live session.
func (t *Table) All() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}

// Remove drops a session from every index it participates in and
// returns its outbound socket, if any, for the caller to close. Used
// for SHUTDOWN / timeout-driven peer loss, where the whole record is
// torn down regardless of refcount.
func (t *Table) Remove(s *Session) Socket {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := s.snapshot()
	if snap.RemoteAddress != "" {
		if h, ok := t.byAddress[snap.RemoteAddress]; ok && h == snap.handle {
			delete(t.byAddress, snap.RemoteAddress)
		}
	}
	if snap.RemoteUUID != "" {
		if h, ok := t.byUUID[snap.RemoteUUID]; ok && h == snap.handle {
			delete(t.byUUID, snap.RemoteUUID)
		}
	}
	delete(t.sessions, snap.handle)
	return snap.Outbound
}

// ReapStale returns every session whose liveness has expired: either it
// never completed its handshake within HandshakeTimeout, or its
// LastSeen is older than LivenessTimeout (spec.md section 4.2/7).
func (t *Table) ReapStale(now time.Time) []*Session {
	var stale []*Session
	for _, s := range t.All() {
		snap := s.snapshot()
		if snap.RemoteUUID == "" && now.Sub(snap.StartedAt) > HandshakeTimeout {
			stale = append(stale, s)
			continue
		}
		if now.Sub(snap.LastSeen) > LivenessTimeout {
			stale = append(stale, s)
		}
	}
	return stale
}

func (t *Table) insertLocked(s *Session) {
	t.nextHandle++
	s.handle = t.nextHandle
	t.sessions[s.handle] = s
}

// CheckInvariants validates spec.md section 8 invariant 1 and 5 against
// the table's current state; it is used by tests, not production code.
func (t *Table) CheckInvariants() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var violations []string
	for uuid, h := range t.byUUID {
		s := t.sessions[h]
		snap := s.snapshot()
		if snap.ConnectedTo && snap.RemoteAddress != "" {
			addrHandle, ok := t.byAddress[snap.RemoteAddress]
			if !ok || addrHandle != h {
				violations = append(violations, "uuid "+uuid+" has no matching address-keyed entry")
			}
		}
		want := 0
		if snap.ConnectedTo {
			want++
		}
		if snap.ConnectedFrom {
			want++
		}
		if snap.RefCount < want {
			violations = append(violations, "uuid "+uuid+" refCount below connectedTo+connectedFrom")
		}
	}
	return violations
}
