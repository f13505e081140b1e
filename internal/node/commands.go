package node

import (
	"errors"
	"time"

	"github.com/0790486/meshnode/internal/catalog"
	"github.com/0790486/meshnode/internal/stats"
)

// ErrNodeClosed is returned by any public API call made after Shutdown
// has completed.
var ErrNodeClosed = errors.New("node: closed")

// ErrCommandRateLimited is returned when the command channel's rate
// limiter rejects a call (spec.md section 5, protecting the
// single-threaded loop from a caller issuing commands in a tight loop).
var ErrCommandRateLimited = errors.New("node: command rate limited")

// ErrDuplicateRegistration mirrors spec.md section 7's DuplicateRegistration
// error kind: the API called to add a publisher/subscriber whose UUID
// already exists.
var ErrDuplicateRegistration = errors.New("node: duplicate registration")

type commandKind int

const (
	cmdAddPublisher commandKind = iota
	cmdRemovePublisher
	cmdAddSubscriber
	cmdRemoveSubscriber
	cmdAddEndpoint
	cmdRemoveEndpoint
	cmdPublish
	cmdShutdown
)

type command struct {
	kind commandKind

	pub     *catalog.LocalPublisher
	pubUUID string

	sub     *catalog.LocalSubscriber
	subUUID string

	addr    string
	payload []byte

	done chan struct{}
	err  error
}

// enqueue submits cmd to the event loop and blocks for its completion.
// Safe to call from any goroutine (spec.md section 4.6: API calls never
// touch catalog state directly, only the command channel).
func (n *Node) enqueue(cmd command) error {
	if n.cfg.CommandLimiter != nil && !n.cfg.CommandLimiter.Allow() {
		return ErrCommandRateLimited
	}
	cmd.done = make(chan struct{})

	select {
	case n.commands <- cmd:
	case <-n.closing:
		return ErrNodeClosed
	}

	select {
	case <-cmd.done:
		return cmd.err
	case <-n.closing:
		return ErrNodeClosed
	}
}

// AddPublisher registers pub and announces it to every established peer.
func (n *Node) AddPublisher(pub *catalog.LocalPublisher) error {
	return n.enqueue(command{kind: cmdAddPublisher, pub: pub})
}

// RemovePublisher deregisters the publisher identified by uuid.
func (n *Node) RemovePublisher(uuid string) error {
	return n.enqueue(command{kind: cmdRemovePublisher, pubUUID: uuid})
}

// AddSubscriber registers sub and subscribes to every matching remote
// publisher already known.
func (n *Node) AddSubscriber(sub *catalog.LocalSubscriber) error {
	return n.enqueue(command{kind: cmdAddSubscriber, sub: sub})
}

// RemoveSubscriber deregisters the subscriber identified by uuid.
func (n *Node) RemoveSubscriber(uuid string) error {
	return n.enqueue(command{kind: cmdRemoveSubscriber, subUUID: uuid})
}

// AddEndpoint opens (or retains) a session to addr. Discovery translates
// added/changed callbacks into this call (spec.md section 6).
func (n *Node) AddEndpoint(addr string) error {
	return n.enqueue(command{kind: cmdAddEndpoint, addr: addr})
}

// RemoveEndpoint releases this node's reference on the session to addr.
// The session is only torn down once every referent has released it
// (spec.md scenario 6, discovery flap).
func (n *Node) RemoveEndpoint(addr string) error {
	return n.enqueue(command{kind: cmdRemoveEndpoint, addr: addr})
}

// Publish fans payload out to every confirmed subscriber of pubUUID.
func (n *Node) Publish(pubUUID string, payload []byte) error {
	return n.enqueue(command{kind: cmdPublish, pubUUID: pubUUID, payload: payload})
}

// Shutdown broadcasts SHUTDOWN to every session, closes all sockets, and
// stops the event loop. Safe to call once; subsequent calls return
// ErrNodeClosed.
func (n *Node) Shutdown() error {
	return n.enqueue(command{kind: cmdShutdown})
}

// WaitForSubscribers blocks until pub has at least count confirmed
// subscribers or timeout elapses, returning the count observed (spec.md
// section 4.6). It reads the reconciler's condition variable directly
// rather than going through the command channel, since it is a
// read-only wait, not a state mutation.
func (n *Node) WaitForSubscribers(pub *catalog.LocalPublisher, count int, timeout time.Duration) int {
	return n.rec.WaitForSubscribers(pub, count, timeout)
}

// Debug returns a human-readable snapshot of node identity, traffic
// rates, catalog, and session state (spec.md section 4.7).
func (n *Node) Debug() string {
	return n.debugSnapshot().String()
}

// DebugSnapshot returns the same information as Debug, as a structured
// stats.DebugSnapshot value rather than pre-rendered text — for
// in-process tests and callers that want individual fields instead of
// parsing the wire-format DEBUG reply.
func (n *Node) DebugSnapshot() stats.DebugSnapshot {
	return n.debugSnapshot()
}
