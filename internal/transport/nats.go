package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/0790486/meshnode/internal/wire"
)

// NATS is the relayed transport variant (wire.ImplTypeNATS, spec.md
// section 9). Rather than a direct TCP connection per peer, every node
// publishes to and subscribes on a subject namespace keyed by node
// UUID, letting a shared NATS deployment stand in for point-to-point
// sockets. There is no independent data-plane subscribe hint in this
// variant, which is why the reconciler treats it as immediately
// confirmed (internal/reconcile, requiresDataPlaneConfirm).
type NATS struct {
	Conn *nats.Conn

	// Subject is the namespace prefix; per-peer subjects are
	// "<Subject>.<localUUID>".
	Subject string
}

func (t NATS) ImplType() uint16 { return wire.ImplTypeNATS }

func (t NATS) subjectFor(nodeUUID string) string {
	return fmt.Sprintf("%s.%s", t.Subject, nodeUUID)
}

// Listen subscribes to this node's own subject; addr is interpreted as
// the local node UUID rather than a network address.
func (t NATS) Listen(ctx context.Context, addr string) (Listener, error) {
	l := &natsListener{
		conn: t.Conn,
		ch:   make(chan Socket),
	}
	sub, err := t.Conn.Subscribe(t.subjectFor(addr), func(msg *nats.Msg) {
		l.deliver(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("transport: nats subscribe %s: %w", addr, err)
	}
	l.sub = sub
	l.localUUID = addr
	l.subjectPrefix = t.Subject
	return l, nil
}

// Dial returns a Socket that publishes to remoteUUID's subject. Since
// NATS subjects have no independent "connection", each call opens a
// fresh reply subject so inbound replies route back here.
func (t NATS) Dial(ctx context.Context, remoteUUID string) (Socket, error) {
	replySubject := nats.NewInbox()
	s := &natsSocket{
		conn:      t.Conn,
		sendTo:    t.subjectFor(remoteUUID),
		recvCh:    make(chan []byte, 64),
		remoteRef: remoteUUID,
	}
	sub, err := t.Conn.Subscribe(replySubject, func(msg *nats.Msg) {
		select {
		case s.recvCh <- msg.Data:
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("transport: nats dial %s: %w", remoteUUID, err)
	}
	s.sub = sub
	s.replySubject = replySubject
	return s, nil
}

type natsListener struct {
	conn          *nats.Conn
	sub           *nats.Subscription
	ch            chan Socket
	localUUID     string
	subjectPrefix string

	mu      sync.Mutex
	sockets map[string]*natsSocket
	closed  bool
}

// deliver routes an inbound message to the existing Socket for its
// sender, creating one on first contact (mirrors a Listener accepting a
// new connection).
func (l *natsListener) deliver(msg *nats.Msg) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	if l.sockets == nil {
		l.sockets = make(map[string]*natsSocket)
	}
	sock, ok := l.sockets[msg.Reply]
	if !ok {
		sock = &natsSocket{
			conn:         l.conn,
			sendTo:       msg.Reply,
			recvCh:       make(chan []byte, 64),
			remoteRef:    msg.Reply,
			replySubject: l.subjectPrefix + "." + l.localUUID,
		}
		l.sockets[msg.Reply] = sock
		l.mu.Unlock()
		l.ch <- sock
	} else {
		l.mu.Unlock()
	}
	select {
	case sock.recvCh <- msg.Data:
	default:
	}
}

func (l *natsListener) Accept() <-chan Socket { return l.ch }
func (l *natsListener) Addr() net.Addr        { return natsAddr(l.localUUID) }
func (l *natsListener) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	if l.sub != nil {
		return l.sub.Unsubscribe()
	}
	return nil
}

type natsAddr string

func (a natsAddr) Network() string { return "nats" }
func (a natsAddr) String() string  { return string(a) }

type natsSocket struct {
	conn         *nats.Conn
	sub          *nats.Subscription
	sendTo       string
	replySubject string
	remoteRef    string
	recvCh       chan []byte
}

func (s *natsSocket) Send(frame []byte) error {
	return s.conn.PublishRequest(s.sendTo, s.replySubject, frame)
}

func (s *natsSocket) Recv() ([]byte, error) {
	data, ok := <-s.recvCh
	if !ok {
		return nil, fmt.Errorf("transport: nats socket closed")
	}
	return data, nil
}

func (s *natsSocket) RemoteAddr() string { return s.remoteRef }

// Close unsubscribes the reply listener. recvCh is left open and simply
// garbage collected once unreachable: the publishing callback races a
// concurrent Close, and closing a channel another goroutine may still
// send on is worse than leaking it.
func (s *natsSocket) Close() error {
	if s.sub != nil {
		return s.sub.Unsubscribe()
	}
	return nil
}
