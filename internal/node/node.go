// Package node implements the single-threaded event loop from spec.md
// section 4.5: it owns every Session, the local catalog, and the
// statistics window, and is the only goroutine that mutates any of
// them. Every other goroutine (socket pumps, the accept loop, discovery
// callbacks, and public API calls) only ever hands work to the loop
// over a channel, mirroring spec.md section 4.6's "in-process paired
// socket" command channel with Go's native channel-select.
package node

import (
	"context"
	"sync"
	"time"

	"github.com/0790486/meshnode/internal/catalog"
	"github.com/0790486/meshnode/internal/discovery"
	"github.com/0790486/meshnode/internal/logging"
	"github.com/0790486/meshnode/internal/reconcile"
	"github.com/0790486/meshnode/internal/session"
	"github.com/0790486/meshnode/internal/transport"
	"github.com/0790486/meshnode/internal/wire"
)

type discoveryEventKind int

const (
	discAdded discoveryEventKind = iota
	discRemoved
	discChanged
)

type discoveryEvt struct {
	kind discoveryEventKind
	ep   discovery.EndPoint
}

type inboundFrame struct {
	addr   string
	data   []byte
	closed bool
}

// Node is one mesh participant: a control-plane listener, a mesh of
// peer Sessions, a local publisher/subscriber catalog, and the
// reconciler that keeps subscriptions live across both (spec.md
// sections 2 and 5).
type Node struct {
	cfg Config
	ctx context.Context

	cat      *catalog.Catalog
	sessions *session.Table
	rec      *reconcile.Reconciler
	routing  *addrIndex

	listener  transport.Listener
	localAddr string

	socketsMu      sync.Mutex
	socketsByAddr  map[string]transport.Socket
	lastNodeInfoAt time.Time

	inbound     chan inboundFrame
	accepted    chan transport.Socket
	commands    chan command
	discoveryCh chan discoveryEvt

	closing   chan struct{}
	closeOnce sync.Once
}

// New constructs a Node. It does not bind a listener or start any
// goroutines; call Run to do that.
func New(cfg Config) *Node {
	cfg.applyDefaults()

	n := &Node{
		cfg:           cfg,
		cat:           catalog.New(),
		sessions:      session.NewTable(),
		routing:       newAddrIndex(),
		socketsByAddr: make(map[string]transport.Socket),
		inbound:       make(chan inboundFrame, 256),
		accepted:      make(chan transport.Socket, 16),
		commands:      make(chan command, 64),
		discoveryCh:   make(chan discoveryEvt, 32),
		closing:       make(chan struct{}),
	}
	n.rec = reconcile.New(n.cat, cfg.LocalUUID, cfg.AllowLocal, n.sendControl)
	return n
}

// Run binds the listener, starts discovery if configured, and blocks
// running the event loop until ctx is cancelled or Shutdown is called.
func (n *Node) Run(ctx context.Context) error {
	n.ctx = ctx

	ln, err := n.cfg.Transport.Listen(ctx, n.cfg.ListenAddr)
	if err != nil {
		return err
	}
	n.listener = ln
	n.localAddr = ln.Addr().String()

	go n.acceptLoop(ln)

	if n.cfg.Discovery != nil {
		if err := n.cfg.Discovery.Start(n); err != nil {
			n.cfg.Logger.Warn().Err(err).Msg("discovery start failed")
		}
	}

	if n.cfg.AllowLocal {
		n.openSession(n.localAddr)
	}

	ticker := time.NewTicker(n.cfg.TickInterval)
	defer ticker.Stop()

	for {
		// Session/data frames are drained ahead of every blocking wait
		// (spec.md section 4.5 step 3: "dispatch the first ready one,
		// jump back to step 1" so a busy data channel never starves
		// catalog updates carried on the same inbound stream).
		for drained := true; drained; {
			select {
			case fr := <-n.inbound:
				n.dispatchInbound(fr)
			default:
				drained = false
			}
		}

		select {
		case <-ctx.Done():
			n.doShutdown()
			return nil
		case cmd := <-n.commands:
			n.dispatchCommand(cmd)
			if cmd.kind == cmdShutdown {
				n.doShutdown()
				return nil
			}
		case fr := <-n.inbound:
			n.dispatchInbound(fr)
		case sock := <-n.accepted:
			n.handleAccepted(sock)
		case ev := <-n.discoveryCh:
			n.handleDiscoveryEvent(ev)
		case <-ticker.C:
			n.onTick()
		}
	}
}

// dispatchCommand and dispatchInbound wrap their handlers in a deferred
// panic recovery, the way the teacher's worker pool recovers a panic
// from one dispatched unit of work without taking the pool down
// (spec.md section 4.5: a single malformed frame or handler bug must
// never crash the single-threaded core).
func (n *Node) dispatchCommand(cmd command) {
	defer logging.RecoverPanic(n.cfg.Logger, "handleCommand")
	n.handleCommand(cmd)
}

func (n *Node) dispatchInbound(fr inboundFrame) {
	defer logging.RecoverPanic(n.cfg.Logger, "handleInbound")
	n.handleInbound(fr)
}

func (n *Node) acceptLoop(ln transport.Listener) {
	for sock := range ln.Accept() {
		select {
		case n.accepted <- sock:
		case <-n.closing:
			sock.Close()
		}
	}
}

func (n *Node) pump(sock transport.Socket, addr string) {
	for {
		data, err := sock.Recv()
		if err != nil {
			select {
			case n.inbound <- inboundFrame{addr: addr, closed: true}:
			case <-n.closing:
			}
			return
		}
		select {
		case n.inbound <- inboundFrame{addr: addr, data: data}:
		case <-n.closing:
			return
		}
	}
}

func (n *Node) registerSocket(addr string, sock transport.Socket) {
	n.socketsMu.Lock()
	n.socketsByAddr[addr] = sock
	n.socketsMu.Unlock()
}

func (n *Node) unregisterSocket(addr string) {
	n.socketsMu.Lock()
	delete(n.socketsByAddr, addr)
	n.socketsMu.Unlock()
}

func (n *Node) lookupSocket(addr string) (transport.Socket, bool) {
	n.socketsMu.Lock()
	defer n.socketsMu.Unlock()
	sock, ok := n.socketsByAddr[addr]
	return sock, ok
}

func (n *Node) handleAccepted(sock transport.Socket) {
	addr := sock.RemoteAddr()
	if n.cfg.SessionLimiter != nil && !n.cfg.SessionLimiter.Allow(addr) {
		sock.Close()
		return
	}
	n.registerSocket(addr, sock)
	go n.pump(sock, addr)
}

// Added, Removed, Changed implement discovery.Listener. Called on the
// Discovery's own goroutine; they only ever hand off to discoveryCh.
func (n *Node) Added(ep discovery.EndPoint)   { n.pushDiscovery(discoveryEvt{kind: discAdded, ep: ep}) }
func (n *Node) Removed(ep discovery.EndPoint) { n.pushDiscovery(discoveryEvt{kind: discRemoved, ep: ep}) }
func (n *Node) Changed(ep discovery.EndPoint) { n.pushDiscovery(discoveryEvt{kind: discChanged, ep: ep}) }

func (n *Node) pushDiscovery(ev discoveryEvt) {
	select {
	case n.discoveryCh <- ev:
	default:
		n.cfg.Logger.Warn().Msg("discovery event queue full, dropping")
	}
}

func (n *Node) handleDiscoveryEvent(ev discoveryEvt) {
	switch ev.kind {
	case discAdded, discChanged:
		n.openSession(ev.ep.Address)
	case discRemoved:
		n.closeSession(ev.ep.Address)
	}
}

func (n *Node) openSession(addr string) {
	if n.sessions.Retain(addr) {
		return
	}
	if n.cfg.SessionLimiter != nil && !n.cfg.SessionLimiter.Allow(addr) {
		n.cfg.Logger.Debug().Str("addr", addr).Msg("session open throttled")
		return
	}
	sock, err := n.cfg.Transport.Dial(n.ctx, addr)
	if err != nil {
		n.cfg.Logger.Warn().Err(err).Str("addr", addr).Msg("socket creation failed")
		return
	}
	sess := n.sessions.Open(addr, sock, time.Now())
	if sess == nil {
		sock.Close()
		return
	}
	n.registerSocket(addr, sock)
	go n.pump(sock, addr)
	if err := sock.Send(wrapControl(n.cfg.LocalUUID, wire.EncodeConnectReq())); err != nil {
		n.cfg.Logger.Debug().Err(err).Str("addr", addr).Msg("send failure on connect-req")
	}
}

func (n *Node) closeSession(addr string) {
	sess, existed := n.sessions.ByAddress(addr)
	var uuid string
	if existed {
		uuid = sess.Snapshot().RemoteUUID
	}
	sock, closed := n.sessions.Release(addr)
	if !closed {
		return
	}
	if sock != nil {
		sock.Close()
	}
	n.unregisterSocket(addr)
	n.routing.dropAddr(addr)
	if uuid != "" {
		if _, stillThere := n.sessions.ByUUID(uuid); !stillThere {
			n.onPeerLost(uuid)
		}
	}
}

// onPeerLost tears down every reconciler/catalog record attached to
// uuid: the reconciler's confirmed subscriptions, every LocalPublisher's
// confirmed-subscriber entries owned by it, and its remote catalog
// (spec.md scenario 5, node loss).
func (n *Node) onPeerLost(uuid string) {
	n.rec.OnPeerLoss(uuid)
	for _, pub := range n.cat.LocalPublishers() {
		pub.RemoveAllFromNode(uuid)
	}
	n.cat.DropRemote(uuid)
}

func (n *Node) touchSession(addr, uuid string) {
	now := time.Now()
	if uuid != "" {
		if s, ok := n.sessions.ByUUID(uuid); ok {
			s.Touch(now)
			return
		}
	}
	if s, ok := n.sessions.ByAddress(addr); ok {
		s.Touch(now)
	}
}

func (n *Node) deliverData(channel string, payload []byte) {
	now := time.Now()
	n.cfg.Stats.Record("data.msgs.rcvd", now, 1)
	n.cfg.Stats.Record("data.bytes.rcvd:"+channel, now, int64(len(payload)))
	for _, sub := range n.cat.LocalSubscribers() {
		if sub.Matches(channel) && sub.Receiver != nil {
			sub.Receiver.Receive(channel, payload)
		}
	}
}

func (n *Node) broadcastControl(frame []byte) {
	n.socketsMu.Lock()
	targets := make([]transport.Socket, 0, len(n.socketsByAddr))
	for _, sock := range n.socketsByAddr {
		targets = append(targets, sock)
	}
	n.socketsMu.Unlock()

	wrapped := wrapControl(n.cfg.LocalUUID, frame)
	for _, sock := range targets {
		if err := sock.Send(wrapped); err != nil {
			n.cfg.Logger.Debug().Err(err).Msg("send failure broadcasting control frame")
		}
	}
}

func (n *Node) onTick() {
	now := time.Now()

	for _, s := range n.sessions.ReapStale(now) {
		snap := s.Snapshot()
		if snap.RemoteUUID != "" {
			n.onPeerLost(snap.RemoteUUID)
		}
		if sock := n.sessions.Remove(s); sock != nil {
			sock.Close()
		}
		if snap.RemoteAddress != "" {
			n.unregisterSocket(snap.RemoteAddress)
			n.routing.dropAddr(snap.RemoteAddress)
		}
	}

	if n.cfg.SessionLimiter != nil {
		n.cfg.SessionLimiter.Cleanup(now)
	}

	if now.Sub(n.lastNodeInfoAt) >= n.cfg.NodeInfoInterval {
		n.lastNodeInfoAt = now
		n.broadcastControl(wire.EncodeNodeInfo(wire.NodeInfoFrame{
			SenderUUID: n.cfg.LocalUUID,
			Pubs:       n.localPubInfos(),
		}))
	}
}

func (n *Node) localPubInfos() []wire.PubInfo {
	pubs := n.cat.LocalPublishers()
	out := make([]wire.PubInfo, 0, len(pubs))
	for _, p := range pubs {
		stub := p.Stub()
		out = append(out, wire.PubInfo{Channel: stub.Channel, UUID: stub.UUID, ImplType: stub.ImplType, Port: stub.Port})
	}
	return out
}

// sendControl implements reconcile.ControlSend: route a SUBSCRIBE or
// UNSUBSCRIBE to nodeUUID over whatever live socket we have for it.
func (n *Node) sendControl(nodeUUID string, sub catalog.SubscriberStub, pub catalog.PublisherStub, unsubscribe bool) error {
	addr, ok := n.routing.addrFor(nodeUUID)
	if !ok {
		return errNoRoute(nodeUUID)
	}
	sock, ok := n.lookupSocket(addr)
	if !ok {
		return errNoRoute(nodeUUID)
	}

	subInfo := wire.SubInfo{Channel: sub.Channel, UUID: sub.UUID, ImplType: sub.ImplType}
	pubInfo := wire.PubInfo{Channel: pub.Channel, UUID: pub.UUID, ImplType: pub.ImplType, Port: pub.Port}

	var frame []byte
	if unsubscribe {
		frame = wire.EncodeUnsubscribe(wire.UnsubscribeFrame{Sub: subInfo, Pub: pubInfo})
	} else {
		frame = wire.EncodeSubscribe(wire.SubscribeFrame{Sub: subInfo, Pub: pubInfo})
	}
	return sock.Send(wrapControl(n.cfg.LocalUUID, frame))
}

func (n *Node) sendDataReady(ownerUUID, subUUID string) {
	addr, ok := n.routing.addrFor(ownerUUID)
	if !ok {
		return
	}
	sock, ok := n.lookupSocket(addr)
	if !ok {
		return
	}
	if err := sock.Send(wrapDataReady(subUUID)); err != nil {
		n.cfg.Logger.Debug().Err(err).Msg("send failure on data-ready hint")
	}
}

func (n *Node) doShutdown() {
	n.closeOnce.Do(func() {
		n.broadcastControl(wire.EncodeShutdown(wire.ShutdownFrame{SenderUUID: n.cfg.LocalUUID}))
		close(n.closing)
	})

	if n.listener != nil {
		n.listener.Close()
	}
	if n.cfg.Discovery != nil {
		n.cfg.Discovery.Close()
	}

	n.socketsMu.Lock()
	for _, sock := range n.socketsByAddr {
		sock.Close()
	}
	n.socketsByAddr = make(map[string]transport.Socket)
	n.socketsMu.Unlock()
}

type routeError struct {
	uuid string
}

func (e routeError) Error() string { return "node: no route to " + e.uuid }

func errNoRoute(uuid string) error { return routeError{uuid: uuid} }
