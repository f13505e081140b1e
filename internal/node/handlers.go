package node

import (
	"time"

	"github.com/0790486/meshnode/internal/catalog"
	"github.com/0790486/meshnode/internal/wire"
)

// handleCommand executes one queued API operation on the event-loop
// goroutine (spec.md section 4.6).
func (n *Node) handleCommand(cmd command) {
	defer close(cmd.done)

	switch cmd.kind {
	case cmdAddPublisher:
		if !n.cat.AddLocalPublisher(cmd.pub) {
			cmd.err = ErrDuplicateRegistration
			return
		}
		n.broadcastControl(wire.EncodePubAdded(wire.PubAddedFrame{
			OriginatorUUID: n.cfg.LocalUUID,
			Pub:            toPubInfo(cmd.pub.Stub()),
		}))

	case cmdRemovePublisher:
		pub, ok := n.cat.RemoveLocalPublisher(cmd.pubUUID)
		if !ok {
			return
		}
		for _, cs := range pub.ConfirmedSubscribers() {
			pub.Removed(cs.Stub, cs.Owner)
		}
		n.broadcastControl(wire.EncodePubRemoved(wire.PubRemovedFrame{
			OriginatorUUID: n.cfg.LocalUUID,
			Pub:            toPubInfo(pub.Stub()),
		}))

	case cmdAddSubscriber:
		if !n.cat.AddLocalSubscriber(cmd.sub) {
			cmd.err = ErrDuplicateRegistration
			return
		}
		matches := n.rec.AddLocalSubscriber(cmd.sub)
		for _, m := range matches {
			if cmd.sub.ImplType == wire.ImplTypeTCP {
				n.sendDataReady(m.Owner, cmd.sub.UUID)
			}
		}

	case cmdRemoveSubscriber:
		sub, ok := n.cat.RemoveLocalSubscriber(cmd.subUUID)
		if !ok {
			return
		}
		n.rec.RemoveLocalSubscriber(sub)

	case cmdAddEndpoint:
		n.openSession(cmd.addr)

	case cmdRemoveEndpoint:
		n.closeSession(cmd.addr)

	case cmdPublish:
		n.publishLocked(cmd.pubUUID, cmd.payload)

	case cmdShutdown:
		// Teardown happens in Run after handleCommand returns, so the
		// caller's Shutdown() unblocks only once the command itself has
		// been accepted onto the loop.
	}
}

func (n *Node) publishLocked(pubUUID string, payload []byte) {
	pub, ok := n.cat.LocalPublisher(pubUUID)
	if !ok {
		return
	}
	now := time.Now()
	n.cfg.Stats.Record("data.msgs.sent", now, 1)
	n.cfg.Stats.Record("data.bytes.sent:"+pub.Channel, now, int64(len(payload)))

	owners := make(map[string]struct{})
	for _, cs := range pub.ConfirmedSubscribers() {
		owners[cs.Owner.UUID] = struct{}{}
	}
	frame := wrapData(pub.Channel, payload)
	for ownerUUID := range owners {
		addr, ok := n.routing.addrFor(ownerUUID)
		if !ok {
			continue
		}
		sock, ok := n.lookupSocket(addr)
		if !ok {
			continue
		}
		if err := sock.Send(frame); err != nil {
			n.cfg.Logger.Debug().Err(err).Msg("send failure on data message")
		}
	}
}

// handleInbound dispatches one frame read from a session socket.
func (n *Node) handleInbound(fr inboundFrame) {
	if fr.closed {
		n.onSessionClosed(fr.addr)
		return
	}

	class, rest, err := unwrapClass(fr.data)
	if err != nil {
		n.cfg.Logger.Info().Str("addr", fr.addr).Msg("malformed frame: missing class byte")
		return
	}

	switch class {
	case classControl:
		n.handleControlEnvelope(fr.addr, rest)
	case classData:
		channel, payload, err := unwrapData(rest)
		if err != nil {
			n.cfg.Logger.Info().Str("addr", fr.addr).Msg("malformed data frame")
			return
		}
		n.deliverData(channel, payload)
	case classDataReady:
		subUUID, _, err := wire.ReadString(rest, wire.UUIDLen+1)
		if err != nil {
			n.cfg.Logger.Info().Str("addr", fr.addr).Msg("malformed data-ready frame")
			return
		}
		n.rec.ConfirmDataPlane(subUUID)
	case classDebugReply:
		n.cfg.Logger.Info().Str("addr", fr.addr).Str("reply", string(rest)).Msg("debug reply received")
	default:
		n.cfg.Logger.Info().Str("addr", fr.addr).Msg("malformed frame: unknown class")
	}
}

func (n *Node) onSessionClosed(addr string) {
	uuid, _ := n.routing.uuidFor(addr)
	if sess, ok := n.sessions.ByAddress(addr); ok {
		if u := sess.Snapshot().RemoteUUID; u != "" {
			uuid = u
		}
	}

	n.unregisterSocket(addr)
	n.routing.dropAddr(addr)

	if uuid == "" {
		return
	}
	if sess, ok := n.sessions.ByUUID(uuid); ok {
		n.sessions.Remove(sess)
	}
	n.onPeerLost(uuid)
}

func (n *Node) handleControlEnvelope(addr string, data []byte) {
	senderUUID, body, err := wire.ReadString(data, wire.UUIDLen+1)
	if err != nil {
		n.cfg.Logger.Info().Str("addr", addr).Msg("malformed control frame: bad envelope")
		return
	}
	hdr, payload, err := wire.DecodeHeader(body)
	if err != nil {
		n.cfg.Logger.Info().Str("addr", addr).Str("from", senderUUID).Msg("malformed control frame: bad header")
		return
	}
	if hdr.Version != wire.Version {
		// spec.md section 4.1: discard mismatched version, keep the session.
		n.cfg.Logger.Info().Uint16("version", hdr.Version).Msg("control frame version mismatch")
		return
	}

	n.touchSession(addr, senderUUID)
	n.cfg.Stats.Record("meta.msgs.rcvd", time.Now(), 1)

	switch hdr.Type {
	case wire.ConnectReq:
		n.handleConnectReq(addr, senderUUID)
	case wire.ConnectRep:
		n.handleConnectRep(addr, payload)
	case wire.PubAdded:
		n.handlePubAdded(payload)
	case wire.PubRemoved:
		n.handlePubRemoved(payload)
	case wire.Subscribe:
		n.handleSubscribe(senderUUID, payload)
	case wire.Unsubscribe:
		n.handleUnsubscribe(senderUUID, payload)
	case wire.Shutdown:
		n.handleShutdownFrame(payload)
	case wire.NodeInfo:
		n.handleNodeInfo(addr, payload)
	case wire.Debug:
		n.replyDebug(addr)
	default:
		n.cfg.Logger.Info().Uint16("type", uint16(hdr.Type)).Msg("malformed control frame: unknown type")
	}
}

func (n *Node) handleConnectReq(addr, senderUUID string) {
	n.routing.set(senderUUID, addr)
	n.sessions.AcceptConnectFrom(senderUUID, time.Now())

	rep := wire.EncodeConnectRep(wire.ConnectRepFrame{
		SenderUUID: n.cfg.LocalUUID,
		Pubs:       n.localPubInfos(),
	})
	if sock, ok := n.lookupSocket(addr); ok {
		if err := sock.Send(wrapControl(n.cfg.LocalUUID, rep)); err != nil {
			n.cfg.Logger.Debug().Err(err).Msg("send failure on connect-rep")
		}
	}
}

func (n *Node) handleConnectRep(addr string, body []byte) {
	rep, err := wire.DecodeConnectRep(body)
	if err != nil {
		n.cfg.Logger.Info().Str("addr", addr).Msg("malformed connect-rep")
		return
	}
	n.routing.set(rep.SenderUUID, addr)

	res := n.sessions.BindReply(addr, rep.SenderUUID, time.Now())
	if res.HadPrevious {
		n.onPeerLost(res.PreviousUUID)
	}

	n.ingestRemotePublishers(rep.SenderUUID, rep.Pubs)
}

func (n *Node) handlePubAdded(body []byte) {
	f, err := wire.DecodePubAdded(body)
	if err != nil {
		n.cfg.Logger.Info().Msg("malformed pub-added")
		return
	}
	// spec.md section 7 UnknownPeer: "for PUB_ADDED accept (first
	// contact)" — buffering then flushing always succeeds regardless of
	// whether we already know this node.
	n.ingestRemotePublishers(f.OriginatorUUID, []wire.PubInfo{f.Pub})
}

func (n *Node) ingestRemotePublishers(ownerUUID string, pubs []wire.PubInfo) {
	for _, p := range pubs {
		n.cat.BufferPendingPublisher(ownerUUID, catalog.PublisherStub{
			Channel: p.Channel, UUID: p.UUID, ImplType: p.ImplType, Port: p.Port, Owner: ownerUUID,
		})
	}
	flushed := n.cat.FlushPending(ownerUUID)
	for _, stub := range flushed {
		n.rec.OnRemotePublisherAdded(stub, ownerUUID)
		// The reconciler's control-plane SUBSCRIBE just went out above; a
		// TCP-impl subscriber also owes the publisher's node the phase-2
		// data-plane confirmation (spec.md section 4.4) once it learns of
		// the match, same as a freshly-added subscriber does in
		// handleCommand's cmdAddSubscriber case.
		for _, sub := range n.cat.LocalSubscribers() {
			if sub.Matches(stub.Channel) && sub.ImplType == wire.ImplTypeTCP {
				n.sendDataReady(ownerUUID, sub.UUID)
			}
		}
	}
}

func (n *Node) handlePubRemoved(body []byte) {
	f, err := wire.DecodePubRemoved(body)
	if err != nil {
		n.cfg.Logger.Info().Msg("malformed pub-removed")
		return
	}
	if _, ok := n.cat.DropRemotePublisher(f.OriginatorUUID, f.Pub.UUID); ok {
		n.rec.OnRemotePublisherRemoved(f.Pub.UUID)
	}
}

func (n *Node) handleSubscribe(senderUUID string, body []byte) {
	f, err := wire.DecodeSubscribe(body)
	if err != nil {
		n.cfg.Logger.Info().Msg("malformed subscribe")
		return
	}
	subStub := catalog.SubscriberStub{Channel: f.Sub.Channel, UUID: f.Sub.UUID, ImplType: f.Sub.ImplType, Owner: senderUUID}
	n.cat.AttachRemoteSubscriber(senderUUID, subStub)
	if err := n.rec.HandleSubscribe(subStub, f.Pub.UUID, senderUUID); err != nil {
		n.cfg.Logger.Info().Err(err).Str("from", senderUUID).Msg("subscribe denied")
	}
}

func (n *Node) handleUnsubscribe(senderUUID string, body []byte) {
	f, err := wire.DecodeUnsubscribe(body)
	if err != nil {
		n.cfg.Logger.Info().Msg("malformed unsubscribe")
		return
	}
	n.cat.DropRemoteSubscriber(senderUUID, f.Sub.UUID)
	n.rec.HandleUnsubscribe(f.Sub.UUID, f.Pub.UUID)
}

func (n *Node) handleShutdownFrame(body []byte) {
	f, err := wire.DecodeShutdown(body)
	if err != nil {
		n.cfg.Logger.Info().Msg("malformed shutdown")
		return
	}
	if sess, ok := n.sessions.ByUUID(f.SenderUUID); ok {
		if sock := n.sessions.Remove(sess); sock != nil {
			sock.Close()
		}
		if addr := sess.Snapshot().RemoteAddress; addr != "" {
			n.unregisterSocket(addr)
			n.routing.dropAddr(addr)
		}
	}
	n.onPeerLost(f.SenderUUID)
}

func (n *Node) handleNodeInfo(addr string, body []byte) {
	f, err := wire.DecodeNodeInfo(body)
	if err != nil {
		n.cfg.Logger.Info().Msg("malformed node-info")
		return
	}
	n.routing.set(f.SenderUUID, addr)
	n.ingestRemotePublishers(f.SenderUUID, f.Pubs)
}

func (n *Node) replyDebug(addr string) {
	sock, ok := n.lookupSocket(addr)
	if !ok {
		return
	}
	if err := sock.Send(wrapDebugReply(n.debugSnapshot().String())); err != nil {
		n.cfg.Logger.Debug().Err(err).Msg("send failure on debug reply")
	}
}

func toPubInfo(stub catalog.PublisherStub) wire.PubInfo {
	return wire.PubInfo{Channel: stub.Channel, UUID: stub.UUID, ImplType: stub.ImplType, Port: stub.Port}
}
