package wire

import "bytes"

// ConnectReqFrame carries no fields beyond the header; sent on a newly
// opened outbound socket.
type ConnectReqFrame struct{}

func EncodeConnectReq() []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, ConnectReq)
	return buf.Bytes()
}

// ConnectRepFrame replies to CONNECT_REQ with the sender's identity and
// its full local publisher catalog.
type ConnectRepFrame struct {
	SenderUUID string
	Pubs       []PubInfo
}

func EncodeConnectRep(f ConnectRepFrame) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, ConnectRep)
	PutString(&buf, f.SenderUUID)
	for _, p := range f.Pubs {
		p.encode(&buf)
	}
	return buf.Bytes()
}

func DecodeConnectRep(body []byte) (ConnectRepFrame, error) {
	uuid, rest, err := ReadString(body, UUIDLen+1)
	if err != nil {
		return ConnectRepFrame{}, err
	}
	pubs, err := decodePubInfoList(rest)
	if err != nil {
		return ConnectRepFrame{}, err
	}
	return ConnectRepFrame{SenderUUID: uuid, Pubs: pubs}, nil
}

// PubAddedFrame / PubRemovedFrame announce a single remote publisher's
// lifecycle event, originated by the node that owns it.
type PubAddedFrame struct {
	OriginatorUUID string
	Pub            PubInfo
}

func EncodePubAdded(f PubAddedFrame) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, PubAdded)
	PutString(&buf, f.OriginatorUUID)
	f.Pub.encode(&buf)
	return buf.Bytes()
}

func DecodePubAdded(body []byte) (PubAddedFrame, error) {
	uuid, rest, err := ReadString(body, UUIDLen+1)
	if err != nil {
		return PubAddedFrame{}, err
	}
	pub, _, err := decodePubInfo(rest)
	if err != nil {
		return PubAddedFrame{}, err
	}
	return PubAddedFrame{OriginatorUUID: uuid, Pub: pub}, nil
}

type PubRemovedFrame struct {
	OriginatorUUID string
	Pub            PubInfo
}

func EncodePubRemoved(f PubRemovedFrame) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, PubRemoved)
	PutString(&buf, f.OriginatorUUID)
	f.Pub.encode(&buf)
	return buf.Bytes()
}

func DecodePubRemoved(body []byte) (PubRemovedFrame, error) {
	uuid, rest, err := ReadString(body, UUIDLen+1)
	if err != nil {
		return PubRemovedFrame{}, err
	}
	pub, _, err := decodePubInfo(rest)
	if err != nil {
		return PubRemovedFrame{}, err
	}
	return PubRemovedFrame{OriginatorUUID: uuid, Pub: pub}, nil
}

// SubscribeFrame / UnsubscribeFrame carry the (subscriber, publisher)
// pair a SUBSCRIBE/UNSUBSCRIBE control frame reconciles in one atomic
// step (spec.md section 4.4).
type SubscribeFrame struct {
	Sub SubInfo
	Pub PubInfo
}

func EncodeSubscribe(f SubscribeFrame) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, Subscribe)
	f.Sub.encode(&buf)
	f.Pub.encode(&buf)
	return buf.Bytes()
}

func DecodeSubscribe(body []byte) (SubscribeFrame, error) {
	sub, rest, err := decodeSubInfo(body)
	if err != nil {
		return SubscribeFrame{}, err
	}
	pub, _, err := decodePubInfo(rest)
	if err != nil {
		return SubscribeFrame{}, err
	}
	return SubscribeFrame{Sub: sub, Pub: pub}, nil
}

type UnsubscribeFrame struct {
	Sub SubInfo
	Pub PubInfo
}

func EncodeUnsubscribe(f UnsubscribeFrame) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, Unsubscribe)
	f.Sub.encode(&buf)
	f.Pub.encode(&buf)
	return buf.Bytes()
}

func DecodeUnsubscribe(body []byte) (UnsubscribeFrame, error) {
	sub, rest, err := decodeSubInfo(body)
	if err != nil {
		return UnsubscribeFrame{}, err
	}
	pub, _, err := decodePubInfo(rest)
	if err != nil {
		return UnsubscribeFrame{}, err
	}
	return UnsubscribeFrame{Sub: sub, Pub: pub}, nil
}

// ShutdownFrame announces the sender is leaving the mesh.
type ShutdownFrame struct {
	SenderUUID string
}

func EncodeShutdown(f ShutdownFrame) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, Shutdown)
	PutString(&buf, f.SenderUUID)
	return buf.Bytes()
}

func DecodeShutdown(body []byte) (ShutdownFrame, error) {
	uuid, _, err := ReadString(body, UUIDLen+1)
	if err != nil {
		return ShutdownFrame{}, err
	}
	return ShutdownFrame{SenderUUID: uuid}, nil
}

// NodeInfoFrame is the periodic keep-alive carrying the sender's full
// publisher catalog, letting peers self-heal after a dropped frame.
type NodeInfoFrame struct {
	SenderUUID string
	Pubs       []PubInfo
}

func EncodeNodeInfo(f NodeInfoFrame) []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, NodeInfo)
	PutString(&buf, f.SenderUUID)
	for _, p := range f.Pubs {
		p.encode(&buf)
	}
	return buf.Bytes()
}

func DecodeNodeInfo(body []byte) (NodeInfoFrame, error) {
	uuid, rest, err := ReadString(body, UUIDLen+1)
	if err != nil {
		return NodeInfoFrame{}, err
	}
	pubs, err := decodePubInfoList(rest)
	if err != nil {
		return NodeInfoFrame{}, err
	}
	return NodeInfoFrame{SenderUUID: uuid, Pubs: pubs}, nil
}

// EncodeDebug builds a DEBUG request frame (header only).
func EncodeDebug() []byte {
	var buf bytes.Buffer
	EncodeHeader(&buf, Debug)
	return buf.Bytes()
}

func decodePubInfoList(b []byte) ([]PubInfo, error) {
	var pubs []PubInfo
	for len(b) > 0 {
		p, rest, err := decodePubInfo(b)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
		b = rest
	}
	return pubs, nil
}
