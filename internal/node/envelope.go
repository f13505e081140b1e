package node

import (
	"errors"

	"github.com/0790486/meshnode/internal/wire"
)

// Every frame written to a Socket carries a one-byte class prefix ahead
// of its payload. This is the Go-session rendition of the "[senderUuid]
// [payload]" node-socket envelope spec.md section 4.5 describes: our
// Socket is a single full-duplex connection per peer rather than a
// ROUTER/DEALER socket, so there is no transport-level identity frame
// to read — the class byte lets one connection carry control frames,
// data-plane payloads, and the data-plane subscribe hint side by side.
const (
	classControl    byte = 0 // senderUuid\0 + wire-encoded control frame
	classData       byte = 1 // channel\0 + raw payload
	classDataReady  byte = 2 // subscriberUuid\0, phase-2 confirmation hint
	classDebugReply byte = 3 // human-readable text blob
)

var errShortEnvelope = errors.New("node: frame shorter than envelope class byte")

func wrapControl(senderUUID string, frame []byte) []byte {
	out := make([]byte, 0, 1+len(senderUUID)+1+len(frame))
	out = append(out, classControl)
	out = append(out, senderUUID...)
	out = append(out, 0)
	out = append(out, frame...)
	return out
}

func wrapData(channel string, payload []byte) []byte {
	out := make([]byte, 0, 1+len(channel)+1+len(payload))
	out = append(out, classData)
	out = append(out, channel...)
	out = append(out, 0)
	out = append(out, payload...)
	return out
}

func wrapDataReady(subUUID string) []byte {
	out := make([]byte, 0, 1+len(subUUID)+1)
	out = append(out, classDataReady)
	out = append(out, subUUID...)
	out = append(out, 0)
	return out
}

func wrapDebugReply(text string) []byte {
	out := make([]byte, 0, 1+len(text))
	out = append(out, classDebugReply)
	out = append(out, text...)
	return out
}

func unwrapClass(data []byte) (class byte, rest []byte, err error) {
	if len(data) < 1 {
		return 0, nil, errShortEnvelope
	}
	return data[0], data[1:], nil
}

func unwrapData(rest []byte) (channel string, payload []byte, err error) {
	return wire.ReadString(rest, -1)
}
