// Package wire implements the node-to-node control frame codec described
// in spec.md section 4.1: a 4-byte header followed by type-specific
// fields using length-prefixed-by-NUL strings and big-endian u16 ints.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Version is the fixed wire-format version embedded in every frame
// header. Receivers discard frames whose version does not match.
const Version uint16 = 1

// FrameType identifies the payload layout following the header.
type FrameType uint16

const (
	ConnectReq  FrameType = iota + 1 // header only
	ConnectRep                       // senderUuid + repeated PubInfo
	PubAdded                         // originatorUuid + one PubInfo
	PubRemoved                       // originatorUuid + one PubInfo
	Subscribe                        // SubInfo + PubInfo
	Unsubscribe                      // SubInfo + PubInfo
	Shutdown                         // senderUuid
	NodeInfo                         // senderUuid + repeated PubInfo
	Debug                            // header only
)

func (t FrameType) String() string {
	switch t {
	case ConnectReq:
		return "CONNECT_REQ"
	case ConnectRep:
		return "CONNECT_REP"
	case PubAdded:
		return "PUB_ADDED"
	case PubRemoved:
		return "PUB_REMOVED"
	case Subscribe:
		return "SUBSCRIBE"
	case Unsubscribe:
		return "UNSUBSCRIBE"
	case Shutdown:
		return "SHUTDOWN"
	case NodeInfo:
		return "NODE_INFO"
	case Debug:
		return "DEBUG"
	default:
		return fmt.Sprintf("FrameType(%d)", uint16(t))
	}
}

// UUIDLen is the on-wire length of a canonical UUID string (36 bytes),
// excluding its NUL terminator.
const UUIDLen = 36

// MaxChannelLen bounds channel name length per spec.md section 3.
const MaxChannelLen = 4095

// ImplType values identify which Transport variant (spec.md section 9,
// "in-place polymorphism over transport variants") a publisher or
// subscriber uses. Only ImplTypeTCP's data plane delivers independent
// subscribe/unsubscribe hints, so it is the only variant requiring the
// reconciler's two-phase confirmation (spec.md section 4.4).
const (
	ImplTypeTCP  uint16 = 0 // default gobwas/ws-framed TCP transport
	ImplTypeNATS uint16 = 1 // NATS-relayed transport variant
)

// ErrShortRead indicates the buffer ended before a declared field could
// be read. Callers discard the frame; the codec carries no state across
// a failed read.
var ErrShortRead = errors.New("wire: short read")

// ErrVersionMismatch indicates a frame header named a version other than
// Version. Per spec.md section 4.1 this is not a transport error: log
// and discard, keep the session.
var ErrVersionMismatch = errors.New("wire: version mismatch")

// ErrStringTooLong indicates a NUL-terminated string exceeded the
// caller-supplied maximum search length.
var ErrStringTooLong = errors.New("wire: string exceeds max length")

// Header is the common [version:u16][type:u16] frame prefix.
type Header struct {
	Version uint16
	Type    FrameType
}

// PutU16 appends a big-endian u16.
func PutU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// ReadU16 consumes a big-endian u16 from the front of b, returning the
// remaining bytes.
func ReadU16(b []byte) (uint16, []byte, error) {
	if len(b) < 2 {
		return 0, nil, ErrShortRead
	}
	return binary.BigEndian.Uint16(b[:2]), b[2:], nil
}

// PutString appends s followed by one NUL terminator. Callers are
// responsible for keeping s free of embedded NULs.
func PutString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}

// ReadString reads bytes up to the first NUL within maxLen of b,
// returning the string (without the NUL) and the remaining bytes after
// the terminator.
func ReadString(b []byte, maxLen int) (string, []byte, error) {
	limit := len(b)
	if maxLen >= 0 && maxLen < limit {
		limit = maxLen
	}
	idx := bytes.IndexByte(b[:limit], 0)
	if idx < 0 {
		if limit < len(b) {
			return "", nil, ErrStringTooLong
		}
		return "", nil, ErrShortRead
	}
	return string(b[:idx]), b[idx+1:], nil
}

// EncodeHeader writes the common frame header.
func EncodeHeader(buf *bytes.Buffer, t FrameType) {
	PutU16(buf, Version)
	PutU16(buf, uint16(t))
}

// DecodeHeader reads the common frame header from the front of b.
func DecodeHeader(b []byte) (Header, []byte, error) {
	ver, rest, err := ReadU16(b)
	if err != nil {
		return Header{}, nil, err
	}
	typ, rest, err := ReadU16(rest)
	if err != nil {
		return Header{}, nil, err
	}
	return Header{Version: ver, Type: FrameType(typ)}, rest, nil
}

// PubInfo is the wire representation of a remote publisher:
// channelName\0 uuid\0 implType:u16 port:u16
type PubInfo struct {
	Channel  string
	UUID     string
	ImplType uint16
	Port     uint16
}

func (p PubInfo) encode(buf *bytes.Buffer) {
	PutString(buf, p.Channel)
	PutString(buf, p.UUID)
	PutU16(buf, p.ImplType)
	PutU16(buf, p.Port)
}

func decodePubInfo(b []byte) (PubInfo, []byte, error) {
	channel, rest, err := ReadString(b, MaxChannelLen+1)
	if err != nil {
		return PubInfo{}, nil, err
	}
	uuid, rest, err := ReadString(rest, UUIDLen+1)
	if err != nil {
		return PubInfo{}, nil, err
	}
	implType, rest, err := ReadU16(rest)
	if err != nil {
		return PubInfo{}, nil, err
	}
	port, rest, err := ReadU16(rest)
	if err != nil {
		return PubInfo{}, nil, err
	}
	return PubInfo{Channel: channel, UUID: uuid, ImplType: implType, Port: port}, rest, nil
}

// SubInfo is the wire representation of a remote subscriber:
// channelName\0 uuid\0 implType:u16
type SubInfo struct {
	Channel  string
	UUID     string
	ImplType uint16
}

func (s SubInfo) encode(buf *bytes.Buffer) {
	PutString(buf, s.Channel)
	PutString(buf, s.UUID)
	PutU16(buf, s.ImplType)
}

func decodeSubInfo(b []byte) (SubInfo, []byte, error) {
	channel, rest, err := ReadString(b, MaxChannelLen+1)
	if err != nil {
		return SubInfo{}, nil, err
	}
	uuid, rest, err := ReadString(rest, UUIDLen+1)
	if err != nil {
		return SubInfo{}, nil, err
	}
	implType, rest, err := ReadU16(rest)
	if err != nil {
		return SubInfo{}, nil, err
	}
	return SubInfo{Channel: channel, UUID: uuid, ImplType: implType}, rest, nil
}
