package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	EncodeHeader(&buf, Subscribe)
	hdr, rest, err := DecodeHeader(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, Version, hdr.Version)
	assert.Equal(t, Subscribe, hdr.Type)
	assert.Empty(t, rest)
}

func TestHeaderVersionMismatchIsNotAnError(t *testing.T) {
	// Decoding never inspects Version itself; callers compare against
	// wire.Version and apply the discard policy from spec.md section 4.1.
	var buf bytes.Buffer
	PutU16(&buf, 99)
	PutU16(&buf, uint16(Subscribe))
	hdr, _, err := DecodeHeader(buf.Bytes())
	require.NoError(t, err)
	assert.NotEqual(t, Version, hdr.Version)
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	PutString(&buf, "foo.bar.baz")
	PutU16(&buf, 42)

	s, rest, err := ReadString(buf.Bytes(), MaxChannelLen+1)
	require.NoError(t, err)
	assert.Equal(t, "foo.bar.baz", s)

	v, rest, err := ReadU16(rest)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), v)
	assert.Empty(t, rest)
}

func TestEmptyStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	PutString(&buf, "")
	s, rest, err := ReadString(buf.Bytes(), 10)
	require.NoError(t, err)
	assert.Equal(t, "", s)
	assert.Empty(t, rest)
}

func TestReadStringShortRead(t *testing.T) {
	_, _, err := ReadString([]byte("no terminator here"), 4)
	assert.ErrorIs(t, err, ErrStringTooLong)

	_, _, err = ReadString([]byte("no terminator"), -1)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestReadU16ShortRead(t *testing.T) {
	_, _, err := ReadU16([]byte{0x01})
	assert.ErrorIs(t, err, ErrShortRead)
}

func pub(channel, uuid string, impl, port uint16) PubInfo {
	return PubInfo{Channel: channel, UUID: uuid, ImplType: impl, Port: port}
}

func sub(channel, uuid string, impl uint16) SubInfo {
	return SubInfo{Channel: channel, UUID: uuid, ImplType: impl}
}

func TestConnectRepRoundTrip(t *testing.T) {
	f := ConnectRepFrame{
		SenderUUID: "11111111-1111-1111-1111-111111111111",
		Pubs: []PubInfo{
			pub("foo", "22222222-2222-2222-2222-222222222222", 1, 5000),
			pub("bar", "33333333-3333-3333-3333-333333333333", 2, 5001),
		},
	}
	raw := EncodeConnectRep(f)
	hdr, body, err := DecodeHeader(raw)
	require.NoError(t, err)
	assert.Equal(t, ConnectRep, hdr.Type)

	got, err := DecodeConnectRep(body)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestConnectRepRoundTripEmptyCatalog(t *testing.T) {
	f := ConnectRepFrame{SenderUUID: "11111111-1111-1111-1111-111111111111"}
	raw := EncodeConnectRep(f)
	_, body, err := DecodeHeader(raw)
	require.NoError(t, err)
	got, err := DecodeConnectRep(body)
	require.NoError(t, err)
	assert.Equal(t, f.SenderUUID, got.SenderUUID)
	assert.Empty(t, got.Pubs)
}

func TestPubAddedRoundTrip(t *testing.T) {
	f := PubAddedFrame{
		OriginatorUUID: "11111111-1111-1111-1111-111111111111",
		Pub:            pub("foo", "22222222-2222-2222-2222-222222222222", 1, 5000),
	}
	_, body, err := DecodeHeader(EncodePubAdded(f))
	require.NoError(t, err)
	got, err := DecodePubAdded(body)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestPubRemovedRoundTrip(t *testing.T) {
	f := PubRemovedFrame{
		OriginatorUUID: "11111111-1111-1111-1111-111111111111",
		Pub:            pub("foo", "22222222-2222-2222-2222-222222222222", 1, 5000),
	}
	_, body, err := DecodeHeader(EncodePubRemoved(f))
	require.NoError(t, err)
	got, err := DecodePubRemoved(body)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestSubscribeRoundTrip(t *testing.T) {
	f := SubscribeFrame{
		Sub: sub("foo", "44444444-4444-4444-4444-444444444444", 1),
		Pub: pub("foo", "22222222-2222-2222-2222-222222222222", 1, 5000),
	}
	_, body, err := DecodeHeader(EncodeSubscribe(f))
	require.NoError(t, err)
	got, err := DecodeSubscribe(body)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestUnsubscribeRoundTrip(t *testing.T) {
	f := UnsubscribeFrame{
		Sub: sub("foo", "44444444-4444-4444-4444-444444444444", 1),
		Pub: pub("foo", "22222222-2222-2222-2222-222222222222", 1, 5000),
	}
	_, body, err := DecodeHeader(EncodeUnsubscribe(f))
	require.NoError(t, err)
	got, err := DecodeUnsubscribe(body)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestShutdownRoundTrip(t *testing.T) {
	f := ShutdownFrame{SenderUUID: "11111111-1111-1111-1111-111111111111"}
	_, body, err := DecodeHeader(EncodeShutdown(f))
	require.NoError(t, err)
	got, err := DecodeShutdown(body)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestNodeInfoRoundTrip(t *testing.T) {
	f := NodeInfoFrame{
		SenderUUID: "11111111-1111-1111-1111-111111111111",
		Pubs: []PubInfo{
			pub("foo", "22222222-2222-2222-2222-222222222222", 1, 5000),
		},
	}
	_, body, err := DecodeHeader(EncodeNodeInfo(f))
	require.NoError(t, err)
	got, err := DecodeNodeInfo(body)
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDebugFrameHasNoBody(t *testing.T) {
	hdr, body, err := DecodeHeader(EncodeDebug())
	require.NoError(t, err)
	assert.Equal(t, Debug, hdr.Type)
	assert.Empty(t, body)
}

func TestDecodePubAddedShortRead(t *testing.T) {
	_, err := DecodePubAdded([]byte{})
	assert.Error(t, err)
}

func TestFrameTypeString(t *testing.T) {
	assert.Equal(t, "SUBSCRIBE", Subscribe.String())
	assert.Contains(t, FrameType(999).String(), "999")
}
