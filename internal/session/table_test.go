package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	closed bool
}

func (f *fakeSocket) Send(frame []byte) error { return nil }
func (f *fakeSocket) Close() error {
	f.closed = true
	return nil
}

func TestOpenDiscardsOnNilSocket(t *testing.T) {
	tbl := NewTable()
	s := tbl.Open("127.0.0.1:4242", nil, time.Now())
	assert.Nil(t, s)
	_, ok := tbl.ByAddress("127.0.0.1:4242")
	assert.False(t, ok)
}

func TestOpenThenBindReplyDualKeys(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	s := tbl.Open("127.0.0.1:4242", &fakeSocket{}, now)
	require.NotNil(t, s)

	res := tbl.BindReply("127.0.0.1:4242", "uuid-a", now)
	require.NotNil(t, res.Session)
	assert.False(t, res.HadPrevious)

	byAddr, ok := tbl.ByAddress("127.0.0.1:4242")
	require.True(t, ok)
	byUUID, ok := tbl.ByUUID("uuid-a")
	require.True(t, ok)
	assert.Same(t, byAddr, byUUID)

	assert.Empty(t, tbl.CheckInvariants())
}

func TestBindReplyDetectsRebindToDifferentUUID(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Open("127.0.0.1:4242", &fakeSocket{}, now)
	tbl.BindReply("127.0.0.1:4242", "uuid-a", now)

	res := tbl.BindReply("127.0.0.1:4242", "uuid-b", now)
	assert.True(t, res.HadPrevious)
	assert.Equal(t, "uuid-a", res.PreviousUUID)
}

func TestAcceptConnectFromCreatesBareSession(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	s := tbl.AcceptConnectFrom("uuid-a", now)
	require.NotNil(t, s)
	snap := s.Snapshot()
	assert.True(t, snap.ConnectedFrom)
	assert.False(t, snap.ConnectedTo)
	assert.Nil(t, snap.Outbound)
}

func TestAcceptConnectFromMergesWithExistingOutbound(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Open("127.0.0.1:4242", &fakeSocket{}, now)
	tbl.BindReply("127.0.0.1:4242", "uuid-a", now)

	s := tbl.AcceptConnectFrom("uuid-a", now)
	snap := s.Snapshot()
	assert.True(t, snap.ConnectedTo)
	assert.True(t, snap.ConnectedFrom)
}

func TestReleaseClosesAtZeroRefCountAndRemovesAddressKey(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Open("127.0.0.1:4242", &fakeSocket{}, now)
	tbl.BindReply("127.0.0.1:4242", "uuid-a", now)

	sock, closed := tbl.Release("127.0.0.1:4242")
	require.True(t, closed)
	require.NotNil(t, sock)

	_, ok := tbl.ByAddress("127.0.0.1:4242")
	assert.False(t, ok, "address key removed once refCount hits zero")
	// uuid key also removed since connectedFrom was never set.
	_, ok = tbl.ByUUID("uuid-a")
	assert.False(t, ok)
}

func TestReleaseKeepsUUIDKeyWhileConnectedFrom(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Open("127.0.0.1:4242", &fakeSocket{}, now)
	tbl.BindReply("127.0.0.1:4242", "uuid-a", now)
	tbl.AcceptConnectFrom("uuid-a", now)

	_, closed := tbl.Release("127.0.0.1:4242")
	require.True(t, closed)

	_, ok := tbl.ByAddress("127.0.0.1:4242")
	assert.False(t, ok)
	s, ok := tbl.ByUUID("uuid-a")
	require.True(t, ok, "uuid key survives while connectedFrom is true")
	assert.True(t, s.Snapshot().ConnectedFrom)
}

func TestDiscoveryFlapNeverGoesNegativeAndLeaksNoSockets(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	var sockets []*fakeSocket

	for i := 0; i < 50; i++ {
		sock := &fakeSocket{}
		sockets = append(sockets, sock)
		s := tbl.Open("127.0.0.1:4242", sock, now)
		require.NotNil(t, s)
		_, closed := tbl.Release("127.0.0.1:4242")
		assert.True(t, closed)
		assert.GreaterOrEqual(t, s.Snapshot().RefCount, 0)
	}

	_, ok := tbl.ByAddress("127.0.0.1:4242")
	assert.False(t, ok)
}

func TestReapStaleHandshakeTimeout(t *testing.T) {
	tbl := NewTable()
	past := time.Now().Add(-HandshakeTimeout - time.Second)
	tbl.Open("127.0.0.1:4242", &fakeSocket{}, past)

	stale := tbl.ReapStale(time.Now())
	require.Len(t, stale, 1)
}

func TestReapStaleLivenessTimeout(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	tbl.Open("127.0.0.1:4242", &fakeSocket{}, now)
	res := tbl.BindReply("127.0.0.1:4242", "uuid-a", now)
	res.Session.Touch(now.Add(-LivenessTimeout - time.Second))

	stale := tbl.ReapStale(now)
	require.Len(t, stale, 1)
}

func TestRemoveTearsDownBothKeysRegardlessOfRefCount(t *testing.T) {
	tbl := NewTable()
	now := time.Now()
	s := tbl.Open("127.0.0.1:4242", &fakeSocket{}, now)
	tbl.Retain("127.0.0.1:4242")
	tbl.BindReply("127.0.0.1:4242", "uuid-a", now)

	sock := tbl.Remove(s)
	assert.NotNil(t, sock)
	_, ok := tbl.ByAddress("127.0.0.1:4242")
	assert.False(t, ok)
	_, ok = tbl.ByUUID("uuid-a")
	assert.False(t, ok)
}
