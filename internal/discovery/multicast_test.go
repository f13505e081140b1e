package discovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnnounce(t *testing.T) {
	uuid, addr, ok := parseAnnounce("node-a|10.0.0.5:4242")
	require.True(t, ok)
	assert.Equal(t, "node-a", uuid)
	assert.Equal(t, "10.0.0.5:4242", addr)

	_, _, ok = parseAnnounce("garbage")
	assert.False(t, ok)

	_, _, ok = parseAnnounce("|10.0.0.5:4242")
	assert.False(t, ok)
}

type recordingListener struct {
	added, removed, changed chan EndPoint
}

func newRecordingListener() *recordingListener {
	return &recordingListener{
		added:   make(chan EndPoint, 8),
		removed: make(chan EndPoint, 8),
		changed: make(chan EndPoint, 8),
	}
}

func (l *recordingListener) Added(ep EndPoint)   { l.added <- ep }
func (l *recordingListener) Removed(ep EndPoint) { l.removed <- ep }
func (l *recordingListener) Changed(ep EndPoint) { l.changed <- ep }

func TestMulticastDiscoversPeerAndReapsAfterTimeout(t *testing.T) {
	const group = "239.255.77.88:14242"

	a := NewMulticast(MulticastConfig{
		GroupAddr:        group,
		LocalNodeUUID:    "node-a",
		LocalAdvertised:  "127.0.0.1:5001",
		AnnounceInterval: 50 * time.Millisecond,
		PeerTimeout:      200 * time.Millisecond,
	})
	b := NewMulticast(MulticastConfig{
		GroupAddr:        group,
		LocalNodeUUID:    "node-b",
		LocalAdvertised:  "127.0.0.1:5002",
		AnnounceInterval: 50 * time.Millisecond,
		PeerTimeout:      200 * time.Millisecond,
	})

	listenerA := newRecordingListener()
	require.NoError(t, a.Start(listenerA))
	defer a.Close()

	listenerB := newRecordingListener()
	require.NoError(t, b.Start(listenerB))

	select {
	case ep := <-listenerA.added:
		assert.Equal(t, "node-b", ep.NodeUUID)
		assert.Equal(t, "127.0.0.1:5002", ep.Address)
	case <-time.After(3 * time.Second):
		t.Fatal("node A never discovered node B")
	}

	b.Close()

	select {
	case ep := <-listenerA.removed:
		assert.Equal(t, "node-b", ep.NodeUUID)
	case <-time.After(3 * time.Second):
		t.Fatal("node A never reaped node B after it stopped announcing")
	}
}
