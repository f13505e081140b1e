package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingGreeter struct {
	welcomes  []string
	farewells []string
}

func (g *recordingGreeter) Welcome(sub SubscriberStub, owner NodeStub) {
	g.welcomes = append(g.welcomes, sub.UUID)
}

func (g *recordingGreeter) Farewell(sub SubscriberStub, owner NodeStub) {
	g.farewells = append(g.farewells, sub.UUID)
}

func TestAddLocalPublisherIdempotence(t *testing.T) {
	c := New()
	p := NewLocalPublisher("foo", "pub-1", 0, 5000, nil)
	assert.True(t, c.AddLocalPublisher(p))
	assert.False(t, c.AddLocalPublisher(p), "second registration must be a no-op")

	got, ok := c.LocalPublisher("pub-1")
	require.True(t, ok)
	assert.Same(t, p, got)
}

func TestGreeterPairingNeverExceedsWelcomes(t *testing.T) {
	greeter := &recordingGreeter{}
	p := NewLocalPublisher("foo", "pub-1", 0, 5000, greeter)
	owner := NodeStub{UUID: "node-b"}
	sub := SubscriberStub{Channel: "foo", UUID: "sub-1", Owner: "node-b"}

	p.Added(sub, owner)
	p.Added(sub, owner) // re-receipt must be idempotent (spec.md section 4.4)
	p.Removed(sub, owner)
	p.Removed(sub, owner) // second removal has nothing to pair

	assert.Equal(t, []string{"sub-1"}, greeter.welcomes)
	assert.Equal(t, []string{"sub-1"}, greeter.farewells)
	assert.LessOrEqual(t, len(greeter.farewells), len(greeter.welcomes))
}

func TestRemoveAllFromNodeOnlyTouchesThatNode(t *testing.T) {
	greeter := &recordingGreeter{}
	p := NewLocalPublisher("foo", "pub-1", 0, 5000, greeter)
	ownerA := NodeStub{UUID: "node-a"}
	ownerB := NodeStub{UUID: "node-b"}
	p.Added(SubscriberStub{UUID: "sub-a", Owner: "node-a"}, ownerA)
	p.Added(SubscriberStub{UUID: "sub-b", Owner: "node-b"}, ownerB)

	p.RemoveAllFromNode("node-a")

	assert.False(t, p.HasSubscriber("sub-a"))
	assert.True(t, p.HasSubscriber("sub-b"))
	assert.Equal(t, []string{"sub-a"}, greeter.farewells)
}

func TestLiteralMatcherIsExact(t *testing.T) {
	m := LiteralMatcher("foo")
	assert.True(t, m.Matches("foo"))
	assert.False(t, m.Matches("foobar"))
	assert.False(t, m.Matches("fo"))
}

func TestMatchingRemotePublishersScansAllNodes(t *testing.T) {
	c := New()
	c.Remote("node-a").putPublisher(PublisherStub{Channel: "foo", UUID: "pub-a"})
	c.Remote("node-b").putPublisher(PublisherStub{Channel: "bar", UUID: "pub-b"})
	c.Remote("node-b").putPublisher(PublisherStub{Channel: "foo", UUID: "pub-c"})

	sub := NewLocalSubscriber("foo", "sub-1", 0, nil, nil)
	matches := c.MatchingRemotePublishers(sub)

	require.Len(t, matches, 2)
	uuids := []string{matches[0].Stub.UUID, matches[1].Stub.UUID}
	assert.ElementsMatch(t, []string{"pub-a", "pub-c"}, uuids)
}

func TestFlushPendingMovesBufferedPublishers(t *testing.T) {
	c := New()
	c.BufferPendingPublisher("node-a", PublisherStub{Channel: "foo", UUID: "pub-a"})

	flushed := c.FlushPending("node-a")
	require.Len(t, flushed, 1)
	assert.Equal(t, "pub-a", flushed[0].UUID)

	rc, ok := c.RemoteIfExists("node-a")
	require.True(t, ok)
	assert.Len(t, rc.Publishers(), 1)

	// pending buffer is drained, a second flush yields nothing.
	assert.Empty(t, c.FlushPending("node-a"))
}

func TestDropRemoteClearsCatalogAndPending(t *testing.T) {
	c := New()
	c.Remote("node-a").putPublisher(PublisherStub{UUID: "pub-a"})
	c.BufferPendingPublisher("node-a", PublisherStub{UUID: "pub-b"})

	c.DropRemote("node-a")

	_, ok := c.RemoteIfExists("node-a")
	assert.False(t, ok)
	assert.Empty(t, c.FlushPending("node-a"))
}
