package catalog

import "sync"

// Catalog is the node's full data model: local publishers/subscribers
// plus one RemoteCatalog per node we have learned of. Per spec.md
// section 5, the event loop is the sole mutator; the mutex exists for
// the narrow windows where an API call snapshots state for a read
// (connectedTo, getSubscribers, ...).
type Catalog struct {
	mu sync.RWMutex

	localPublishers  map[string]*LocalPublisher
	localSubscribers map[string]*LocalSubscriber
	remotes          map[string]*RemoteCatalog // keyed by owning node UUID

	// pendingRemotePublishers buffers PUB_ADDED frames that arrived for a
	// node whose handshake (CONNECT_REP) hasn't completed yet (SPEC_FULL
	// section C.1, grounded on ZeroMQNode's _pendingRemotePubs).
	pendingRemotePublishers map[string]map[string]PublisherStub
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{
		localPublishers:         make(map[string]*LocalPublisher),
		localSubscribers:        make(map[string]*LocalSubscriber),
		remotes:                 make(map[string]*RemoteCatalog),
		pendingRemotePublishers: make(map[string]map[string]PublisherStub),
	}
}

// AddLocalPublisher registers pub. Returns false if a publisher with the
// same UUID already exists (spec.md section 7, DuplicateRegistration:
// no-op with warning — the caller logs the warning).
func (c *Catalog) AddLocalPublisher(pub *LocalPublisher) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.localPublishers[pub.UUID]; exists {
		return false
	}
	c.localPublishers[pub.UUID] = pub
	return true
}

// RemoveLocalPublisher deletes a local publisher and returns it.
func (c *Catalog) RemoveLocalPublisher(uuid string) (*LocalPublisher, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pub, ok := c.localPublishers[uuid]
	if ok {
		delete(c.localPublishers, uuid)
	}
	return pub, ok
}

// LocalPublisher looks up a local publisher by UUID.
func (c *Catalog) LocalPublisher(uuid string) (*LocalPublisher, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pub, ok := c.localPublishers[uuid]
	return pub, ok
}

// LocalPublishers returns a snapshot of all local publishers.
func (c *Catalog) LocalPublishers() []*LocalPublisher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*LocalPublisher, 0, len(c.localPublishers))
	for _, pub := range c.localPublishers {
		out = append(out, pub)
	}
	return out
}

// AddLocalSubscriber registers sub. Returns false on duplicate UUID.
func (c *Catalog) AddLocalSubscriber(sub *LocalSubscriber) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.localSubscribers[sub.UUID]; exists {
		return false
	}
	c.localSubscribers[sub.UUID] = sub
	return true
}

// RemoveLocalSubscriber deletes a local subscriber and returns it.
func (c *Catalog) RemoveLocalSubscriber(uuid string) (*LocalSubscriber, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.localSubscribers[uuid]
	if ok {
		delete(c.localSubscribers, uuid)
	}
	return sub, ok
}

// LocalSubscriber looks up a local subscriber by UUID.
func (c *Catalog) LocalSubscriber(uuid string) (*LocalSubscriber, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub, ok := c.localSubscribers[uuid]
	return sub, ok
}

// LocalSubscribers returns a snapshot of all local subscribers.
func (c *Catalog) LocalSubscribers() []*LocalSubscriber {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*LocalSubscriber, 0, len(c.localSubscribers))
	for _, sub := range c.localSubscribers {
		out = append(out, sub)
	}
	return out
}

// Remote returns (creating if necessary) the RemoteCatalog for a node.
func (c *Catalog) Remote(nodeUUID string) *RemoteCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	rc, ok := c.remotes[nodeUUID]
	if !ok {
		rc = newRemoteCatalog(nodeUUID)
		c.remotes[nodeUUID] = rc
	}
	return rc
}

// RemoteIfExists returns the RemoteCatalog for a node without creating
// one, for read-only callers that must not fabricate peers.
func (c *Catalog) RemoteIfExists(nodeUUID string) (*RemoteCatalog, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rc, ok := c.remotes[nodeUUID]
	return rc, ok
}

// Remotes returns a snapshot of every known remote node's catalog.
func (c *Catalog) Remotes() []*RemoteCatalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RemoteCatalog, 0, len(c.remotes))
	for _, rc := range c.remotes {
		out = append(out, rc)
	}
	return out
}

// DropRemote removes a peer's catalog entirely (session loss).
func (c *Catalog) DropRemote(nodeUUID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.remotes, nodeUUID)
	delete(c.pendingRemotePublishers, nodeUUID)
}

// BufferPendingPublisher stores a PublisherStub reported by a node whose
// handshake has not completed (SPEC_FULL section C.1).
func (c *Catalog) BufferPendingPublisher(nodeUUID string, stub PublisherStub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.pendingRemotePublishers[nodeUUID]
	if !ok {
		m = make(map[string]PublisherStub)
		c.pendingRemotePublishers[nodeUUID] = m
	}
	m[stub.UUID] = stub
}

// FlushPending moves every buffered publisher for nodeUUID into its now
// real RemoteCatalog and returns the flushed stubs so the reconciler can
// re-run subscription matching against them.
func (c *Catalog) FlushPending(nodeUUID string) []PublisherStub {
	c.mu.Lock()
	pending := c.pendingRemotePublishers[nodeUUID]
	delete(c.pendingRemotePublishers, nodeUUID)
	rc, ok := c.remotes[nodeUUID]
	if !ok {
		rc = newRemoteCatalog(nodeUUID)
		c.remotes[nodeUUID] = rc
	}
	c.mu.Unlock()

	out := make([]PublisherStub, 0, len(pending))
	for _, stub := range pending {
		rc.putPublisher(stub)
		out = append(out, stub)
	}
	return out
}

// DropRemotePublisher removes a publisher stub from nodeUUID's catalog,
// if that node is known (spec.md section 4.1, PUB_REMOVED).
func (c *Catalog) DropRemotePublisher(nodeUUID, pubUUID string) (PublisherStub, bool) {
	rc, ok := c.RemoteIfExists(nodeUUID)
	if !ok {
		return PublisherStub{}, false
	}
	return rc.DropPublisher(pubUUID)
}

// AttachRemoteSubscriber records a subscriber stub against nodeUUID's
// catalog, creating the RemoteCatalog if this is our first contact with
// the node (spec.md section 4.4).
func (c *Catalog) AttachRemoteSubscriber(nodeUUID string, stub SubscriberStub) {
	c.Remote(nodeUUID).PutSubscriber(stub)
}

// DropRemoteSubscriber detaches a subscriber stub from nodeUUID's
// catalog, if known (spec.md section 4.4, UNSUBSCRIBE).
func (c *Catalog) DropRemoteSubscriber(nodeUUID, subUUID string) {
	if rc, ok := c.RemoteIfExists(nodeUUID); ok {
		rc.DropSubscriber(subUUID)
	}
}

// MatchingRemotePublishers scans every known remote node's publishers
// for ones sub's predicate matches, returning (stub, owning node UUID)
// pairs. Used when a LocalSubscriber is added (spec.md section 4.3).
func (c *Catalog) MatchingRemotePublishers(sub *LocalSubscriber) []MatchedPublisher {
	var out []MatchedPublisher
	for _, rc := range c.Remotes() {
		for _, stub := range rc.Publishers() {
			if sub.Matches(stub.Channel) {
				out = append(out, MatchedPublisher{Stub: stub, Owner: rc.NodeUUID})
			}
		}
	}
	return out
}

// MatchedPublisher pairs a remote publisher stub with its owning node.
type MatchedPublisher struct {
	Stub  PublisherStub
	Owner string
}
