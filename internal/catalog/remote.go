package catalog

import "sync"

// RemoteCatalog holds the publisher and subscriber stubs one Session's
// peer has advertised to us (spec.md section 4.3).
type RemoteCatalog struct {
	NodeUUID string

	mu          sync.RWMutex
	publishers  map[string]PublisherStub
	subscribers map[string]SubscriberStub
}

func newRemoteCatalog(nodeUUID string) *RemoteCatalog {
	return &RemoteCatalog{
		NodeUUID:    nodeUUID,
		publishers:  make(map[string]PublisherStub),
		subscribers: make(map[string]SubscriberStub),
	}
}

func (c *RemoteCatalog) putPublisher(stub PublisherStub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishers[stub.UUID] = stub
}

func (c *RemoteCatalog) dropPublisher(uuid string) (PublisherStub, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stub, ok := c.publishers[uuid]
	if ok {
		delete(c.publishers, uuid)
	}
	return stub, ok
}

func (c *RemoteCatalog) getPublisher(uuid string) (PublisherStub, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stub, ok := c.publishers[uuid]
	return stub, ok
}

func (c *RemoteCatalog) putSubscriber(stub SubscriberStub) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers[stub.UUID] = stub
}

func (c *RemoteCatalog) dropSubscriber(uuid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribers, uuid)
}

// Publishers returns a snapshot of all publisher stubs this peer has
// advertised.
func (c *RemoteCatalog) Publishers() []PublisherStub {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PublisherStub, 0, len(c.publishers))
	for _, stub := range c.publishers {
		out = append(out, stub)
	}
	return out
}

// PutSubscriber attaches a subscriber stub reported against this node
// (spec.md section 4.4: "the subscriber stub is also attached to the
// remote node's catalog").
func (c *RemoteCatalog) PutSubscriber(stub SubscriberStub) {
	c.putSubscriber(stub)
}

// DropSubscriber detaches a subscriber stub, called on UNSUBSCRIBE.
func (c *RemoteCatalog) DropSubscriber(uuid string) {
	c.dropSubscriber(uuid)
}

// DropPublisher removes a publisher stub, called on PUB_REMOVED.
func (c *RemoteCatalog) DropPublisher(uuid string) (PublisherStub, bool) {
	return c.dropPublisher(uuid)
}

// Subscribers returns a snapshot of all subscriber stubs attached to
// this peer's catalog (spec.md section 4.4: "the subscriber stub is
// also attached to the remote node's catalog").
func (c *RemoteCatalog) Subscribers() []SubscriberStub {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SubscriberStub, 0, len(c.subscribers))
	for _, stub := range c.subscribers {
		out = append(out, stub)
	}
	return out
}
