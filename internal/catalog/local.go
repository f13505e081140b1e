package catalog

import "sync"

// LocalPublisher is a publisher hosted by this node. Its membership set
// reflects only confirmed subscribers (spec.md section 3 invariant).
// The reconciler is the only caller of Added; Removed is also called by
// the node when the publisher itself is removed.
type LocalPublisher struct {
	Channel  string
	UUID     string
	ImplType uint16
	Port     uint16
	Greeter  Greeter // optional

	mu        sync.RWMutex
	confirmed map[string]subscriberEntry
}

type subscriberEntry struct {
	stub  SubscriberStub
	owner NodeStub
}

// NewLocalPublisher constructs a publisher with an empty subscriber set.
func NewLocalPublisher(channel, uuid string, implType, port uint16, greeter Greeter) *LocalPublisher {
	return &LocalPublisher{
		Channel:   channel,
		UUID:      uuid,
		ImplType:  implType,
		Port:      port,
		Greeter:   greeter,
		confirmed: make(map[string]subscriberEntry),
	}
}

// Stub returns the immutable descriptor for this publisher.
func (p *LocalPublisher) Stub() PublisherStub {
	return PublisherStub{Channel: p.Channel, UUID: p.UUID, ImplType: p.ImplType, Port: p.Port}
}

// Added records a confirmed subscriber and fires the greeter's welcome
// callback exactly once for this uuid (spec.md "Greeter pairing" law).
func (p *LocalPublisher) Added(sub SubscriberStub, owner NodeStub) {
	p.mu.Lock()
	if _, exists := p.confirmed[sub.UUID]; exists {
		p.mu.Unlock()
		return
	}
	p.confirmed[sub.UUID] = subscriberEntry{stub: sub, owner: owner}
	p.mu.Unlock()

	if p.Greeter != nil {
		p.Greeter.Welcome(sub, owner)
	}
}

// Removed drops a confirmed subscriber and fires farewell, symmetric
// with Added. A farewell is only emitted if the subscriber was present,
// keeping the farewell count from ever exceeding the welcome count.
func (p *LocalPublisher) Removed(sub SubscriberStub, owner NodeStub) {
	p.mu.Lock()
	_, exists := p.confirmed[sub.UUID]
	if exists {
		delete(p.confirmed, sub.UUID)
	}
	p.mu.Unlock()

	if exists && p.Greeter != nil {
		p.Greeter.Farewell(sub, owner)
	}
}

// RemoveAllFromNode drops every confirmed subscriber owned by nodeUUID,
// firing farewell for each. Used on session loss (spec.md scenario 5).
func (p *LocalPublisher) RemoveAllFromNode(nodeUUID string) {
	p.mu.Lock()
	var toRemove []subscriberEntry
	for uuid, entry := range p.confirmed {
		if entry.owner.UUID == nodeUUID {
			toRemove = append(toRemove, entry)
			delete(p.confirmed, uuid)
		}
	}
	p.mu.Unlock()

	if p.Greeter == nil {
		return
	}
	for _, entry := range toRemove {
		p.Greeter.Farewell(entry.stub, entry.owner)
	}
}

// Subscribers returns a snapshot of confirmed subscriber UUIDs.
func (p *LocalPublisher) Subscribers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.confirmed))
	for uuid := range p.confirmed {
		out = append(out, uuid)
	}
	return out
}

// HasSubscriber reports whether uuid is a confirmed subscriber.
func (p *LocalPublisher) HasSubscriber(uuid string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.confirmed[uuid]
	return ok
}

// ConfirmedSubscriber pairs a confirmed subscriber stub with the node
// that owns it, for data-plane fan-out (the event loop sends one data
// message per distinct owning node, not per subscriber).
type ConfirmedSubscriber struct {
	Stub  SubscriberStub
	Owner NodeStub
}

// ConfirmedSubscribers returns a snapshot of every confirmed subscriber
// paired with its owning node.
func (p *LocalPublisher) ConfirmedSubscribers() []ConfirmedSubscriber {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]ConfirmedSubscriber, 0, len(p.confirmed))
	for _, entry := range p.confirmed {
		out = append(out, ConfirmedSubscriber{Stub: entry.stub, Owner: entry.owner})
	}
	return out
}

// LocalSubscriber is a subscriber hosted by this node.
type LocalSubscriber struct {
	Channel  string // pattern, interpreted by Matcher
	UUID     string
	ImplType uint16
	Receiver Receiver // optional
	Matcher  ChannelMatcher
}

// NewLocalSubscriber constructs a subscriber using LiteralMatcher unless
// a different matcher is supplied.
func NewLocalSubscriber(channel, uuid string, implType uint16, receiver Receiver, matcher ChannelMatcher) *LocalSubscriber {
	if matcher == nil {
		matcher = LiteralMatcher(channel)
	}
	return &LocalSubscriber{
		Channel:  channel,
		UUID:     uuid,
		ImplType: implType,
		Receiver: receiver,
		Matcher:  matcher,
	}
}

// Stub returns the immutable descriptor for this subscriber.
func (s *LocalSubscriber) Stub() SubscriberStub {
	return SubscriberStub{Channel: s.Channel, UUID: s.UUID, ImplType: s.ImplType}
}

// Matches reports whether a publisher's channel satisfies this
// subscriber's predicate.
func (s *LocalSubscriber) Matches(channel string) bool {
	if s.Matcher == nil {
		return s.Channel == channel
	}
	return s.Matcher.Matches(channel)
}
