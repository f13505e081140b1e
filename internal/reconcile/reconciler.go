package reconcile

import (
	"sync"
	"time"

	"github.com/0790486/meshnode/internal/catalog"
	"github.com/0790486/meshnode/internal/wire"
)

// ControlSend delivers a SUBSCRIBE (unsubscribe=false) or UNSUBSCRIBE
// (unsubscribe=true) control frame to nodeUUID. Implemented by the node
// event loop over a live Session; failures are logged and dropped per
// spec.md section 7 (SendFailure) — NODE_INFO resynchronizes eventually.
type ControlSend func(nodeUUID string, sub catalog.SubscriberStub, pub catalog.PublisherStub, unsubscribe bool) error

// ErrSelfSubscriptionDenied is returned when a node without allowLocal
// receives a SUBSCRIBE whose origin is itself (spec.md section 4.4).
type selfSubscriptionError struct{}

func (selfSubscriptionError) Error() string { return "reconcile: self-subscription denied" }

var ErrSelfSubscriptionDenied error = selfSubscriptionError{}

// Reconciler implements spec.md section 4.4.
type Reconciler struct {
	cat        *catalog.Catalog
	localUUID  string
	allowLocal bool
	send       ControlSend

	mu   sync.Mutex
	cond *sync.Cond

	// publisher-side: subscriptions remote peers hold against our
	// LocalPublishers, keyed by subscriber UUID.
	subs map[string]*Subscription

	// subscriber-side: which remote publishers each LocalSubscriber we
	// host currently tracks, keyed by subscriber UUID then publisher UUID.
	matched map[string]map[string]catalog.MatchedPublisher

	generation int // bumped on every confirmation change, for WaitForSubscribers
}

// New constructs a Reconciler. send is called synchronously from
// whichever goroutine calls the reconciler's methods (the node event
// loop, by contract).
func New(cat *catalog.Catalog, localUUID string, allowLocal bool, send ControlSend) *Reconciler {
	r := &Reconciler{
		cat:        cat,
		localUUID:  localUUID,
		allowLocal: allowLocal,
		send:       send,
		subs:       make(map[string]*Subscription),
		matched:    make(map[string]map[string]catalog.MatchedPublisher),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func requiresDataPlaneConfirm(implType uint16) bool {
	return implType == wire.ImplTypeTCP
}

// HandleSubscribe processes a SUBSCRIBE control frame: the
// (subscriber, publisher) pair named by sub/pubUUID is handled
// atomically (spec.md "Ordering and tie-breaks").
func (r *Reconciler) HandleSubscribe(sub catalog.SubscriberStub, pubUUID, originNodeUUID string) error {
	if originNodeUUID == r.localUUID && !r.allowLocal {
		return ErrSelfSubscriptionDenied
	}

	pub, ok := r.cat.LocalPublisher(pubUUID)
	if !ok {
		// The SUBSCRIBE names a publisher we don't (or no longer) host;
		// nothing to reconcile.
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[sub.UUID]
	if !ok {
		s = newSubscription(sub.UUID, sub.Channel, sub.ImplType, originNodeUUID)
		r.subs[sub.UUID] = s
	} else {
		s.OwnerNodeUUID = originNodeUUID
	}

	if _, already := s.Confirmed[pubUUID]; already {
		return nil // idempotent re-receipt
	}
	s.Pending[pubUUID] = pub

	if !requiresDataPlaneConfirm(sub.ImplType) || s.DataPlaneConfirmed {
		r.promoteLocked(s)
	}
	return nil
}

// ConfirmDataPlane is called when the data-plane egress socket reports a
// subscribe hint for subUUID (spec.md section 4.4 phase 2).
func (r *Reconciler) ConfirmDataPlane(subUUID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[subUUID]
	if !ok {
		// Data-plane hint arrived before the control-plane SUBSCRIBE; we
		// still record the flag so HandleSubscribe can promote immediately
		// once it creates the record.
		s = newSubscription(subUUID, "", 0, "")
		r.subs[subUUID] = s
	}
	s.DataPlaneConfirmed = true
	r.promoteLocked(s)
}

// promoteLocked moves every pending entry to confirmed, invoking the
// publisher's Added callback exactly once per entry. Caller holds r.mu.
func (r *Reconciler) promoteLocked(s *Subscription) {
	if len(s.Pending) == 0 {
		return
	}
	owner := catalog.NodeStub{UUID: s.OwnerNodeUUID}
	subStub := s.stub()
	for uuid, pub := range s.Pending {
		delete(s.Pending, uuid)
		s.Confirmed[uuid] = pub
		pub.Added(subStub, owner)
	}
	r.generation++
	r.cond.Broadcast()
}

// HandleUnsubscribe removes the publisher named by pubUUID from sub's
// record, firing Removed if it was confirmed. Once both the pending and
// confirmed sets are empty the Subscription record itself is dropped
// (spec.md section 3: "trimmed on UNSUBSCRIBE").
func (r *Reconciler) HandleUnsubscribe(subUUID, pubUUID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.subs[subUUID]
	if !ok {
		return
	}
	delete(s.Pending, pubUUID)
	if pub, ok := s.Confirmed[pubUUID]; ok {
		delete(s.Confirmed, pubUUID)
		pub.Removed(s.stub(), catalog.NodeStub{UUID: s.OwnerNodeUUID})
		r.generation++
		r.cond.Broadcast()
	}
	if s.empty() {
		delete(r.subs, subUUID)
	}
}

// OnPeerLoss tears down every Subscription owned by nodeUUID, firing
// Removed for each confirmed entry (spec.md scenario 5).
func (r *Reconciler) OnPeerLoss(nodeUUID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner := catalog.NodeStub{UUID: nodeUUID}
	for subUUID, s := range r.subs {
		if s.OwnerNodeUUID != nodeUUID {
			continue
		}
		subStub := s.stub()
		for uuid, pub := range s.Confirmed {
			pub.Removed(subStub, owner)
			delete(s.Confirmed, uuid)
		}
		delete(r.subs, subUUID)
	}
	for subUUID, pubs := range r.matched {
		for pubUUID, m := range pubs {
			if m.Owner == nodeUUID {
				delete(pubs, pubUUID)
			}
		}
		if len(pubs) == 0 {
			delete(r.matched, subUUID)
		}
	}
	r.generation++
	r.cond.Broadcast()
}

// AddLocalSubscriber scans every known remote publisher for a match
// against sub and sends SUBSCRIBE to each owning node (spec.md section
// 4.3). Returns the matches found so the caller can log/report them.
func (r *Reconciler) AddLocalSubscriber(sub *catalog.LocalSubscriber) []catalog.MatchedPublisher {
	matches := r.cat.MatchingRemotePublishers(sub)

	r.mu.Lock()
	set, ok := r.matched[sub.UUID]
	if !ok {
		set = make(map[string]catalog.MatchedPublisher)
		r.matched[sub.UUID] = set
	}
	for _, m := range matches {
		set[m.Stub.UUID] = m
	}
	r.mu.Unlock()

	for _, m := range matches {
		r.sendControl(m.Owner, sub.Stub(), m.Stub, false)
	}
	return matches
}

// RemoveLocalSubscriber sends UNSUBSCRIBE for every remote publisher
// this subscriber had matched and drops the bookkeeping.
func (r *Reconciler) RemoveLocalSubscriber(sub *catalog.LocalSubscriber) {
	r.mu.Lock()
	set := r.matched[sub.UUID]
	delete(r.matched, sub.UUID)
	r.mu.Unlock()

	for _, m := range set {
		r.sendControl(m.Owner, sub.Stub(), m.Stub, true)
	}
}

// OnRemotePublisherAdded checks every LocalSubscriber for a match
// against a newly learned remote publisher and subscribes to new
// matches (spec.md section 4.3, kept live across PUB_ADDED/NODE_INFO).
func (r *Reconciler) OnRemotePublisherAdded(stub catalog.PublisherStub, ownerNodeUUID string) {
	for _, sub := range r.cat.LocalSubscribers() {
		if !sub.Matches(stub.Channel) {
			continue
		}
		r.mu.Lock()
		set, ok := r.matched[sub.UUID]
		if !ok {
			set = make(map[string]catalog.MatchedPublisher)
			r.matched[sub.UUID] = set
		}
		_, already := set[stub.UUID]
		if !already {
			set[stub.UUID] = catalog.MatchedPublisher{Stub: stub, Owner: ownerNodeUUID}
		}
		r.mu.Unlock()

		if !already {
			r.sendControl(ownerNodeUUID, sub.Stub(), stub, false)
		}
	}
}

// OnRemotePublisherRemoved drops bookkeeping for a publisher that left
// the mesh; the publisher no longer exists, so no UNSUBSCRIBE is sent.
func (r *Reconciler) OnRemotePublisherRemoved(pubUUID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for subUUID, set := range r.matched {
		delete(set, pubUUID)
		if len(set) == 0 {
			delete(r.matched, subUUID)
		}
	}
}

// MatchedPublishers returns subscriber sub's current remote-publisher
// matches, for DEBUG reporting (spec.md section 4.7).
func (r *Reconciler) MatchedPublishers(subUUID string) []catalog.MatchedPublisher {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.matched[subUUID]
	out := make([]catalog.MatchedPublisher, 0, len(set))
	for _, m := range set {
		out = append(out, m)
	}
	return out
}

func (r *Reconciler) sendControl(nodeUUID string, sub catalog.SubscriberStub, pub catalog.PublisherStub, unsubscribe bool) {
	if r.send == nil {
		return
	}
	_ = r.send(nodeUUID, sub, pub, unsubscribe)
}

// WaitForSubscribers blocks until pub has at least n confirmed
// subscribers or timeout elapses, returning the count observed when it
// wakes (spec.md section 4.6).
func (r *Reconciler) WaitForSubscribers(pub *catalog.LocalPublisher, n int, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	done := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-time.After(time.Until(deadline)):
			r.mu.Lock()
			r.cond.Broadcast()
			r.mu.Unlock()
		case <-stop:
		}
		close(done)
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	for len(pub.Subscribers()) < n && time.Now().Before(deadline) {
		r.cond.Wait()
	}
	return len(pub.Subscribers())
}
