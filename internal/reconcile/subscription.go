// Package reconcile implements spec.md section 4.4: cross-referencing
// local subscribers against remote publisher stubs (and vice versa),
// emitting add/remove lifecycle callbacks and SUBSCRIBE/UNSUBSCRIBE
// control frames, with the two-phase confirmation the default TCP
// transport variant requires.
package reconcile

import "github.com/0790486/meshnode/internal/catalog"

// Subscription is the reconciler's bookkeeping record for one remote
// subscriber's relationship to our LocalPublishers (spec.md section 3).
type Subscription struct {
	SubscriberUUID     string
	SubscriberChannel  string
	SubscriberImplType uint16
	OwnerNodeUUID      string

	Pending            map[string]*catalog.LocalPublisher
	Confirmed          map[string]*catalog.LocalPublisher
	DataPlaneConfirmed bool
}

func newSubscription(subUUID, channel string, implType uint16, owner string) *Subscription {
	return &Subscription{
		SubscriberUUID:     subUUID,
		SubscriberChannel:  channel,
		SubscriberImplType: implType,
		OwnerNodeUUID:      owner,
		Pending:            make(map[string]*catalog.LocalPublisher),
		Confirmed:          make(map[string]*catalog.LocalPublisher),
	}
}

func (s *Subscription) empty() bool {
	return len(s.Pending) == 0 && len(s.Confirmed) == 0
}

func (s *Subscription) stub() catalog.SubscriberStub {
	return catalog.SubscriberStub{
		Channel:  s.SubscriberChannel,
		UUID:     s.SubscriberUUID,
		ImplType: s.SubscriberImplType,
		Owner:    s.OwnerNodeUUID,
	}
}
