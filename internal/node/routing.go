package node

import "sync"

// addrIndex is a lightweight bidirectional address<->UUID map the node
// keeps alongside internal/session.Table. Table's address key only
// exists for sessions we opened (connectedTo); our Socket is always
// full-duplex regardless of which side dialed, so control-frame replies
// and reconciler sends need a route to a live socket for *every* known
// peer UUID, including accept-only sessions Table never gives an
// address key for.
type addrIndex struct {
	mu     sync.Mutex
	byUUID map[string]string
	byAddr map[string]string
}

func newAddrIndex() *addrIndex {
	return &addrIndex{byUUID: make(map[string]string), byAddr: make(map[string]string)}
}

func (a *addrIndex) set(uuid, addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byUUID[uuid] = addr
	a.byAddr[addr] = uuid
}

func (a *addrIndex) addrFor(uuid string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr, ok := a.byUUID[uuid]
	return addr, ok
}

func (a *addrIndex) uuidFor(addr string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	uuid, ok := a.byAddr[addr]
	return uuid, ok
}

func (a *addrIndex) dropAddr(addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if uuid, ok := a.byAddr[addr]; ok {
		delete(a.byAddr, addr)
		delete(a.byUUID, uuid)
	}
}
