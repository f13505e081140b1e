package discovery

import (
	"net"
	"strings"
	"sync"
	"time"
)

// MulticastConfig configures Multicast. No pack repo carries an
// mDNS/DNS-SD library (SPEC_FULL section D notes the gap), so this is a
// deliberately minimal UDP broadcast stand-in rather than a
// protocol-faithful mDNS responder: it announces "<uuid>|<address>" on
// a multicast group and ages out peers that stop announcing.
type MulticastConfig struct {
	GroupAddr        string // e.g. "239.255.77.77:4243"
	LocalNodeUUID    string
	LocalAdvertised  string // address we tell peers to reach us at
	AnnounceInterval time.Duration
	PeerTimeout      time.Duration
}

func (c *MulticastConfig) applyDefaults() {
	if c.AnnounceInterval == 0 {
		c.AnnounceInterval = 2 * time.Second
	}
	if c.PeerTimeout == 0 {
		c.PeerTimeout = 6 * time.Second
	}
}

// Multicast is the default Discovery implementation.
type Multicast struct {
	cfg MulticastConfig

	recvConn *net.UDPConn
	sendConn *net.UDPConn

	mu       sync.Mutex
	peers    map[string]peerState // keyed by node UUID
	listener Listener

	stop chan struct{}
}

type peerState struct {
	ep       EndPoint
	lastSeen time.Time
}

// NewMulticast constructs a Multicast discoverer without starting it.
func NewMulticast(cfg MulticastConfig) *Multicast {
	cfg.applyDefaults()
	return &Multicast{
		cfg:   cfg,
		peers: make(map[string]peerState),
		stop:  make(chan struct{}),
	}
}

func (m *Multicast) Start(listener Listener) error {
	groupAddr, err := net.ResolveUDPAddr("udp4", m.cfg.GroupAddr)
	if err != nil {
		return err
	}
	recvConn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return err
	}
	sendConn, err := net.DialUDP("udp4", nil, groupAddr)
	if err != nil {
		recvConn.Close()
		return err
	}

	m.recvConn = recvConn
	m.sendConn = sendConn
	m.listener = listener

	go m.announceLoop()
	go m.receiveLoop()
	go m.reapLoop()
	return nil
}

func (m *Multicast) announceLoop() {
	ticker := time.NewTicker(m.cfg.AnnounceInterval)
	defer ticker.Stop()
	m.announce()
	for {
		select {
		case <-ticker.C:
			m.announce()
		case <-m.stop:
			return
		}
	}
}

func (m *Multicast) announce() {
	payload := m.cfg.LocalNodeUUID + "|" + m.cfg.LocalAdvertised
	m.sendConn.Write([]byte(payload))
}

func (m *Multicast) receiveLoop() {
	buf := make([]byte, 512)
	for {
		m.recvConn.SetReadDeadline(time.Now().Add(m.cfg.AnnounceInterval * 2))
		n, _, err := m.recvConn.ReadFromUDP(buf)
		select {
		case <-m.stop:
			return
		default:
		}
		if err != nil {
			continue // read timeout; loop back and check m.stop
		}
		m.handlePacket(buf[:n])
	}
}

func (m *Multicast) handlePacket(data []byte) {
	uuid, addr, ok := parseAnnounce(string(data))
	if !ok || uuid == m.cfg.LocalNodeUUID {
		return
	}
	ep := EndPoint{Address: addr, NodeUUID: uuid}

	m.mu.Lock()
	prev, existed := m.peers[uuid]
	m.peers[uuid] = peerState{ep: ep, lastSeen: time.Now()}
	m.mu.Unlock()

	switch {
	case !existed:
		m.listener.Added(ep)
	case prev.ep.Address != addr:
		m.listener.Changed(ep)
	}
}

func parseAnnounce(s string) (uuid, addr string, ok bool) {
	parts := strings.SplitN(s, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (m *Multicast) reapLoop() {
	ticker := time.NewTicker(m.cfg.PeerTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapStale()
		case <-m.stop:
			return
		}
	}
}

func (m *Multicast) reapStale() {
	now := time.Now()
	var removed []EndPoint

	m.mu.Lock()
	for uuid, state := range m.peers {
		if now.Sub(state.lastSeen) > m.cfg.PeerTimeout {
			removed = append(removed, state.ep)
			delete(m.peers, uuid)
		}
	}
	m.mu.Unlock()

	for _, ep := range removed {
		m.listener.Removed(ep)
	}
}

// Peers returns a snapshot of currently-known endpoints, for DEBUG
// reporting.
func (m *Multicast) Peers() []EndPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EndPoint, 0, len(m.peers))
	for _, state := range m.peers {
		out = append(out, state.ep)
	}
	return out
}

func (m *Multicast) Close() error {
	close(m.stop)
	if m.recvConn != nil {
		m.recvConn.Close()
	}
	if m.sendConn != nil {
		m.sendConn.Close()
	}
	return nil
}
