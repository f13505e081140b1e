package node

import (
	"time"

	"github.com/0790486/meshnode/internal/stats"
	"github.com/0790486/meshnode/internal/sysinfo"
)

// debugSnapshot assembles the information a DEBUG request answers with
// (spec.md section 4.7): node identity, process/OS info, traffic
// rates, local publishers/subscribers and their matches, and every
// session with its flags. Returned as a stats.DebugSnapshot value
// rather than a pre-rendered string, so tests and callers other than
// the wire DEBUG reply (e.g. Node.DebugSnapshot) can assert on
// individual fields.
func (n *Node) debugSnapshot() stats.DebugSnapshot {
	now := time.Now()
	sys := sysinfo.Collect()

	snap := stats.DebugSnapshot{
		NodeUUID:   n.cfg.LocalUUID,
		NodeAddr:   n.localAddr,
		AllowLocal: n.cfg.AllowLocal,
		Process: stats.ProcessInfo{
			PID:           sys.PID,
			UptimeSeconds: sys.UptimeSeconds,
			NumGoroutines: sys.NumGoroutines,
			CPUPercent:    sys.CPUPercent,
			RSSBytes:      sys.RSSBytes,
			GoVersion:     sys.GoVersion,
			NumCPU:        sys.NumCPU,
		},
		Stats: n.cfg.Stats.Entries(now),
	}

	for _, pub := range n.cat.LocalPublishers() {
		snap.Publishers = append(snap.Publishers, stats.PublisherDebug{
			UUID:                 pub.UUID,
			Channel:              pub.Channel,
			ConfirmedSubscribers: len(pub.Subscribers()),
		})
	}
	for _, sub := range n.cat.LocalSubscribers() {
		snap.Subscribers = append(snap.Subscribers, stats.SubscriberDebug{
			UUID:              sub.UUID,
			Channel:           sub.Channel,
			MatchedPublishers: len(n.rec.MatchedPublishers(sub.UUID)),
		})
	}
	for _, sess := range n.sessions.All() {
		s := sess.Snapshot()
		snap.Sessions = append(snap.Sessions, stats.SessionDebug{
			RemoteUUID:    s.RemoteUUID,
			RemoteAddress: s.RemoteAddress,
			ConnectedTo:   s.ConnectedTo,
			ConnectedFrom: s.ConnectedFrom,
			RefCount:      s.RefCount,
		})
	}

	return snap
}
