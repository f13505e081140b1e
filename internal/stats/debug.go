package stats

import (
	"fmt"
	"runtime"
	"strings"
)

// PublisherDebug is one local publisher's DEBUG-reply fields (spec.md
// section 4.7). Identifiers only, so internal/stats has no dependency
// on internal/catalog's types.
type PublisherDebug struct {
	UUID                 string
	Channel              string
	ConfirmedSubscribers int
}

// SubscriberDebug is one local subscriber's DEBUG-reply fields.
type SubscriberDebug struct {
	UUID             string
	Channel          string
	MatchedPublishers int
}

// SessionDebug is one session's DEBUG-reply fields.
type SessionDebug struct {
	RemoteUUID    string
	RemoteAddress string
	ConnectedTo   bool
	ConnectedFrom bool
	RefCount      int
}

// ProcessInfo is the OS/process identity section of a DEBUG reply
// (SPEC_FULL section C.4), filled from internal/sysinfo.
type ProcessInfo struct {
	PID           int32
	UptimeSeconds float64
	NumGoroutines int
	CPUPercent    float64
	RSSBytes      uint64
	GoVersion     string
	NumCPU        int
}

// DebugSnapshot is the structured form of a DEBUG reply (spec.md
// section 4.7): node identity, process/OS info, traffic stats, local
// catalog, and session state. internal/node builds one from its own
// collaborators each time a DEBUG request or Node.DebugSnapshot is
// served; String renders it as human-readable lines of "key=value"
// pairs. Keeping this a plain data
// value (rather than a string only) is what lets tests assert on
// individual fields instead of parsing text, and lets a future
// Prometheus collector report per-session/per-publisher gauges from
// the same snapshot the DEBUG reply is built from.
type DebugSnapshot struct {
	NodeUUID   string
	NodeAddr   string
	AllowLocal bool

	Process ProcessInfo

	Stats []StatEntry

	Publishers  []PublisherDebug
	Subscribers []SubscriberDebug
	Sessions    []SessionDebug
}

// String renders the snapshot as the DEBUG reply text: one record per
// line, each made of space-separated "key=value" pairs.
func (s DebugSnapshot) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "node.uuid=%s\n", s.NodeUUID)
	fmt.Fprintf(&b, "node.addr=%s\n", s.NodeAddr)
	fmt.Fprintf(&b, "node.allowLocal=%t\n", s.AllowLocal)

	fmt.Fprintf(&b, "process.pid=%d\n", s.Process.PID)
	fmt.Fprintf(&b, "process.uptimeSeconds=%.1f\n", s.Process.UptimeSeconds)
	fmt.Fprintf(&b, "process.goroutines=%d\n", s.Process.NumGoroutines)
	fmt.Fprintf(&b, "process.cpuPercent=%.2f\n", s.Process.CPUPercent)
	fmt.Fprintf(&b, "process.rssBytes=%d\n", s.Process.RSSBytes)
	fmt.Fprintf(&b, "os.label=%s/%s go=%s numCPU=%d\n", runtime.GOOS, runtime.GOARCH, s.Process.GoVersion, s.Process.NumCPU)

	for _, entry := range s.Stats {
		fmt.Fprintf(&b, "stat.%s.total=%d rate=%.2f/s\n", entry.Name, entry.Total, entry.RatePerSecond)
	}

	for _, p := range s.Publishers {
		fmt.Fprintf(&b, "publisher uuid=%s channel=%q subscribers=%d\n", p.UUID, p.Channel, p.ConfirmedSubscribers)
	}
	for _, sub := range s.Subscribers {
		fmt.Fprintf(&b, "subscriber uuid=%s channel=%q matched=%d\n", sub.UUID, sub.Channel, sub.MatchedPublishers)
	}
	for _, sess := range s.Sessions {
		fmt.Fprintf(&b, "session remote=%s address=%s connectedTo=%t connectedFrom=%t refCount=%d\n",
			sess.RemoteUUID, sess.RemoteAddress, sess.ConnectedTo, sess.ConnectedFrom, sess.RefCount)
	}

	return b.String()
}
