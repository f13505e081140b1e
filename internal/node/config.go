package node

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/0790486/meshnode/internal/discovery"
	"github.com/0790486/meshnode/internal/ratelimit"
	"github.com/0790486/meshnode/internal/stats"
	"github.com/0790486/meshnode/internal/transport"
)

// Config wires a Node's collaborators. Only LocalUUID, Transport, and
// ListenAddr are required; everything else has a working default.
type Config struct {
	LocalUUID string

	// ListenAddr is the control-plane address to bind, "host:port". It
	// is passed to Transport.Listen as given; internal/transport.TCP does
	// no port scan, so port 0 yields an OS-assigned ephemeral port.
	// cmd/meshnode resolves a configured port of 0 with
	// transport.BindFreePort before building this Config.
	ListenAddr string

	// AllowLocal permits a node's own publishers and subscribers to
	// reconcile against each other over the normal session path (spec.md
	// section 9 open question, resolved in DESIGN.md).
	AllowLocal bool

	Transport transport.Transport
	Discovery discovery.Discovery // optional

	SessionLimiter *ratelimit.PeerSessionLimiter // optional
	CommandLimiter *ratelimit.CommandLimiter     // optional
	Stats          *stats.Window

	Logger zerolog.Logger

	// NodeInfoInterval is how often the periodic NODE_INFO keep-alive is
	// broadcast (spec.md section 9: required, not optional, per the
	// resolved open question on stale-peer recovery).
	NodeInfoInterval time.Duration

	// TickInterval drives session reaping, rate-limiter cleanup, and the
	// NODE_INFO schedule check.
	TickInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.NodeInfoInterval == 0 {
		c.NodeInfoInterval = 5 * time.Second
	}
	if c.TickInterval == 0 {
		c.TickInterval = 1 * time.Second
	}
	if c.Stats == nil {
		c.Stats = stats.NewWindow()
	}
}
