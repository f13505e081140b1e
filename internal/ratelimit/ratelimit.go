// Package ratelimit bounds how fast sessions are opened and commands
// are submitted, protecting a node from a flapping peer or a runaway
// local caller (spec.md section 8, "rapid discovery flap").
package ratelimit

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SessionLimiterConfig configures PeerSessionLimiter. Zero values fall
// back to the defaults below, the same two-tier (per-peer + global)
// shape as the teacher's connection rate limiter.
type SessionLimiterConfig struct {
	PeerBurst   int           // max burst session-opens per peer address
	PeerRate    float64       // sustained opens/sec per peer address
	PeerTTL     time.Duration // forget a peer's limiter after this idle period
	GlobalBurst int           // max burst session-opens system-wide
	GlobalRate  float64       // sustained opens/sec system-wide

	Logger zerolog.Logger
}

func (c *SessionLimiterConfig) applyDefaults() {
	if c.PeerBurst == 0 {
		c.PeerBurst = 5
	}
	if c.PeerRate == 0 {
		c.PeerRate = 1.0
	}
	if c.PeerTTL == 0 {
		c.PeerTTL = 5 * time.Minute
	}
	if c.GlobalBurst == 0 {
		c.GlobalBurst = 100
	}
	if c.GlobalRate == 0 {
		c.GlobalRate = 20.0
	}
}

// PeerSessionLimiter gates session.Table.Open calls: a peer whose
// address keeps reconnecting faster than PeerRate (a flapping discovery
// source, spec.md scenario 6) is throttled without affecting other
// peers, and a global limiter caps total churn regardless of source.
type PeerSessionLimiter struct {
	cfg SessionLimiterConfig

	global *rate.Limiter

	mu    sync.Mutex
	peers map[string]*peerEntry
}

type peerEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewPeerSessionLimiter constructs a limiter. It starts no goroutine;
// idle per-peer limiters are dropped only when the caller runs Cleanup.
func NewPeerSessionLimiter(cfg SessionLimiterConfig) *PeerSessionLimiter {
	cfg.applyDefaults()
	l := &PeerSessionLimiter{
		cfg:    cfg,
		global: rate.NewLimiter(rate.Limit(cfg.GlobalRate), cfg.GlobalBurst),
		peers:  make(map[string]*peerEntry),
	}
	return l
}

// Allow reports whether a session open from addr should proceed.
// Checks the global limiter first, cheapest path.
func (l *PeerSessionLimiter) Allow(addr string) bool {
	if !l.global.Allow() {
		l.cfg.Logger.Debug().Str("addr", addr).Msg("session open rejected: global rate limit")
		return false
	}
	if !l.peerLimiter(addr).Allow() {
		l.cfg.Logger.Debug().Str("addr", addr).Msg("session open rejected: per-peer rate limit")
		return false
	}
	return true
}

func (l *PeerSessionLimiter) peerLimiter(addr string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.peers[addr]
	if ok {
		entry.lastAccess = time.Now()
		return entry.limiter
	}
	entry = &peerEntry{
		limiter:    rate.NewLimiter(rate.Limit(l.cfg.PeerRate), l.cfg.PeerBurst),
		lastAccess: time.Now(),
	}
	l.peers[addr] = entry
	return entry.limiter
}

// Cleanup removes per-peer limiters idle for longer than PeerTTL.
// Callers invoke this from an existing periodic tick (the node event
// loop's onTick, driven by its TickInterval ticker) rather than spawning
// a dedicated goroutine.
func (l *PeerSessionLimiter) Cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, entry := range l.peers {
		if now.Sub(entry.lastAccess) > l.cfg.PeerTTL {
			delete(l.peers, addr)
		}
	}
}

// TrackedPeers reports how many per-peer limiters are currently live,
// for DEBUG reporting.
func (l *PeerSessionLimiter) TrackedPeers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.peers)
}

// CommandLimiter throttles submissions on the node's command channel
// (spec.md section 4.6), protecting the single-threaded event loop from
// a local caller issuing AddPublisher/AddEndpoint in a tight loop.
type CommandLimiter struct {
	limiter *rate.Limiter
}

// NewCommandLimiter builds a token bucket sized for interactive command
// rates, not data-plane throughput.
func NewCommandLimiter(ratePerSec float64, burst int) *CommandLimiter {
	return &CommandLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

func (c *CommandLimiter) Allow() bool { return c.limiter.Allow() }
