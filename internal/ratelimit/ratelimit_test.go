package ratelimit

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPeerSessionLimiterThrottlesFlappingPeer(t *testing.T) {
	l := NewPeerSessionLimiter(SessionLimiterConfig{
		PeerBurst:   2,
		PeerRate:    0.001,
		GlobalBurst: 100,
		GlobalRate:  100,
		Logger:      zerolog.Nop(),
	})

	assert.True(t, l.Allow("10.0.0.5:4242"))
	assert.True(t, l.Allow("10.0.0.5:4242"))
	assert.False(t, l.Allow("10.0.0.5:4242"), "third rapid open from the same peer is throttled")
}

func TestPeerSessionLimiterIsolatesPeers(t *testing.T) {
	l := NewPeerSessionLimiter(SessionLimiterConfig{
		PeerBurst:   1,
		PeerRate:    0.001,
		GlobalBurst: 100,
		GlobalRate:  100,
		Logger:      zerolog.Nop(),
	})

	assert.True(t, l.Allow("10.0.0.5:4242"))
	assert.False(t, l.Allow("10.0.0.5:4242"))
	assert.True(t, l.Allow("10.0.0.6:4242"), "a different peer's budget is untouched")
}

func TestPeerSessionLimiterGlobalCapAppliesAcrossPeers(t *testing.T) {
	l := NewPeerSessionLimiter(SessionLimiterConfig{
		PeerBurst:   10,
		PeerRate:    10,
		GlobalBurst: 1,
		GlobalRate:  0.001,
		Logger:      zerolog.Nop(),
	})

	assert.True(t, l.Allow("10.0.0.5:4242"))
	assert.False(t, l.Allow("10.0.0.6:4242"), "global budget exhausted even though the peer is fresh")
}

func TestCleanupRemovesIdlePeers(t *testing.T) {
	l := NewPeerSessionLimiter(SessionLimiterConfig{
		PeerTTL:     time.Millisecond,
		GlobalBurst: 100,
		GlobalRate:  100,
		Logger:      zerolog.Nop(),
	})
	l.Allow("10.0.0.5:4242")
	assert.Equal(t, 1, l.TrackedPeers())

	l.Cleanup(time.Now().Add(time.Hour))
	assert.Equal(t, 0, l.TrackedPeers())
}

func TestCommandLimiterAllowsWithinBurst(t *testing.T) {
	c := NewCommandLimiter(0.001, 3)
	assert.True(t, c.Allow())
	assert.True(t, c.Allow())
	assert.True(t, c.Allow())
	assert.False(t, c.Allow())
}
