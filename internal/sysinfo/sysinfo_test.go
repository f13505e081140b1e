package sysinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollectReturnsProcessIdentity(t *testing.T) {
	snap := Collect()
	assert.NotZero(t, snap.PID)
	assert.NotEmpty(t, snap.GoVersion)
	assert.GreaterOrEqual(t, snap.NumCPU, 1)
	assert.GreaterOrEqual(t, snap.NumGoroutines, 1)
}
