package transport

import (
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindFreePortSkipsOccupiedPort(t *testing.T) {
	first, port, err := BindFreePort("127.0.0.1", DefaultScanPort)
	require.NoError(t, err)
	defer first.Close()

	second, port2, err := BindFreePort("127.0.0.1", port)
	require.NoError(t, err)
	defer second.Close()

	assert.Greater(t, port2, port)
}

// TestBindFreePortFailsAfterMaxScanAttempts saturates every port in the
// scan range and asserts BindFreePort gives up rather than scanning
// past MaxScanAttempts (SPEC_FULL section C.5: "capped at 256
// attempts").
func TestBindFreePortFailsAfterMaxScanAttempts(t *testing.T) {
	const startPort = 23000

	held := make([]net.Listener, 0, MaxScanAttempts)
	for port := startPort; port < startPort+MaxScanAttempts; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		require.NoErrorf(t, err, "failed to occupy port %d for the test", port)
		held = append(held, ln)
	}
	defer func() {
		for _, ln := range held {
			ln.Close()
		}
	}()

	_, _, err := BindFreePort("127.0.0.1", startPort)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no free port found")
}
