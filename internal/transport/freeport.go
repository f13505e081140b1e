package transport

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// DefaultScanPort is the first port tried by BindFreePort, matching the
// original node's fixed starting point (SPEC_FULL section C.5).
const DefaultScanPort = 4242

// MaxScanAttempts bounds the scan so a saturated host fails loudly
// instead of looping forever (SPEC_FULL section C.5: "capped at 256
// attempts").
const MaxScanAttempts = 256

// BindFreePort binds a TCP listener on host, starting at startPort and
// incrementing on EADDRINUSE until a free port is found or
// MaxScanAttempts is exhausted (SPEC_FULL section C.5, grounded on the
// original node's bindToFreePort port scan).
func BindFreePort(host string, startPort int) (net.Listener, int, error) {
	port := startPort
	for attempt := 0; attempt < MaxScanAttempts; attempt++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err == nil {
			return ln, port, nil
		}
		if !isAddrInUse(err) {
			return nil, 0, fmt.Errorf("transport: bind %s:%d: %w", host, port, err)
		}
		port++
	}
	return nil, 0, errors.New("transport: no free port found in scan range")
}

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
