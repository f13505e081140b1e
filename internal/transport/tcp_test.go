package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTCPTransportRoundTrip(t *testing.T) {
	tr := TCP{}
	ln, err := tr.Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	clientDone := make(chan error, 1)
	var client Socket
	go func() {
		var dialErr error
		client, dialErr = tr.Dial(context.Background(), ln.Addr().String())
		clientDone <- dialErr
	}()

	var server Socket
	select {
	case server = <-ln.Accept():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accepted socket")
	}
	require.NoError(t, <-clientDone)
	defer client.Close()
	defer server.Close()

	require.NoError(t, client.Send([]byte("hello")))
	got, err := server.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	require.NoError(t, server.Send([]byte("world")))
	got, err = client.Recv()
	require.NoError(t, err)
	require.Equal(t, []byte("world"), got)
}
