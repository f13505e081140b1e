package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/0790486/meshnode/internal/wire"
)

// TCP is the default Transport variant (wire.ImplTypeTCP): one TCP
// connection per peer, framed as WebSocket binary messages. The mesh
// never speaks to a browser, but gobwas/ws's handshake and framing are
// reused as-is rather than inventing a bespoke length-prefixed framing.
type TCP struct{}

func (TCP) ImplType() uint16 { return wire.ImplTypeTCP }

func (TCP) Listen(ctx context.Context, addr string) (Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: tcp listen %s: %w", addr, err)
	}
	l := &tcpListener{ln: ln, ch: make(chan Socket)}
	go l.acceptLoop()
	return l, nil
}

func (TCP) Dial(ctx context.Context, addr string) (Socket, error) {
	conn, _, _, err := ws.Dial(ctx, "ws://"+addr)
	if err != nil {
		return nil, fmt.Errorf("transport: tcp dial %s: %w", addr, err)
	}
	return &tcpSocket{conn: conn, isClient: true}, nil
}

type tcpListener struct {
	ln net.Listener
	ch chan Socket

	closeOnce sync.Once
}

func (l *tcpListener) acceptLoop() {
	defer close(l.ch)
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return
		}
		if _, err := ws.Upgrade(conn); err != nil {
			conn.Close()
			continue
		}
		l.ch <- &tcpSocket{conn: conn, isClient: false}
	}
}

func (l *tcpListener) Accept() <-chan Socket { return l.ch }
func (l *tcpListener) Addr() net.Addr        { return l.ln.Addr() }
func (l *tcpListener) Close() error {
	var err error
	l.closeOnce.Do(func() { err = l.ln.Close() })
	return err
}

type tcpSocket struct {
	conn     net.Conn
	isClient bool

	closeOnce sync.Once
}

func (s *tcpSocket) Send(frame []byte) error {
	if s.isClient {
		return wsutil.WriteClientMessage(s.conn, ws.OpBinary, frame)
	}
	return wsutil.WriteServerMessage(s.conn, ws.OpBinary, frame)
}

// Recv reads the next binary message, skipping ping/pong/text control
// frames a misbehaving peer might send (spec.md section 4.1: unknown or
// malformed frames are logged and discarded, not fatal).
func (s *tcpSocket) Recv() ([]byte, error) {
	for {
		var (
			data []byte
			op   ws.OpCode
			err  error
		)
		if s.isClient {
			data, op, err = wsutil.ReadServerData(s.conn)
		} else {
			data, op, err = wsutil.ReadClientData(s.conn)
		}
		if err != nil {
			return nil, err
		}
		if op != ws.OpBinary {
			continue
		}
		return data, nil
	}
}

func (s *tcpSocket) RemoteAddr() string { return s.conn.RemoteAddr().String() }

func (s *tcpSocket) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.conn.Close() })
	return err
}
