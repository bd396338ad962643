package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
)

// ConnHandler processes one accepted control connection until it returns;
// the listener closes the connection afterward.
type ConnHandler func(ctx context.Context, conn net.Conn, r *bufio.Reader)

// Listener accepts TCP control connections and dispatches each to a
// ConnHandler on its own goroutine, adapted from the connection-oriented
// transport's accept loop: one goroutine per connection, context-based
// shutdown, no packet-type multiplexing (the control channel is a single
// line-oriented state machine per connection, not a shared packet bus).
type Listener struct {
	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	handler  ConnHandler
}

// Listen starts accepting connections on addr, dispatching each to handler.
func Listen(addr string, handler ConnHandler) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("remotemic: listen control channel: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{listener: ln, ctx: ctx, cancel: cancel, handler: handler}

	go l.acceptLoop()

	return l, nil
}

// Addr returns the listener's local address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Close stops accepting new connections and cancels the shutdown context
// observed by in-flight handlers.
func (l *Listener) Close() error {
	l.cancel()
	return l.listener.Close()
}

func (l *Listener) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			default:
				logrus.WithFields(logrus.Fields{
					"function": "Listener.acceptLoop",
					"error":    err.Error(),
				}).Warn("control channel accept failed")
				continue
			}
		}

		go func() {
			defer conn.Close()
			l.handler(l.ctx, conn, bufio.NewReader(conn))
		}()
	}
}

// Dial opens a control-channel TCP connection to addr.
func Dial(addr string) (net.Conn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("remotemic: dial control channel: %w", err)
	}
	return conn, nil
}
