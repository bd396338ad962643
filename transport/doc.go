// Package transport provides the two network primitives RemoteMic's
// control and data planes are built on: a line-oriented TCP control
// channel listener/dialer, and a UDP multicast sender/receiver pair.
//
// # Control Channel
//
//	ln, err := transport.Listen(":45555", func(ctx context.Context, conn net.Conn, r *bufio.Reader) {
//	    // per-connection handshake/heartbeat state machine
//	})
//
//	conn, err := transport.Dial("192.168.1.10:45555")
//
// # Multicast
//
//	group := transport.PickMulticastGroup(45555, nil)
//	sender, err := transport.NewMulticastSender(group, 32)
//	sender.Send(frameBytes)
//
//	receiver, err := transport.NewMulticastReceiver(group)
//	n, err := receiver.ReadFrom(buf)
//
// # Dependencies
//
//   - golang.org/x/net/ipv4: multicast TTL configuration
//   - github.com/sirupsen/logrus: structured logging
package transport
