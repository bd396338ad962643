package transport

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/ipv4"
)

// MulticastConn wraps a UDP socket joined to (or sending to) an IPv4
// multicast group, adapted from the connectionless transport's
// net.PacketConn abstraction to RemoteMic's single fixed multicast
// destination rather than a per-peer address map.
type MulticastConn struct {
	conn  *net.UDPConn
	group *net.UDPAddr
}

// PickMulticastGroup returns a uniformly random IPv4 address in the
// 239.0.0.0/8 administratively-scoped multicast range, paired with the
// given port.
func PickMulticastGroup(port int, rng *rand.Rand) *net.UDPAddr {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	ip := net.IPv4(239, byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256)))
	return &net.UDPAddr{IP: ip, Port: port}
}

// NewMulticastSender opens a UDP socket for sending datagrams to the given
// multicast group with the given TTL (hop count).
func NewMulticastSender(group *net.UDPAddr, ttl int) (*MulticastConn, error) {
	conn, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("remotemic: dial multicast group: %w", err)
	}

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastTTL(ttl); err != nil {
		conn.Close()
		return nil, fmt.Errorf("remotemic: set multicast TTL: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewMulticastSender",
		"group":    group.String(),
		"ttl":      ttl,
	}).Info("multicast sender ready")

	return &MulticastConn{conn: conn, group: group}, nil
}

// NewMulticastReceiver joins the given multicast group for receiving.
func NewMulticastReceiver(group *net.UDPAddr) (*MulticastConn, error) {
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("remotemic: join multicast group: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewMulticastReceiver",
		"group":    group.String(),
	}).Info("joined multicast group")

	return &MulticastConn{conn: conn, group: group}, nil
}

// Send writes a datagram to the joined/dialed multicast group.
func (c *MulticastConn) Send(data []byte) error {
	_, err := c.conn.Write(data)
	return err
}

// ReadFrom reads one datagram, blocking up to the configured read
// deadline (if any). Returns the number of bytes read.
func (c *MulticastConn) ReadFrom(buf []byte) (int, error) {
	return c.conn.Read(buf)
}

// SetReadDeadline bounds the next ReadFrom call so callers can poll a
// shutdown signal between reads, matching the transport's existing
// 100ms-poll pattern.
func (c *MulticastConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Close releases the underlying socket.
func (c *MulticastConn) Close() error {
	return c.conn.Close()
}

// LocalAddr returns the local address of the underlying socket.
func (c *MulticastConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}
