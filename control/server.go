package control

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"remotemic/crypto"
	rnoise "remotemic/noise"
	"remotemic/transport"
)

const (
	// DefaultHeartbeatTimeout is the interval after which a session with
	// no fresh heartbeat is evicted.
	DefaultHeartbeatTimeout = 5 * time.Second
	// heartbeatSweepInterval is how often the eviction sweep runs.
	heartbeatSweepInterval = 1 * time.Second
)

// ServerConfig configures the control channel's server side.
type ServerConfig struct {
	ListenAddr              string
	SampleRate              uint32
	Channels                uint8
	FmtCode                 uint8
	McastIP                 net.IP
	McastPort               int
	PSK                     []byte // nil disables PSK-based AEAD
	OpportunisticEncryption bool   // ignored if PSK is set
	HeartbeatTimeout        time.Duration
	TimeProvider            crypto.TimeProvider

	// OnKeyEstablished is called whenever a session's encryption key
	// becomes known: once at startup for PSK mode (every session shares
	// the same server-wide salt, since all clients read the one
	// multicast stream), or once per connection for opportunistic Noise
	// mode. The multicast sender has exactly one active key at a time,
	// so a later call simply supersedes the previous key.
	OnKeyEstablished func(key *[32]byte, salt [8]byte)
}

// Server runs the control channel's accept loop and per-session
// handshake/heartbeat state machine.
type Server struct {
	cfg       ServerConfig
	listener  *transport.Listener
	table     *Table
	stopSweep chan struct{}

	pskSalt []byte
	pskKey  [32]byte
}

// StartServer starts listening and accepting control connections.
func StartServer(cfg ServerConfig) (*Server, error) {
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}

	s := &Server{
		cfg:       cfg,
		table:     NewTable(cfg.TimeProvider),
		stopSweep: make(chan struct{}),
	}

	if len(cfg.PSK) > 0 {
		salt, err := crypto.GenerateSalt()
		if err != nil {
			return nil, err
		}
		s.pskSalt = salt
		s.pskKey = crypto.DeriveSessionKey(cfg.PSK, salt)
		if cfg.OnKeyEstablished != nil {
			cfg.OnKeyEstablished(&s.pskKey, saltArray(salt))
		}
	}

	ln, err := transport.Listen(cfg.ListenAddr, s.handleConnection)
	if err != nil {
		return nil, fmt.Errorf("remotemic: start control server: %w", err)
	}
	s.listener = ln

	go s.heartbeatSweepLoop()

	logrus.WithFields(logrus.Fields{
		"function": "StartServer",
		"addr":     ln.Addr().String(),
	}).Info("control server listening")

	return s, nil
}

// Addr returns the control listener's local address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Sessions returns the live session table.
func (s *Server) Sessions() *Table {
	return s.table
}

// Stop sends SERVER_STOP to every live session, closes their
// connections, and shuts down the listener.
func (s *Server) Stop() error {
	close(s.stopSweep)

	for _, sess := range s.table.All() {
		if sess.conn != nil {
			fmt.Fprintf(sess.conn, "%s\n", LineServerStop)
			sess.conn.Close()
		}
	}

	return s.listener.Close()
}

func (s *Server) heartbeatSweepLoop() {
	ticker := time.NewTicker(heartbeatSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			for _, sess := range s.table.Expired(s.cfg.HeartbeatTimeout) {
				logrus.WithFields(logrus.Fields{
					"function": "Server.heartbeatSweepLoop",
					"session":  sess.Key,
				}).Info("evicting session on heartbeat timeout")
				if sess.conn != nil {
					sess.conn.Close()
				}
				s.table.Remove(sess.Key)
			}
		}
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, r *bufio.Reader) {
	sess, err := s.performHandshake(conn, r)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Server.handleConnection",
			"error":    err.Error(),
		}).Warn("handshake failed")
		return
	}
	sess.conn = conn
	s.table.Add(sess)
	defer s.table.Remove(sess.Key)

	logrus.WithFields(logrus.Fields{
		"function": "Server.handleConnection",
		"session":  sess.Key,
		"remote":   conn.RemoteAddr().String(),
	}).Info("session active")

	s.controlLoop(ctx, conn, r, sess)
}

func (s *Server) performHandshake(conn net.Conn, r *bufio.Reader) (*Session, error) {
	key, err := GenerateSessionKey()
	if err != nil {
		return nil, err
	}

	var salt []byte
	if len(s.cfg.PSK) > 0 {
		salt = s.pskSalt
	}

	noiseAdvertised := len(s.cfg.PSK) == 0 && s.cfg.OpportunisticEncryption

	line := HandshakeLine(key, s.cfg.SampleRate, s.cfg.Channels, s.cfg.FmtCode, s.cfg.McastIP, s.cfg.McastPort, salt, noiseAdvertised)
	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		return nil, fmt.Errorf("remotemic: write handshake line: %w", err)
	}

	sess := &Session{
		Key:        key,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		FmtCode:    s.cfg.FmtCode,
		McastIP:    s.cfg.McastIP,
		McastPort:  s.cfg.McastPort,
		Salt:       salt,
	}

	if noiseAdvertised {
		if err := s.performNoiseHandshake(conn, r, sess); err != nil {
			return nil, err
		}
	}

	return sess, nil
}

func (s *Server) performNoiseHandshake(conn net.Conn, r *bufio.Reader, sess *Session) error {
	hs, err := rnoise.NewNNHandshake(rnoise.Responder)
	if err != nil {
		return err
	}

	msg1, err := readHexLine(r, "NOISE_INIT")
	if err != nil {
		return err
	}
	if _, err := hs.ReadMessage(msg1); err != nil {
		return err
	}

	msg2, complete, err := hs.WriteMessage()
	if err != nil {
		return err
	}
	if !complete {
		return fmt.Errorf("remotemic: NN handshake did not complete at responder")
	}
	if err := writeHexLine(conn, "NOISE_RESP", msg2); err != nil {
		return err
	}

	sessKey, err := hs.SessionKey()
	if err != nil {
		return err
	}
	sess.NoiseKey = &sessKey
	if sess.Salt == nil {
		salt, err := crypto.GenerateSalt()
		if err != nil {
			return err
		}
		sess.Salt = salt
	}

	if s.cfg.OnKeyEstablished != nil {
		s.cfg.OnKeyEstablished(sess.NoiseKey, saltArray(sess.Salt))
	}
	return nil
}

func saltArray(salt []byte) [8]byte {
	var out [8]byte
	copy(out[:], salt)
	return out
}

func (s *Server) controlLoop(ctx context.Context, conn net.Conn, r *bufio.Reader, sess *Session) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = trimLine(line)

		switch {
		case line == LineDisconnect:
			fmt.Fprintf(conn, "%s\n", LineBye)
			return
		case strings.HasPrefix(line, "HEART "):
			key, ok := ParseHeartbeatLine(line)
			if !ok || key != sess.Key {
				continue
			}
			s.table.Touch(sess.Key)
			fmt.Fprintf(conn, "%s\n", LineHeartbeatOK)
		default:
			logrus.WithFields(logrus.Fields{
				"function": "Server.controlLoop",
				"session":  sess.Key,
				"line":     line,
			}).Debug("ignoring unknown control line")
		}
	}
}
