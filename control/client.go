package control

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"remotemic/crypto"
	rnoise "remotemic/noise"
	"remotemic/transport"
)

const (
	// HeartbeatInterval is how often the client sends HEART.
	HeartbeatInterval = 1 * time.Second
	// ClientTimeout is how long the client waits for an OK reply before
	// declaring the connection dead.
	ClientTimeout = DefaultHeartbeatTimeout
)

// ClientState is the client-side state machine position: Idle →
// Connecting → Handshaking → Joined → Running → Draining → Gone.
type ClientState int

const (
	StateIdle ClientState = iota
	StateConnecting
	StateHandshaking
	StateJoined
	StateRunning
	StateDraining
	StateGone
)

func (s ClientState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateJoined:
		return "joined"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateGone:
		return "gone"
	default:
		return "unknown"
	}
}

// ClientSession holds everything a client needs to consume the
// multicast stream after a successful handshake: the negotiated stream
// parameters and, if encryption is active, the AEAD key and salt.
type ClientSession struct {
	conn   net.Conn
	reader *bufio.Reader

	mu    sync.Mutex
	state ClientState
	err   error

	Handshake ParsedHandshake
	AEADKey   *[32]byte

	stopHeartbeat chan struct{}
	heartbeatDone chan struct{}
}

// Connect dials the server's control address, completes the handshake
// (including the opportunistic Noise exchange when the server
// advertises ENC_NOISE and no PSK is configured), and starts the
// background heartbeat loop.
func Connect(addr string, psk []byte) (*ClientSession, error) {
	conn, err := transport.Dial(addr)
	if err != nil {
		return nil, fmt.Errorf("remotemic: connect: %w", err)
	}

	cs := &ClientSession{
		conn:          conn,
		reader:        bufio.NewReader(conn),
		state:         StateConnecting,
		stopHeartbeat: make(chan struct{}),
		heartbeatDone: make(chan struct{}),
	}

	cs.setState(StateHandshaking)
	if err := cs.performHandshake(psk); err != nil {
		conn.Close()
		cs.setState(StateGone)
		return nil, err
	}
	cs.setState(StateJoined)

	go cs.heartbeatLoop()
	cs.setState(StateRunning)

	return cs, nil
}

func (cs *ClientSession) setState(s ClientState) {
	cs.mu.Lock()
	cs.state = s
	cs.mu.Unlock()
}

// State returns the current client state machine position.
func (cs *ClientSession) State() ClientState {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.state
}

func (cs *ClientSession) performHandshake(psk []byte) error {
	line, err := cs.reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("remotemic: read handshake line: %w", err)
	}
	line = trimLine(line)

	p, err := ParseHandshakeLine(line)
	if err != nil {
		return err
	}
	cs.Handshake = p

	switch {
	case len(p.Salt) > 0 && len(psk) > 0:
		key := crypto.DeriveSessionKey(psk, p.Salt)
		cs.AEADKey = &key
	case p.NoiseAdvertised:
		key, err := cs.performNoiseHandshake()
		if err != nil {
			return err
		}
		cs.AEADKey = &key
	}

	logrus.WithFields(logrus.Fields{
		"function": "ClientSession.performHandshake",
		"session":  p.SessionKey,
		"encrypted": cs.AEADKey != nil,
	}).Info("control handshake complete")

	return nil
}

func (cs *ClientSession) performNoiseHandshake() ([32]byte, error) {
	var key [32]byte

	hs, err := rnoise.NewNNHandshake(rnoise.Initiator)
	if err != nil {
		return key, err
	}

	msg1, _, err := hs.WriteMessage()
	if err != nil {
		return key, err
	}
	if err := writeHexLine(cs.conn, "NOISE_INIT", msg1); err != nil {
		return key, err
	}

	msg2, err := readHexLine(cs.reader, "NOISE_RESP")
	if err != nil {
		return key, err
	}
	complete, err := hs.ReadMessage(msg2)
	if err != nil {
		return key, err
	}
	if !complete {
		return key, fmt.Errorf("remotemic: NN handshake did not complete at initiator")
	}

	return hs.SessionKey()
}

func (cs *ClientSession) heartbeatLoop() {
	defer close(cs.heartbeatDone)

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	lastOK := time.Now()

	for {
		select {
		case <-cs.stopHeartbeat:
			return
		case <-ticker.C:
			cs.conn.SetReadDeadline(time.Now().Add(ClientTimeout))
			if _, err := fmt.Fprintf(cs.conn, "%s\n", HeartbeatLine(cs.Handshake.SessionKey)); err != nil {
				cs.fail(fmt.Errorf("remotemic: write heartbeat: %w", err))
				return
			}

			reply, err := cs.reader.ReadString('\n')
			if err != nil {
				if time.Since(lastOK) > ClientTimeout {
					cs.fail(fmt.Errorf("remotemic: heartbeat timeout: %w", err))
					return
				}
				continue
			}
			reply = trimLine(reply)

			switch reply {
			case LineHeartbeatOK:
				lastOK = time.Now()
			case LineServerStop:
				cs.fail(fmt.Errorf("remotemic: server stopped"))
				return
			}
		}
	}
}

func (cs *ClientSession) fail(err error) {
	cs.mu.Lock()
	cs.state = StateGone
	cs.err = err
	cs.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"function": "ClientSession.heartbeatLoop",
		"error":    err.Error(),
	}).Warn("control session ended")
}

// Err returns the error that caused the client to enter StateGone, if
// any.
func (cs *ClientSession) Err() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.err
}

// Disconnect sends DISCONNECT, stops the heartbeat loop, and closes the
// connection.
func (cs *ClientSession) Disconnect() error {
	cs.setState(StateDraining)
	close(cs.stopHeartbeat)
	<-cs.heartbeatDone

	fmt.Fprintf(cs.conn, "%s\n", LineDisconnect)
	err := cs.conn.Close()
	cs.setState(StateGone)
	return err
}
