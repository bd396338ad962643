package control

import (
	"net"
	"sync"
	"time"

	"remotemic/crypto"
)

// SessionState is the server-side per-connection state machine position,
// per the control channel's documented transitions:
// Listening → Accepted → Active → Closing → Gone.
type SessionState int

const (
	SessionStateAccepted SessionState = iota
	SessionStateActive
	SessionStateClosing
	SessionStateGone
)

// Session is the server's record of one connected client, created on TCP
// accept and destroyed on DISCONNECT, SERVER_STOP, TCP close, or a 5s
// heartbeat timeout.
type Session struct {
	Key           string
	SampleRate    uint32
	Channels      uint8
	FmtCode       uint8
	McastIP       net.IP
	McastPort     int
	Salt          []byte // nil when encryption is off
	NoiseKey      *[32]byte
	State         SessionState
	LastHeartbeat time.Time
	conn          net.Conn
}

// Table is the server's mutex-protected session map, keyed by session
// key — the back-reference the TCP connection holds is just this key
// (a value), never a pointer, so session and connection lifetimes stay
// acyclic.
type Table struct {
	mu       sync.Mutex
	sessions map[string]*Session
	tp       crypto.TimeProvider
}

// NewTable creates an empty session table using the given time provider
// (nil selects the real clock).
func NewTable(tp crypto.TimeProvider) *Table {
	if tp == nil {
		tp = crypto.GetDefaultTimeProvider()
	}
	return &Table{sessions: make(map[string]*Session), tp: tp}
}

// Add inserts a new session, stamping LastHeartbeat to now.
func (t *Table) Add(s *Session) {
	s.LastHeartbeat = t.tp.Now()
	s.State = SessionStateActive
	t.mu.Lock()
	t.sessions[s.Key] = s
	t.mu.Unlock()
}

// Touch refreshes a session's heartbeat timestamp. Returns false if no
// session with that key exists (the caller should silently ignore the
// heartbeat, per the specified behavior for unknown session keys).
func (t *Table) Touch(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[key]
	if !ok {
		return false
	}
	s.LastHeartbeat = t.tp.Now()
	return true
}

// Remove deletes a session from the table.
func (t *Table) Remove(key string) {
	t.mu.Lock()
	delete(t.sessions, key)
	t.mu.Unlock()
}

// Get returns a session by key.
func (t *Table) Get(key string) (*Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[key]
	return s, ok
}

// Expired returns the sessions whose last heartbeat is older than
// timeout, without removing them — the caller closes each connection,
// which causes its own handler goroutine to remove and clean up.
func (t *Table) Expired(timeout time.Duration) []*Session {
	now := t.tp.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []*Session
	for _, s := range t.sessions {
		if now.Sub(s.LastHeartbeat) > timeout {
			expired = append(expired, s)
		}
	}
	return expired
}

// All returns a snapshot slice of every live session, for SERVER_STOP
// broadcast.
func (t *Table) All() []*Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	return out
}
