package mcast

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remotemic/bufpool"
	"remotemic/frame"
)

type fakeConn struct {
	sent    [][]byte
	failNth int // 0 disables
	calls   int
}

func (f *fakeConn) Send(data []byte) error {
	f.calls++
	if f.failNth != 0 && f.calls == f.failNth {
		return assert.AnError
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, cp)
	return nil
}

func makeSlot(payload []byte) []byte {
	slot := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(slot[:4], uint32(len(payload)))
	copy(slot[4:], payload)
	return slot
}

func TestSenderSendOnePlain(t *testing.T) {
	conn := &fakeConn{}
	s := NewSender(SenderConfig{
		Conn:       conn,
		SampleRate: 48000,
		Channels:   1,
		FmtCode:    1,
		StartedAt:  time.Now(),
	})

	payload := []byte{1, 2, 3, 4}
	s.sendOne(makeSlot(payload))

	require.Len(t, conn.sent, 1)
	h, body, err := frame.Decode(conn.sent[0], nil, [8]byte{})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), h.Seq)
	assert.Equal(t, payload, body)

	sent, failed := s.Stats()
	assert.Equal(t, uint64(1), sent)
	assert.Equal(t, uint64(0), failed)
}

func TestSenderSendOneSealed(t *testing.T) {
	conn := &fakeConn{}
	key := [32]byte{1}
	salt := [8]byte{2}
	s := NewSender(SenderConfig{
		Conn:       conn,
		SampleRate: 16000,
		Channels:   1,
		FmtCode:    1,
		Key:        &key,
		Salt:       salt,
		StartedAt:  time.Now(),
	})

	payload := []byte{9, 9, 9}
	s.sendOne(makeSlot(payload))

	require.Len(t, conn.sent, 1)
	_, body, err := frame.Decode(conn.sent[0], &key, salt)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestSenderSeqIncrementsAndWraps(t *testing.T) {
	conn := &fakeConn{}
	s := NewSender(SenderConfig{Conn: conn, StartedAt: time.Now()})
	s.nextSeq = 0xFFFFFFFE

	for i := 0; i < 4; i++ {
		s.sendOne(makeSlot([]byte{byte(i)}))
	}

	var seqs []uint32
	for _, dg := range conn.sent {
		h, _, err := frame.Decode(dg, nil, [8]byte{})
		require.NoError(t, err)
		seqs = append(seqs, h.Seq)
	}
	assert.Equal(t, []uint32{0xFFFFFFFE, 0xFFFFFFFF, 0, 1}, seqs)
}

func TestSenderDropsOnSendError(t *testing.T) {
	conn := &fakeConn{failNth: 1}
	s := NewSender(SenderConfig{Conn: conn, StartedAt: time.Now()})

	s.sendOne(makeSlot([]byte{1}))

	sent, failed := s.Stats()
	assert.Equal(t, uint64(0), sent)
	assert.Equal(t, uint64(1), failed)
}

func TestSenderRunDrainsPoolUntilStopped(t *testing.T) {
	pool := bufpool.New(4, 64)
	conn := &fakeConn{}
	s := NewSender(SenderConfig{Pool: pool, Conn: conn, StartedAt: time.Now()})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		s.Run(stop)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		idx, buf, ok := pool.AcquireFree()
		require.True(t, ok)
		n := copy(buf, makeSlot([]byte{byte(i)}))
		_ = n
		pool.PushFilled(idx)
	}

	assert.Eventually(t, func() bool {
		return len(conn.sent) == 3
	}, time.Second, 5*time.Millisecond)

	close(stop)
	<-done
}
