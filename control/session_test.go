package control

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remotemic/crypto"
)

func TestTableAddGetTouch(t *testing.T) {
	tp := &crypto.MockTimeProvider{CurrentTime: time.Unix(1000, 0)}
	table := NewTable(tp)

	s := &Session{Key: "k1"}
	table.Add(s)

	got, ok := table.Get("k1")
	require.True(t, ok)
	assert.Equal(t, SessionStateActive, got.State)
	assert.Equal(t, tp.CurrentTime, got.LastHeartbeat)

	tp.Advance(2 * time.Second)
	assert.True(t, table.Touch("k1"))
	got, _ = table.Get("k1")
	assert.Equal(t, tp.CurrentTime, got.LastHeartbeat)
}

func TestTableTouchUnknownKeyReturnsFalse(t *testing.T) {
	table := NewTable(nil)
	assert.False(t, table.Touch("missing"))
}

func TestTableExpired(t *testing.T) {
	tp := &crypto.MockTimeProvider{CurrentTime: time.Unix(0, 0)}
	table := NewTable(tp)

	table.Add(&Session{Key: "stale"})
	tp.Advance(1 * time.Second)
	table.Add(&Session{Key: "fresh"})

	tp.Advance(2500 * time.Millisecond)

	expired := table.Expired(3 * time.Second)
	require.Len(t, expired, 1)
	assert.Equal(t, "stale", expired[0].Key)
}

func TestTableRemoveAndAll(t *testing.T) {
	table := NewTable(nil)
	table.Add(&Session{Key: "a"})
	table.Add(&Session{Key: "b"})
	assert.Len(t, table.All(), 2)

	table.Remove("a")
	all := table.All()
	require.Len(t, all, 1)
	assert.Equal(t, "b", all[0].Key)
}
