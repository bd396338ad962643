package control

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSessionKeyLengthAndAlphabet(t *testing.T) {
	key, err := GenerateSessionKey()
	require.NoError(t, err)
	assert.Len(t, key, sessionKeyLength)
	for _, r := range key {
		assert.Contains(t, sessionKeyAlphabet, string(r))
	}
}

func TestHandshakeLineRoundTripPlain(t *testing.T) {
	line := HandshakeLine("abc123", 48000, 1, 1, net.ParseIP("239.5.5.5"), 5004, nil, false)
	p, err := ParseHandshakeLine(line)
	require.NoError(t, err)
	assert.Equal(t, "abc123", p.SessionKey)
	assert.Equal(t, uint32(48000), p.SampleRate)
	assert.Equal(t, uint8(1), p.Channels)
	assert.Equal(t, uint8(1), p.FmtCode)
	assert.Equal(t, "239.5.5.5", p.McastIP.String())
	assert.Equal(t, 5004, p.McastPort)
	assert.Nil(t, p.Salt)
	assert.False(t, p.NoiseAdvertised)
}

func TestHandshakeLineRoundTripEncrypted(t *testing.T) {
	salt := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	line := HandshakeLine("key", 16000, 1, 2, net.ParseIP("239.9.9.9"), 6000, salt, false)
	p, err := ParseHandshakeLine(line)
	require.NoError(t, err)
	assert.Equal(t, salt, p.Salt)
}

func TestHandshakeLineRoundTripNoiseAdvertised(t *testing.T) {
	line := HandshakeLine("key", 16000, 1, 2, net.ParseIP("239.9.9.9"), 6000, nil, true)
	p, err := ParseHandshakeLine(line)
	require.NoError(t, err)
	assert.True(t, p.NoiseAdvertised)
	assert.Nil(t, p.Salt)
}

func TestParseHandshakeLineRejectsMalformed(t *testing.T) {
	_, err := ParseHandshakeLine("NOT OK")
	assert.Error(t, err)
}

func TestHeartbeatLineRoundTrip(t *testing.T) {
	line := HeartbeatLine("sesskey")
	key, ok := ParseHeartbeatLine(line)
	require.True(t, ok)
	assert.Equal(t, "sesskey", key)
}

func TestParseHeartbeatLineRejectsWrongTag(t *testing.T) {
	_, ok := ParseHeartbeatLine("PING sesskey")
	assert.False(t, ok)
}
