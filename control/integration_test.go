package control

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerClientHandshakeAndHeartbeatPlain(t *testing.T) {
	srv, err := StartServer(ServerConfig{
		ListenAddr: "127.0.0.1:0",
		SampleRate: 48000,
		Channels:   1,
		FmtCode:    1,
		McastIP:    net.ParseIP("239.1.2.3"),
		McastPort:  5004,
	})
	require.NoError(t, err)
	defer srv.Stop()

	cli, err := Connect(srv.Addr().String(), nil)
	require.NoError(t, err)

	assert.Equal(t, uint32(48000), cli.Handshake.SampleRate)
	assert.Nil(t, cli.AEADKey)

	time.Sleep(50 * time.Millisecond)
	sessions := srv.Sessions().All()
	require.Len(t, sessions, 1)

	require.NoError(t, cli.Disconnect())
}

func TestServerClientHandshakeOpportunisticEncryption(t *testing.T) {
	srv, err := StartServer(ServerConfig{
		ListenAddr:              "127.0.0.1:0",
		SampleRate:              16000,
		Channels:                1,
		FmtCode:                 1,
		McastIP:                 net.ParseIP("239.1.2.4"),
		McastPort:               5005,
		OpportunisticEncryption: true,
	})
	require.NoError(t, err)
	defer srv.Stop()

	cli, err := Connect(srv.Addr().String(), nil)
	require.NoError(t, err)
	defer cli.Disconnect()

	require.NotNil(t, cli.AEADKey)
	assert.True(t, cli.Handshake.NoiseAdvertised)
}

func TestServerClientHandshakePSK(t *testing.T) {
	psk := []byte("shared secret between server and client")

	srv, err := StartServer(ServerConfig{
		ListenAddr: "127.0.0.1:0",
		SampleRate: 48000,
		Channels:   2,
		FmtCode:    1,
		McastIP:    net.ParseIP("239.1.2.6"),
		McastPort:  5007,
		PSK:        psk,
	})
	require.NoError(t, err)
	defer srv.Stop()

	cli, err := Connect(srv.Addr().String(), psk)
	require.NoError(t, err)
	defer cli.Disconnect()

	require.NotNil(t, cli.AEADKey)
	require.NotEmpty(t, cli.Handshake.Salt)
	assert.Equal(t, uint32(48000), cli.Handshake.SampleRate)
}

func TestServerClientHandshakePSKWithoutMatchingKey(t *testing.T) {
	srv, err := StartServer(ServerConfig{
		ListenAddr: "127.0.0.1:0",
		SampleRate: 48000,
		Channels:   1,
		FmtCode:    1,
		McastIP:    net.ParseIP("239.1.2.7"),
		McastPort:  5008,
		PSK:        []byte("server-side secret"),
	})
	require.NoError(t, err)
	defer srv.Stop()

	// Connect without the matching PSK, as a misconfigured client would.
	cli, err := Connect(srv.Addr().String(), nil)
	require.NoError(t, err)
	defer cli.Disconnect()

	// The server still advertises its salt and multicasts sealed
	// frames; a client with no PSK has no way to derive the key and
	// must hold none, leaving it unable to decode the encrypted
	// stream (see jitter.TestReceiverDropsFrameWhenEncryptionActiveButNoKeyHeld).
	require.NotEmpty(t, cli.Handshake.Salt)
	assert.Nil(t, cli.AEADKey)
}

func TestServerEvictsSessionOnHeartbeatTimeout(t *testing.T) {
	srv, err := StartServer(ServerConfig{
		ListenAddr:       "127.0.0.1:0",
		SampleRate:       48000,
		Channels:         1,
		FmtCode:          1,
		McastIP:          net.ParseIP("239.1.2.5"),
		McastPort:        5006,
		HeartbeatTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 256)
	_, err = conn.Read(buf)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(srv.Sessions().All()) == 0
	}, 2*time.Second, 20*time.Millisecond)
}
