// Package remotemic assembles the buffer pool, frame codec, control
// channel, multicast sender, and client jitter pipeline into the two
// facades applications actually use: StartServer and Connect.
package remotemic

import (
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"remotemic/av/audio"
	"remotemic/bufpool"
	"remotemic/control"
	"remotemic/jitter"
	"remotemic/mcast"
	"remotemic/metrics"
	"remotemic/transport"
)

// Options configures a server instance; Connect takes its parameters
// directly.
type Options struct {
	// ListenAddr is the server's control TCP address, e.g. ":5004". Its
	// port doubles as the multicast UDP port, so it must be a concrete,
	// non-zero port rather than ":0".
	ListenAddr string

	SampleRate uint32
	Channels   uint8
	FmtCode    uint8

	// PSK enables pre-shared-key AEAD when non-empty.
	PSK []byte
	// OpportunisticEncryption enables the Noise_NN handshake when PSK is
	// empty.
	OpportunisticEncryption bool

	TTL       int
	PoolSlots int
	SlotSize  int

	HeartbeatTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.TTL == 0 {
		o.TTL = mcast.DefaultTTL
	}
	if o.PoolSlots == 0 {
		o.PoolSlots = 8
	}
	if o.SlotSize == 0 {
		o.SlotSize = bufpool.DefaultSlotSize
	}
}

// ServerHandle owns every resource a running server holds: the control
// channel, the multicast sender, and the capture buffer pool.
type ServerHandle struct {
	ctrl   *control.Server
	sender *mcast.Sender
	conn   *transport.MulticastConn
	pool   *bufpool.Pool
	stop   chan struct{}

	mcastGroup *net.UDPAddr
}

// StartServer starts the control channel, joins/opens the chosen
// multicast group, and launches the multicast send loop. The caller
// feeds captured audio in via AcquireCaptureSlot/PushCaptureFilled from
// a CaptureSource collaborator.
func StartServer(opts Options) (*ServerHandle, error) {
	opts.applyDefaults()

	_, portStr, err := net.SplitHostPort(opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("remotemic: listen addr must include a port: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return nil, fmt.Errorf("remotemic: listen addr must have a concrete non-zero port")
	}

	group := transport.PickMulticastGroup(port, rand.New(rand.NewSource(time.Now().UnixNano())))

	conn, err := transport.NewMulticastSender(group, opts.TTL)
	if err != nil {
		return nil, err
	}

	pool := bufpool.New(opts.PoolSlots, opts.SlotSize)

	sender := mcast.NewSender(mcast.SenderConfig{
		Pool:       pool,
		Conn:       conn,
		SampleRate: opts.SampleRate,
		Channels:   opts.Channels,
		FmtCode:    opts.FmtCode,
	})

	ctrl, err := control.StartServer(control.ServerConfig{
		ListenAddr:              opts.ListenAddr,
		SampleRate:              opts.SampleRate,
		Channels:                opts.Channels,
		FmtCode:                 opts.FmtCode,
		McastIP:                 group.IP,
		McastPort:               group.Port,
		PSK:                     opts.PSK,
		OpportunisticEncryption: opts.OpportunisticEncryption,
		HeartbeatTimeout:        opts.HeartbeatTimeout,
		OnKeyEstablished:        sender.SetKey,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	h := &ServerHandle{
		ctrl:       ctrl,
		sender:     sender,
		conn:       conn,
		pool:       pool,
		stop:       make(chan struct{}),
		mcastGroup: group,
	}
	go h.sender.Run(h.stop)

	return h, nil
}

// Addr returns the control channel's TCP listen address.
func (h *ServerHandle) Addr() net.Addr { return h.ctrl.Addr() }

// MulticastGroup returns the multicast group and port frames are sent
// to.
func (h *ServerHandle) MulticastGroup() *net.UDPAddr { return h.mcastGroup }

// AcquireCaptureSlot hands the caller (a CaptureSource collaborator) a
// buffer to fill with a 4-byte payload_len prefix followed by raw PCM.
func (h *ServerHandle) AcquireCaptureSlot() (bufpool.SlotIndex, []byte, bool) {
	return h.pool.AcquireFree()
}

// PushCaptureFilled hands a filled slot to the multicast send loop.
func (h *ServerHandle) PushCaptureFilled(idx bufpool.SlotIndex) {
	h.pool.PushFilled(idx)
}

// ReleaseCaptureSlot returns a slot acquired via AcquireCaptureSlot
// without sending it, for a caller that decides not to fill it (e.g.
// an oversized capture batch).
func (h *ServerHandle) ReleaseCaptureSlot(idx bufpool.SlotIndex) {
	h.pool.Release(idx)
}

// Sessions returns the live control session table, for diagnostics or
// admission UIs.
func (h *ServerHandle) Sessions() *control.Table {
	return h.ctrl.Sessions()
}

// Stop shuts down the send loop, multicast socket, and control channel.
func (h *ServerHandle) Stop() error {
	close(h.stop)
	h.conn.Close()
	return h.ctrl.Stop()
}

// ClientHandle owns every resource a running client holds: the control
// session, the multicast receiver, and the jitter pipeline.
type ClientHandle struct {
	ctrlSession *control.ClientSession
	conn        *transport.MulticastConn
	pipeline    *jitter.Pipeline
	output      *jitter.Output
	registry    *metrics.Registry
	stop        chan struct{}
	releaseOut  chan []float32
}

// Connect performs the control-channel handshake, joins the negotiated
// multicast group, and starts the receive/release/metrics goroutines.
// psk may be nil to rely on opportunistic encryption or run in the
// clear.
func Connect(addr string, psk []byte, codec *audio.OpusCodec) (*ClientHandle, error) {
	cs, err := control.Connect(addr, psk)
	if err != nil {
		return nil, err
	}

	group := &net.UDPAddr{IP: cs.Handshake.McastIP, Port: cs.Handshake.McastPort}
	conn, err := transport.NewMulticastReceiver(group)
	if err != nil {
		cs.Disconnect()
		return nil, err
	}

	pipeline := jitter.NewPipeline(nil)
	output := jitter.NewOutput(cs.Handshake.SampleRate)
	registry := metrics.NewRegistry()

	var salt [8]byte
	copy(salt[:], cs.Handshake.Salt)

	receiver := jitter.NewReceiver(jitter.ReceiverConfig{
		Conn:             conn,
		Key:              cs.AEADKey,
		Salt:             salt,
		EncryptionActive: len(cs.Handshake.Salt) > 0 || cs.Handshake.NoiseAdvertised,
		Channels:         cs.Handshake.Channels,
		Codec:            codec,
	}, pipeline)

	releaseOut := make(chan []float32, 64)
	releaser := jitter.NewReleaser(pipeline, releaseOut)
	publisher := jitter.NewMetricsPublisher(pipeline, output, registry)

	h := &ClientHandle{
		ctrlSession: cs,
		conn:        conn,
		pipeline:    pipeline,
		output:      output,
		registry:    registry,
		stop:        make(chan struct{}),
		releaseOut:  releaseOut,
	}

	go receiver.Run(h.stop)
	go releaser.Run(h.stop)
	go output.FeedFrom(releaseOut, h.stop)
	go publisher.Run(h.stop)

	return h, nil
}

// State returns the client's current control-channel state.
func (h *ClientHandle) State() control.ClientState { return h.ctrlSession.State() }

// SampleRate returns the sample rate negotiated at handshake time.
func (h *ClientHandle) SampleRate() uint32 { return h.ctrlSession.Handshake.SampleRate }

// Callback is passed to a PlaybackSink collaborator's Start method.
func (h *ClientHandle) Callback() func(buf []float32) int {
	return h.output.Callback
}

// SubscribeMetrics returns a channel that receives a Snapshot roughly
// every 100ms until Unsubscribe is called.
func (h *ClientHandle) SubscribeMetrics() chan metrics.Snapshot {
	return h.registry.Subscribe()
}

// UnsubscribeMetrics releases a metrics subscription.
func (h *ClientHandle) UnsubscribeMetrics(ch chan metrics.Snapshot) {
	h.registry.Unsubscribe(ch)
}

// Disconnect stops all client goroutines, leaves the multicast group,
// and sends DISCONNECT on the control channel.
func (h *ClientHandle) Disconnect() error {
	close(h.stop)
	h.conn.Close()
	return h.ctrlSession.Disconnect()
}
