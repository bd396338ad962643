// Package client wires a PlaybackSink collaborator into a running
// remotemic.ClientHandle: decoded, jitter-released audio is pulled by
// the sink's callback directly from the handle's output stage.
package client

import (
	"fmt"

	"remotemic"
	"remotemic/av/audio"
	"remotemic/control"
	"remotemic/interfaces"
	"remotemic/metrics"
)

// Runner owns a ClientHandle and the PlaybackSink consuming it.
type Runner struct {
	handle   *remotemic.ClientHandle
	playback interfaces.PlaybackSink
}

// Connect performs the control handshake against addr, then starts
// sink pulling decoded audio from the client's jitter buffer output.
// psk may be nil to rely on opportunistic encryption or run in the
// clear. codec is used to decode Opus-formatted frames; it may be nil
// if the server never advertises FormatOpus.
func Connect(addr string, psk []byte, codec *audio.OpusCodec, sink interfaces.PlaybackSink) (*Runner, error) {
	handle, err := remotemic.Connect(addr, psk, codec)
	if err != nil {
		return nil, err
	}

	r := &Runner{handle: handle, playback: sink}

	if err := sink.Start(handle.SampleRate(), handle.Callback()); err != nil {
		handle.Disconnect()
		return nil, fmt.Errorf("remotemic/client: start playback sink: %w", err)
	}

	return r, nil
}

// State returns the underlying control session's state.
func (r *Runner) State() control.ClientState { return r.handle.State() }

// SubscribeMetrics returns a channel of periodic pipeline snapshots.
func (r *Runner) SubscribeMetrics() chan metrics.Snapshot { return r.handle.SubscribeMetrics() }

// UnsubscribeMetrics releases a metrics subscription.
func (r *Runner) UnsubscribeMetrics(ch chan metrics.Snapshot) { r.handle.UnsubscribeMetrics(ch) }

// Disconnect halts playback and tears down the client session.
func (r *Runner) Disconnect() error {
	if err := r.playback.Stop(); err != nil {
		return fmt.Errorf("remotemic/client: stop playback sink: %w", err)
	}
	return r.handle.Disconnect()
}
