// Package server wires a CaptureSource collaborator into a running
// remotemic.ServerHandle: every captured batch is copied into a
// capture slot with its length prefix and handed to the multicast
// send loop.
package server

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"

	"remotemic"
	"remotemic/interfaces"
)

// Runner owns a ServerHandle and the CaptureSource feeding it.
type Runner struct {
	handle  *remotemic.ServerHandle
	capture interfaces.CaptureSource
}

// Start starts the control/multicast server described by opts and
// begins pulling captured audio from src into it. The returned Runner
// must be stopped with Stop.
func Start(opts remotemic.Options, src interfaces.CaptureSource) (*Runner, error) {
	handle, err := remotemic.StartServer(opts)
	if err != nil {
		return nil, err
	}

	r := &Runner{handle: handle, capture: src}

	if err := src.Start(r.onCaptured); err != nil {
		handle.Stop()
		return nil, fmt.Errorf("remotemic/server: start capture source: %w", err)
	}

	return r, nil
}

// onCaptured is the CaptureSource callback: it copies the batch into a
// free capture slot with a 4-byte big-endian payload_len prefix,
// dropping the batch if no slot is free (the capture side never
// blocks) or if it does not fit in the slot. The rate, channels and
// format arguments are not checked against the server's configured
// stream parameters.
func (r *Runner) onCaptured(pcm []byte, rate uint32, channels uint8, format uint8) {
	idx, slot, ok := r.handle.AcquireCaptureSlot()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Runner.onCaptured",
		}).Debug("no free capture slot, dropping batch")
		return
	}

	if len(pcm)+4 > len(slot) {
		logrus.WithFields(logrus.Fields{
			"function": "Runner.onCaptured",
			"len":      len(pcm),
		}).Warn("captured batch exceeds slot capacity, dropping")
		r.handle.ReleaseCaptureSlot(idx)
		return
	}

	binary.BigEndian.PutUint32(slot[:4], uint32(len(pcm)))
	copy(slot[4:], pcm)

	r.handle.PushCaptureFilled(idx)
}

// Addr returns the control channel's listen address.
func (r *Runner) Addr() net.Addr { return r.handle.Addr() }

// Stop halts capture and shuts down the server.
func (r *Runner) Stop() error {
	if err := r.capture.Stop(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Runner.Stop",
			"error":    err.Error(),
		}).Warn("capture source stop returned an error")
	}
	return r.handle.Stop()
}
