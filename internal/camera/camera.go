// Package camera adapts capture devices to the booth session.
//
// A Device opens a Stream. The stream reports readiness and failure on two
// separate channels instead of returning an error across an asynchronous
// boundary, yields frames on demand, and must be closed when the session
// leaves the camera phases.
package camera

import (
	"context"
	"errors"

	"github.com/fpang/funny-booth/internal/imageuri"
)

// ErrFramesPushed is returned by Capture on streams whose frames are pushed
// by the client rather than pulled from the device.
var ErrFramesPushed = errors.New("frames for this stream are supplied by the client")

// ErrClosed is returned by Capture after the stream has been closed.
var ErrClosed = errors.New("camera stream closed")

// UnavailableError reports missing hardware or denied permission.
type UnavailableError struct {
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	msg := "camera unavailable"
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Device opens capture streams.
type Device interface {
	// Open acquires a stream. It fails with *UnavailableError when the
	// device cannot be used at all.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an acquired capture stream.
type Stream interface {
	// Ready is closed once frames can be captured.
	Ready() <-chan struct{}
	// Failed delivers at most one error if the stream breaks before or after readiness.
	Failed() <-chan error
	// Capture grabs the current frame.
	Capture(ctx context.Context) (imageuri.EncodedImage, error)
	// Close releases the device. It is safe to call more than once.
	Close() error
}
