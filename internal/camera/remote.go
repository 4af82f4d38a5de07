package camera

import (
	"context"

	"github.com/fpang/funny-booth/internal/imageuri"
)

// Remote is a Device for cameras owned by the client (the browser webcam).
// The server never sees the hardware: readiness, failure and frames all
// arrive as client events, so the stream's channels stay silent and Capture
// always returns ErrFramesPushed.
type Remote struct{}

// Open returns a placeholder stream that marks the session as owning the camera.
func (Remote) Open(ctx context.Context) (Stream, error) {
	return &remoteStream{ready: make(chan struct{}), failed: make(chan error)}, nil
}

type remoteStream struct {
	ready  chan struct{}
	failed chan error
}

func (s *remoteStream) Ready() <-chan struct{} { return s.ready }
func (s *remoteStream) Failed() <-chan error   { return s.failed }

func (s *remoteStream) Capture(context.Context) (imageuri.EncodedImage, error) {
	return imageuri.EncodedImage{}, ErrFramesPushed
}

func (s *remoteStream) Close() error { return nil }
