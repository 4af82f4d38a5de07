package camera

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/fpang/funny-booth/internal/imageuri"
	"github.com/rs/zerolog/log"
)

// File is a Device whose frames come from an image file on disk.
// Used by the CLI in place of a webcam.
type File struct {
	Path string
}

// Open checks that the file is a readable image and returns a stream that is
// ready immediately.
func (f File) Open(ctx context.Context) (Stream, error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return nil, &UnavailableError{Reason: "image file not accessible", Err: err}
	}
	if info.IsDir() {
		return nil, &UnavailableError{Reason: fmt.Sprintf("%s is a directory", f.Path)}
	}

	log.Debug().Str("path", f.Path).Int64("bytes", info.Size()).Msg("File camera opened")

	ready := make(chan struct{})
	close(ready)
	return &fileStream{path: f.Path, ready: ready, failed: make(chan error)}, nil
}

type fileStream struct {
	path   string
	ready  chan struct{}
	failed chan error

	mu     sync.Mutex
	closed bool
}

func (s *fileStream) Ready() <-chan struct{} { return s.ready }
func (s *fileStream) Failed() <-chan error   { return s.failed }

func (s *fileStream) Capture(ctx context.Context) (imageuri.EncodedImage, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return imageuri.EncodedImage{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return imageuri.EncodedImage{}, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return imageuri.EncodedImage{}, fmt.Errorf("failed to read frame: %w", err)
	}
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return imageuri.EncodedImage{}, fmt.Errorf("%s is not an image (detected %s)", s.path, mimeType)
	}
	return imageuri.New(mimeType, data), nil
}

func (s *fileStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
