// Package booth implements the photo booth session: a state machine driven
// by client events (start, camera ready/error, capture, generate, retake,
// reset) that owns the capture stream and invokes the generation pipeline.
package booth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fpang/funny-booth/internal/camera"
	"github.com/fpang/funny-booth/internal/chat"
	"github.com/fpang/funny-booth/internal/imageuri"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidTransition is returned when an event is not valid in the current phase.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrGenerationInFlight is returned by Generate while a generation is already running.
	ErrGenerationInFlight = errors.New("generation already in progress")

	// ErrSuperseded is returned when the session moved on (reset, retake)
	// before an asynchronous operation finished; its result was discarded.
	ErrSuperseded = errors.New("session changed before the operation completed")
)

// defaultCameraError is shown when the client reports a camera failure without a message.
const defaultCameraError = "Could not access the camera. Please check permissions and try again."

// TransitionError names the rejected event and the phase it arrived in.
type TransitionError struct {
	Event string
	Phase Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s while %s", ErrInvalidTransition, e.Event, e.Phase)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Pipeline turns a captured frame into a generated image.
type Pipeline interface {
	Generate(ctx context.Context, captured imageuri.EncodedImage) (imageuri.EncodedImage, error)
}

// Session is one user's run through the booth. It is safe for concurrent use.
type Session struct {
	id       string
	device   camera.Device
	pipeline Pipeline
	now      func() time.Time

	mu         sync.Mutex
	state      State
	version    uint64
	changed    chan struct{}
	lastActive time.Time

	stream        camera.Stream
	streamDone    chan struct{}
	cameraAttempt uint64
	cancelGen     context.CancelFunc
}

// NewSession creates a session in the Idle phase.
func NewSession(id string, device camera.Device, pipeline Pipeline) *Session {
	s := &Session{
		id:       id,
		device:   device,
		pipeline: pipeline,
		now:      time.Now,
		state:    Idle{},
		changed:  make(chan struct{}),
	}
	s.lastActive = s.now()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the JSON view of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotOf(s.id, s.state, s.version)
}

// LastActive returns when the session last changed state.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Await blocks until the session is in one of phases or ctx is done.
func (s *Session) Await(ctx context.Context, phases ...Phase) (State, error) {
	for {
		s.mu.Lock()
		st, changed := s.state, s.changed
		s.mu.Unlock()

		for _, p := range phases {
			if st.Phase() == p {
				return st, nil
			}
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// Start opens the camera: Idle → CameraLoading. A device that cannot be
// opened moves the session to Error instead; that is not returned as an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if _, ok := s.state.(Idle); !ok {
		defer s.mu.Unlock()
		return s.reject("start")
	}
	attempt := s.enterCameraLoading()
	s.mu.Unlock()
	return s.openCamera(ctx, attempt)
}

// CameraReady reports that the capture stream is live: CameraLoading → CameraOn.
func (s *Session) CameraReady() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.(CameraLoading); !ok {
		return s.reject("camera ready")
	}
	s.transition(CameraOn{})
	return nil
}

// CameraError reports a camera failure: CameraLoading/CameraOn → Error(msg).
func (s *Session) CameraError(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !inCameraPhase(s.state) {
		return s.reject("report camera error")
	}
	s.failCamera(msg)
	return nil
}

// Capture pulls a frame from the open stream: CameraOn → Captured.
// Streams whose frames are pushed by the client return camera.ErrFramesPushed
// and leave the state unchanged; use CaptureImage for those.
func (s *Session) Capture(ctx context.Context) error {
	s.mu.Lock()
	if _, ok := s.state.(CameraOn); !ok {
		defer s.mu.Unlock()
		return s.reject("capture")
	}
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return errors.New("capture: camera stream is still opening")
	}

	img, err := stream.Capture(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != stream {
		return ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, camera.ErrFramesPushed) {
			return err
		}
		s.failCamera(err.Error())
		return err
	}
	return s.captureLocked(img)
}

// CaptureImage records a frame supplied by the client: CameraOn → Captured.
func (s *Session) CaptureImage(img imageuri.EncodedImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.(CameraOn); !ok {
		return s.reject("capture")
	}
	return s.captureLocked(img)
}

func (s *Session) captureLocked(img imageuri.EncodedImage) error {
	if img.IsZero() {
		return fmt.Errorf("capture: %w", imageuri.ErrInvalidData)
	}
	s.transition(Captured{Image: img})
	log.Debug().Str("session", s.id).Int("image_bytes", len(img.Data)).Msg("Frame captured")
	return nil
}

// Generate runs the pipeline on the captured frame: Captured → Generating →
// Result or Error. It blocks until the pipeline returns. Only one generation
// may be in flight; a second call gets ErrGenerationInFlight.
//
// If the session is reset or retaken meanwhile, the late result is discarded
// and ErrSuperseded is returned. A pipeline failure is recorded as the Error
// state and also returned.
func (s *Session) Generate(ctx context.Context) error {
	run, err := s.beginGenerate(ctx)
	if err != nil {
		return err
	}
	return run()
}

// GenerateAsync moves to Generating and runs the pipeline in the background.
// Rejections (wrong phase, generation in flight) are returned directly; the
// outcome of the pipeline is delivered on the returned channel.
func (s *Session) GenerateAsync(ctx context.Context) (<-chan error, error) {
	run, err := s.beginGenerate(ctx)
	if err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- run() }()
	return done, nil
}

// beginGenerate performs the Captured → Generating transition and returns the
// function that runs the pipeline and applies its outcome.
func (s *Session) beginGenerate(ctx context.Context) (func() error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var captured imageuri.EncodedImage
	switch st := s.state.(type) {
	case Generating:
		return nil, ErrGenerationInFlight
	case Captured:
		captured = st.Image
	default:
		return nil, s.reject("generate")
	}

	genCtx, cancel := context.WithCancel(ctx)
	s.transition(Generating{Image: captured})
	s.cancelGen = cancel
	version := s.version

	return func() error {
		defer cancel()
		log.Info().Str("session", s.id).Msg("Generating funny image")
		start := time.Now()
		generated, err := s.runPipeline(genCtx, captured)
		return s.finishGenerate(version, captured, generated, err, time.Since(start))
	}, nil
}

// finishGenerate applies a pipeline outcome if the session has not moved on.
func (s *Session) finishGenerate(version uint64, captured, generated imageuri.EncodedImage, err error, took time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		log.Info().Str("session", s.id).Dur("duration", took).Msg("Discarding result of abandoned generation")
		return ErrSuperseded
	}
	s.cancelGen = nil

	if err != nil {
		img := captured
		s.transition(Failed{Image: &img, Message: "Failed to generate image. " + err.Error()})
		log.Warn().Err(err).Str("session", s.id).Dur("duration", took).Msg("Generation failed")
		return err
	}

	s.transition(Result{Image: captured, Generated: generated})
	log.Info().Str("session", s.id).Dur("duration", took).Msg("Generation complete")
	return nil
}

// runPipeline calls the pipeline and converts a panic into chat.ErrUnknown.
func (s *Session) runPipeline(ctx context.Context, captured imageuri.EncodedImage) (out imageuri.EncodedImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("session", s.id).Msg("Pipeline panicked")
			out, err = imageuri.EncodedImage{}, chat.ErrUnknown
		}
	}()
	return s.pipeline.Generate(ctx, captured)
}

// Retake discards the capture and reopens the camera:
// Captured/Result/Error → CameraLoading.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	switch s.state.(type) {
	case Captured, Result, Failed:
	default:
		defer s.mu.Unlock()
		return s.reject("retake")
	}
	attempt := s.enterCameraLoading()
	s.mu.Unlock()
	return s.openCamera(ctx, attempt)
}

// Reset returns to Idle from any state, releasing the camera and abandoning
// any in-flight generation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transition(Idle{})
}

// enterCameraLoading moves to CameraLoading and returns the camera attempt
// number that the subsequent openCamera call must still match. Caller holds s.mu.
func (s *Session) enterCameraLoading() uint64 {
	s.transition(CameraLoading{})
	s.cameraAttempt++
	return s.cameraAttempt
}

// openCamera acquires a stream for the given camera attempt. The device is
// opened without holding the lock; if the session left the camera phases or
// started a newer attempt meanwhile, the stream is closed again.
func (s *Session) openCamera(ctx context.Context, attempt uint64) error {
	stream, err := s.device.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cameraAttempt != attempt || !inCameraPhase(s.state) || s.stream != nil {
		if stream != nil {
			stream.Close()
		}
		return ErrSuperseded
	}
	if err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("Camera unavailable")
		s.failCamera(err.Error())
		return nil
	}

	done := make(chan struct{})
	s.stream, s.streamDone = stream, done
	go s.watch(stream, done)
	return nil
}

// watch turns the stream's ready and failed channels into session events.
func (s *Session) watch(stream camera.Stream, done <-chan struct{}) {
	select {
	case <-stream.Ready():
		s.mu.Lock()
		if _, ok := s.state.(CameraLoading); ok && s.stream == stream {
			s.transition(CameraOn{})
		}
		s.mu.Unlock()
	case err := <-stream.Failed():
		s.streamFailed(stream, err)
		return
	case <-done:
		return
	}

	select {
	case err := <-stream.Failed():
		s.streamFailed(stream, err)
	case <-done:
	}
}

func (s *Session) streamFailed(stream camera.Stream, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream != stream {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.failCamera(msg)
}

// failCamera moves a camera-phase session to Error. Caller holds s.mu.
func (s *Session) failCamera(msg string) {
	if msg == "" {
		msg = defaultCameraError
	}
	s.transition(Failed{Message: msg})
}

// transition replaces the state. Caller holds s.mu.
//
// Leaving the camera phases releases the stream, and entering CameraLoading
// releases any previous one before a new stream is opened. Leaving
// Generating cancels the in-flight pipeline call.
func (s *Session) transition(next State) {
	prev := s.state

	_, enteringLoading := next.(CameraLoading)
	if s.stream != nil && (enteringLoading || !inCameraPhase(next)) {
		s.releaseStream()
	}
	if _, ok := prev.(Generating); ok && s.cancelGen != nil {
		s.cancelGen()
		s.cancelGen = nil
	}

	s.state = next
	s.version++
	s.lastActive = s.now()
	close(s.changed)
	s.changed = make(chan struct{})

	log.Debug().
		Str("session", s.id).
		Str("from", string(prev.Phase())).
		Str("to", string(next.Phase())).
		Uint64("version", s.version).
		Msg("Session transition")
}

func (s *Session) releaseStream() {
	if err := s.stream.Close(); err != nil {
		log.Warn().Err(err).Str("session", s.id).Msg("Failed to close camera stream")
	}
	close(s.streamDone)
	s.stream, s.streamDone = nil, nil
}

func (s *Session) reject(event string) error {
	return &TransitionError{Event: event, Phase: s.state.Phase()}
}
