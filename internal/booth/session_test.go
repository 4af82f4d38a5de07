package booth

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpang/funny-booth/internal/camera"
	"github.com/fpang/funny-booth/internal/chat"
	"github.com/fpang/funny-booth/internal/imageuri"
	"github.com/fpang/funny-booth/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

var (
	frame     = imageuri.New(imageuri.MIMETypeJPEG, []byte("captured-frame"))
	generated = imageuri.New(imageuri.MIMETypeJPEG, []byte("generated-image"))
)

// fakeStream is a camera.Stream whose readiness and failure are driven by the test.
type fakeStream struct {
	ready  chan struct{}
	failed chan error
	frame  imageuri.EncodedImage
	err    error
	closed atomic.Int32
}

func newFakeStream() *fakeStream {
	return &fakeStream{ready: make(chan struct{}), failed: make(chan error, 1), frame: frame}
}

func (f *fakeStream) Ready() <-chan struct{} { return f.ready }
func (f *fakeStream) Failed() <-chan error   { return f.failed }

func (f *fakeStream) Capture(context.Context) (imageuri.EncodedImage, error) {
	if f.err != nil {
		return imageuri.EncodedImage{}, f.err
	}
	return f.frame, nil
}

func (f *fakeStream) Close() error {
	f.closed.Add(1)
	return nil
}

// fakeDevice hands out fakeStreams and remembers them.
type fakeDevice struct {
	mu      sync.Mutex
	err     error
	streams []*fakeStream
}

func (d *fakeDevice) Open(context.Context) (camera.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeStream()
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *fakeDevice) last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams[len(d.streams)-1]
}

func (d *fakeDevice) all() []*fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeStream(nil), d.streams...)
}

// pipelineFunc adapts a function to Pipeline.
type pipelineFunc func(ctx context.Context, captured imageuri.EncodedImage) (imageuri.EncodedImage, error)

func (f pipelineFunc) Generate(ctx context.Context, captured imageuri.EncodedImage) (imageuri.EncodedImage, error) {
	return f(ctx, captured)
}

func succeed(context.Context, imageuri.EncodedImage) (imageuri.EncodedImage, error) {
	return generated, nil
}

func newTestSession(t *testing.T, p pipelineFunc) (*Session, *fakeDevice) {
	t.Helper()
	if p == nil {
		p = succeed
	}
	dev := &fakeDevice{}
	return NewSession("test", dev, p), dev
}

// toCaptured drives a fresh session to Captured.
func toCaptured(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.CameraReady())
	require.NoError(t, s.CaptureImage(frame))
	require.Equal(t, PhaseCaptured, s.State().Phase())
}

func awaitPhase(t *testing.T, s *Session, phase Phase) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := s.Await(ctx, phase)
	require.NoError(t, err, "waiting for %s, still %s", phase, st.Phase())
	return st
}

func TestSessionHappyPath(t *testing.T) {
	s, dev := newTestSession(t, nil)
	assert.Equal(t, PhaseIdle, s.State().Phase())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, PhaseCameraLoading, s.State().Phase())

	require.NoError(t, s.CameraReady())
	assert.Equal(t, PhaseCameraOn, s.State().Phase())

	require.NoError(t, s.Capture(context.Background()))
	st, ok := s.State().(Captured)
	require.True(t, ok)
	assert.Equal(t, frame, st.Image)
	assert.EqualValues(t, 1, dev.last().closed.Load(), "capture leaves the camera phase")

	require.NoError(t, s.Generate(context.Background()))
	res, ok := s.State().(Result)
	require.True(t, ok)
	assert.Equal(t, frame, res.Image)
	assert.Equal(t, generated, res.Generated)

	snap := s.Snapshot()
	assert.Equal(t, PhaseResult, snap.Phase)
	assert.Equal(t, frame.String(), snap.CapturedImage)
	assert.Equal(t, generated.String(), snap.GeneratedImage)
	assert.Empty(t, snap.Error)
}

// scriptedModels is a genai models service with one canned answer per step.
type scriptedModels struct {
	text       string
	textErr    error
	image      []byte
	imageCalls int
	prompt     string
}

func (m *scriptedModels) GenerateContent(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.textErr != nil {
		return nil, m.textErr
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: m.text}}}}},
	}, nil
}

func (m *scriptedModels) GenerateImages(_ context.Context, _ string, prompt string, _ *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	m.imageCalls++
	m.prompt = prompt
	return &genai.GenerateImagesResponse{
		GeneratedImages: []*genai.GeneratedImage{{Image: &genai.Image{ImageBytes: m.image}}},
	}, nil
}

func newGeminiSession(t *testing.T, models *scriptedModels) *Session {
	t.Helper()
	metrics.SetOutput(io.Discard)
	t.Cleanup(func() { metrics.SetOutput(nil) })

	g, err := chat.NewGenerator(models, chat.Options{MaxFrameDimension: -1})
	require.NoError(t, err)
	return NewSession("gemini", &fakeDevice{}, g)
}

func TestScenarioCatAstronaut(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xe0, 'c', 'a', 't'}
	models := &scriptedModels{text: "A cat astronaut", image: payload}
	s := newGeminiSession(t, models)
	toCaptured(t, s)

	require.NoError(t, s.Generate(context.Background()))
	assert.Equal(t, "A cat astronaut", models.prompt)
	assert.Equal(t, PhaseResult, s.State().Phase())
	assert.Equal(t, "data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(payload), s.Snapshot().GeneratedImage)
}

func TestScenarioDescribeTimeout(t *testing.T) {
	models := &scriptedModels{textErr: errors.New("timeout")}
	s := newGeminiSession(t, models)
	toCaptured(t, s)

	err := s.Generate(context.Background())
	var genErr *chat.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Zero(t, models.imageCalls)

	snap := s.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Contains(t, snap.Error, "timeout")
	assert.Contains(t, snap.Error, "Gemini API call failed")
}

func TestSessionGenerateFailure(t *testing.T) {
	s, _ := newTestSession(t, func(context.Context, imageuri.EncodedImage) (imageuri.EncodedImage, error) {
		return imageuri.EncodedImage{}, errors.New("Gemini API call failed: timeout")
	})
	toCaptured(t, s)

	err := s.Generate(context.Background())
	require.Error(t, err)

	st, ok := s.State().(Failed)
	require.True(t, ok)
	assert.Contains(t, st.Message, "timeout")
	assert.Contains(t, st.Message, "Failed to generate image.")
	require.NotNil(t, st.Image)
	assert.Equal(t, frame, *st.Image)

	snap := s.Snapshot()
	assert.Equal(t, PhaseError, snap.Phase)
	assert.Equal(t, frame.String(), snap.CapturedImage)
	assert.Empty(t, snap.GeneratedImage)
}

func TestSessionPipelinePanic(t *testing.T) {
	s, _ := newTestSession(t, func(context.Context, imageuri.EncodedImage) (imageuri.EncodedImage, error) {
		panic("boom")
	})
	toCaptured(t, s)

	err := s.Generate(context.Background())
	assert.ErrorIs(t, err, chat.ErrUnknown)
	st, ok := s.State().(Failed)
	require.True(t, ok)
	assert.Contains(t, st.Message, chat.ErrUnknown.Error())
}

func TestSessionInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, s *Session)
		event func(s *Session) error
	}{
		{"ready while idle", func(*testing.T, *Session) {}, func(s *Session) error { return s.CameraReady() }},
		{"camera error while idle", func(*testing.T, *Session) {}, func(s *Session) error { return s.CameraError("x") }},
		{"capture while idle", func(*testing.T, *Session) {}, func(s *Session) error { return s.CaptureImage(frame) }},
		{"generate while idle", func(*testing.T, *Session) {}, func(s *Session) error { return s.Generate(context.Background()) }},
		{"retake while idle", func(*testing.T, *Session) {}, func(s *Session) error { return s.Retake(context.Background()) }},
		{
			"start twice",
			func(t *testing.T, s *Session) { require.NoError(t, s.Start(context.Background())) },
			func(s *Session) error { return s.Start(context.Background()) },
		},
		{
			"capture while loading",
			func(t *testing.T, s *Session) { require.NoError(t, s.Start(context.Background())) },
			func(s *Session) error { return s.CaptureImage(frame) },
		},
		{
			"retake while camera on",
			func(t *testing.T, s *Session) {
				require.NoError(t, s.Start(context.Background()))
				require.NoError(t, s.CameraReady())
			},
			func(s *Session) error { return s.Retake(context.Background()) },
		},
		{"ready after capture", toCaptured, func(s *Session) error { return s.CameraReady() }},
		{"camera error after capture", toCaptured, func(s *Session) error { return s.CameraError("late") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, nil)
			tt.setup(t, s)
			before := s.Snapshot()

			err := tt.event(s)
			require.ErrorIs(t, err, ErrInvalidTransition)
			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, before.Phase, te.Phase)
			assert.Equal(t, before, s.Snapshot(), "rejected events must not change state")
		})
	}
}

func TestSessionCaptureRejectsEmptyImage(t *testing.T) {
	s, _ := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.CameraReady())

	err := s.CaptureImage(imageuri.EncodedImage{})
	assert.ErrorIs(t, err, imageuri.ErrInvalidData)
	assert.Equal(t, PhaseCameraOn, s.State().Phase())
}

func TestSessionResetFromEveryPhase(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	drive := map[Phase]func(t *testing.T, s *Session){
		PhaseIdle: func(*testing.T, *Session) {},
		PhaseCameraLoading: func(t *testing.T, s *Session) {
			require.NoError(t, s.Start(context.Background()))
		},
		PhaseCameraOn: func(t *testing.T, s *Session) {
			require.NoError(t, s.Start(context.Background()))
			require.NoError(t, s.CameraReady())
		},
		PhaseCaptured: toCaptured,
		PhaseGenerating: func(t *testing.T, s *Session) {
			toCaptured(t, s)
			go s.Generate(context.Background())
			awaitPhase(t, s, PhaseGenerating)
		},
		PhaseResult: func(t *testing.T, s *Session) {
			toCaptured(t, s)
			require.NoError(t, s.Generate(context.Background()))
		},
		PhaseError: func(t *testing.T, s *Session) {
			require.NoError(t, s.Start(context.Background()))
			require.NoError(t, s.CameraError(""))
		},
	}

	for phase, setup := range drive {
		t.Run(string(phase), func(t *testing.T) {
			pipeline := succeed
			if phase == PhaseGenerating {
				pipeline = func(ctx context.Context, _ imageuri.EncodedImage) (imageuri.EncodedImage, error) {
					select {
					case <-block:
					case <-ctx.Done():
					}
					return generated, nil
				}
			}
			s, dev := newTestSession(t, pipeline)
			setup(t, s)
			require.Equal(t, phase, s.State().Phase())

			s.Reset()
			assert.Equal(t, Idle{}, s.State())
			snap := s.Snapshot()
			assert.Empty(t, snap.CapturedImage)
			assert.Empty(t, snap.GeneratedImage)
			assert.Empty(t, snap.Error)
			for _, stream := range dev.all() {
				assert.EqualValues(t, 1, stream.closed.Load(), "every stream is released exactly once")
			}
		})
	}
}

func TestSessionRetake(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, s *Session)
	}{
		{"from captured", toCaptured},
		{"from result", func(t *testing.T, s *Session) {
			toCaptured(t, s)
			require.NoError(t, s.Generate(context.Background()))
		}},
		{"from camera error", func(t *testing.T, s *Session) {
			require.NoError(t, s.Start(context.Background()))
			require.NoError(t, s.CameraError("denied"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev := newTestSession(t, nil)
			tt.setup(t, s)
			opened := len(dev.all())

			require.NoError(t, s.Retake(context.Background()))
			assert.Equal(t, CameraLoading{}, s.State())
			snap := s.Snapshot()
			assert.Empty(t, snap.CapturedImage)
			assert.Empty(t, snap.GeneratedImage)
			assert.Empty(t, snap.Error)
			assert.Len(t, dev.all(), opened+1, "retake reopens the camera")
		})
	}
}

func TestSessionCameraError(t *testing.T) {
	s, dev := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.CameraReady())

	require.NoError(t, s.CameraError(""))
	st, ok := s.State().(Failed)
	require.True(t, ok)
	assert.Equal(t, defaultCameraError, st.Message)
	assert.Nil(t, st.Image)
	assert.EqualValues(t, 1, dev.last().closed.Load())
}

func TestSessionDeviceOpenFailure(t *testing.T) {
	dev := &fakeDevice{err: &camera.UnavailableError{Reason: "no webcam", Err: os.ErrNotExist}}
	s := NewSession("test", dev, pipelineFunc(succeed))

	require.NoError(t, s.Start(context.Background()))
	st, ok := s.State().(Failed)
	require.True(t, ok)
	assert.Contains(t, st.Message, "camera unavailable")
}

func TestSessionStreamEvents(t *testing.T) {
	s, dev := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))

	stream := dev.last()
	close(stream.ready)
	awaitPhase(t, s, PhaseCameraOn)

	stream.failed <- errors.New("device unplugged")
	st := awaitPhase(t, s, PhaseError)
	assert.Equal(t, "device unplugged", st.(Failed).Message)
	assert.EqualValues(t, 1, stream.closed.Load())
}

func TestSessionStaleStreamIgnored(t *testing.T) {
	s, dev := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))
	first := dev.last()
	require.NoError(t, s.CameraError("denied"))
	require.NoError(t, s.Retake(context.Background()))
	require.NotSame(t, first, dev.last())

	// The first stream's goroutine already exited; its readiness must not
	// move the new attempt forward.
	close(first.ready)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, PhaseCameraLoading, s.State().Phase())

	close(dev.last().ready)
	awaitPhase(t, s, PhaseCameraOn)
}

func TestSessionCaptureStreamFailure(t *testing.T) {
	s, dev := newTestSession(t, nil)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.CameraReady())
	dev.last().err = errors.New("frame grab failed")

	require.Error(t, s.Capture(context.Background()))
	assert.Equal(t, PhaseError, s.State().Phase())
}

func TestSessionCaptureFromRemoteDevice(t *testing.T) {
	s := NewSession("remote", camera.Remote{}, pipelineFunc(succeed))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.CameraReady())

	assert.ErrorIs(t, s.Capture(context.Background()), camera.ErrFramesPushed)
	assert.Equal(t, PhaseCameraOn, s.State().Phase())

	require.NoError(t, s.CaptureImage(frame))
	assert.Equal(t, PhaseCaptured, s.State().Phase())
}

func TestSessionFileDeviceBecomesReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "me.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o600))

	s := NewSession("file", camera.File{Path: path}, pipelineFunc(succeed))
	require.NoError(t, s.Start(context.Background()))
	awaitPhase(t, s, PhaseCameraOn)

	require.NoError(t, s.Capture(context.Background()))
	st, ok := s.State().(Captured)
	require.True(t, ok)
	assert.Equal(t, "image/png", st.Image.MIMEType)
}

func TestSessionGenerationInFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	s, _ := newTestSession(t, func(context.Context, imageuri.EncodedImage) (imageuri.EncodedImage, error) {
		calls.Add(1)
		<-release
		return generated, nil
	})
	toCaptured(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Generate(context.Background()) }()
	awaitPhase(t, s, PhaseGenerating)

	assert.ErrorIs(t, s.Generate(context.Background()), ErrGenerationInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseResult, s.State().Phase())
	assert.EqualValues(t, 1, calls.Load())
}

func TestSessionStaleGenerationDiscarded(t *testing.T) {
	release := make(chan struct{})
	cancelled := make(chan struct{})
	s, _ := newTestSession(t, func(ctx context.Context, _ imageuri.EncodedImage) (imageuri.EncodedImage, error) {
		<-ctx.Done()
		close(cancelled)
		<-release
		return generated, nil
	})
	toCaptured(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Generate(context.Background()) }()
	awaitPhase(t, s, PhaseGenerating)

	s.Reset()
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("reset should cancel the in-flight generation")
	}

	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, Idle{}, s.State())
	assert.Empty(t, s.Snapshot().GeneratedImage)
}

func TestSessionStaleGenerationAfterRetake(t *testing.T) {
	release := make(chan struct{})
	s, _ := newTestSession(t, func(context.Context, imageuri.EncodedImage) (imageuri.EncodedImage, error) {
		<-release
		return imageuri.EncodedImage{}, errors.New("late failure")
	})
	toCaptured(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Generate(context.Background()) }()
	awaitPhase(t, s, PhaseGenerating)

	// Generating does not accept retake; reset then start again.
	assert.ErrorIs(t, s.Retake(context.Background()), ErrInvalidTransition)
	s.Reset()
	require.NoError(t, s.Start(context.Background()))

	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, PhaseCameraLoading, s.State().Phase())
}

func TestSessionVersionIncreases(t *testing.T) {
	s, _ := newTestSession(t, nil)
	v0 := s.Snapshot().Version
	toCaptured(t, s)
	v1 := s.Snapshot().Version
	assert.Greater(t, v1, v0)

	_ = s.CameraReady()
	assert.Equal(t, v1, s.Snapshot().Version)
}

func TestAwaitContextDone(t *testing.T) {
	s, _ := newTestSession(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	st, err := s.Await(ctx, PhaseResult)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, PhaseIdle, st.Phase())
}

func TestSessionGenerateAsync(t *testing.T) {
	release := make(chan struct{})
	s, _ := newTestSession(t, func(context.Context, imageuri.EncodedImage) (imageuri.EncodedImage, error) {
		<-release
		return generated, nil
	})

	_, err := s.GenerateAsync(context.Background())
	require.ErrorIs(t, err, ErrInvalidTransition)

	toCaptured(t, s)
	done, err := s.GenerateAsync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseGenerating, s.State().Phase(), "the transition happens before GenerateAsync returns")

	_, err = s.GenerateAsync(context.Background())
	assert.ErrorIs(t, err, ErrGenerationInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, PhaseResult, s.State().Phase())
}

// replayEvent is one client event applied to a session during replay.
type replayEvent struct {
	name  string
	apply func(s *Session, fail *atomic.Bool) error
	// next is the reference transition table: the phase the event leads to
	// from phase, or false when the event is not valid there.
	next func(phase Phase) (Phase, bool)
}

var replayEvents = []replayEvent{
	{
		name:  "start",
		apply: func(s *Session, _ *atomic.Bool) error { return s.Start(context.Background()) },
		next: func(p Phase) (Phase, bool) {
			return PhaseCameraLoading, p == PhaseIdle
		},
	},
	{
		name:  "camera ready",
		apply: func(s *Session, _ *atomic.Bool) error { return s.CameraReady() },
		next: func(p Phase) (Phase, bool) {
			return PhaseCameraOn, p == PhaseCameraLoading
		},
	},
	{
		name:  "camera error",
		apply: func(s *Session, _ *atomic.Bool) error { return s.CameraError("denied") },
		next: func(p Phase) (Phase, bool) {
			return PhaseError, p == PhaseCameraLoading || p == PhaseCameraOn
		},
	},
	{
		name:  "capture",
		apply: func(s *Session, _ *atomic.Bool) error { return s.CaptureImage(frame) },
		next: func(p Phase) (Phase, bool) {
			return PhaseCaptured, p == PhaseCameraOn
		},
	},
	{
		name:  "generate ok",
		apply: func(s *Session, fail *atomic.Bool) error { fail.Store(false); return s.Generate(context.Background()) },
		next: func(p Phase) (Phase, bool) {
			return PhaseResult, p == PhaseCaptured
		},
	},
	{
		name:  "generate fails",
		apply: func(s *Session, fail *atomic.Bool) error { fail.Store(true); return s.Generate(context.Background()) },
		next: func(p Phase) (Phase, bool) {
			return PhaseError, p == PhaseCaptured
		},
	},
	{
		name:  "retake",
		apply: func(s *Session, _ *atomic.Bool) error { return s.Retake(context.Background()) },
		next: func(p Phase) (Phase, bool) {
			return PhaseCameraLoading, p == PhaseCaptured || p == PhaseResult || p == PhaseError
		},
	},
	{
		name:  "reset",
		apply: func(s *Session, _ *atomic.Bool) error { s.Reset(); return nil },
		next: func(Phase) (Phase, bool) {
			return PhaseIdle, true
		},
	},
}

func TestSessionReplayMatchesTransitionTable(t *testing.T) {
	for seed := int64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		var fail atomic.Bool
		s, dev := newTestSession(t, func(context.Context, imageuri.EncodedImage) (imageuri.EncodedImage, error) {
			if fail.Load() {
				return imageuri.EncodedImage{}, errors.New("render failed")
			}
			return generated, nil
		})

		want := PhaseIdle
		var trace []string
		for step := 0; step < 40; step++ {
			ev := replayEvents[rng.Intn(len(replayEvents))]
			trace = append(trace, ev.name)

			next, valid := ev.next(want)
			err := ev.apply(s, &fail)
			switch {
			case !valid:
				require.ErrorIs(t, err, ErrInvalidTransition, "seed %d: %v", seed, trace)
			case ev.name == "generate fails":
				require.Error(t, err, "seed %d: %v", seed, trace)
				want = next
			default:
				require.NoError(t, err, "seed %d: %v", seed, trace)
				want = next
			}
			require.Equal(t, want, s.State().Phase(), "seed %d: %v", seed, trace)

			snap := s.Snapshot()
			assert.Equal(t, want == PhaseResult, snap.GeneratedImage != "", "seed %d: %v", seed, trace)
			assert.Equal(t, want == PhaseError, snap.Error != "", "seed %d: %v", seed, trace)
		}

		s.Reset()
		for _, stream := range dev.all() {
			assert.EqualValues(t, 1, stream.closed.Load(), "seed %d: every stream is released once", seed)
		}
	}
}
