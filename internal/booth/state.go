package booth

import "github.com/fpang/funny-booth/internal/imageuri"

// Phase names the discrete state of a Session.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseCameraLoading Phase = "camera_loading"
	PhaseCameraOn      Phase = "camera_on"
	PhaseCaptured      Phase = "captured"
	PhaseGenerating    Phase = "generating"
	PhaseResult        Phase = "result"
	PhaseError         Phase = "error"
)

// State is the tagged session state. Each variant carries exactly the data
// valid in its phase, so a captured image outside the capture phases or a
// generated image outside Result cannot be represented.
type State interface {
	Phase() Phase
	isState()
}

// Idle is the initial state.
type Idle struct{}

// CameraLoading waits for the capture stream to become ready.
type CameraLoading struct{}

// CameraOn has a live capture stream.
type CameraOn struct{}

// Captured holds a frame awaiting generation.
type Captured struct {
	Image imageuri.EncodedImage
}

// Generating has a pipeline call in flight for Image.
type Generating struct {
	Image imageuri.EncodedImage
}

// Result holds the captured frame and the generated image.
type Result struct {
	Image     imageuri.EncodedImage
	Generated imageuri.EncodedImage
}

// Failed is the error state. Image is set only when the failure happened
// after a frame was captured.
type Failed struct {
	Image   *imageuri.EncodedImage
	Message string
}

func (Idle) Phase() Phase          { return PhaseIdle }
func (CameraLoading) Phase() Phase { return PhaseCameraLoading }
func (CameraOn) Phase() Phase      { return PhaseCameraOn }
func (Captured) Phase() Phase      { return PhaseCaptured }
func (Generating) Phase() Phase    { return PhaseGenerating }
func (Result) Phase() Phase        { return PhaseResult }
func (Failed) Phase() Phase        { return PhaseError }

func (Idle) isState()          {}
func (CameraLoading) isState() {}
func (CameraOn) isState()      {}
func (Captured) isState()      {}
func (Generating) isState()    {}
func (Result) isState()        {}
func (Failed) isState()        {}

// inCameraPhase reports whether st owns the capture stream.
func inCameraPhase(st State) bool {
	switch st.(type) {
	case CameraLoading, CameraOn:
		return true
	}
	return false
}

// Snapshot is the JSON view of a session.
type Snapshot struct {
	ID             string `json:"id"`
	Phase          Phase  `json:"phase"`
	CapturedImage  string `json:"capturedImage,omitempty"`
	GeneratedImage string `json:"generatedImage,omitempty"`
	Error          string `json:"error,omitempty"`
	Version        uint64 `json:"version"`
}

func snapshotOf(id string, st State, version uint64) Snapshot {
	snap := Snapshot{ID: id, Phase: st.Phase(), Version: version}
	switch v := st.(type) {
	case Captured:
		snap.CapturedImage = v.Image.String()
	case Generating:
		snap.CapturedImage = v.Image.String()
	case Result:
		snap.CapturedImage = v.Image.String()
		snap.GeneratedImage = v.Generated.String()
	case Failed:
		if v.Image != nil {
			snap.CapturedImage = v.Image.String()
		}
		snap.Error = v.Message
	}
	return snap
}
