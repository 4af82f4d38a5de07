package chat

import (
	"errors"

	"github.com/fpang/funny-booth/internal/auth"
)

var (
	// ErrEmptyPrompt is returned when the describe step yields no usable text.
	ErrEmptyPrompt = errors.New("API failed to generate an image prompt.")

	// ErrNoImageReturned is returned when the render step yields no image bytes.
	ErrNoImageReturned = errors.New("Image generation failed to return an image.")

	// ErrUnknown stands in for failures that carry no error value (recovered panics).
	ErrUnknown = errors.New("An unknown error occurred while generating the image.")
)

// GenerationError is the single error type returned by Generator.Generate.
// Callers see one shape regardless of which step failed; the step is only
// recorded for logs and metrics.
type GenerationError struct {
	Step string
	Kind auth.ErrorKind
	Err  error
}

func (e *GenerationError) Error() string {
	return "Gemini API call failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func newGenerationError(step string, err error) *GenerationError {
	kind := auth.KindUnknown
	if !errors.Is(err, ErrEmptyPrompt) && !errors.Is(err, ErrNoImageReturned) {
		kind = auth.Classify(err)
	}
	return &GenerationError{Step: step, Kind: kind, Err: err}
}
