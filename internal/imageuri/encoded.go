// Package imageuri handles self-describing image strings of the form
// "data:<mime>;base64,<payload>". They are produced by the browser camera,
// consumed by the generation pipeline and produced again for display.
package imageuri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MIMETypeJPEG is the MIME type of every generated image.
const MIMETypeJPEG = "image/jpeg"

const (
	scheme       = "data:"
	base64Marker = ";base64,"
)

// ErrInvalidData is returned when a string is not a usable base64 data URL.
var ErrInvalidData = errors.New("Invalid base64 image data.")

// EncodedImage is image bytes tagged with their MIME type.
// The zero value is an empty image; use IsZero to test for it.
type EncodedImage struct {
	MIMEType string
	Data     []byte
}

// New wraps raw bytes with a MIME type.
func New(mimeType string, data []byte) EncodedImage {
	return EncodedImage{MIMEType: mimeType, Data: data}
}

// Parse decodes a data URL into an EncodedImage.
func Parse(s string) (EncodedImage, error) {
	if !strings.HasPrefix(s, scheme) {
		return EncodedImage{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidData, scheme)
	}
	header, payload, ok := strings.Cut(s[len(scheme):], base64Marker)
	if !ok {
		return EncodedImage{}, fmt.Errorf("%w: not base64 encoded", ErrInvalidData)
	}
	if payload == "" {
		return EncodedImage{}, ErrInvalidData
	}
	mimeType := header
	if i := strings.IndexByte(header, ';'); i >= 0 {
		mimeType = header[:i]
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return EncodedImage{}, fmt.Errorf("%w: unsupported MIME type %q", ErrInvalidData, mimeType)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return EncodedImage{}, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return EncodedImage{MIMEType: mimeType, Data: data}, nil
}

// String formats the image as a data URL.
func (e EncodedImage) String() string {
	if e.IsZero() {
		return ""
	}
	return scheme + e.MIMEType + base64Marker + base64.StdEncoding.EncodeToString(e.Data)
}

// IsZero reports whether the image carries no bytes.
func (e EncodedImage) IsZero() bool {
	return len(e.Data) == 0
}

// MarshalText lets EncodedImage appear as a plain data URL string in JSON.
func (e EncodedImage) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText parses a data URL.
func (e *EncodedImage) UnmarshalText(text []byte) error {
	img, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = img
	return nil
}
