package filehandler

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/fpang/funny-booth/internal/imageuri"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// DefaultFrameMaxDimension bounds the long edge of frames sent to Gemini.
const DefaultFrameMaxDimension = 1024

// frameJPEGQuality is the re-encode quality for normalized frames.
const frameJPEGQuality = 85

// maxFramePixels caps the decoded size of a frame. Larger frames are sent
// as-is rather than decoded.
const maxFramePixels = 40_000_000

// NormalizeFrame decodes a captured frame (JPEG or PNG), downscales it so
// neither side exceeds maxDimension and re-encodes it as JPEG.
//
// Frames that cannot be decoded are returned unchanged; the model may still
// accept formats the standard decoders do not know about. So are frames whose
// header declares more than maxFramePixels.
func NormalizeFrame(frame imageuri.EncodedImage, maxDimension int) imageuri.EncodedImage {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frame.Data))
	if err != nil {
		log.Debug().Err(err).Str("mime_type", frame.MIMEType).Msg("Frame not decodable, sending as-is")
		return frame
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxFramePixels {
		log.Warn().
			Int("width", cfg.Width).
			Int("height", cfg.Height).
			Int("bytes", len(frame.Data)).
			Msg("Frame too large to decode, sending as-is")
		return frame
	}

	img, format, err := image.Decode(bytes.NewReader(frame.Data))
	if err != nil {
		log.Debug().Err(err).Str("mime_type", frame.MIMEType).Msg("Frame not decodable, sending as-is")
		return frame
	}

	bounds := img.Bounds()
	origWidth, origHeight := bounds.Dx(), bounds.Dy()
	newWidth, newHeight := calculateFrameDimensions(origWidth, origHeight, maxDimension)

	if newWidth == origWidth && newHeight == origHeight && format == "jpeg" {
		return frame
	}

	var dst image.Image = img
	if newWidth != origWidth || newHeight != origHeight {
		resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		dst = resized
	}

	data, err := encodeJPEG(dst)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to re-encode frame, sending original")
		return frame
	}

	log.Debug().
		Int("orig_width", origWidth).
		Int("orig_height", origHeight).
		Int("new_width", newWidth).
		Int("new_height", newHeight).
		Int("orig_bytes", len(frame.Data)).
		Int("new_bytes", len(data)).
		Msg("Frame normalized")

	return imageuri.New(imageuri.MIMETypeJPEG, data)
}

// calculateFrameDimensions returns the dimensions that fit within maxDimension
// while keeping the aspect ratio. Images already within bounds are unchanged.
func calculateFrameDimensions(width, height, maxDimension int) (int, int) {
	if maxDimension <= 0 || (width <= maxDimension && height <= maxDimension) {
		return width, height
	}
	if width >= height {
		h := height * maxDimension / width
		if h < 1 {
			h = 1
		}
		return maxDimension, h
	}
	w := width * maxDimension / height
	if w < 1 {
		w = 1
	}
	return w, maxDimension
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: frameJPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
