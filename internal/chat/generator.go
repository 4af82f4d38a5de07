package chat

// generator.go turns a captured photo into a generated "funny" image in two
// strictly sequential Gemini calls: describe the photo as an absurd image
// prompt, then render that prompt with Imagen.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fpang/funny-booth/internal/assets"
	"github.com/fpang/funny-booth/internal/filehandler"
	"github.com/fpang/funny-booth/internal/imageuri"
	"github.com/fpang/funny-booth/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	stepDescribe = "describe"
	stepRender   = "render"
)

// Models is the subset of the genai Models service the generator calls.
// *genai.Models satisfies it; tests substitute fakes.
type Models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Options configures a Generator. Zero values fall back to the defaults.
type Options struct {
	TextModel        string
	ImageModel       string
	MetricsNamespace string
	// MaxFrameDimension bounds the captured frame before upload.
	// Zero uses filehandler.DefaultFrameMaxDimension; negative disables resizing.
	MaxFrameDimension int
}

// Generator runs the describe-then-render pipeline.
type Generator struct {
	models     Models
	textModel  string
	imageModel string
	namespace  string
	maxFrame   int
}

// NewGenerator creates a Generator over the given models service.
func NewGenerator(models Models, opts Options) (*Generator, error) {
	if models == nil {
		return nil, errors.New("models is required")
	}
	g := &Generator{
		models:     models,
		textModel:  opts.TextModel,
		imageModel: opts.ImageModel,
		namespace:  opts.MetricsNamespace,
		maxFrame:   opts.MaxFrameDimension,
	}
	if g.textModel == "" {
		g.textModel = DefaultTextModel
	}
	if g.imageModel == "" {
		g.imageModel = DefaultImageModel
	}
	if g.namespace == "" {
		g.namespace = "FunnyBooth"
	}
	if g.maxFrame == 0 {
		g.maxFrame = filehandler.DefaultFrameMaxDimension
	}
	return g, nil
}

// Generate describes the captured image and renders the resulting prompt.
// Any failure is returned as *GenerationError; errors.Is distinguishes
// ErrEmptyPrompt and ErrNoImageReturned.
func (g *Generator) Generate(ctx context.Context, captured imageuri.EncodedImage) (imageuri.EncodedImage, error) {
	if captured.IsZero() {
		return imageuri.EncodedImage{}, newGenerationError(stepDescribe, imageuri.ErrInvalidData)
	}

	prompt, err := g.describe(ctx, captured)
	if err != nil {
		log.Error().Err(err).Msg("Error generating funny image")
		return imageuri.EncodedImage{}, newGenerationError(stepDescribe, err)
	}

	data, err := g.render(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("Error generating funny image")
		return imageuri.EncodedImage{}, newGenerationError(stepRender, err)
	}

	return imageuri.New(imageuri.MIMETypeJPEG, data), nil
}

// describe asks the text model for a single image-generation prompt.
func (g *Generator) describe(ctx context.Context, captured imageuri.EncodedImage) (string, error) {
	frame := captured
	if g.maxFrame > 0 {
		frame = filehandler.NormalizeFrame(captured, g.maxFrame)
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: frame.MIMEType, Data: frame.Data}},
		{Text: assets.FunnyPortraitPrompt()},
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	log.Debug().
		Str("model", g.textModel).
		Int("image_bytes", len(frame.Data)).
		Str("image_mime", frame.MIMEType).
		Msg("Starting Gemini API call for prompt generation")

	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.textModel, contents, nil)
	duration := time.Since(start)
	if err != nil {
		g.record(stepDescribe, "error", duration)
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	prompt := strings.TrimSpace(responseText(resp))
	if prompt == "" {
		g.record(stepDescribe, "empty", duration)
		return "", ErrEmptyPrompt
	}

	g.record(stepDescribe, "success", duration)
	log.Info().
		Int("prompt_length", len(prompt)).
		Dur("duration", duration).
		Msg("Image prompt generated")
	log.Debug().Str("prompt", truncateString(prompt, 200)).Msg("Generated prompt")

	return prompt, nil
}

// render asks the image model for exactly one square JPEG.
func (g *Generator) render(ctx context.Context, prompt string) ([]byte, error) {
	config := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: imageuri.MIMETypeJPEG,
		AspectRatio:    "1:1",
	}

	log.Debug().
		Str("model", g.imageModel).
		Int("prompt_length", len(prompt)).
		Msg("Starting Imagen API call")

	start := time.Now()
	resp, err := g.models.GenerateImages(ctx, g.imageModel, prompt, config)
	duration := time.Since(start)
	if err != nil {
		g.record(stepRender, "error", duration)
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}

	if resp == nil || len(resp.GeneratedImages) == 0 ||
		resp.GeneratedImages[0] == nil || resp.GeneratedImages[0].Image == nil ||
		len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
		g.record(stepRender, "empty", duration)
		return nil, ErrNoImageReturned
	}

	data := resp.GeneratedImages[0].Image.ImageBytes
	g.record(stepRender, "success", duration)
	log.Info().
		Int("output_bytes", len(data)).
		Dur("duration", duration).
		Msg("Image generated")

	return data, nil
}

func (g *Generator) record(step, outcome string, d time.Duration) {
	metrics.New(g.namespace).
		Dimension("Step", step).
		Dimension("Outcome", outcome).
		Duration("StepLatencyMs", d).
		Count("StepCount").
		Flush()
}

// responseText concatenates the non-thought text parts of every candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var result strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && !part.Thought {
				result.WriteString(part.Text)
			}
		}
	}
	return result.String()
}

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
