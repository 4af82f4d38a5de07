package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ErrMissingAPIKey is returned by every call made without a configured API key.
var ErrMissingAPIKey = errors.New("API key not valid: GEMINI_API_KEY is not set")

// NewModels returns the Models service for apiKey. With an empty key it
// returns a stand-in whose calls all fail with ErrMissingAPIKey, so callers
// can start without a key and surface the problem per request.
func NewModels(ctx context.Context, apiKey string) (Models, error) {
	if apiKey == "" {
		log.Warn().Msg("Gemini client created without API key; generation requests will fail")
		return missingKeyModels{}, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Debug().Msg("Gemini client initialized")
	return client.Models, nil
}

type missingKeyModels struct{}

func (missingKeyModels) GenerateContent(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return nil, ErrMissingAPIKey
}

func (missingKeyModels) GenerateImages(context.Context, string, string, *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	return nil, ErrMissingAPIKey
}
