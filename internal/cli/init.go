package cli

import (
	"context"

	"github.com/fpang/funny-booth/internal/auth"
	"github.com/fpang/funny-booth/internal/chat"
	"github.com/rs/zerolog/log"
)

// InitModels resolves the API key and creates the Gemini models service.
// When validate is set the key is checked against textModel first.
// Exits fatally when no key is configured or validation fails.
func InitModels(ctx context.Context, textModel, namespace string, validate bool) chat.Models {
	apiKey := auth.ResolveAPIKey()
	if apiKey == "" {
		log.Fatal().Msg("No API key configured. Set " + auth.APIKeyEnv + " or store it in ~/.funny-booth/credentials.gpg")
	}

	models, err := chat.NewModels(ctx, apiKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Gemini client")
	}
	log.Info().Msg("connection successful - Gemini client initialized")

	if validate {
		if err := auth.ValidateAPIKey(ctx, models, textModel, namespace); err != nil {
			Fail(err, "API key validation failed")
		}
		log.Info().Msg("API key validation complete - ready for operations")
	}

	return models
}
