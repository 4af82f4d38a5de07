package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fpang/funny-booth/internal/auth"
	"github.com/fpang/funny-booth/internal/chat"
	"github.com/rs/zerolog/log"
)

// ResolveImagePath checks that path names a regular file and returns it absolute.
func ResolveImagePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("no photo given")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("photo not found: %s", path)
		}
		return "", fmt.Errorf("failed to access photo: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory: %s", path)
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

// Hint returns a user-facing explanation for a failed Gemini call, or "" when
// there is nothing more useful to say than the error itself.
func Hint(err error) string {
	kind := auth.Classify(err)
	var genErr *chat.GenerationError
	if errors.As(err, &genErr) {
		kind = genErr.Kind
	}

	switch {
	case errors.Is(err, chat.ErrMissingAPIKey):
		return "No API key configured. Set " + auth.APIKeyEnv + " and try again"
	case kind == auth.KindInvalidKey:
		return "Invalid API key. Please check your API key and try again"
	case kind == auth.KindNetwork:
		return "Network error. Please check your internet connection"
	case kind == auth.KindQuota:
		return "API quota exceeded. Please try again later or check your usage limits"
	}
	return ""
}

// Fail logs err with its hint and exits.
func Fail(err error, msg string) {
	if hint := Hint(err); hint != "" {
		msg = hint
	}
	log.Fatal().Err(err).Msg(msg)
	os.Exit(1)
}
