package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fpang/funny-booth/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// ErrorKind categorizes a failed Gemini API call.
type ErrorKind int

const (
	// KindUnknown indicates an unclassified error.
	KindUnknown ErrorKind = iota
	// KindInvalidKey indicates the API key is missing, invalid or revoked.
	KindInvalidKey
	// KindNetwork indicates a connectivity issue or a server-side failure.
	KindNetwork
	// KindQuota indicates the API quota has been exceeded or the caller is rate limited.
	KindQuota
)

// String returns the metric/log label for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidKey:
		return "invalid_key"
	case KindNetwork:
		return "network_error"
	case KindQuota:
		return "quota"
	default:
		return "unknown"
	}
}

// Classify inspects a Gemini API error and returns its kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}

	errLower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errLower, "api key not valid") ||
		strings.Contains(errLower, "invalid api key") ||
		strings.Contains(errLower, "api_key_invalid") ||
		strings.Contains(errLower, "permission denied"):
		return KindInvalidKey

	case strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "resource exhausted") ||
		strings.Contains(errLower, "rate limit"):
		return KindQuota

	case strings.Contains(errLower, "connection") ||
		strings.Contains(errLower, "network") ||
		strings.Contains(errLower, "timeout") ||
		strings.Contains(errLower, "dial") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "unreachable"):
		return KindNetwork

	default:
		return KindUnknown
	}
}

// classifyAPIError maps an API status to a kind. A 400 is an invalid key only
// when the message says so; otherwise it is a rejected request (bad input,
// blocked prompt) and stays unknown.
func classifyAPIError(apiErr *genai.APIError) ErrorKind {
	switch apiErr.Code {
	case 400:
		msg := strings.ToUpper(apiErr.Message + " " + apiErr.Status)
		if strings.Contains(msg, "API_KEY") || strings.Contains(msg, "API KEY") {
			return KindInvalidKey
		}
		return KindUnknown
	case 401, 403:
		return KindInvalidKey
	case 429:
		return KindQuota
	case 500, 502, 503, 504:
		return KindNetwork
	default:
		return KindUnknown
	}
}

// ContentGenerator is the subset of the genai Models service used for key validation.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ValidateAPIKey verifies that the API key works by making a minimal API call
// against model. Returns nil on success or the underlying error otherwise.
func ValidateAPIKey(ctx context.Context, models ContentGenerator, model, namespace string) error {
	log.Debug().Str("model", model).Msg("Validating API key with Gemini API")

	start := time.Now()
	resp, err := models.GenerateContent(ctx, model, genai.Text("hi"), nil)
	elapsed := time.Since(start)

	result := "success"
	switch {
	case err != nil:
		result = Classify(err).String()
	case resp == nil || len(resp.Candidates) == 0:
		result = "empty_response"
		err = errors.New("API returned empty response")
	}

	metrics.New(namespace).
		Dimension("Result", result).
		Duration("ApiKeyValidationMs", elapsed).
		Count("ApiKeyValidationResult").
		Flush()

	if err != nil {
		log.Error().Err(err).Str("result", result).Msg("API key validation failed")
		return err
	}

	log.Info().Dur("duration", elapsed).Msg("API key validated successfully")
	return nil
}
