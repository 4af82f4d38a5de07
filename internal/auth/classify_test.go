package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/fpang/funny-booth/internal/metrics"
	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"api 403", fmt.Errorf("call: %w", &genai.APIError{Code: 403, Message: "forbidden"}), KindInvalidKey},
		{"api 400 bad key", &genai.APIError{Code: 400, Message: "API key not valid. Please pass a valid API key.", Status: "INVALID_ARGUMENT"}, KindInvalidKey},
		{"api 400 key reason", &genai.APIError{Code: 400, Message: "invalid argument", Status: "API_KEY_INVALID"}, KindInvalidKey},
		{"api 400 blocked prompt", &genai.APIError{Code: 400, Message: "Image generation failed: prompt blocked by safety filters", Status: "INVALID_ARGUMENT"}, KindUnknown},
		{"api 400 bad request", fmt.Errorf("render: %w", &genai.APIError{Code: 400, Message: "aspect ratio not supported"}), KindUnknown},
		{"api 429", &genai.APIError{Code: 429, Message: "slow down"}, KindQuota},
		{"api 503", &genai.APIError{Code: 503}, KindNetwork},
		{"api 418", &genai.APIError{Code: 418}, KindUnknown},
		{"deadline", fmt.Errorf("describe: %w", context.DeadlineExceeded), KindNetwork},
		{"key text", errors.New("API key not valid. Please pass a valid API key."), KindInvalidKey},
		{"quota text", errors.New("Resource exhausted: quota"), KindQuota},
		{"timeout text", errors.New("timeout"), KindNetwork},
		{"other", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "invalid_key", KindInvalidKey.String())
	assert.Equal(t, "network_error", KindNetwork.String())
	assert.Equal(t, "quota", KindQuota.String())
	assert.Equal(t, "unknown", KindUnknown.String())
}

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error
}

func (f fakeModels) GenerateContent(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return f.resp, f.err
}

func TestValidateAPIKey(t *testing.T) {
	metrics.SetOutput(io.Discard)
	t.Cleanup(func() { metrics.SetOutput(nil) })
	ctx := context.Background()

	ok := fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: "hello"}}}}},
	}}
	assert.NoError(t, ValidateAPIKey(ctx, ok, "gemini-2.5-flash", "Test"))

	empty := fakeModels{resp: &genai.GenerateContentResponse{}}
	assert.Error(t, ValidateAPIKey(ctx, empty, "gemini-2.5-flash", "Test"))

	failing := fakeModels{err: &genai.APIError{Code: 401}}
	assert.Error(t, ValidateAPIKey(ctx, failing, "gemini-2.5-flash", "Test"))
}
