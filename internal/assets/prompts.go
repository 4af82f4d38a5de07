// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at compile time.
package assets

import (
	_ "embed"
	"strings"
)

// funnyPortraitPrompt is the fixed instruction sent alongside the captured photo.
// It asks the model to describe the person's visible features, add one surreal
// element, and reply with the image-generation directive only.
//
//go:embed prompts/funny-portrait.txt
var funnyPortraitPrompt string

// FunnyPortraitPrompt returns the describe-step instruction with surrounding
// whitespace removed.
func FunnyPortraitPrompt() string {
	return strings.TrimSpace(funnyPortraitPrompt)
}
