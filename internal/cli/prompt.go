package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptForImagePath asks for the photo to use as the captured frame.
// Returns "" if nothing was entered.
func PromptForImagePath(in io.Reader, out io.Writer) string {
	fmt.Fprint(out, "Photo to transform: ")

	input, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && input == "" {
		log.Warn().Err(err).Msg("Failed to read input")
		return ""
	}
	return strings.TrimSpace(input)
}
