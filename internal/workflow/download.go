package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"ykj/studio/internal/model"
)

const (
	maxFilenameBase = 50
	fallbackBase    = "ai-vision"
)

var (
	// \s alone misses no-break and ideographic spaces
	unsafeChars = regexp.MustCompile(`[^a-z0-9\s\p{Z}-]`)
	whitespace  = regexp.MustCompile(`[\s\p{Z}]+`)
)

type Download struct {
	Filename string
	MimeType string
	Ref      model.Ref
	Data     []byte
}

// Filename derives a download name from the prompt: lowercase, letters,
// digits and dashes only, at most 50 characters before the extension.
func Filename(prompt string, kind model.MediaKind) string {
	base := strings.ToLower(strings.TrimSpace(prompt))
	base = unsafeChars.ReplaceAllString(base, "")
	base = whitespace.ReplaceAllString(base, "-")
	if len(base) > maxFilenameBase {
		base = base[:maxFilenameBase]
	}
	if base == "" {
		base = fallbackBase
	}
	return base + "." + kind.Extension()
}

func photoPrompt(prompt, style string) string {
	if style == "" || style == model.StyleNone {
		return prompt
	}
	return fmt.Sprintf("%s, in a %s style", prompt, strings.ToLower(style))
}

func editPrompt(prompt string, ratio model.AspectRatio) string {
	return fmt.Sprintf("%s, and please ensure the final image has a %s aspect ratio.", prompt, ratio)
}

// Download returns the current result with its derived filename.
func (c *Controller) Download() (Download, error) {
	c.mu.Lock()
	res := c.state.Result
	prompt := c.state.Prompt
	c.mu.Unlock()
	if res == nil {
		return Download{}, ErrNoResult
	}
	blob, err := c.tracker.Registry().Open(res.Ref)
	if err != nil {
		return Download{}, err
	}
	return Download{
		Filename: Filename(prompt, res.Kind),
		MimeType: blob.MimeType,
		Ref:      res.Ref,
		Data:     blob.Data,
	}, nil
}
