package chat

import (
	"bytes"

	"ykj/studio/internal/model"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML renders the text parts of a message as HTML. Raw HTML in the
// source is dropped by the renderer.
func RenderHTML(msg model.ChatMessage) (string, error) {
	var buf bytes.Buffer
	for _, p := range msg.Parts {
		switch v := p.(type) {
		case model.TextPart:
			if err := markdown.Convert([]byte(v.Text), &buf); err != nil {
				return "", err
			}
		case model.ImagePart:
			// images are served separately through their reference
		}
	}
	return buf.String(), nil
}
