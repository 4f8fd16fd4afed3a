package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatMessageJSON(t *testing.T) {
	msg := ChatMessage{
		Role: RoleAssistant,
		Parts: []Part{
			TextPart{Text: "Here is the image I generated for you:"},
			ImagePart{Ref: "blob:abc", MimeType: "image/png"},
		},
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"model","parts":[{"type":"text","text":"Here is the image I generated for you:"},{"type":"image","ref":"blob:abc","mime_type":"image/png"}]}`, string(raw))

	var back ChatMessage
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, msg, back)
}

func TestChatMessageUnknownPart(t *testing.T) {
	var m ChatMessage
	err := json.Unmarshal([]byte(`{"role":"user","parts":[{"type":"audio"}]}`), &m)
	assert.Error(t, err)
}

func TestModeDefaults(t *testing.T) {
	tests := []struct {
		mode   Mode
		ratio  AspectRatio
		prefix string
		needs  bool
	}{
		{ModeGenerateVideo, AspectLandscape, "image/", false},
		{ModeGeneratePhoto, AspectLandscape, "", false},
		{ModeImageToVideo, AspectLandscape, "image/", true},
		{ModeEditImage, AspectPortrait, "image/", true},
		{ModeEditVideo, AspectSquare, "video/", true},
		{ModeChat, AspectLandscape, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.ratio, tt.mode.DefaultAspectRatio())
			assert.Equal(t, tt.prefix, tt.mode.FilePrefix())
			assert.Equal(t, tt.needs, tt.mode.RequiresFile())
		})
	}
}
