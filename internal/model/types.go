package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// User is the identity held by the active session.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Credential is one entry of the local account registry. The password is kept
// in plaintext, exactly as the registry format has always stored it.
type Credential struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Mode string

const (
	ModeGenerateVideo Mode = "GenerateVideo"
	ModeGeneratePhoto Mode = "GeneratePhoto"
	ModeImageToVideo  Mode = "ImageToVideo"
	ModeEditImage     Mode = "EditImage"
	ModeEditVideo     Mode = "EditVideo"
	ModeChat          Mode = "Chat"
)

var Modes = []Mode{
	ModeGenerateVideo,
	ModeGeneratePhoto,
	ModeImageToVideo,
	ModeEditImage,
	ModeEditVideo,
	ModeChat,
}

func ParseMode(s string) (Mode, bool) {
	for _, m := range Modes {
		if strings.EqualFold(string(m), s) {
			return m, true
		}
	}
	return "", false
}

// ProducesVideo reports whether results of the mode are videos.
func (m Mode) ProducesVideo() bool {
	return m == ModeGenerateVideo || m == ModeImageToVideo || m == ModeEditVideo
}

// AcceptsMusic reports whether a background track may be mixed into results.
func (m Mode) AcceptsMusic() bool {
	return m == ModeGenerateVideo || m == ModeImageToVideo
}

// RequiresFile reports whether submit needs a staged input file.
func (m Mode) RequiresFile() bool {
	return m == ModeImageToVideo || m == ModeEditImage || m == ModeEditVideo
}

// FilePrefix is the MIME prefix staged files must carry in this mode. Empty
// means the mode takes no upload.
func (m Mode) FilePrefix() string {
	switch m {
	case ModeGenerateVideo, ModeImageToVideo, ModeEditImage:
		return "image/"
	case ModeEditVideo:
		return "video/"
	default:
		return ""
	}
}

// DefaultAspectRatio is the ratio installed when switching into the mode.
func (m Mode) DefaultAspectRatio() AspectRatio {
	switch m {
	case ModeEditVideo:
		return AspectSquare
	case ModeEditImage:
		return AspectPortrait
	default:
		return AspectLandscape
	}
}

type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectSquare    AspectRatio = "1:1"
	AspectPortrait  AspectRatio = "9:16"
)

func ParseAspectRatio(s string) (AspectRatio, bool) {
	switch AspectRatio(s) {
	case AspectLandscape, AspectSquare, AspectPortrait:
		return AspectRatio(s), true
	}
	return "", false
}

type Quality string

const (
	QualityStandard Quality = "Standard"
	QualityHD       Quality = "HD"
)

func ParseQuality(s string) (Quality, bool) {
	switch Quality(s) {
	case QualityStandard, QualityHD:
		return Quality(s), true
	}
	return "", false
}

type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Extension is the download extension for the kind.
func (k MediaKind) Extension() string {
	if k == MediaVideo {
		return "mp4"
	}
	return "png"
}

// Ref is a transient, process-local reference to binary media.
type Ref string

// InputFile is a single uploaded file.
type InputFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// GenerationRequest is built per submission and never persisted.
type GenerationRequest struct {
	Mode        Mode        `json:"mode"`
	Prompt      string      `json:"prompt"`
	File        *InputFile  `json:"file,omitempty"`
	AspectRatio AspectRatio `json:"aspect_ratio"`
	Quality     Quality     `json:"quality"`
	MusicURL    string      `json:"music_url,omitempty"`
}

// Result is the current artifact of a workflow.
type Result struct {
	Kind     MediaKind `json:"kind"`
	Ref      Ref       `json:"ref"`
	MimeType string    `json:"mime_type"`
	Prompt   string    `json:"prompt"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "model"
)

// Part is one piece of a chat message. It is a closed sum: TextPart or ImagePart.
type Part interface {
	isPart()
}

type TextPart struct {
	Text string
}

type ImagePart struct {
	Ref      Ref
	MimeType string
}

func (TextPart) isPart()  {}
func (ImagePart) isPart() {}

type ChatMessage struct {
	Role  Role
	Parts []Part
}

// Text returns the first text part, if any.
func (m ChatMessage) Text() (string, bool) {
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			return t.Text, true
		}
	}
	return "", false
}

type wirePart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Ref      Ref    `json:"ref,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

type wireMessage struct {
	Role  Role       `json:"role"`
	Parts []wirePart `json:"parts"`
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	out := wireMessage{Role: m.Role, Parts: make([]wirePart, 0, len(m.Parts))}
	for _, p := range m.Parts {
		switch v := p.(type) {
		case TextPart:
			out.Parts = append(out.Parts, wirePart{Type: "text", Text: v.Text})
		case ImagePart:
			out.Parts = append(out.Parts, wirePart{Type: "image", Ref: v.Ref, MimeType: v.MimeType})
		default:
			return nil, fmt.Errorf("unknown message part %T", p)
		}
	}
	return json.Marshal(out)
}

func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var in wireMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.Role = in.Role
	m.Parts = make([]Part, 0, len(in.Parts))
	for _, p := range in.Parts {
		switch p.Type {
		case "text":
			m.Parts = append(m.Parts, TextPart{Text: p.Text})
		case "image":
			m.Parts = append(m.Parts, ImagePart{Ref: p.Ref, MimeType: p.MimeType})
		default:
			return fmt.Errorf("unknown message part type %q", p.Type)
		}
	}
	return nil
}

type EventType string

const (
	EventWorkflowState EventType = "workflow_state"
	EventChatMessage   EventType = "chat_message"
	EventChatDelta     EventType = "chat_delta"
)

// Event is published on a hub topic whenever observable state changes.
type Event struct {
	EventID string         `json:"event_id"`
	Seq     int64          `json:"seq"`
	Topic   string         `json:"topic"`
	Type    EventType      `json:"type"`
	TS      time.Time      `json:"ts"`
	Payload map[string]any `json:"payload"`
}
