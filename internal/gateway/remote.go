package gateway

import (
	"context"

	"ykj/studio/internal/model"
)

const (
	VideoModel = "veo-2.0-generate-001"
	ImageModel = "imagen-4.0-generate-001"
	EditModel  = "gemini-2.5-flash-image-preview"
	ChatModel  = "gemini-2.5-flash"
)

// InlineImage is an image payload in transport form.
type InlineImage struct {
	MimeType string
	Base64   string
}

type VideoSpec struct {
	Model          string
	Prompt         string
	Image          *InlineImage
	AspectRatio    model.AspectRatio
	HD             bool
	NumberOfVideos int
}

// Operation is the remote handle of an asynchronous video job.
type Operation struct {
	Name     string
	Done     bool
	VideoURI string
}

type ImageSpec struct {
	Model          string
	Prompt         string
	AspectRatio    model.AspectRatio
	OutputMimeType string
	NumberOfImages int
	HD             bool
}

type EditSpec struct {
	Model  string
	Prompt string
	Image  InlineImage
}

// EditReply holds whatever came back from a multimodal edit: zero or more
// images plus any text the model produced instead.
type EditReply struct {
	Images []InlineImage
	Text   string
}

// ChatInput is one user turn. Text is sent before the image.
type ChatInput struct {
	Text  string
	Image *InlineImage
}

// TextStream yields incremental text chunks. Recv returns io.EOF once the
// reply is complete.
type TextStream interface {
	Recv() (string, error)
	Close() error
}

type ChatSession interface {
	SendStream(ctx context.Context, in ChatInput) (TextStream, error)
}

// Remote is the third-party generative service.
type Remote interface {
	SubmitVideo(ctx context.Context, spec VideoSpec) (Operation, error)
	PollVideo(ctx context.Context, op Operation) (Operation, error)
	Download(ctx context.Context, uri string) ([]byte, error)
	GenerateImages(ctx context.Context, spec ImageSpec) ([]InlineImage, error)
	EditImage(ctx context.Context, spec EditSpec) (EditReply, error)
	StartChat(ctx context.Context, model, systemInstruction string) (ChatSession, error)
}
