package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ykj/studio/internal/media"
	"ykj/studio/internal/model"
	"ykj/studio/internal/watermark"
)

type Kind string

const (
	KindGenerationFailed     Kind = "generation_failed"
	KindUnsupportedOperation Kind = "unsupported_operation"
)

const (
	reasonNoDownloadLink = "No download link found."
	reasonNoImage        = "No image returned."
	reasonEditNoImage    = "The model did not return an image."
	reasonPollTimeout    = "Timed out waiting for the video."

	msgEditVideoUnsupported = "Video editing functionality is not yet supported by the available AI models. This feature is for demonstration purposes."
)

// Error is the failure of a gateway operation. Error() is the user-facing
// message.
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Reason
	}
	return e.Op + " failed: " + e.Reason
}

func (e *Error) Unwrap() error {
	return e.Err
}

func failed(op, reason string, err error) *Error {
	return &Error{Kind: KindGenerationFailed, Op: op, Reason: reason, Err: err}
}

func remoteFailure(op string, err error) *Error {
	return failed(op, err.Error(), err)
}

// IsKind reports whether err is a gateway error of kind k.
func IsKind(err error, k Kind) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.Kind == k
}

type Options struct {
	PollInterval   time.Duration
	PollTimeout    time.Duration
	EditVideoDelay time.Duration
	WatermarkText  string
}

type Gateway struct {
	remote Remote
	reg    *media.Registry
	log    *slog.Logger
	opts   Options
}

func New(remote Remote, reg *media.Registry, logger *slog.Logger, opts Options) *Gateway {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.EditVideoDelay < 0 {
		opts.EditVideoDelay = 0
	}
	if opts.WatermarkText == "" {
		opts.WatermarkText = model.WatermarkText
	}
	return &Gateway{remote: remote, reg: reg, log: logger, opts: opts}
}

// GenerateVideo submits a video job and polls until it reports completion.
// The returned reference belongs to the caller.
func (g *Gateway) GenerateVideo(ctx context.Context, prompt string, image *model.InputFile, ratio model.AspectRatio, quality model.Quality) (model.Result, error) {
	const op = "Video generation"
	spec := VideoSpec{
		Model:          VideoModel,
		Prompt:         prompt,
		AspectRatio:    ratio,
		HD:             quality == model.QualityHD,
		NumberOfVideos: 1,
	}
	if image != nil {
		spec.Image = encode(*image)
	}

	operation, err := g.remote.SubmitVideo(ctx, spec)
	if err != nil {
		return model.Result{}, remoteFailure(op, err)
	}
	g.log.Info("video_submitted", "operation", operation.Name)

	operation, err = g.awaitVideo(ctx, operation)
	if err != nil {
		return model.Result{}, err
	}
	if operation.VideoURI == "" {
		return model.Result{}, failed(op, reasonNoDownloadLink, nil)
	}

	data, err := g.remote.Download(ctx, operation.VideoURI)
	if err != nil {
		return model.Result{}, remoteFailure(op, err)
	}
	ref := g.reg.Create(data, "video/mp4")
	return model.Result{Kind: model.MediaVideo, Ref: ref, MimeType: "video/mp4", Prompt: prompt}, nil
}

func (g *Gateway) awaitVideo(ctx context.Context, operation Operation) (Operation, error) {
	const op = "Video generation"
	var deadline <-chan time.Time
	if g.opts.PollTimeout > 0 {
		timer := time.NewTimer(g.opts.PollTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	checks := 0
	for !operation.Done {
		wait := time.NewTimer(g.opts.PollInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
			return Operation{}, remoteFailure(op, ctx.Err())
		case <-deadline:
			wait.Stop()
			return Operation{}, failed(op, reasonPollTimeout, context.DeadlineExceeded)
		case <-wait.C:
		}

		next, err := g.remote.PollVideo(ctx, operation)
		if err != nil {
			return Operation{}, remoteFailure(op, err)
		}
		checks++
		operation = next
		g.log.Debug("video_polled", "operation", operation.Name, "checks", checks, "done", operation.Done)
	}
	return operation, nil
}

// GenerateImage synthesizes one image and watermarks it.
func (g *Gateway) GenerateImage(ctx context.Context, prompt string, ratio model.AspectRatio, quality model.Quality) (model.Result, error) {
	const op = "Image generation"
	images, err := g.remote.GenerateImages(ctx, ImageSpec{
		Model:          ImageModel,
		Prompt:         prompt,
		AspectRatio:    ratio,
		OutputMimeType: "image/png",
		NumberOfImages: 1,
		HD:             quality == model.QualityHD,
	})
	if err != nil {
		return model.Result{}, remoteFailure(op, err)
	}
	if len(images) == 0 {
		return model.Result{}, failed(op, reasonNoImage, nil)
	}
	return g.finishImage(op, prompt, images[0])
}

// EditImage sends the image and instruction to the multimodal model.
func (g *Gateway) EditImage(ctx context.Context, prompt string, image model.InputFile) (model.Result, error) {
	const op = "Image editing"
	reply, err := g.remote.EditImage(ctx, EditSpec{
		Model:  EditModel,
		Prompt: prompt,
		Image:  *encode(image),
	})
	if err != nil {
		return model.Result{}, remoteFailure(op, err)
	}
	if len(reply.Images) == 0 {
		if text := strings.TrimSpace(reply.Text); text != "" {
			return model.Result{}, failed(op, text, nil)
		}
		return model.Result{}, failed(op, reasonEditNoImage, nil)
	}
	return g.finishImage(op, prompt, reply.Images[0])
}

// EditVideo always fails; no available model edits video.
func (g *Gateway) EditVideo(ctx context.Context, _ string, _ model.InputFile) (model.Result, error) {
	if err := waitCancelable(ctx, g.opts.EditVideoDelay); err != nil {
		return model.Result{}, remoteFailure("Video editing", err)
	}
	return model.Result{}, &Error{Kind: KindUnsupportedOperation, Reason: msgEditVideoUnsupported}
}

// StartChat opens a remote chat session carrying the system instruction.
func (g *Gateway) StartChat(ctx context.Context, systemInstruction string) (ChatSession, error) {
	sess, err := g.remote.StartChat(ctx, ChatModel, systemInstruction)
	if err != nil {
		return nil, remoteFailure("Chat", err)
	}
	return sess, nil
}

func (g *Gateway) finishImage(op, prompt string, img InlineImage) (model.Result, error) {
	raw, err := base64.StdEncoding.DecodeString(img.Base64)
	if err != nil {
		return model.Result{}, failed(op, "The image payload could not be decoded.", err)
	}
	marked, mimeType, err := watermark.Apply(raw, g.opts.WatermarkText)
	if err != nil {
		return model.Result{}, failed(op, "The image could not be watermarked.", err)
	}
	ref := g.reg.Create(marked, mimeType)
	return model.Result{Kind: model.MediaImage, Ref: ref, MimeType: mimeType, Prompt: prompt}, nil
}

// Encode converts an uploaded file to its transport form.
func Encode(f model.InputFile) InlineImage {
	return *encode(f)
}

func encode(f model.InputFile) *InlineImage {
	return &InlineImage{
		MimeType: f.MimeType,
		Base64:   base64.StdEncoding.EncodeToString(f.Data),
	}
}

func waitCancelable(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
