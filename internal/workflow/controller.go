package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"ykj/studio/internal/events"
	"ykj/studio/internal/media"
	"ykj/studio/internal/model"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrBusy          = errors.New("a generation is already in progress")
	ErrChatMode      = errors.New("chat mode has no generation workflow")
	ErrFileRejected  = errors.New("file type is not accepted in this mode")
	ErrInvalidOption = errors.New("invalid option")
	ErrNoResult      = errors.New("nothing to download")
	ErrClosed        = errors.New("workflow closed")
)

const (
	StageGenerating = "Generating..."
	StageMixing     = "Mixing in audio track..."

	errorPrefix = "An error occurred: "
)

// ValidationError is a precondition failure that is shown to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type Generator interface {
	GenerateVideo(ctx context.Context, prompt string, image *model.InputFile, ratio model.AspectRatio, quality model.Quality) (model.Result, error)
	GenerateImage(ctx context.Context, prompt string, ratio model.AspectRatio, quality model.Quality) (model.Result, error)
	EditImage(ctx context.Context, prompt string, image model.InputFile) (model.Result, error)
	EditVideo(ctx context.Context, prompt string, video model.InputFile) (model.Result, error)
}

type Mixer interface {
	MixAudioAndVideo(ctx context.Context, videoRef model.Ref, audioLocator string) (model.Ref, error)
}

type ChatActivator interface {
	Activate(ctx context.Context) error
}

type StagedFile struct {
	Name     string    `json:"name"`
	MimeType string    `json:"mime_type"`
	Ref      model.Ref `json:"ref"`
}

// State is the observable snapshot of the workflow.
type State struct {
	Mode        model.Mode        `json:"mode"`
	Prompt      string            `json:"prompt"`
	AspectRatio model.AspectRatio `json:"aspect_ratio"`
	Quality     model.Quality     `json:"quality"`
	Style       string            `json:"style"`
	MusicURL    string            `json:"music_url"`
	Filter      string            `json:"filter"`
	File        *StagedFile       `json:"file,omitempty"`
	Loading     bool              `json:"loading"`
	Stage       string            `json:"stage,omitempty"`
	Error       string            `json:"error,omitempty"`
	Result      *model.Result     `json:"result,omitempty"`
}

type staged struct {
	file model.InputFile
	ref  model.Ref
}

// Controller drives one generation workflow at a time.
type Controller struct {
	gen     Generator
	mixer   Mixer
	chat    ChatActivator
	tracker *media.Tracker
	hub     *events.Hub
	log     *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	state  State
	file   *staged
	epoch  uint64
	closed bool
}

func NewController(gen Generator, mixer Mixer, chat ChatActivator, tracker *media.Tracker, hub *events.Hub, logger *slog.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		gen:     gen,
		mixer:   mixer,
		chat:    chat,
		tracker: tracker,
		hub:     hub,
		log:     logger,
		baseCtx: ctx,
		cancel:  cancel,
		state: State{
			Mode:        model.ModeGenerateVideo,
			AspectRatio: model.ModeGenerateVideo.DefaultAspectRatio(),
			Quality:     model.QualityStandard,
			Style:       model.StyleNone,
			Filter:      model.FilterNone,
		},
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := c.state
	if s.File != nil {
		f := *s.File
		s.File = &f
	}
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	return s
}

// SwitchMode moves to mode m, dropping the prompt, staged files, the current
// result and any error. A generation still in flight finishes, but its
// result is discarded.
func (c *Controller) SwitchMode(ctx context.Context, m model.Mode) error {
	c.mu.Lock()
	c.epoch++
	c.state.Mode = m
	c.state.Error = ""
	c.state.Prompt = ""
	c.releaseResultLocked()
	c.clearFilesLocked()
	if m != model.ModeGeneratePhoto {
		c.state.Style = model.StyleNone
	}
	if !m.AcceptsMusic() {
		c.state.MusicURL = ""
	}
	c.state.AspectRatio = m.DefaultAspectRatio()
	c.mu.Unlock()
	c.publish()

	if m == model.ModeChat && c.chat != nil {
		return c.chat.Activate(ctx)
	}
	return nil
}

// StageFile installs f as the input file of the current mode. A nil file or
// one the mode does not accept clears every staged file.
func (c *Controller) StageFile(f *model.InputFile) (*StagedFile, error) {
	c.mu.Lock()
	defer c.publish()
	defer c.mu.Unlock()

	if f == nil {
		c.clearFilesLocked()
		return nil, nil
	}
	file := *f
	file.MimeType = normalizeMime(file.MimeType)
	if file.MimeType == "" {
		file.MimeType = normalizeMime(mimetype.Detect(file.Data).String())
	}
	prefix := c.state.Mode.FilePrefix()
	if prefix == "" || !strings.HasPrefix(file.MimeType, prefix) {
		c.clearFilesLocked()
		return nil, ErrFileRejected
	}

	c.releaseFileLocked()
	ref := c.tracker.Acquire(file.Data, file.MimeType)
	c.file = &staged{file: file, ref: ref}
	c.state.File = &StagedFile{Name: file.Name, MimeType: file.MimeType, Ref: ref}
	out := *c.state.File
	return &out, nil
}

func (c *Controller) ClearFiles() {
	c.mu.Lock()
	c.clearFilesLocked()
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) SetPrompt(p string) {
	c.mu.Lock()
	c.state.Prompt = p
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) SetAspectRatio(s string) error {
	ar, ok := model.ParseAspectRatio(s)
	if !ok {
		return fmt.Errorf("%w: aspect ratio %q", ErrInvalidOption, s)
	}
	c.update(func(st *State) { st.AspectRatio = ar })
	return nil
}

func (c *Controller) SetQuality(s string) error {
	q, ok := model.ParseQuality(s)
	if !ok {
		return fmt.Errorf("%w: quality %q", ErrInvalidOption, s)
	}
	c.update(func(st *State) { st.Quality = q })
	return nil
}

func (c *Controller) SetStyle(s string) error {
	if !model.IsImageStyle(s) {
		return fmt.Errorf("%w: style %q", ErrInvalidOption, s)
	}
	c.update(func(st *State) { st.Style = s })
	return nil
}

func (c *Controller) SetMusic(url string) error {
	if !model.IsMusicTrack(url) {
		return fmt.Errorf("%w: music track %q", ErrInvalidOption, url)
	}
	c.update(func(st *State) { st.MusicURL = url })
	return nil
}

func (c *Controller) SetFilter(v string) error {
	if !model.IsFilter(v) {
		return fmt.Errorf("%w: filter %q", ErrInvalidOption, v)
	}
	c.update(func(st *State) { st.Filter = v })
	return nil
}

func (c *Controller) update(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
	c.publish()
}

// Submit runs a generation for the current mode and waits for it.
func (c *Controller) Submit(ctx context.Context) error {
	j, err := c.begin()
	if err != nil {
		return err
	}
	return c.run(ctx, j)
}

// SubmitAsync checks preconditions, then runs the generation in the
// background. Progress is observable through State and the hub.
func (c *Controller) SubmitAsync() error {
	j, err := c.begin()
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.run(c.baseCtx, j)
	}()
	return nil
}

type job struct {
	req   model.GenerationRequest
	style string
	epoch uint64
}

func (c *Controller) begin() (job, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return job{}, ErrClosed
	}
	st := c.state
	if st.Mode == model.ModeChat {
		c.mu.Unlock()
		return job{}, ErrChatMode
	}
	if strings.TrimSpace(st.Prompt) == "" {
		c.mu.Unlock()
		return job{}, ErrEmptyPrompt
	}
	if st.Loading {
		c.mu.Unlock()
		return job{}, ErrBusy
	}
	if msg := missingFileMessage(st.Mode); msg != "" && c.file == nil {
		c.state.Error = msg
		c.mu.Unlock()
		c.publish()
		return job{}, &ValidationError{Message: msg}
	}

	req := model.GenerationRequest{
		Mode:        st.Mode,
		Prompt:      st.Prompt,
		AspectRatio: st.AspectRatio,
		Quality:     st.Quality,
	}
	if st.Mode.AcceptsMusic() {
		req.MusicURL = st.MusicURL
	}
	if c.file != nil {
		f := c.file.file
		req.File = &f
	}

	c.state.Loading = true
	c.state.Stage = StageGenerating
	c.state.Error = ""
	c.releaseResultLocked()
	j := job{req: req, style: st.Style, epoch: c.epoch}
	c.mu.Unlock()
	c.publish()
	return j, nil
}

func (c *Controller) run(ctx context.Context, j job) error {
	res, err := c.dispatch(ctx, j)

	c.mu.Lock()
	c.state.Loading = false
	c.state.Stage = ""
	current := c.epoch == j.epoch && !c.closed
	switch {
	case err != nil:
		c.log.Warn("workflow_submit_failed", "mode", j.req.Mode, "error", err)
		if current {
			c.state.Error = errorPrefix + err.Error()
		}
	case !current:
		// the user moved on; nobody can see this result
		if relErr := c.tracker.Release(res.Ref); relErr != nil {
			c.log.Warn("workflow_release_failed", "error", relErr)
		}
	default:
		res.Prompt = j.req.Prompt
		c.state.Result = &res
		c.log.Info("workflow_submit_succeeded", "mode", j.req.Mode, "kind", res.Kind)
	}
	c.mu.Unlock()
	c.publish()
	return err
}

func (c *Controller) dispatch(ctx context.Context, j job) (model.Result, error) {
	req := j.req
	switch req.Mode {
	case model.ModeGenerateVideo, model.ModeImageToVideo:
		res, err := c.gen.GenerateVideo(ctx, req.Prompt, req.File, req.AspectRatio, req.Quality)
		if err != nil {
			return model.Result{}, err
		}
		c.tracker.Adopt(res.Ref)
		if req.MusicURL == "" {
			return res, nil
		}
		return c.mix(ctx, j, res)
	case model.ModeGeneratePhoto:
		return c.adopt(c.gen.GenerateImage(ctx, photoPrompt(req.Prompt, j.style), req.AspectRatio, req.Quality))
	case model.ModeEditImage:
		return c.adopt(c.gen.EditImage(ctx, editPrompt(req.Prompt, req.AspectRatio), *req.File))
	case model.ModeEditVideo:
		return c.adopt(c.gen.EditVideo(ctx, req.Prompt, *req.File))
	default:
		return model.Result{}, ErrChatMode
	}
}

// mix replaces the silent video with the muxed one. The pre-mix reference
// is released whether or not mixing succeeds.
func (c *Controller) mix(ctx context.Context, j job, res model.Result) (model.Result, error) {
	c.mu.Lock()
	if c.epoch == j.epoch {
		c.state.Stage = StageMixing
	}
	c.mu.Unlock()
	c.publish()

	mixed, err := c.mixer.MixAudioAndVideo(ctx, res.Ref, j.req.MusicURL)
	if relErr := c.tracker.Release(res.Ref); relErr != nil {
		c.log.Warn("workflow_release_failed", "error", relErr)
	}
	if err != nil {
		return model.Result{}, err
	}
	c.tracker.Adopt(mixed)
	res.Ref = mixed
	res.MimeType = "video/mp4"
	return res, nil
}

func (c *Controller) adopt(res model.Result, err error) (model.Result, error) {
	if err != nil {
		return model.Result{}, err
	}
	c.tracker.Adopt(res.Ref)
	return res, nil
}

// Close stops background generations and releases every reference.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	c.file = nil
	c.state.File = nil
	c.state.Result = nil
	c.mu.Unlock()
	return c.tracker.ReleaseAll()
}

// Reset returns the controller to its initial state, releasing every
// reference it holds. Used when the session ends.
func (c *Controller) Reset(ctx context.Context) error {
	if err := c.SwitchMode(ctx, model.ModeGenerateVideo); err != nil {
		return err
	}
	c.update(func(st *State) {
		st.Quality = model.QualityStandard
		st.Filter = model.FilterNone
	})
	return nil
}

func (c *Controller) releaseResultLocked() {
	if c.state.Result == nil {
		return
	}
	if err := c.tracker.Release(c.state.Result.Ref); err != nil {
		c.log.Warn("workflow_release_failed", "error", err)
	}
	c.state.Result = nil
}

func (c *Controller) releaseFileLocked() {
	if c.file == nil {
		return
	}
	if err := c.tracker.Release(c.file.ref); err != nil {
		c.log.Warn("workflow_release_failed", "error", err)
	}
	c.file = nil
	c.state.File = nil
}

func (c *Controller) clearFilesLocked() {
	c.releaseFileLocked()
	c.state.Filter = model.FilterNone
}

func (c *Controller) publish() {
	if c.hub == nil {
		return
	}
	st := c.State()
	c.hub.Publish(events.TopicWorkflow, model.EventWorkflowState, map[string]any{"state": st})
}

func missingFileMessage(m model.Mode) string {
	switch m {
	case model.ModeImageToVideo:
		return "Please upload an image to generate a video."
	case model.ModeEditVideo:
		return "Please upload a video to edit."
	case model.ModeEditImage:
		return "Please upload an image to edit."
	}
	return ""
}

func normalizeMime(s string) string {
	s, _, _ = strings.Cut(s, ";")
	return strings.ToLower(strings.TrimSpace(s))
}
