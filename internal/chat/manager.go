package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"ykj/studio/internal/events"
	"ykj/studio/internal/gateway"
	"ykj/studio/internal/media"
	"ykj/studio/internal/model"
)

var (
	ErrBusy              = errors.New("a message is already being sent")
	ErrNotActive         = errors.New("chat is not active")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrStreamInterrupted = errors.New("stream interrupted")
	ErrReset             = errors.New("chat was reset")
)

const (
	generateCommand = "/generate "

	msgGenerateUsage   = "Please provide a prompt after the /generate command. For example: `/generate a robot holding a skateboard`"
	msgGeneratedIntro  = "Here is the image I generated for you:"
	fmtGenerating      = "Generating an image for: \"%s\"..."
	fmtGenerateFailed  = "Sorry, I couldn't generate the image: %s"
	fmtStreamFailed    = "Sorry, I encountered an error: %s"
	generatedImageMime = "image/png"
)

// Stream is a pull iterator over reply chunks. Recv returns io.EOF at the end.
type Stream = gateway.TextStream

// Generator is the slice of the gateway the chat needs.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string, ratio model.AspectRatio, quality model.Quality) (model.Result, error)
	StartChat(ctx context.Context, systemInstruction string) (gateway.ChatSession, error)
}

type attachment struct {
	file model.InputFile
	ref  model.Ref
}

// Manager owns the single conversation of the studio.
type Manager struct {
	gen     Generator
	tracker *media.Tracker
	hub     *events.Hub
	log     *slog.Logger

	activateMu sync.Mutex

	mu         sync.Mutex
	epoch      uint64
	cancel     context.CancelFunc
	active     bool
	session    gateway.ChatSession
	messages   []model.ChatMessage
	busy       bool
	attachment *attachment
}

func NewManager(gen Generator, tracker *media.Tracker, hub *events.Hub, logger *slog.Logger) *Manager {
	return &Manager{gen: gen, tracker: tracker, hub: hub, log: logger}
}

// Activate opens the remote session and posts the greeting. Calls after the
// first successful one do nothing.
func (m *Manager) Activate(ctx context.Context) error {
	m.activateMu.Lock()
	defer m.activateMu.Unlock()

	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if active {
		return nil
	}

	sess, err := m.gen.StartChat(ctx, model.ChatSystemInstruction)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.session = sess
	m.active = true
	epoch := m.epoch
	idx := m.appendLocked(model.ChatMessage{
		Role:  model.RoleAssistant,
		Parts: []model.Part{model.TextPart{Text: model.ChatGreeting}},
	})
	m.mu.Unlock()
	m.log.Info("chat_activated")
	m.publish(epoch, idx)
	return nil
}

func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// Messages returns a copy of the transcript.
func (m *Manager) Messages() []model.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ChatMessage, len(m.messages))
	for i, msg := range m.messages {
		out[i] = model.ChatMessage{Role: msg.Role, Parts: append([]model.Part(nil), msg.Parts...)}
	}
	return out
}

// Attachment returns the staged image's preview reference.
func (m *Manager) Attachment() (model.Ref, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachment == nil {
		return "", false
	}
	return m.attachment.ref, true
}

// SetAttachment stages an image for the next freeform message, replacing
// and releasing any earlier one.
func (m *Manager) SetAttachment(file model.InputFile) (model.Ref, error) {
	if !strings.HasPrefix(file.MimeType, "image/") {
		return "", fmt.Errorf("attachment must be an image, got %q", file.MimeType)
	}
	ref := m.tracker.Acquire(file.Data, file.MimeType)

	m.mu.Lock()
	prev := m.attachment
	m.attachment = &attachment{file: file, ref: ref}
	m.mu.Unlock()

	if prev != nil {
		if err := m.tracker.Release(prev.ref); err != nil {
			m.log.Warn("chat_attachment_release_failed", "error", err)
		}
	}
	return ref, nil
}

func (m *Manager) ClearAttachment() error {
	m.mu.Lock()
	prev := m.attachment
	m.attachment = nil
	m.mu.Unlock()
	if prev == nil {
		return nil
	}
	return m.tracker.Release(prev.ref)
}

// SendMessage posts text to the conversation. A message starting with
// "/generate " asks the gateway for an image instead of the chat model.
// When file is nil the staged attachment, if any, is sent.
func (m *Manager) SendMessage(ctx context.Context, text string, file *model.InputFile) error {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return ErrNotActive
	}
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	if file == nil && m.attachment != nil {
		staged := m.attachment.file
		file = &staged
	}
	if strings.TrimSpace(text) == "" && file == nil {
		m.mu.Unlock()
		return ErrEmptyMessage
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.cancel = cancel
	epoch := m.epoch

	if strings.HasPrefix(text, generateCommand) {
		return m.generateLocked(ctx, epoch, text)
	}
	return m.converseLocked(ctx, epoch, text, file)
}

// generateLocked is entered holding m.mu.
func (m *Manager) generateLocked(ctx context.Context, epoch uint64, text string) error {
	prompt := strings.TrimSpace(text[len(generateCommand):])
	userIdx := m.appendLocked(textMessage(model.RoleUser, text))
	if prompt == "" {
		replyIdx := m.appendLocked(textMessage(model.RoleAssistant, msgGenerateUsage))
		m.mu.Unlock()
		m.publish(epoch, userIdx, replyIdx)
		return nil
	}
	m.busy = true
	placeholder := m.appendLocked(textMessage(model.RoleAssistant, fmt.Sprintf(fmtGenerating, prompt)))
	m.mu.Unlock()
	m.publish(epoch, userIdx, placeholder)
	defer m.setIdle(epoch)

	res, err := m.gen.GenerateImage(ctx, prompt, model.AspectSquare, model.QualityStandard)
	if err != nil {
		if !m.current(epoch) {
			return ErrReset
		}
		m.log.Warn("chat_generate_failed", "error", err)
		m.replace(epoch, placeholder, textMessage(model.RoleAssistant, fmt.Sprintf(fmtGenerateFailed, err.Error())))
		return nil
	}

	// adopted under m.mu so a later Reset releases it with the rest
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.log.Info("chat_generate_discarded", "ref", res.Ref)
		if err := m.tracker.Registry().Revoke(res.Ref); err != nil {
			m.log.Warn("chat_generate_release_failed", "ref", res.Ref, "error", err)
		}
		return ErrReset
	}
	m.tracker.Adopt(res.Ref)
	m.mu.Unlock()

	m.replace(epoch, placeholder, model.ChatMessage{
		Role: model.RoleAssistant,
		Parts: []model.Part{
			model.TextPart{Text: msgGeneratedIntro},
			model.ImagePart{Ref: res.Ref, MimeType: generatedImageMime},
		},
	})
	return nil
}

// converseLocked is entered holding m.mu.
func (m *Manager) converseLocked(ctx context.Context, epoch uint64, text string, file *model.InputFile) error {
	parts := []model.Part{model.TextPart{Text: text}}
	in := gateway.ChatInput{Text: text}
	if file != nil {
		// the transcript keeps its own copy; the preview is released below
		ref := m.tracker.Acquire(file.Data, file.MimeType)
		parts = append(parts, model.ImagePart{Ref: ref, MimeType: file.MimeType})
		img := gateway.Encode(*file)
		in.Image = &img
	}
	userIdx := m.appendLocked(model.ChatMessage{Role: model.RoleUser, Parts: parts})
	m.busy = true
	sess := m.session
	preview := m.attachment
	m.attachment = nil
	m.mu.Unlock()
	m.publish(epoch, userIdx)
	defer m.setIdle(epoch)

	if preview != nil {
		if err := m.tracker.Release(preview.ref); err != nil {
			m.log.Warn("chat_attachment_release_failed", "error", err)
		}
	}

	stream, err := sess.SendStream(ctx, in)
	if err != nil {
		return m.interrupt(epoch, -1, err)
	}
	defer stream.Close()

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return ErrReset
	}
	replyIdx := m.appendLocked(textMessage(model.RoleAssistant, ""))
	m.mu.Unlock()
	m.publish(epoch, replyIdx)

	var reply strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return m.interrupt(epoch, replyIdx, err)
		}
		reply.WriteString(chunk)
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return ErrReset
		}
		if replyIdx < len(m.messages) {
			m.messages[replyIdx] = textMessage(model.RoleAssistant, reply.String())
		}
		// published under m.mu so no delta follows a Reset
		m.hub.Publish(events.TopicChat, model.EventChatDelta, map[string]any{
			"index": replyIdx,
			"delta": chunk,
			"text":  reply.String(),
		})
		m.mu.Unlock()
	}
}

// interrupt replaces the streaming reply with an error message, or appends
// one when no reply was started. A reset conversation is left alone.
func (m *Manager) interrupt(epoch uint64, replyIdx int, cause error) error {
	if !m.current(epoch) {
		return ErrReset
	}
	m.log.Warn("chat_stream_failed", "error", cause)
	msg := textMessage(model.RoleAssistant, fmt.Sprintf(fmtStreamFailed, cause.Error()))
	if replyIdx >= 0 {
		m.replace(epoch, replyIdx, msg)
	} else {
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return ErrReset
		}
		idx := m.appendLocked(msg)
		m.mu.Unlock()
		m.publish(epoch, idx)
	}
	return fmt.Errorf("%w: %w", ErrStreamInterrupted, cause)
}

// Reset drops the conversation and every reference it owns. A send in
// flight is cancelled and its late results are discarded.
func (m *Manager) Reset() error {
	m.activateMu.Lock()
	defer m.activateMu.Unlock()
	m.mu.Lock()
	m.epoch++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.active = false
	m.session = nil
	m.messages = nil
	m.attachment = nil
	m.busy = false
	m.mu.Unlock()
	return m.tracker.ReleaseAll()
}

func (m *Manager) current(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

func (m *Manager) setIdle(epoch uint64) {
	m.mu.Lock()
	if m.epoch == epoch {
		m.busy = false
		m.cancel = nil
	}
	m.mu.Unlock()
}

func (m *Manager) appendLocked(msg model.ChatMessage) int {
	m.messages = append(m.messages, msg)
	return len(m.messages) - 1
}

func (m *Manager) replace(epoch uint64, idx int, msg model.ChatMessage) {
	m.mu.Lock()
	if m.epoch != epoch || idx >= len(m.messages) {
		m.mu.Unlock()
		return
	}
	m.messages[idx] = msg
	m.mu.Unlock()
	m.publish(epoch, idx)
}

type indexed struct {
	idx int
	msg model.ChatMessage
}

func (m *Manager) publish(epoch uint64, indexes ...int) {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	snapshot := make([]indexed, 0, len(indexes))
	for _, i := range indexes {
		if i < len(m.messages) {
			snapshot = append(snapshot, indexed{i, m.messages[i]})
		}
	}
	m.mu.Unlock()
	for _, s := range snapshot {
		m.hub.Publish(events.TopicChat, model.EventChatMessage, map[string]any{
			"index":   s.idx,
			"message": s.msg,
		})
	}
}

func textMessage(role model.Role, text string) model.ChatMessage {
	return model.ChatMessage{Role: role, Parts: []model.Part{model.TextPart{Text: text}}}
}
