package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"ykj/studio/internal/gateway"

	"github.com/sashabaranov/go-openai"
)

type chatSession struct {
	api   *openai.Client
	model string

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

func (c *Client) StartChat(_ context.Context, model, systemInstruction string) (gateway.ChatSession, error) {
	return &chatSession{
		api:   c.api,
		model: model,
		history: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemInstruction,
		}},
	}, nil
}

func userMessage(in gateway.ChatInput) openai.ChatCompletionMessage {
	if in.Image == nil {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: in.Text}
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: in.Text},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: "data:" + in.Image.MimeType + ";base64," + in.Image.Base64,
				},
			},
		},
	}
}

func (s *chatSession) SendStream(ctx context.Context, in gateway.ChatInput) (gateway.TextStream, error) {
	msg := userMessage(in)

	s.mu.Lock()
	messages := append(append([]openai.ChatCompletionMessage(nil), s.history...), msg)
	s.mu.Unlock()

	stream, err := s.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion stream: %w", err)
	}
	return &textStream{sess: s, user: msg, stream: stream}, nil
}

// textStream commits the exchange to the session history once the reply
// has been read to the end.
type textStream struct {
	sess   *chatSession
	user   openai.ChatCompletionMessage
	stream *openai.ChatCompletionStream
	reply  strings.Builder
	done   bool
}

func (t *textStream) Recv() (string, error) {
	for {
		resp, err := t.stream.Recv()
		if errors.Is(err, io.EOF) {
			t.commit()
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		t.reply.WriteString(chunk)
		return chunk, nil
	}
}

func (t *textStream) commit() {
	if t.done {
		return
	}
	t.done = true
	t.sess.mu.Lock()
	t.sess.history = append(t.sess.history, t.user, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: t.reply.String(),
	})
	t.sess.mu.Unlock()
}

func (t *textStream) Close() error {
	return t.stream.Close()
}
