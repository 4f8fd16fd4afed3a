package api

import (
	"errors"
	"net/http"
	"strings"

	"ykj/studio/internal/chat"
	"ykj/studio/internal/model"

	"github.com/gin-gonic/gin"
)

type messageRequest struct {
	Text string `json:"text"`
}

type renderedMessage struct {
	Index   int               `json:"index"`
	Message model.ChatMessage `json:"message"`
	HTML    string            `json:"html"`
}

func (s *Server) getChat(c *gin.Context) {
	writeData(c, http.StatusOK, s.chatBody())
}

func (s *Server) setAttachment(c *gin.Context) {
	file, err := readUpload(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}
	if _, err := s.chat.SetAttachment(*file); err != nil {
		writeError(c, http.StatusUnsupportedMediaType, "FILE_REJECTED", "Only images can be attached", false, nil)
		return
	}
	writeData(c, http.StatusOK, s.chatBody())
}

func (s *Server) clearAttachment(c *gin.Context) {
	if err := s.chat.ClearAttachment(); err != nil {
		s.log.Warn("chat_attachment_release_failed", "trace_id", traceIDFromContext(c), "error", err)
	}
	writeData(c, http.StatusOK, s.chatBody())
}

// sendMessage accepts JSON {"text"} or a multipart form with "text" and an
// optional "file". It returns once the reply has finished streaming.
func (s *Server) sendMessage(c *gin.Context) {
	var (
		text string
		file *model.InputFile
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		text = c.PostForm("text")
		if _, err := c.FormFile("file"); err == nil {
			f, err := readUpload(c)
			if err != nil {
				writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
				return
			}
			file = f
		}
	} else {
		if !requireJSON(c) {
			return
		}
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid message payload", false, nil)
			return
		}
		text = req.Text
	}

	err := s.chat.SendMessage(c.Request.Context(), text, file)
	if err != nil && !errors.Is(err, chat.ErrStreamInterrupted) {
		writeDomainError(c, err)
		return
	}
	// an interrupted stream is already recorded in the transcript
	writeData(c, http.StatusOK, s.chatBody())
}

func (s *Server) chatBody() gin.H {
	msgs := s.chat.Messages()
	out := make([]renderedMessage, 0, len(msgs))
	for i, msg := range msgs {
		html, err := chat.RenderHTML(msg)
		if err != nil {
			s.log.Warn("chat_render_failed", "index", i, "error", err)
		}
		out = append(out, renderedMessage{Index: i, Message: msg, HTML: html})
	}
	body := gin.H{
		"active":   s.chat.Active(),
		"busy":     s.chat.Busy(),
		"messages": out,
	}
	if ref, ok := s.chat.Attachment(); ok {
		body["attachment"] = ref
	}
	return body
}
