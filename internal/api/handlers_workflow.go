package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ykj/studio/internal/model"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
)

var errNoFile = errors.New("multipart field \"file\" is required")

type modeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type optionsRequest struct {
	Prompt      *string `json:"prompt"`
	AspectRatio *string `json:"aspect_ratio"`
	Quality     *string `json:"quality"`
	Style       *string `json:"style"`
	MusicURL    *string `json:"music_url"`
	Filter      *string `json:"filter"`
}

func (s *Server) getWorkflow(c *gin.Context) {
	writeData(c, http.StatusOK, s.workflow.State())
}

func (s *Server) switchMode(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "mode is required", false, nil)
		return
	}
	m, ok := model.ParseMode(req.Mode)
	if !ok {
		writeError(c, http.StatusBadRequest, "INVALID_OPTION", fmt.Sprintf("unknown mode %q", req.Mode), false, nil)
		return
	}
	if err := s.workflow.SwitchMode(c.Request.Context(), m); err != nil {
		s.log.Warn("chat_activate_failed", "trace_id", traceIDFromContext(c), "error", err)
		writeError(c, http.StatusBadGateway, "CHAT_UNAVAILABLE", "Failed to start the chat session", true, nil)
		return
	}
	writeData(c, http.StatusOK, s.workflow.State())
}

// patchOptions applies every present field; the first invalid one stops
// the request, leaving earlier fields applied.
func (s *Server) patchOptions(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req optionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid options payload", false, nil)
		return
	}
	if req.Prompt != nil {
		s.workflow.SetPrompt(*req.Prompt)
	}
	setters := []struct {
		v   *string
		set func(string) error
	}{
		{req.AspectRatio, s.workflow.SetAspectRatio},
		{req.Quality, s.workflow.SetQuality},
		{req.Style, s.workflow.SetStyle},
		{req.MusicURL, s.workflow.SetMusic},
		{req.Filter, s.workflow.SetFilter},
	}
	for _, st := range setters {
		if st.v == nil {
			continue
		}
		if err := st.set(*st.v); err != nil {
			writeDomainError(c, err)
			return
		}
	}
	writeData(c, http.StatusOK, s.workflow.State())
}

func (s *Server) stageFile(c *gin.Context) {
	file, err := readUpload(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), false, nil)
		return
	}
	if _, err := s.workflow.StageFile(file); err != nil {
		writeDomainError(c, err)
		return
	}
	writeData(c, http.StatusOK, s.workflow.State())
}

func (s *Server) clearFiles(c *gin.Context) {
	s.workflow.ClearFiles()
	writeData(c, http.StatusOK, s.workflow.State())
}

// submit starts the generation in the background; progress arrives on the
// workflow event stream.
func (s *Server) submit(c *gin.Context) {
	if err := s.workflow.SubmitAsync(); err != nil {
		writeDomainError(c, err)
		return
	}
	writeData(c, http.StatusAccepted, s.workflow.State())
}

func (s *Server) download(c *gin.Context) {
	d, err := s.workflow.Download()
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	c.Data(http.StatusOK, d.MimeType, d.Data)
}

// readUpload reads the "file" multipart field. A missing or generic
// content type is replaced by one sniffed from the bytes.
func readUpload(c *gin.Context) (*model.InputFile, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, errNoFile
	}
	if fh.Size > maxUploadBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	mimeType := strings.TrimSpace(fh.Header.Get("Content-Type"))
	if mimeType == "" || strings.HasPrefix(mimeType, "application/octet-stream") {
		mimeType = mimetype.Detect(data).String()
	}
	return &model.InputFile{Name: fh.Filename, MimeType: mimeType, Data: data}, nil
}
