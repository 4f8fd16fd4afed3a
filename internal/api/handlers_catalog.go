package api

import (
	"net/http"

	"ykj/studio/internal/model"

	"github.com/gin-gonic/gin"
)

func (s *Server) catalog(c *gin.Context) {
	writeData(c, http.StatusOK, gin.H{
		"modes":                  model.Modes,
		"aspect_ratios":          model.AspectRatios,
		"qualities":              model.Qualities,
		"image_styles":           model.ImageStyles,
		"music_tracks":           model.MusicTracks,
		"filters":                model.Filters,
		"video_loading_messages": model.VideoLoadingMessages,
		"video_prompt_ideas":     model.VideoPromptIdeas,
		"image_prompt_ideas":     model.ImagePromptIdeas,
		"sse": gin.H{
			"heartbeat_sec": int(sseHeartbeat.Seconds()),
			"retry_ms":      2000,
		},
	})
}

// getMedia serves a transient artifact by reference.
func (s *Server) getMedia(c *gin.Context) {
	blob, err := s.media.Open(model.Ref(c.Param("ref")))
	if err != nil {
		writeError(c, http.StatusNotFound, "MEDIA_NOT_FOUND", "Media not found", false, nil)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, blob.MimeType, blob.Data)
}
