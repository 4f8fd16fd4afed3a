package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ykj/studio/internal/model"

	"github.com/gin-gonic/gin"
)

const sseHeartbeat = 15 * time.Second

// streamEvents replays the retained backlog after Last-Event-ID (or
// from_seq), then forwards live events on topic until the client leaves.
func (s *Server) streamEvents(topic string) gin.HandlerFunc {
	return func(c *gin.Context) {
		fromSeq := parseLastEventSeq(c.GetHeader("Last-Event-ID"))
		if q := c.Query("from_seq"); q != "" {
			if v, err := strconv.ParseInt(q, 10, 64); err == nil && v > 0 {
				fromSeq = v
			}
		}

		// subscribe before reading the backlog so nothing falls in between
		_, sub, unsubscribe := s.hub.Subscribe(topic, 128)
		defer unsubscribe()
		backlog := s.hub.Since(topic, fromSeq)

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			writeError(c, http.StatusInternalServerError, "SSE_UNSUPPORTED", "Streaming unsupported", false, nil)
			return
		}
		c.Status(http.StatusOK)

		last := fromSeq
		for _, evt := range backlog {
			writeSSE(c, evt)
			last = evt.Seq
		}
		flusher.Flush()

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				return
			case evt, ok := <-sub:
				if !ok {
					return
				}
				if evt.Seq <= last {
					continue
				}
				last = evt.Seq
				writeSSE(c, evt)
				flusher.Flush()
			case <-heartbeat.C:
				fmt.Fprintf(c.Writer, ": ping %d\n\n", time.Now().Unix())
				flusher.Flush()
			}
		}
	}
}

func writeSSE(c *gin.Context, evt model.Event) {
	payload, _ := json.Marshal(evt)
	fmt.Fprintf(c.Writer, "id: %d\n", evt.Seq)
	fmt.Fprintf(c.Writer, "event: %s\n", evt.Type)
	fmt.Fprintf(c.Writer, "data: %s\n\n", string(payload))
}

func parseLastEventSeq(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
