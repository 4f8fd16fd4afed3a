package api

import (
	"log/slog"
	"time"

	"ykj/studio/internal/auth"
	"ykj/studio/internal/chat"
	"ykj/studio/internal/events"
	"ykj/studio/internal/media"
	"ykj/studio/internal/workflow"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const maxUploadBytes = 64 << 20

type Server struct {
	auth     *auth.Service
	workflow *workflow.Controller
	chat     *chat.Manager
	media    *media.Registry
	hub      *events.Hub
	log      *slog.Logger
	origins  []string
}

func NewServer(authSvc *auth.Service, flow *workflow.Controller, chatMgr *chat.Manager, reg *media.Registry, hub *events.Hub, logger *slog.Logger, corsOrigins []string) *Server {
	return &Server{
		auth:     authSvc,
		workflow: flow,
		chat:     chatMgr,
		media:    reg,
		hub:      hub,
		log:      logger,
		origins:  corsOrigins,
	}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = maxUploadBytes
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(RequestLogMiddleware(s.log))
	if len(s.origins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.origins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Trace-Id", "Last-Event-ID"},
			ExposeHeaders:    []string{"X-Trace-Id", "Content-Disposition"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/healthz", func(c *gin.Context) {
		writeData(c, 200, gin.H{"status": "ok"})
	})
	v1.GET("/catalog", s.catalog)

	v1.POST("/auth/register", s.register)
	v1.POST("/auth/login", s.login)
	v1.POST("/auth/resume", s.resume)

	// media references are unguessable and loaded by <img>/<video> tags
	v1.GET("/media/:ref", s.getMedia)

	authed := v1.Group("")
	authed.Use(AuthMiddleware(s.auth))
	{
		authed.POST("/auth/logout", s.logout)
		authed.GET("/me", s.me)

		authed.GET("/workflow", s.getWorkflow)
		authed.POST("/workflow/mode", s.switchMode)
		authed.PATCH("/workflow/options", s.patchOptions)
		authed.POST("/workflow/files", s.stageFile)
		authed.DELETE("/workflow/files", s.clearFiles)
		authed.POST("/workflow/submit", s.submit)
		authed.GET("/workflow/download", s.download)
		authed.GET("/workflow/events", s.streamEvents(events.TopicWorkflow))

		authed.GET("/chat", s.getChat)
		authed.POST("/chat/attachment", s.setAttachment)
		authed.DELETE("/chat/attachment", s.clearAttachment)
		authed.POST("/chat/messages", s.sendMessage)
		authed.GET("/chat/events", s.streamEvents(events.TopicChat))
	}

	return r
}
