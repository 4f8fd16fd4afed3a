package api

import (
	"errors"
	"net/http"

	"ykj/studio/internal/auth"
	"ykj/studio/internal/model"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) register(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid registration payload", false, nil)
		return
	}
	user, tokens, err := s.auth.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Name, email and a password of at least 6 characters are required", false, nil)
		case errors.Is(err, auth.ErrDuplicateAccount):
			writeError(c, http.StatusConflict, "DUPLICATE_ACCOUNT", "An account with this email already exists.", false, nil)
		default:
			s.log.Error("register_failed", "trace_id", traceIDFromContext(c), "error", err)
			writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register", true, nil)
		}
		return
	}
	writeData(c, http.StatusCreated, sessionBody(user, tokens))
}

func (s *Server) login(c *gin.Context) {
	if !requireJSON(c) {
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid login payload", false, nil)
		return
	}
	user, tokens, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password.", false, nil)
			return
		}
		s.log.Error("login_failed", "trace_id", traceIDFromContext(c), "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log in", true, nil)
		return
	}
	writeData(c, http.StatusOK, sessionBody(user, tokens))
}

// resume hands out a token for the session restored from the local store.
func (s *Server) resume(c *gin.Context) {
	user, tokens, err := s.auth.Resume()
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			writeError(c, http.StatusNotFound, "NO_SESSION", "No active session", false, nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to resume session", true, nil)
		return
	}
	writeData(c, http.StatusOK, sessionBody(user, tokens))
}

// logout ends the session and drops every workflow and chat artifact.
func (s *Server) logout(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.auth.Logout(ctx); err != nil {
		s.log.Error("logout_failed", "trace_id", traceIDFromContext(c), "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log out", true, nil)
		return
	}
	if err := s.workflow.Reset(ctx); err != nil {
		s.log.Warn("workflow_reset_failed", "error", err)
	}
	if err := s.chat.Reset(); err != nil {
		s.log.Warn("chat_reset_failed", "error", err)
	}
	writeData(c, http.StatusOK, gin.H{"ok": true})
}

func (s *Server) me(c *gin.Context) {
	user, ok := s.auth.Current()
	if !ok {
		writeUnauthorized(c)
		return
	}
	writeData(c, http.StatusOK, user)
}

func sessionBody(user model.User, tokens auth.Tokens) gin.H {
	return gin.H{
		"access_token":   tokens.AccessToken,
		"expires_in_sec": tokens.ExpiresInSec,
		"user":           user,
	}
}
