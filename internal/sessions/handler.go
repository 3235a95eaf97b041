package sessions

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coachlens/backend/internal/analysis"
	"github.com/coachlens/backend/internal/ingest"
	"github.com/coachlens/backend/internal/middleware"
	"github.com/coachlens/backend/internal/models"
	"github.com/coachlens/backend/pkg/response"
	"github.com/coachlens/backend/pkg/storage"
)

// MaxClipUploadSize limits incoming clip uploads (12s clips stay well under this).
const MaxClipUploadSize = 100 << 20 // 100MB

// Handler serves the session endpoints: clip submission, detail and gallery.
type Handler struct {
	repo     *Repository
	pipeline *ingest.Pipeline
	analysis *analysis.Client
	logger   *zap.Logger
}

// NewHandler creates a sessions handler.
func NewHandler(repo *Repository, pipeline *ingest.Pipeline, ac *analysis.Client, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, pipeline: pipeline, analysis: ac, logger: logger}
}

// Submit handles POST /sessions: a recorded clip plus sport, creating a
// session and running the analysis pipeline. The session is returned even
// when analysis fails; analysis_status tells the client what happened.
func (h *Handler) Submit(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sport := c.PostForm("sport")
	if !models.IsSupportedSport(sport) {
		response.BadRequest(c, "unsupported sport")
		return
	}
	skill := c.PostForm("skill")

	file, err := c.FormFile("video")
	if err != nil {
		response.BadRequest(c, "missing file (form field: video)")
		return
	}
	if file.Size > MaxClipUploadSize {
		response.BadRequest(c, "file size exceeds 100MB limit")
		return
	}
	if !storage.ValidateClipType(file.Header.Get("Content-Type"), file.Filename) {
		response.BadRequest(c, "invalid file type: only mp4, mov and webm video allowed")
		return
	}

	tmp, err := os.CreateTemp("", "clip-*"+filepath.Ext(file.Filename))
	if err != nil {
		h.logger.Error("create temp clip failed", zap.Error(err))
		response.Internal(c, "failed to store clip")
		return
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		h.logger.Error("save uploaded clip failed", zap.Error(err))
		response.Internal(c, "failed to store clip")
		return
	}

	result, err := h.pipeline.Submit(c.Request.Context(), userID, tmpPath, sport, skill)
	if err != nil {
		h.logger.Error("session submission failed", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}

	response.Created(c, gin.H{
		"session":         result.Session,
		"analysis_status": result.Outcome,
	})
}

// Get handles GET /sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	session, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get session failed", zap.Error(err), zap.String("session_id", id.String()))
		response.Internal(c, "failed to fetch session")
		return
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return
	}
	response.OK(c, session)
}

// List handles GET /sessions: the caller's session gallery, newest first.
// A fetch failure degrades to an empty gallery rather than an error page.
func (h *Handler) List(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	list, err := h.repo.ListByUser(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.OK(c, []models.SessionSummary{})
		return
	}
	if list == nil {
		list = []models.SessionSummary{}
	}
	response.OK(c, list)
}

// Sports handles GET /sports: supported sports from the analysis backend,
// falling back to the built-in list when the backend is unreachable.
func (h *Handler) Sports(c *gin.Context) {
	sports := h.analysis.Sports(c.Request.Context())
	response.OK(c, gin.H{"sports": sports})
}

// DownloadAnalysis handles GET /analysis/report: streams the latest analysis
// file from the analysis backend.
func (h *Handler) DownloadAnalysis(c *gin.Context) {
	body, err := h.analysis.DownloadAnalysis(c.Request.Context())
	if err != nil {
		h.logger.Warn("analysis report download failed", zap.Error(err))
		response.ServiceUnavailable(c, "analysis report unavailable")
		return
	}
	defer body.Close()
	c.DataFromReader(200, -1, "application/json", body, nil)
}

// DownloadAnnotatedVideo handles GET /analysis/video/:sport: streams the
// latest annotated video for a sport from the analysis backend.
func (h *Handler) DownloadAnnotatedVideo(c *gin.Context) {
	sport := c.Param("sport")
	if !models.IsSupportedSport(sport) {
		response.BadRequest(c, "unsupported sport")
		return
	}
	body, err := h.analysis.DownloadAnnotatedVideo(c.Request.Context(), sport)
	if err != nil {
		h.logger.Warn("annotated video download failed", zap.Error(err), zap.String("sport", sport))
		response.ServiceUnavailable(c, "annotated video unavailable")
		return
	}
	defer body.Close()
	c.DataFromReader(200, -1, "video/mp4", body, nil)
}
