package recording

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/coachlens/backend/pkg/response"
)

// Handler exposes the capture controller over HTTP for kiosk deployments
// where the server drives a local camera.
type Handler struct {
	controller *Controller
	logger     *zap.Logger
}

// NewHandler creates a recording handler.
func NewHandler(controller *Controller, logger *zap.Logger) *Handler {
	return &Handler{controller: controller, logger: logger}
}

// Start handles POST /recording/start. Requests outside the idle phase are
// acknowledged without starting a second capture.
func (h *Handler) Start(c *gin.Context) {
	if err := h.controller.Start(c.Request.Context()); err != nil {
		h.logger.Error("recording start failed", zap.Error(err))
		response.ServiceUnavailable(c, "recording could not start")
		return
	}
	response.OK(c, gin.H{"phase": h.controller.Phase()})
}

// Stop handles POST /recording/stop. Returns the captured clip location
// once the minimum clip length has elapsed.
func (h *Handler) Stop(c *gin.Context) {
	clipPath, err := h.controller.Stop(c.Request.Context())
	if err != nil {
		h.logger.Error("recording stop failed", zap.Error(err))
		response.Internal(c, "recording failed")
		return
	}
	// Returning the path is the hand-off; the controller is free for the
	// next capture.
	h.controller.Finish()
	response.OK(c, gin.H{
		"phase":     h.controller.Phase(),
		"clip_path": clipPath,
	})
}

// Status handles GET /recording/status.
func (h *Handler) Status(c *gin.Context) {
	response.OK(c, gin.H{"phase": h.controller.Phase()})
}
