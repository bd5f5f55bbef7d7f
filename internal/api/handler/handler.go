package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"supportchat/backend/internal/blob"
	"supportchat/backend/internal/chathub"
	"supportchat/backend/internal/metrics"
)

// Handler serves the HTTP surface of the broker.
type Handler struct {
	Hub *chathub.ManagerService
	// Blob is nil when no object store is configured.
	Blob    blob.Uploader
	started time.Time
}

func NewHandler(hub *chathub.ManagerService, b blob.Uploader) *Handler {
	return &Handler{Hub: hub, Blob: b, started: time.Now()}
}

// Register mounts the routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/ws", h.ServeWebSocket)
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/upload", h.Upload)
	r.DELETE("/upload", h.DeleteUpload)
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.Hub.Count(),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
	})
}
