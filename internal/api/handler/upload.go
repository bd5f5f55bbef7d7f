package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"supportchat/backend/internal/blob"
	"supportchat/backend/internal/config"
	"supportchat/backend/internal/models"
)

// Upload stores a chat attachment and returns its descriptor. The caller
// sends the session token it got at login as a Bearer token; ownerId must
// match it.
func (h *Handler) Upload(c *gin.Context) {
	if h.Blob == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file uploads are not configured"})
		return
	}

	ownerID := c.PostForm("ownerId")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ownerId is required"})
		return
	}
	if !h.authorizeOwner(c, ownerID) {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fh.Size > config.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	defer f.Close()

	ref, err := h.Blob.Upload(c.Request.Context(), ownerID, fh.Filename, f, fh.Size, fh.Header.Get("Content-Type"))
	if err != nil {
		log.Printf("ERROR: [http] upload for %s failed: %v", ownerID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to store file"})
		return
	}
	c.JSON(http.StatusCreated, ref)
}

type deleteUploadRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
	Path    string `json:"path" binding:"required"`
}

// DeleteUpload removes an attachment the caller uploaded earlier, identified
// by the path of its descriptor.
func (h *Handler) DeleteUpload(c *gin.Context) {
	if h.Blob == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file uploads are not configured"})
		return
	}
	var req deleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ownerId and path are required"})
		return
	}
	if !h.authorizeOwner(c, req.OwnerID) {
		return
	}

	err := h.Blob.Delete(c.Request.Context(), req.OwnerID, models.FileRef{Path: req.Path})
	switch {
	case errors.Is(err, blob.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "file belongs to another account"})
	case err != nil:
		log.Printf("ERROR: [http] delete %s for %s failed: %v", req.Path, req.OwnerID, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to delete file"})
	default:
		c.Status(http.StatusNoContent)
	}
}

// authorizeOwner checks the Bearer session token against ownerID and that
// the account exists. It writes the error response itself.
func (h *Handler) authorizeOwner(c *gin.Context, ownerID string) bool {
	if h.Hub.Tokens != nil {
		authHeader := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return false
		}
		subject, err := h.Hub.Tokens.Verify(token)
		if err != nil || subject != ownerID {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return false
		}
	}
	if _, err := h.Hub.Sessions.User(ownerID); errors.Is(err, models.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "owner not found"})
		return false
	}
	return true
}
