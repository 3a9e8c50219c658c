package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"collab-service/internal/models"
	"collab-service/internal/repositories"
	"collab-service/internal/storage"
	"collab-service/internal/telemetry"
)

const maxResourceSize = 50 << 20 // 50 MiB

// ResourceHandler manages shared resource endpoints.
type ResourceHandler struct {
	groups    repositories.GroupRepository
	resources repositories.ResourceRepository
	store     storage.ObjectStore
	audit     *telemetry.AuditEmitter
	logger    *zap.SugaredLogger
}

// NewResourceHandler constructs a ResourceHandler.
func NewResourceHandler(groups repositories.GroupRepository, resources repositories.ResourceRepository, store storage.ObjectStore, audit *telemetry.AuditEmitter, logger *zap.SugaredLogger) *ResourceHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ResourceHandler{groups: groups, resources: resources, store: store, audit: audit, logger: logger}
}

// UploadResource handles multipart POST /groups/:group_id/resources. Link
// resources carry no file and are stored as-is.
func (h *ResourceHandler) UploadResource(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	resourceType := c.PostForm("resource_type")
	title := c.PostForm("title")
	if title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	res := repositories.NewResource{
		GroupID:      groupID,
		UploadedBy:   userID,
		ResourceType: resourceType,
		Title:        title,
		Description:  c.PostForm("description"),
	}

	switch resourceType {
	case models.ResourceTypeLink:
		res.FileURL = c.PostForm("url")
		if res.FileURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
			return
		}
	case models.ResourceTypeDocument, models.ResourceTypeImage, models.ResourceTypeVideo:
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxResourceSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read file"})
			return
		}
		defer file.Close()

		key, err := h.store.Upload(c.Request.Context(), groupID, fileHeader.Filename,
			fileHeader.Header.Get("Content-Type"), file)
		if err != nil {
			h.logger.Errorw("resource upload failed", "group_id", groupID, "error", err)
			h.emitAudit(c, "ERROR", "upload failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
			return
		}
		res.FileURL = key
		res.FileName = fileHeader.Filename
		res.FileSize = fileHeader.Size
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown resource type"})
		return
	}

	created, err := h.resources.CreateResource(c.Request.Context(), res)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create resource"})
		return
	}

	h.emitAudit(c, "INFO", "Resource shared")
	c.JSON(http.StatusCreated, created)
}

// ListResources returns a group's resources with download URLs. File-backed
// entries get short-lived signed URLs; links pass through unchanged.
func (h *ResourceHandler) ListResources(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	resources, err := h.resources.ListResources(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load resources"})
		return
	}

	for i := range resources {
		if resources[i].ResourceType == models.ResourceTypeLink || resources[i].FileURL == nil {
			continue
		}
		url, err := h.store.SignedURL(c.Request.Context(), *resources[i].FileURL)
		if err != nil {
			h.logger.Warnw("resource url signing failed",
				"resource_id", resources[i].ID, "error", err)
			continue
		}
		resources[i].FileURL = &url
	}

	c.JSON(http.StatusOK, gin.H{"resources": resources})
}

// DeleteResource removes a resource. Allowed for the uploader or a group
// admin.
func (h *ResourceHandler) DeleteResource(c *gin.Context) {
	groupID := c.Param("group_id")
	resourceID := c.Param("resource_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	resource, err := h.resources.GetResource(c.Request.Context(), resourceID)
	if err != nil {
		if errors.Is(err, repositories.ErrResourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load resource"})
		return
	}
	if resource.GroupID != groupID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resource does not belong to group"})
		return
	}

	if resource.UploadedBy != userID && !h.isAdmin(c, groupID, userID) {
		h.emitAudit(c, "ERROR", "not allowed to delete resource")
		c.JSON(http.StatusForbidden, gin.H{"error": "uploader or admin role required"})
		return
	}

	if err := h.resources.DeleteResource(c.Request.Context(), resourceID); err != nil {
		if errors.Is(err, repositories.ErrResourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete resource"})
		return
	}

	if resource.ResourceType != models.ResourceTypeLink && resource.FileURL != nil {
		if err := h.store.Delete(c.Request.Context(), *resource.FileURL); err != nil {
			// the row is gone; an orphaned object is cleanup debt, not a failure
			h.logger.Warnw("resource object delete failed",
				"resource_id", resourceID, "error", err)
		}
	}

	h.emitAudit(c, "INFO", "Resource deleted")
	c.Status(http.StatusNoContent)
}

func (h *ResourceHandler) isAdmin(c *gin.Context, groupID, userID string) bool {
	group, err := h.groups.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		return false
	}
	member, err := h.groups.GetMember(c.Request.Context(), groupID, userID)
	if err != nil {
		return models.IsAdmin(group, nil, userID)
	}
	return models.IsAdmin(group, &member, userID)
}

func (h *ResourceHandler) requireMember(c *gin.Context, groupID, userID string) bool {
	member, err := h.groups.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	if !member {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return false
	}
	return true
}

func (h *ResourceHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
