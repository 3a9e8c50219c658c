package handlers

import (
	"crypto/rand"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"collab-service/internal/models"
	"collab-service/internal/repositories"
	"collab-service/internal/telemetry"
)

// GroupHandler manages group and membership endpoints.
type GroupHandler struct {
	groups repositories.GroupRepository
	audit  *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groups repositories.GroupRepository, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{groups: groups, audit: audit}
}

// inviteAlphabet omits easily confused characters.
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newInviteCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf)
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := newInviteCode()
	if code == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	group, err := h.groups.CreateGroup(c.Request.Context(), userID, req.Name, req.Description, code)
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.emitAudit(c, "INFO", "Group created")
	c.JSON(http.StatusCreated, group)
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	userID := c.GetString("userID")
	groups, err := h.groups.ListGroupsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup returns a group with its roster and the caller's capability.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireMember(c, groupID, userID) {
		return
	}

	group, err := h.groups.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	members, err := h.groups.ListMembers(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load members"})
		return
	}

	var membership *models.GroupMember
	for i := range members {
		if members[i].UserID == userID {
			membership = &members[i].GroupMember
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"group":    group,
		"members":  members,
		"is_admin": models.IsAdmin(group, membership, userID),
	})
}

// JoinGroup handles POST /groups/join.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	userID := c.GetString("userID")

	var req struct {
		InviteCode string `json:"invite_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.groups.JoinByInviteCode(c.Request.Context(), req.InviteCode, userID)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrInvalidInvite):
			h.emitAudit(c, "ERROR", "invalid invite code")
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid invite code"})
		case errors.Is(err, repositories.ErrAlreadyMember):
			c.JSON(http.StatusConflict, gin.H{"error": "already a member"})
		default:
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join group"})
		}
		return
	}

	h.emitAudit(c, "INFO", "Group joined")
	c.JSON(http.StatusOK, group)
}

// SetMemberRole toggles a member between admin and member. Only admins (or
// the creator) may do this.
func (h *GroupHandler) SetMemberRole(c *gin.Context) {
	groupID := c.Param("group_id")
	targetID := c.Param("user_id")
	userID := c.GetString("userID")

	var req struct {
		Role string `json:"role" binding:"required,oneof=admin member"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.requireAdmin(c, groupID, userID) {
		return
	}

	if err := h.groups.SetMemberRole(c.Request.Context(), groupID, targetID, req.Role); err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update role"})
		return
	}

	h.emitAudit(c, "INFO", "Member role updated")
	c.Status(http.StatusNoContent)
}

// LeaveGroup removes the caller from the group.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if err := h.groups.RemoveMember(c.Request.Context(), groupID, userID); err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not a member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not leave group"})
		return
	}

	h.emitAudit(c, "INFO", "Group left")
	c.Status(http.StatusNoContent)
}

// RemoveMember kicks a member. Admin only.
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	groupID := c.Param("group_id")
	targetID := c.Param("user_id")
	userID := c.GetString("userID")

	if !h.requireAdmin(c, groupID, userID) {
		return
	}

	if err := h.groups.RemoveMember(c.Request.Context(), groupID, targetID); err != nil {
		if errors.Is(err, repositories.ErrMemberNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "member not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not remove member"})
		return
	}

	h.emitAudit(c, "INFO", "Member removed")
	c.Status(http.StatusNoContent)
}

// DeleteGroup removes a group and all its contents. Admin only.
func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	groupID := c.Param("group_id")
	userID := c.GetString("userID")

	if !h.requireAdmin(c, groupID, userID) {
		return
	}

	if err := h.groups.DeleteGroup(c.Request.Context(), groupID); err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete group"})
		return
	}

	h.emitAudit(c, "INFO", "Group deleted")
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) requireMember(c *gin.Context, groupID, userID string) bool {
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

func (h *GroupHandler) requireAdmin(c *gin.Context, groupID, userID string) bool {
	group, err := h.groups.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return false
	}

	member, err := h.groups.GetMember(c.Request.Context(), groupID, userID)
	if err != nil && !errors.Is(err, repositories.ErrMemberNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	var membership *models.GroupMember
	if err == nil {
		membership = &member
	}

	if !models.IsAdmin(group, membership, userID) {
		h.emitAudit(c, "ERROR", "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return false
	}
	return true
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
