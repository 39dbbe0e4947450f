package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/middleware"
	"github.com/abdessamed5/marktist-team-chat/internal/repository"
	"github.com/abdessamed5/marktist-team-chat/internal/room"
)

// AdminHandler exposes the administrative surface: the full user list
// and bulk approval. Reachability is decided per request through the
// gate — role lives on the profile row, not in the token, so revoking
// admin takes effect immediately.
type AdminHandler struct {
	profiles repository.ProfileRepository
	gate     *room.Gate
	logger   *zap.Logger
}

func NewAdminHandler(profiles repository.ProfileRepository, gate *room.Gate, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{profiles: profiles, gate: gate, logger: logger}
}

func (h *AdminHandler) requireAdmin(c *gin.Context) bool {
	access, err := h.gate.Resolve(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("failed to resolve access", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "access check failed"})
		return false
	}
	if !access.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
		return false
	}
	return true
}

// ListUsers handles GET /v1/admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	profiles, err := h.profiles.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list profiles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}

	c.JSON(http.StatusOK, profiles)
}

type approveRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required,min=1"`
}

// Approve handles POST /v1/admin/approve
//
// Flips the approval flag on the given profiles. Approved users gain
// access on their next session start — nothing is pushed to sessions
// already held at the gate.
func (h *AdminHandler) Approve(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.profiles.Approve(c.Request.Context(), req.UserIDs); err != nil {
		h.logger.Error("failed to approve users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to approve users"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"approved": len(req.UserIDs)})
}
