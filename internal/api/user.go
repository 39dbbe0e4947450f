package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abdessamed5/marktist-team-chat/internal/middleware"
	"github.com/abdessamed5/marktist-team-chat/internal/repository"
)

type UserHandler struct {
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

func NewUserHandler(profiles repository.ProfileRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{profiles: profiles, logger: logger}
}

// GetMe handles GET /v1/users/me
//
// Returns the caller's resolved profile, approval flag included — this
// is how the client learns whether to draw the room or the pending
// screen before it opens the websocket.
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := middleware.GetUserID(c)

	profile, err := h.profiles.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get profile"})
		return
	}

	// A valid token for a profile that no longer exists: the session is
	// dead, the client must log in again.
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}

	c.JSON(http.StatusOK, profile)
}
