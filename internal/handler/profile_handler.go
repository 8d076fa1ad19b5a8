package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crowdpledge/internal/repository"
)

type ProfileHandler struct {
	userRepo *repository.UserRepository
}

func NewProfileHandler(userRepo *repository.UserRepository) *ProfileHandler {
	return &ProfileHandler{
		userRepo: userRepo,
	}
}

// GetMe handles GET /me
func (h *ProfileHandler) GetMe(c *gin.Context) {
	userID := c.GetString("user_id")

	u, err := h.userRepo.FindByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch profile"})
		return
	}

	c.JSON(http.StatusOK, u)
}

// UpdateMe handles PUT /me
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	userID := c.GetString("user_id")

	var req struct {
		DisplayName string `json:"display_name"`
		Bio         string `json:"bio"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if req.DisplayName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "display name is required"})
		return
	}

	if err := h.userRepo.UpdateProfile(c.Request.Context(), userID, req.DisplayName, req.Bio); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// GetPublicProfile handles GET /users/:id
func (h *ProfileHandler) GetPublicProfile(c *gin.Context) {
	u, err := h.userRepo.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch profile"})
		return
	}

	c.JSON(http.StatusOK, u.Public())
}
