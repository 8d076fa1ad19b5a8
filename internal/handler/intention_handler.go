package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crowdpledge/internal/model"
	"crowdpledge/internal/repository"
	"crowdpledge/internal/service/ledger"
	"crowdpledge/internal/service/live"
)

type IntentionHandler struct {
	ledger   *ledger.Service
	userRepo *repository.UserRepository
	view     *live.View
	logger   *zap.Logger
}

func NewIntentionHandler(ledgerService *ledger.Service, userRepo *repository.UserRepository, view *live.View, logger *zap.Logger) *IntentionHandler {
	return &IntentionHandler{
		ledger:   ledgerService,
		userRepo: userRepo,
		view:     view,
		logger:   logger,
	}
}

// Record handles PUT /projects/:id/intention
func (h *IntentionHandler) Record(c *gin.Context) {
	userID := c.GetString("user_id")
	projectID := c.Param("id")

	var req struct {
		Type         string `json:"type"`
		PreviousType string `json:"previous_type"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	newType, err := model.ParseIntentionType(req.Type)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var previous *model.IntentionType
	if req.PreviousType != "" {
		p, err := model.ParseIntentionType(req.PreviousType)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		previous = &p
	}

	err = h.ledger.RecordIntention(c.Request.Context(), projectID, userID, newType, previous)
	if err != nil {
		if errors.Is(err, ledger.ErrSubmitInFlight) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "submission already in flight"})
			return
		}
		if errors.Is(err, repository.ErrProjectNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record intention"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id": projectID,
		"type":       string(newType),
	})
}

// GetMine handles GET /projects/:id/intention
func (h *IntentionHandler) GetMine(c *gin.Context) {
	userID := c.GetString("user_id")
	projectID := c.Param("id")

	rec, err := h.ledger.UserIntentionForProject(c.Request.Context(), userID, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch intention"})
		return
	}

	if rec == nil {
		c.JSON(http.StatusOK, gin.H{"intention": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{"intention": rec})
}

// LiveMine handles GET /ws/projects/:id/intention — streams the caller's
// current intention for the project (nil when none), then every change, until
// the client disconnects.
func (h *IntentionHandler) LiveMine(c *gin.Context) {
	userID := c.GetString("user_id")
	projectID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			zap.String("project_id", projectID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	updates := make(chan *model.IntentionRecord, 16)

	sub, err := h.view.SubscribeUserIntention(c.Request.Context(), userID, projectID, func(rec *model.IntentionRecord) {
		select {
		case updates <- rec:
		default:
		}
	})
	if err != nil {
		h.logger.Error("Live intention subscription failed",
			zap.String("project_id", projectID),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return
	}
	defer sub.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case rec := <-updates:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(gin.H{"intention": rec}); err != nil {
				return
			}
		}
	}
}

// ListUsers handles GET /projects/:id/intentions?type=investor
func (h *IntentionHandler) ListUsers(c *gin.Context) {
	projectID := c.Param("id")

	t, err := model.ParseIntentionType(c.Query("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userIDs, err := h.ledger.IntentingUserIDs(c.Request.Context(), projectID, t)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch intentions"})
		return
	}

	profiles := []model.PublicProfile{}
	for _, id := range userIDs {
		u, err := h.userRepo.FindByID(c.Request.Context(), id)
		if err != nil {
			// 资料缺失不影响列表其余部分
			continue
		}
		profiles = append(profiles, u.Public())
	}

	c.JSON(http.StatusOK, gin.H{
		"type":  string(t),
		"users": profiles,
	})
}
