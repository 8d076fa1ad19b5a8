package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crowdpledge/internal/model"
	"crowdpledge/internal/service/ledger"
	"crowdpledge/internal/service/live"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type StatsHandler struct {
	ledger *ledger.Service
	view   *live.View
	logger *zap.Logger
}

func NewStatsHandler(ledgerService *ledger.Service, view *live.View, logger *zap.Logger) *StatsHandler {
	return &StatsHandler{
		ledger: ledgerService,
		view:   view,
		logger: logger,
	}
}

// Get handles GET /projects/:id/stats
func (h *StatsHandler) Get(c *gin.Context) {
	stats, err := h.ledger.ProjectStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Live handles GET /ws/projects/:id/stats — upgrades to a websocket and
// streams the current counters immediately, then every change, until the
// client disconnects.
func (h *StatsHandler) Live(c *gin.Context) {
	projectID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	// 订阅回调和写 goroutine 之间用 channel 解耦；gorilla 连接不允许并发写
	updates := make(chan model.EffectiveStats, 16)

	sub, err := h.view.SubscribeStats(c.Request.Context(), projectID, func(stats model.EffectiveStats) {
		select {
		case updates <- stats:
		default:
			// 慢客户端：丢弃中间值，只保证最终值可达
		}
	})
	if err != nil {
		h.logger.Error("Live stats subscription failed",
			zap.String("project_id", projectID),
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
		case stats := <-updates:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(stats); err != nil {
				return
			}
		}
	}
}
