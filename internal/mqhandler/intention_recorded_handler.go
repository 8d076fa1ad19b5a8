package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"crowdpledge/internal/model"
	"crowdpledge/internal/mq"
	"crowdpledge/internal/repository"
	"crowdpledge/pkg/util"
)

// IntentionRecordedNotificationHandler consumes intention.recorded events and
// writes an in-app notification for the project owner.
type IntentionRecordedNotificationHandler struct {
	repo         *repository.NotificationRepository
	logger       *zap.Logger
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	publisher    *mq.Publisher
	maxRetries   int64
}

func NewIntentionRecordedNotificationHandler(
	repo *repository.NotificationRepository,
	logger *zap.Logger,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	publisher *mq.Publisher,
	maxRetries int64,
) *IntentionRecordedNotificationHandler {
	return &IntentionRecordedNotificationHandler{
		repo:         repo,
		logger:       logger,
		deduper:      deduper,
		retryCounter: retryCounter,
		publisher:    publisher,
		maxRetries:   maxRetries,
	}
}

func intentionVerb(t string) string {
	switch model.IntentionType(t) {
	case model.IntentionInvestor:
		return "invest in"
	case model.IntentionAdvertiser:
		return "advertise"
	default:
		return "donate to"
	}
}

// HandleIntentionRecorded -- 写入项目方站内通知
func (h *IntentionRecordedNotificationHandler) HandleIntentionRecorded(ctx context.Context, raw json.RawMessage) error {
	var p mq.IntentionRecordedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// JSON decode 错误 - 不可重试
		h.logger.Error("Failed to unmarshal intention recorded payload (non-retryable)",
			zap.Error(err),
		)
		return nil // ack 掉
	}

	eventKey := fmt.Sprintf("%s:%s:%d", p.ProjectID, p.UserID, p.RecordedAt.UnixMilli())

	// Redis 去重
	if !h.deduper.AcquireOnce(ctx, "intention_notification", eventKey) {
		h.logger.Info("Duplicate intention event skipped",
			zap.String("project_id", p.ProjectID),
			zap.String("user_id", p.UserID),
		)
		return nil
	}

	h.logger.Info("Creating owner notification",
		zap.String("project_id", p.ProjectID),
		zap.String("user_id", p.UserID),
		zap.String("type", p.Type),
	)

	notif := &model.Notification{
		UserID:  p.OwnerID,
		Type:    "intention_recorded",
		Content: fmt.Sprintf("A backer wants to %s your project", intentionVerb(p.Type)),
	}

	if err := h.repo.Insert(ctx, notif); err != nil {
		isRetryable, errType := util.IsRetryableError(err)
		h.logger.Error("Failed to insert notification",
			zap.String("project_id", p.ProjectID),
			zap.String("user_id", p.UserID),
			zap.String("error_type", errType),
			zap.Bool("retryable", isRetryable),
			zap.Error(err),
		)

		if !isRetryable {
			return nil // 不可重试错误，ack 掉
		}

		retryCount, cerr := h.retryCounter.IncrementAndGet(ctx, util.FormatRetryKey("intention_notification", eventKey))
		if cerr != nil {
			h.logger.Warn("Retry counter unavailable, requeueing", zap.Error(cerr))
			return err
		}

		if !util.ShouldRetry(retryCount, h.maxRetries, isRetryable) {
			// 重试耗尽 → 进死信队列，ack 原消息
			h.logger.Error("Retries exhausted, routing to DLQ",
				zap.String("project_id", p.ProjectID),
				zap.Int64("retry_count", retryCount),
			)
			if dlqErr := h.publisher.PublishToDLQ(mq.RoutingKeyIntentionRecorded, raw, err.Error()); dlqErr != nil {
				h.logger.Error("Failed to publish to DLQ", zap.Error(dlqErr))
				return err
			}
			return nil
		}

		return err // nack 并重试
	}

	h.logger.Info("Owner notification created",
		zap.String("project_id", p.ProjectID),
		zap.String("owner_id", p.OwnerID),
	)

	return nil
}
