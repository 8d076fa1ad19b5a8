package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"crowdpledge/internal/model"
	"crowdpledge/internal/mq"
	"crowdpledge/pkg/metrics"
	"crowdpledge/pkg/trace"
)

var (
	// ErrSubmitInFlight means the same (user, project) pair has a write in
	// flight; the caller should not overlap submissions.
	ErrSubmitInFlight = errors.New("intention submit already in flight")
)

// IntentionStore is the write/read surface of the two-sided intention index.
type IntentionStore interface {
	Replace(ctx context.Context, rec model.IntentionRecord, event any) error
	Get(ctx context.Context, userID, projectID string) (*model.IntentionRecord, error)
	UserIDsByType(ctx context.Context, projectID string, t model.IntentionType) ([]string, error)
}

// StatsStore is the optimistic counter surface.
type StatsStore interface {
	CompareAndSwap(ctx context.Context, projectID string, transform func(model.ProjectStats) model.ProjectStats) (model.ProjectStats, error)
	Effective(ctx context.Context, projectID string) (model.EffectiveStats, error)
}

// ProjectStore resolves the owner for event payloads.
type ProjectStore interface {
	OwnerID(ctx context.Context, projectID string) (string, error)
}

// LivePublisher pushes committed state to live-view subscribers.
type LivePublisher interface {
	PublishStats(ctx context.Context, stats model.EffectiveStats)
	PublishIntention(ctx context.Context, rec model.IntentionRecord)
}

// SubmitGuard debounces rapid repeated submissions for the same key.
type SubmitGuard interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
	Release(ctx context.Context, scope, id string)
}

// Service is the single write path for intentions and their counters. UI
// layers hold read-only snapshots and go through here for every mutation.
type Service struct {
	intentions IntentionStore
	stats      StatsStore
	projects   ProjectStore
	live       LivePublisher
	guard      SubmitGuard
	logger     *zap.Logger
}

func NewService(
	intentions IntentionStore,
	stats StatsStore,
	projects ProjectStore,
	live LivePublisher,
	guard SubmitGuard,
	logger *zap.Logger,
) *Service {
	return &Service{
		intentions: intentions,
		stats:      stats,
		projects:   projects,
		live:       live,
		guard:      guard,
		logger:     logger,
	}
}

// RecordIntention records or replaces the user's single current intention for
// a project.
//
// Step 1 updates both sides of the intention index in one transaction (with
// the intention.recorded event in the same transaction); if it fails, nothing
// happened and the error is returned. Step 2 adjusts the aggregate counters
// with an optimistic compare-and-swap; exhausting its retries is non-fatal —
// the index is the source of truth for what the user chose and is already
// durable, only the aggregate may lag. Observers therefore never see counters
// reflect an intention the index does not contain, while the converse is
// expected during the retry window.
//
// previousType is the caller's last-known intention for the pair (nil when
// none). When it equals newType the call is an idempotent no-op.
func (s *Service) RecordIntention(
	ctx context.Context,
	projectID, userID string,
	newType model.IntentionType,
	previousType *model.IntentionType,
) error {
	if projectID == "" || userID == "" {
		return fmt.Errorf("project id and user id are required")
	}
	if _, err := model.ParseIntentionType(string(newType)); err != nil {
		return err
	}
	if previousType != nil {
		if _, err := model.ParseIntentionType(string(*previousType)); err != nil {
			return err
		}
	}

	// 幂等守卫：重复提交同一意向不做任何事
	if previousType != nil && *previousType == newType {
		return nil
	}

	guardKey := projectID + ":" + userID
	if !s.guard.AcquireOnce(ctx, "intention_submit", guardKey) {
		return ErrSubmitInFlight
	}

	ownerID, err := s.projects.OwnerID(ctx, projectID)
	if err != nil {
		s.guard.Release(ctx, "intention_submit", guardKey)
		return fmt.Errorf("failed to resolve project: %w", err)
	}

	rec := model.IntentionRecord{
		ProjectID: projectID,
		UserID:    userID,
		Type:      newType,
		CreatedAt: time.Now(),
	}

	payload := mq.IntentionRecordedPayload{
		ProjectID:  projectID,
		OwnerID:    ownerID,
		UserID:     userID,
		Type:       string(newType),
		RecordedAt: rec.CreatedAt,
		TraceID:    trace.FromContext(ctx),
	}
	if previousType != nil {
		payload.PreviousType = string(*previousType)
	}

	// Step 1 — 原子索引写入。失败则整个操作失败，计数器不动。
	if err := s.intentions.Replace(ctx, rec, payload); err != nil {
		s.guard.Release(ctx, "intention_submit", guardKey)
		return fmt.Errorf("failed to update intention index: %w", err)
	}

	metrics.IncrementIntentionsRecorded(string(newType))
	s.live.PublishIntention(ctx, rec)

	// Step 2 — 计数器调整，只在索引写入成功后进行
	committed, err := s.stats.CompareAndSwap(ctx, projectID, func(cur model.ProjectStats) model.ProjectStats {
		return cur.Adjust(previousType, newType)
	})
	if err != nil {
		// 非致命：索引已经是持久的，计数器可能暂时偏差
		s.logger.Warn("Stats adjustment failed after index write",
			zap.String("project_id", projectID),
			zap.String("user_id", userID),
			zap.String("type", string(newType)),
			zap.Error(err),
		)
		return nil
	}

	s.live.PublishStats(ctx, committed.Effective())
	return nil
}

// IntentingUserIDs returns the users whose current intention for the project
// matches the category. Re-invoking re-queries the index.
func (s *Service) IntentingUserIDs(ctx context.Context, projectID string, t model.IntentionType) ([]string, error) {
	if _, err := model.ParseIntentionType(string(t)); err != nil {
		return nil, err
	}
	return s.intentions.UserIDsByType(ctx, projectID, t)
}

// UserIntentionForProject returns the user's current intention, or nil.
func (s *Service) UserIntentionForProject(ctx context.Context, userID, projectID string) (*model.IntentionRecord, error) {
	return s.intentions.Get(ctx, userID, projectID)
}

// ProjectStats returns the merged (current + legacy) counters.
func (s *Service) ProjectStats(ctx context.Context, projectID string) (model.EffectiveStats, error) {
	return s.stats.Effective(ctx, projectID)
}
