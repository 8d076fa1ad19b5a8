package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"crowdpledge/internal/model"
)

// StatsReader supplies the initial value delivered on subscription.
type StatsReader interface {
	Effective(ctx context.Context, projectID string) (model.EffectiveStats, error)
}

// IntentionReader supplies the initial per-pair intention value.
type IntentionReader interface {
	Get(ctx context.Context, userID, projectID string) (*model.IntentionRecord, error)
}

// View fans committed state out to subscribers over Redis pub/sub. Delivery
// is event-driven — no polling. Every subscriber receives the current value
// immediately on subscribe, then every change until it unsubscribes.
type View struct {
	rdb        *redis.Client
	stats      StatsReader
	intentions IntentionReader
	logger     *zap.Logger
}

func NewView(rdb *redis.Client, stats StatsReader, intentions IntentionReader, logger *zap.Logger) *View {
	return &View{
		rdb:        rdb,
		stats:      stats,
		intentions: intentions,
		logger:     logger,
	}
}

func statsChannel(projectID string) string {
	return "stats:" + projectID
}

func intentionChannel(userID, projectID string) string {
	return fmt.Sprintf("intention:%s:%s", userID, projectID)
}

// PublishStats pushes a committed counter value to stats subscribers.
// Best-effort: a failed publish is logged, not propagated — the write path
// must not fail because fan-out did.
func (v *View) PublishStats(ctx context.Context, stats model.EffectiveStats) {
	body, err := json.Marshal(stats)
	if err != nil {
		v.logger.Error("Failed to marshal stats for live view", zap.Error(err))
		return
	}
	if err := v.rdb.Publish(ctx, statsChannel(stats.ProjectID), body).Err(); err != nil {
		v.logger.Warn("Failed to publish stats to live view",
			zap.String("project_id", stats.ProjectID),
			zap.Error(err),
		)
	}
}

// PublishIntention pushes a committed intention record to its pair channel.
func (v *View) PublishIntention(ctx context.Context, rec model.IntentionRecord) {
	body, err := json.Marshal(rec)
	if err != nil {
		v.logger.Error("Failed to marshal intention for live view", zap.Error(err))
		return
	}
	if err := v.rdb.Publish(ctx, intentionChannel(rec.UserID, rec.ProjectID), body).Err(); err != nil {
		v.logger.Warn("Failed to publish intention to live view",
			zap.String("project_id", rec.ProjectID),
			zap.String("user_id", rec.UserID),
			zap.Error(err),
		)
	}
}

// Subscription is a live registration. Close must be called exactly once per
// successful subscribe; after it returns no further callbacks are invoked.
type Subscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}

// SubscribeStats registers fn for a project's counter changes. fn is invoked
// with the current value before SubscribeStats returns, then from the
// subscription goroutine on every subsequent change.
func (v *View) SubscribeStats(ctx context.Context, projectID string, fn func(model.EffectiveStats)) (*Subscription, error) {
	initial, err := v.stats.Effective(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read initial stats: %w", err)
	}

	pubsub := v.rdb.Subscribe(ctx, statsChannel(projectID))
	// 确认订阅建立，避免丢失紧随其后的变更
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	fn(initial)

	sub := &Subscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var stats model.EffectiveStats
				if err := json.Unmarshal([]byte(msg.Payload), &stats); err != nil {
					v.logger.Warn("Dropping malformed live stats message",
						zap.String("project_id", projectID),
						zap.Error(err),
					)
					continue
				}
				fn(stats)
			}
		}
	}()

	return sub, nil
}

// SubscribeUserIntention registers fn for one (user, project) pair. fn
// receives nil when no intention exists yet.
func (v *View) SubscribeUserIntention(ctx context.Context, userID, projectID string, fn func(*model.IntentionRecord)) (*Subscription, error) {
	initial, err := v.intentions.Get(ctx, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read initial intention: %w", err)
	}

	pubsub := v.rdb.Subscribe(ctx, intentionChannel(userID, projectID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	fn(initial)

	sub := &Subscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-sub.done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var rec model.IntentionRecord
				if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
					v.logger.Warn("Dropping malformed live intention message",
						zap.String("project_id", projectID),
						zap.String("user_id", userID),
						zap.Error(err),
					)
					continue
				}
				fn(&rec)
			}
		}
	}()

	return sub, nil
}
