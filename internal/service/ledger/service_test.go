package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crowdpledge/internal/model"
	"crowdpledge/internal/repository"
)

// fakeIntentionStore keeps both sides of the index under one lock, so a
// Replace is atomic: either both relations change or neither does.
type fakeIntentionStore struct {
	mu      sync.Mutex
	project  map[string]map[string]model.IntentionRecord // projectID -> userID
	user     map[string]map[string]model.IntentionRecord // userID -> projectID
	events   []any
	failWith error
}

func newFakeIntentionStore() *fakeIntentionStore {
	return &fakeIntentionStore{
		project: map[string]map[string]model.IntentionRecord{},
		user:    map[string]map[string]model.IntentionRecord{},
	}
}

func (f *fakeIntentionStore) Replace(ctx context.Context, rec model.IntentionRecord, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != nil {
		return f.failWith
	}

	if f.project[rec.ProjectID] == nil {
		f.project[rec.ProjectID] = map[string]model.IntentionRecord{}
	}
	if f.user[rec.UserID] == nil {
		f.user[rec.UserID] = map[string]model.IntentionRecord{}
	}
	delete(f.project[rec.ProjectID], rec.UserID)
	delete(f.user[rec.UserID], rec.ProjectID)
	f.project[rec.ProjectID][rec.UserID] = rec
	f.user[rec.UserID][rec.ProjectID] = rec

	if event != nil {
		f.events = append(f.events, event)
	}
	return nil
}

func (f *fakeIntentionStore) Get(ctx context.Context, userID, projectID string) (*model.IntentionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.user[userID][projectID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeIntentionStore) UserIDsByType(ctx context.Context, projectID string, t model.IntentionType) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := []string{}
	for userID, rec := range f.project[projectID] {
		if rec.Type == t {
			ids = append(ids, userID)
		}
	}
	return ids, nil
}

// mirrorsConsistent checks the two relations are exact mirror images.
func (f *fakeIntentionStore) mirrorsConsistent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for projectID, users := range f.project {
		for userID, rec := range users {
			other, ok := f.user[userID][projectID]
			if !ok || other != rec {
				return false
			}
			count++
		}
	}
	userCount := 0
	for _, projects := range f.user {
		userCount += len(projects)
	}
	return count == userCount
}

// fakeStatsStore implements a genuine optimistic compare-and-swap: the
// read-modify-write retries whenever a concurrent writer bumped the version
// between read and write.
type fakeStatsStore struct {
	mu             sync.Mutex
	data           map[string]model.ProjectStats
	maxAttempts    int
	alwaysConflict bool
}

func newFakeStatsStore(projectIDs ...string) *fakeStatsStore {
	data := map[string]model.ProjectStats{}
	for _, id := range projectIDs {
		data[id] = model.ProjectStats{ProjectID: id}
	}
	return &fakeStatsStore{data: data, maxAttempts: 100}
}

func (f *fakeStatsStore) CompareAndSwap(ctx context.Context, projectID string, transform func(model.ProjectStats) model.ProjectStats) (model.ProjectStats, error) {
	for attempt := 0; attempt < f.maxAttempts; attempt++ {
		f.mu.Lock()
		current, ok := f.data[projectID]
		f.mu.Unlock()
		if !ok {
			return model.ProjectStats{}, errors.New("project stats not found")
		}

		next := transform(current)

		if f.alwaysConflict {
			continue
		}

		f.mu.Lock()
		if f.data[projectID].Version == current.Version {
			next.Version = current.Version + 1
			f.data[projectID] = next
			f.mu.Unlock()
			return next, nil
		}
		f.mu.Unlock()
	}
	return model.ProjectStats{}, repository.ErrCASExhausted
}

func (f *fakeStatsStore) Effective(ctx context.Context, projectID string) (model.EffectiveStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[projectID].Effective(), nil
}

func (f *fakeStatsStore) snapshot(projectID string) model.ProjectStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[projectID]
}

type fakeLive struct {
	mu         sync.Mutex
	stats      []model.EffectiveStats
	intentions []model.IntentionRecord
}

func (f *fakeLive) PublishStats(ctx context.Context, stats model.EffectiveStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, stats)
}

func (f *fakeLive) PublishIntention(ctx context.Context, rec model.IntentionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intentions = append(f.intentions, rec)
}

type fakeGuard struct {
	deny bool
}

func (f *fakeGuard) AcquireOnce(ctx context.Context, scope, id string) bool { return !f.deny }
func (f *fakeGuard) Release(ctx context.Context, scope, id string)          {}

type fakeProjects struct{}

func (fakeProjects) OwnerID(ctx context.Context, projectID string) (string, error) {
	return "owner-1", nil
}

func newTestService(intentions *fakeIntentionStore, stats *fakeStatsStore, live *fakeLive, guard *fakeGuard) *Service {
	return NewService(intentions, stats, fakeProjects{}, live, guard, zap.NewNop())
}

func donor() *model.IntentionType {
	t := model.IntentionDonor
	return &t
}

func TestRecordIntentionFirstTime(t *testing.T) {
	intentions := newFakeIntentionStore()
	stats := newFakeStatsStore("p1")
	liveView := &fakeLive{}
	svc := newTestService(intentions, stats, liveView, &fakeGuard{})

	err := svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionDonor, nil)
	require.NoError(t, err)

	rec, err := svc.UserIntentionForProject(context.Background(), "alice", "p1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.IntentionDonor, rec.Type)

	assert.Equal(t, intentions.project["p1"]["alice"], intentions.user["alice"]["p1"])

	s := stats.snapshot("p1")
	assert.Equal(t, int64(1), s.Donors)
	assert.Equal(t, int64(0), s.Investors)
	assert.Equal(t, int64(0), s.Advertisers)

	require.Len(t, liveView.stats, 1)
	assert.Equal(t, int64(1), liveView.stats[0].Donors)
	require.Len(t, liveView.intentions, 1)
	require.Len(t, intentions.events, 1)
}

func TestRecordIntentionReplace(t *testing.T) {
	intentions := newFakeIntentionStore()
	stats := newFakeStatsStore("p1")
	svc := newTestService(intentions, stats, &fakeLive{}, &fakeGuard{})

	require.NoError(t, svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionDonor, nil))
	require.NoError(t, svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionInvestor, donor()))

	// 单条记录，类型为最后一次请求的类型
	assert.Len(t, intentions.project["p1"], 1)
	assert.Equal(t, model.IntentionInvestor, intentions.project["p1"]["alice"].Type)
	assert.True(t, intentions.mirrorsConsistent())

	s := stats.snapshot("p1")
	assert.Equal(t, int64(0), s.Donors)
	assert.Equal(t, int64(1), s.Investors)
}

func TestDecrementFloorsAtZero(t *testing.T) {
	intentions := newFakeIntentionStore()
	// 计数器已经是 0，但调用方带来了过期的 previousType
	stats := newFakeStatsStore("p1")
	svc := newTestService(intentions, stats, &fakeLive{}, &fakeGuard{})

	err := svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionInvestor, donor())
	require.NoError(t, err)

	s := stats.snapshot("p1")
	assert.Equal(t, int64(0), s.Donors, "floored decrement must not go negative")
	assert.Equal(t, int64(1), s.Investors)
}

func TestIdempotentNoOp(t *testing.T) {
	intentions := newFakeIntentionStore()
	stats := newFakeStatsStore("p1")
	liveView := &fakeLive{}
	svc := newTestService(intentions, stats, liveView, &fakeGuard{})

	require.NoError(t, svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionDonor, nil))
	before := stats.snapshot("p1")

	require.NoError(t, svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionDonor, donor()))

	assert.Equal(t, before, stats.snapshot("p1"))
	assert.Len(t, intentions.events, 1, "no-op must not emit an event")
	assert.Len(t, liveView.intentions, 1)
}

func TestIndexFailureLeavesCountersUntouched(t *testing.T) {
	intentions := newFakeIntentionStore()
	intentions.failWith = errors.New("network down")
	stats := newFakeStatsStore("p1")
	liveView := &fakeLive{}
	svc := newTestService(intentions, stats, liveView, &fakeGuard{})

	err := svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionDonor, nil)
	require.Error(t, err)

	assert.Equal(t, int64(0), stats.snapshot("p1").Donors)
	assert.Empty(t, liveView.stats)
	assert.Empty(t, liveView.intentions)
	assert.Empty(t, intentions.project["p1"])
}

func TestStatsExhaustionIsNonFatal(t *testing.T) {
	intentions := newFakeIntentionStore()
	stats := newFakeStatsStore("p1")
	stats.alwaysConflict = true
	liveView := &fakeLive{}
	svc := newTestService(intentions, stats, liveView, &fakeGuard{})

	// 索引写入成功后，计数器重试耗尽不构成整体失败
	err := svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionDonor, nil)
	require.NoError(t, err)

	assert.Equal(t, model.IntentionDonor, intentions.project["p1"]["alice"].Type)
	assert.Empty(t, liveView.stats, "no stats publish without a committed adjustment")
	require.Len(t, liveView.intentions, 1, "intention publish follows the durable index write")
}

func TestSubmitGuardBlocksOverlap(t *testing.T) {
	svc := newTestService(newFakeIntentionStore(), newFakeStatsStore("p1"), &fakeLive{}, &fakeGuard{deny: true})

	err := svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionDonor, nil)
	assert.ErrorIs(t, err, ErrSubmitInFlight)
}

func TestRejectsUnknownType(t *testing.T) {
	svc := newTestService(newFakeIntentionStore(), newFakeStatsStore("p1"), &fakeLive{}, &fakeGuard{})

	err := svc.RecordIntention(context.Background(), "p1", "alice", model.IntentionType("patron"), nil)
	assert.Error(t, err)

	err = svc.RecordIntention(context.Background(), "", "alice", model.IntentionDonor, nil)
	assert.Error(t, err)
}

func TestMirrorInvariantAcrossSequence(t *testing.T) {
	intentions := newFakeIntentionStore()
	stats := newFakeStatsStore("p1", "p2")
	svc := newTestService(intentions, stats, &fakeLive{}, &fakeGuard{})

	investor := model.IntentionInvestor
	steps := []struct {
		project  string
		user     string
		next     model.IntentionType
		previous *model.IntentionType
	}{
		{"p1", "alice", model.IntentionDonor, nil},
		{"p1", "bob", model.IntentionInvestor, nil},
		{"p2", "alice", model.IntentionAdvertiser, nil},
		{"p1", "alice", model.IntentionInvestor, donor()},
		{"p1", "bob", model.IntentionDonor, &investor},
	}

	for _, step := range steps {
		require.NoError(t, svc.RecordIntention(context.Background(), step.project, step.user, step.next, step.previous))
		assert.True(t, intentions.mirrorsConsistent())
	}

	ids, err := svc.IntentingUserIDs(context.Background(), "p1", model.IntentionInvestor)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, ids)
}

func TestConcurrentAdjustmentConvergence(t *testing.T) {
	const n = 32

	intentions := newFakeIntentionStore()
	stats := newFakeStatsStore("p1")
	svc := newTestService(intentions, stats, &fakeLive{}, &fakeGuard{})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := "user-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
			errs[i] = svc.RecordIntention(context.Background(), "p1", userID, model.IntentionDonor, nil)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	s := stats.snapshot("p1")
	assert.Equal(t, int64(n), s.Donors)
	assert.True(t, intentions.mirrorsConsistent())

	counters := []int64{s.Donors, s.Investors, s.Advertisers}
	for _, c := range counters {
		assert.GreaterOrEqual(t, c, int64(0))
	}
}
