package consumer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/session"
	"wisefido-pose/internal/source"
	"wisefido-pose/internal/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// poseAt 生成指定体轴角度的姿势；肩部中点固定，帧间位移为 0
func poseAt(angleDeg, noseY float64) []models.Landmark {
	const torso = 0.3
	rad := angleDeg * math.Pi / 180
	shoulder := models.Landmark{X: 0.5, Y: 0.4}
	hip := models.Landmark{
		X: shoulder.X - torso*math.Sin(rad),
		Y: shoulder.Y + torso*math.Cos(rad),
	}

	lms := make([]models.Landmark, models.PoseLandmarkCount)
	for i := range lms {
		lms[i] = models.Landmark{X: hip.X, Y: hip.Y, Visibility: 0.9}
	}
	lms[models.LandmarkNose] = models.Landmark{X: 0.5, Y: noseY, Visibility: 0.9}
	lms[models.LandmarkLeftShoulder] = models.Landmark{X: shoulder.X - 0.05, Y: shoulder.Y, Visibility: 0.9}
	lms[models.LandmarkRightShoulder] = models.Landmark{X: shoulder.X + 0.05, Y: shoulder.Y, Visibility: 0.9}
	lms[models.LandmarkLeftHip] = models.Landmark{X: hip.X - 0.04, Y: hip.Y, Visibility: 0.9}
	lms[models.LandmarkRightHip] = models.Landmark{X: hip.X + 0.04, Y: hip.Y, Visibility: 0.9}
	return lms
}

// fallSequence 2 秒站立后突然倒地
func fallSequence(cameraID string, start time.Time) []models.Frame {
	var frames []models.Frame
	for i := 0; i < 20; i++ {
		frames = append(frames, models.Frame{
			CameraID:  cameraID,
			Seq:       uint64(i + 1),
			Timestamp: start.Add(time.Duration(i) * 100 * time.Millisecond),
			Landmarks: poseAt(20, 0.3),
		})
	}
	frames = append(frames, models.Frame{
		CameraID:  cameraID,
		Seq:       21,
		Timestamp: start.Add(2 * time.Second),
		Landmarks: poseAt(70, 0.6),
	})
	return frames
}

type sliceSource struct {
	frames []models.Frame
	errs   []error // 在帧之前依次返回
}

func (s *sliceSource) Next(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return models.Frame{}, err
	}
	if len(s.frames) == 0 {
		return models.Frame{}, source.ErrSourceClosed
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	return f, nil
}

func (s *sliceSource) Close() error { return nil }

type fakeCache struct {
	results []models.FrameResult
	err     error
}

func (f *fakeCache) UpdateStatus(_ context.Context, result models.FrameResult) error {
	f.results = append(f.results, result)
	return f.err
}

type fakeStates struct {
	states map[string]models.SessionState
}

func (f *fakeStates) SetState(_ context.Context, cameraID string, state models.SessionState, _ time.Duration) error {
	if f.states == nil {
		f.states = make(map[string]models.SessionState)
	}
	f.states[cameraID] = state
	return nil
}

type fakeNotifier struct {
	effects []models.AlertEffect
}

func (f *fakeNotifier) Notify(_ context.Context, _ models.FrameResult, effect models.AlertEffect) error {
	f.effects = append(f.effects, effect)
	return nil
}

type fakeStore struct {
	events []*models.AlarmEvent
	err    error
}

func (f *fakeStore) CreateAlarmEvent(_ context.Context, event *models.AlarmEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func newTestManager() *session.Manager {
	settings := session.DefaultSettings()
	settings.Enabled = models.RuleToggles{}
	for _, id := range []models.RuleID{models.RuleAxisHorizontal, models.RuleFloorProximity, models.RuleStillness} {
		settings.Enabled[id.Index()] = true
	}
	clock := timeutil.NewMockClock(time.Unix(1_700_000_000, 0))
	return session.NewManager(settings, session.DefaultOptions(), clock, zap.NewNop())
}

func TestFrameConsumer_RunDispatchesFallAlert(t *testing.T) {
	cache := &fakeCache{}
	states := &fakeStates{}
	notify := &fakeNotifier{}
	store := &fakeStore{}
	c := NewFrameConsumer(newTestManager(), cache, states, notify, store, time.Minute, zap.NewNop())

	src := &sliceSource{frames: fallSequence("cam-1", time.Unix(1_700_000_000, 0))}
	require.NoError(t, c.Run(context.Background(), src))

	require.Len(t, cache.results, 21)
	last := cache.results[len(cache.results)-1]
	assert.Equal(t, models.StatusFall, last.Status)

	assert.Equal(t, models.StatusFall, states.states["cam-1"].CurrentStatus)

	require.Len(t, notify.effects, 1)
	assert.Equal(t, models.AlertFall, notify.effects[0].Kind)

	require.Len(t, store.events, 1)
	assert.Equal(t, models.EventTypeFall, store.events[0].EventType)
	assert.Equal(t, "ALERT", store.events[0].AlarmLevel)
	assert.Equal(t, "cam-1", store.events[0].CameraID)
	assert.Contains(t, store.events[0].TriggerData, "axis horizontalization")

	snapshot := c.Metrics().GetSnapshot()
	assert.Equal(t, int64(21), snapshot.FramesProcessed)
	assert.Equal(t, int64(21), snapshot.FramesSucceeded)
	assert.Equal(t, int64(1), snapshot.AlertsRaised)
	assert.Zero(t, snapshot.FramesFailed)
}

func TestFrameConsumer_SkippedAndStoppedFrames(t *testing.T) {
	manager := newTestManager()
	cache := &fakeCache{}
	c := NewFrameConsumer(manager, cache, nil, nil, nil, 0, zap.NewNop())
	ctx := context.Background()
	start := time.Unix(1_700_000_000, 0)

	// 无人帧：状态 unknown，仍写入缓存
	require.NoError(t, c.ProcessFrame(ctx, models.Frame{CameraID: "cam-1", Seq: 1, Timestamp: start}))
	require.Len(t, cache.results, 1)
	assert.Equal(t, models.StatusUnknown, cache.results[0].Status)
	assert.True(t, cache.results[0].Skipped)

	// 会话停止后帧被丢弃
	sess, err := manager.Get("cam-1")
	require.NoError(t, err)
	sess.Stop()
	require.NoError(t, c.ProcessFrame(ctx, models.Frame{CameraID: "cam-1", Seq: 2, Timestamp: start.Add(100 * time.Millisecond), Landmarks: poseAt(20, 0.3)}))
	assert.Len(t, cache.results, 1)

	snapshot := c.Metrics().GetSnapshot()
	assert.Equal(t, int64(2), snapshot.FramesSkipped)
}

func TestFrameConsumer_StoreFailureDoesNotStopLoop(t *testing.T) {
	notify := &fakeNotifier{}
	store := &fakeStore{err: errors.New("db down")}
	c := NewFrameConsumer(newTestManager(), nil, nil, notify, store, 0, zap.NewNop())

	frames := fallSequence("cam-1", time.Unix(1_700_000_000, 0))
	frames = append(frames, models.Frame{
		CameraID:  "cam-2",
		Seq:       1,
		Timestamp: time.Unix(1_700_000_003, 0),
		Landmarks: poseAt(20, 0.3),
	})
	require.NoError(t, c.Run(context.Background(), &sliceSource{frames: frames}))

	// 落库失败不影响报警投递与后续帧
	assert.Len(t, notify.effects, 1)
	snapshot := c.Metrics().GetSnapshot()
	assert.Equal(t, int64(22), snapshot.FramesProcessed)
	assert.Equal(t, int64(1), snapshot.ErrorsStore)
	assert.Equal(t, int64(1), snapshot.FramesFailed)
}

func TestFrameConsumer_RunStopsOnContextCancel(t *testing.T) {
	c := NewFrameConsumer(newTestManager(), nil, nil, nil, nil, 0, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &sliceSource{errs: []error{errors.New("broker unavailable")}}
	assert.NoError(t, c.Run(ctx, src))
}

func TestFrameConsumer_SourceErrorBacksOff(t *testing.T) {
	c := NewFrameConsumer(newTestManager(), nil, nil, nil, nil, 0, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	src := &sliceSource{errs: []error{errors.New("broker unavailable")}}

	// 退避期间 ctx 超时，正常退出
	require.NoError(t, c.Run(ctx, src))
	assert.Equal(t, int64(1), c.Metrics().GetSnapshot().ErrorsSource)
}

// idleSource 阻塞直到 ctx 取消，报告固定的丢帧数
type idleSource struct {
	dropped uint64
}

func (s *idleSource) Next(ctx context.Context) (models.Frame, error) {
	<-ctx.Done()
	return models.Frame{}, ctx.Err()
}

func (s *idleSource) Close() error { return nil }

func (s *idleSource) Dropped() uint64 { return s.dropped }

func TestFrameConsumer_MetricsReportIncludesDroppedFrames(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	c := NewFrameConsumer(newTestManager(), nil, nil, nil, nil, 0, zap.New(core))
	c.metricsInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx, &idleSource{dropped: 3}))

	reports := logs.FilterMessage("Metrics report").All()
	require.NotEmpty(t, reports)
	assert.Equal(t, uint64(3), reports[0].ContextMap()["frames_dropped"])
}
