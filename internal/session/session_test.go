package session

import (
	"math"
	"testing"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/timeutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const torsoLength = 0.3

// poseAt 生成指定体轴角度的姿势；肩部中点固定在 (0.5, 0.4)，因此帧间位移为 0
func poseAt(angleDeg, noseY float64) []models.Landmark {
	rad := angleDeg * math.Pi / 180
	shoulder := models.Landmark{X: 0.5, Y: 0.4}
	hip := models.Landmark{
		X: shoulder.X - torsoLength*math.Sin(rad),
		Y: shoulder.Y + torsoLength*math.Cos(rad),
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

type frameFeeder struct {
	t     *testing.T
	s     *Session
	start time.Time
	seq   uint64
}

func (f *frameFeeder) at(offset time.Duration, lms []models.Landmark) models.FrameResult {
	f.seq++
	res, err := f.s.ProcessFrame(models.Frame{
		CameraID:  f.s.CameraID(),
		Seq:       f.seq,
		Timestamp: f.start.Add(offset),
		Landmarks: lms,
	})
	require.NoError(f.t, err)
	return res
}

func newTestSession(t *testing.T, settings Settings) (*Session, *frameFeeder) {
	return newTestSessionWithLogger(t, settings, zap.NewNop())
}

func newTestSessionWithLogger(t *testing.T, settings Settings, logger *zap.Logger) (*Session, *frameFeeder) {
	start := time.Unix(1_700_000_000, 0)
	s := NewSession("camera-1", settings, DefaultOptions(), timeutil.NewMockClock(start), logger)
	return s, &frameFeeder{t: t, s: s, start: start}
}

type alertAt struct {
	Offset time.Duration
	Kind   models.AlertKind
	Status models.Status
}

func collectAlerts(results []models.FrameResult, start time.Time) []alertAt {
	var out []alertAt
	for _, r := range results {
		for _, e := range r.Effects {
			out = append(out, alertAt{Offset: r.Timestamp.Sub(start), Kind: e.Kind, Status: r.Status})
		}
	}
	return out
}

func settingsWith(ids ...models.RuleID) Settings {
	st := DefaultSettings()
	st.Enabled = models.RuleToggles{}
	for _, id := range ids {
		st.Enabled[id.Index()] = true
	}
	return st
}

func countEffects(results []models.FrameResult, kind models.AlertKind) int {
	n := 0
	for _, r := range results {
		for _, e := range r.Effects {
			if e.Kind == kind {
				n++
			}
		}
	}
	return n
}

func TestSession_FallDetectedWhenAngleJumps(t *testing.T) {
	s, feed := newTestSession(t, settingsWith(models.RuleAxisHorizontal, models.RuleFloorProximity, models.RuleStillness))

	var res models.FrameResult
	for i := 0; i < 20; i++ {
		res = feed.at(time.Duration(i)*100*time.Millisecond, poseAt(20, 0.3))
		require.NotEqual(t, models.StatusFall, res.Status)
		assert.InDelta(t, 0, res.Features.Movement, 1e-9)
	}
	assert.Equal(t, models.StatusStanding, res.Status)

	res = feed.at(2*time.Second, poseAt(70, 0.6))
	assert.Equal(t, models.StatusFall, res.Status)
	assert.Equal(t, "Fall detected!", res.Text)
	assert.Equal(t, []models.RuleID{models.RuleAxisHorizontal, models.RuleFloorProximity, models.RuleStillness}, res.Triggered)
	require.Len(t, res.Effects, 1)
	assert.Equal(t, models.AlertFall, res.Effects[0].Kind)
	assert.True(t, res.Effects[0].Tone)
	assert.True(t, res.Effects[0].Vibrate)
	assert.Equal(t, []string{"axis horizontalization", "floor proximity", "post-fall stillness"}, res.Effects[0].Banner)

	state := s.State()
	assert.Equal(t, models.StatusFall, state.CurrentStatus)
	require.NotNil(t, state.FallDetectedTime)

	// 保持跌倒姿势：不再重复报警
	var later []models.FrameResult
	for i := 1; i <= 10; i++ {
		later = append(later, feed.at(2*time.Second+time.Duration(i)*100*time.Millisecond, poseAt(70, 0.6)))
	}
	assert.Zero(t, countEffects(later, models.AlertFall))
	assert.Equal(t, models.StatusFall, later[len(later)-1].Status)
}

func TestSession_RuleStatusesCarryDiagnostics(t *testing.T) {
	_, feed := newTestSession(t, settingsWith(models.RuleAxisHorizontal, models.RuleFloorProximity))

	res := feed.at(0, poseAt(70, 0.6))
	require.Len(t, res.Rules, models.RuleCount)

	r1 := res.Rules[0]
	assert.Equal(t, "rule1", r1.Key)
	assert.True(t, r1.Enabled)
	assert.True(t, r1.Active)
	assert.Equal(t, "70°>55°", r1.Diagnostic)

	r2 := res.Rules[1]
	assert.False(t, r2.Enabled)
	assert.False(t, r2.Active)
	assert.Equal(t, "0.00>0.2", r2.Diagnostic)
}

func TestSession_ProlongedLyingFiresOnceAtThreshold(t *testing.T) {
	// 只启用规则2（姿势不变，不会触发），避免进入 fall
	s, feed := newTestSession(t, settingsWith(models.RuleHeadDrop))

	var results []models.FrameResult
	var lyingAt time.Duration = -1
	for ms := 0; ms <= 15000; ms += 100 {
		offset := time.Duration(ms) * time.Millisecond
		res := feed.at(offset, poseAt(70, 0.3))
		results = append(results, res)
		if len(res.Effects) > 0 && lyingAt < 0 {
			lyingAt = offset
		}
	}

	assert.Equal(t, 1, countEffects(results, models.AlertLying))
	assert.Zero(t, countEffects(results, models.AlertFall))

	// 静止超过 2s 后（2.1s）开始卧床计时，再经过 10s 报警
	assert.Equal(t, 12100*time.Millisecond, lyingAt)
	for _, r := range results {
		if r.Timestamp.Before(feed.start.Add(lyingAt)) {
			assert.NotContains(t, r.Text, "Prolonged lying")
		}
	}

	last := results[len(results)-1]
	assert.Equal(t, models.StatusLying, last.Status)
	assert.Equal(t, "Prolonged lying (12s)", last.Text)
	assert.Equal(t, models.StatusLying, s.State().CurrentStatus)
}

func TestSession_RecoveryAfterFall(t *testing.T) {
	s, feed := newTestSession(t, settingsWith(models.RuleAxisHorizontal, models.RuleFloorProximity))

	res := feed.at(0, poseAt(70, 0.6))
	require.Equal(t, models.StatusFall, res.Status)

	for ms := 100; ms < 4000; ms += 100 {
		res = feed.at(time.Duration(ms)*time.Millisecond, poseAt(70, 0.6))
		require.Equal(t, models.StatusFall, res.Status)
	}

	res = feed.at(4*time.Second, poseAt(10, 0.2))
	assert.Equal(t, models.StatusStanding, res.Status)
	assert.Equal(t, "Standing (recovered)", res.Text)
	assert.Nil(t, s.State().FallDetectedTime)
	assert.Empty(t, res.Effects)
}

func TestSession_InsufficientVisibility(t *testing.T) {
	s, feed := newTestSession(t, settingsWith(models.RuleAxisHorizontal, models.RuleFloorProximity))

	res := feed.at(0, poseAt(70, 0.6))
	require.Equal(t, models.StatusFall, res.Status)

	hidden := poseAt(70, 0.6)
	hidden[models.LandmarkLeftHip].Visibility = 0.2

	res = feed.at(100*time.Millisecond, hidden)
	assert.True(t, res.Skipped)
	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.Equal(t, TextInsufficient, res.Text)
	assert.Nil(t, res.Features)
	for _, rs := range res.Rules {
		assert.False(t, rs.Active)
		assert.Empty(t, rs.Diagnostic)
	}

	// 内部滞回保持 fall：恢复可见后不会再次报警
	assert.Equal(t, models.StatusFall, s.State().CurrentStatus)
	res = feed.at(200*time.Millisecond, poseAt(70, 0.6))
	assert.Equal(t, models.StatusFall, res.Status)
	assert.Empty(t, res.Effects)
}

func TestSession_NoPerson(t *testing.T) {
	s, feed := newTestSession(t, DefaultSettings())

	res := feed.at(0, nil)
	assert.True(t, res.Skipped)
	assert.Equal(t, models.StatusUnknown, res.Status)
	assert.Equal(t, TextNoPerson, res.Text)
	assert.Zero(t, s.HistoryLen())
}

func TestSession_StalledFeedIsNotStillness(t *testing.T) {
	s, feed := newTestSession(t, settingsWith(models.RuleStillness))

	feed.at(0, poseAt(10, 0.2))
	res := feed.at(500*time.Millisecond, poseAt(10, 0.2))
	require.NotNil(t, s.State().StillStartTime)
	assert.Equal(t, "0.5s>1s", res.Rules[5].Diagnostic)

	// 5 秒无帧后恢复：静止计时从新帧重新开始
	res = feed.at(5500*time.Millisecond, poseAt(10, 0.2))
	state := s.State()
	require.NotNil(t, state.StillStartTime)
	assert.Equal(t, feed.start.Add(5500*time.Millisecond), *state.StillStartTime)
	assert.False(t, res.Rules[5].Active)
	assert.Equal(t, "0.0s>1s", res.Rules[5].Diagnostic)
}

func TestSession_AlertDisabledKeepsBanner(t *testing.T) {
	settings := settingsWith(models.RuleAxisHorizontal, models.RuleFloorProximity)
	settings.AlertEnabled = false
	_, feed := newTestSession(t, settings)

	res := feed.at(0, poseAt(70, 0.6))
	require.Len(t, res.Effects, 1)
	assert.False(t, res.Effects[0].Tone)
	assert.True(t, res.Effects[0].Vibrate)
	assert.Equal(t, []string{"axis horizontalization", "floor proximity"}, res.Effects[0].Banner)
}

func TestSession_ResetIsIdempotent(t *testing.T) {
	s, feed := newTestSession(t, settingsWith(models.RuleAxisHorizontal, models.RuleFloorProximity))
	for ms := 0; ms < 3000; ms += 100 {
		feed.at(time.Duration(ms)*time.Millisecond, poseAt(70, 0.6))
	}
	require.Equal(t, models.StatusFall, s.State().CurrentStatus)

	s.Reset()
	once := s.State()
	onceLen := s.HistoryLen()

	s.Reset()
	assert.Equal(t, once, s.State())
	assert.Equal(t, onceLen, s.HistoryLen())
	assert.Equal(t, models.NewSessionState(), s.State())
	assert.Zero(t, s.HistoryLen())

	last, ok := s.LastResult()
	require.True(t, ok)
	assert.Equal(t, models.StatusUnknown, last.Status)
	assert.Equal(t, TextReset, last.Text)
}

func TestSession_StopDropsFrames(t *testing.T) {
	s, _ := newTestSession(t, DefaultSettings())

	s.Stop()
	assert.False(t, s.Running())
	_, err := s.ProcessFrame(models.Frame{Landmarks: poseAt(10, 0.2)})
	assert.ErrorIs(t, err, ErrSessionStopped)

	last, ok := s.LastResult()
	require.True(t, ok)
	assert.Equal(t, TextStopped, last.Text)
	assert.Equal(t, models.StatusUnknown, last.Status)

	s.Start()
	assert.True(t, s.Running())
	_, err = s.ProcessFrame(models.Frame{Landmarks: poseAt(10, 0.2)})
	assert.NoError(t, err)
}

func TestSession_UpdateSettings(t *testing.T) {
	s, _ := newTestSession(t, DefaultSettings())

	bad := DefaultSettings()
	bad.Policy = "majority"
	assert.Error(t, s.UpdateSettings(bad))

	next := DefaultSettings()
	next.Policy = ""
	next.Thresholds.Angle = 60
	require.NoError(t, s.UpdateSettings(next))
	assert.Equal(t, models.PolicyCount, s.Settings().Policy)
	assert.Equal(t, 60.0, s.Settings().Thresholds.Angle)
}

func TestSession_StopAfterFallReportsUnknown(t *testing.T) {
	s, feed := newTestSession(t, settingsWith(models.RuleAxisHorizontal, models.RuleFloorProximity))
	res := feed.at(0, poseAt(70, 0.6))
	require.Equal(t, models.StatusFall, res.Status)

	s.Stop()
	last, ok := s.LastResult()
	require.True(t, ok)
	assert.Equal(t, models.StatusUnknown, last.Status)
	assert.Equal(t, TextStopped, last.Text)
	assert.Equal(t, res.Seq, last.Seq)

	// 内部状态保留，恢复后不会重复报警
	assert.Equal(t, models.StatusFall, s.State().CurrentStatus)
	s.Start()
	res = feed.at(100*time.Millisecond, poseAt(70, 0.6))
	assert.Equal(t, models.StatusFall, res.Status)
	assert.Empty(t, res.Effects)
}

func TestSession_HistoryBoundedAtThirty(t *testing.T) {
	s, feed := newTestSession(t, DefaultSettings())
	for i := 0; i < 60; i++ {
		feed.at(time.Duration(i)*100*time.Millisecond, poseAt(10, 0.2))
	}
	assert.Equal(t, 30, s.HistoryLen())
}

func TestSession_FrameGapClearedOncePerGap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s, feed := newTestSessionWithLogger(t, settingsWith(models.RuleStillness), zap.New(core))

	feed.at(0, poseAt(10, 0.2))
	require.NotNil(t, s.State().StillStartTime)

	// 遮挡 1.5s 至 3s：每帧都跳过
	for ms := 1500; ms <= 3000; ms += 100 {
		res := feed.at(time.Duration(ms)*time.Millisecond, nil)
		require.True(t, res.Skipped)
	}
	gapLogs := logs.FilterMessage("Frame gap exceeded, clearing stillness and lying timers")
	assert.Equal(t, 1, gapLogs.Len())
	assert.Nil(t, s.State().StillStartTime)

	feed.at(3100*time.Millisecond, poseAt(10, 0.2))
	assert.Equal(t, 1, gapLogs.Len())
	require.NotNil(t, s.State().StillStartTime)
	assert.Equal(t, feed.start.Add(3100*time.Millisecond), *s.State().StillStartTime)

	// 新的断流再记录一次
	feed.at(5*time.Second, poseAt(10, 0.2))
	assert.Equal(t, 2, logs.FilterMessage("Frame gap exceeded, clearing stillness and lying timers").Len())
}

// 默认配置下跌倒后保持不动：2s 跌倒，12.1s 长时间卧床，
// 随后下一帧仍满足跌倒条件，再次进入 fall 并刷新跌倒时间
func TestSession_FallThenProlongedLyingThenFallAgain(t *testing.T) {
	s, feed := newTestSession(t, DefaultSettings())

	var results []models.FrameResult
	for ms := 0; ms < 2000; ms += 100 {
		results = append(results, feed.at(time.Duration(ms)*time.Millisecond, poseAt(20, 0.3)))
	}
	for ms := 2000; ms <= 15000; ms += 100 {
		results = append(results, feed.at(time.Duration(ms)*time.Millisecond, poseAt(70, 0.6)))
	}

	assert.Equal(t, []alertAt{
		{Offset: 2 * time.Second, Kind: models.AlertFall, Status: models.StatusFall},
		{Offset: 12100 * time.Millisecond, Kind: models.AlertLying, Status: models.StatusLying},
		{Offset: 12200 * time.Millisecond, Kind: models.AlertFall, Status: models.StatusFall},
	}, collectAlerts(results, feed.start))

	state := s.State()
	assert.Equal(t, models.StatusFall, state.CurrentStatus)
	require.NotNil(t, state.FallDetectedTime)
	assert.Equal(t, feed.start.Add(12200*time.Millisecond), *state.FallDetectedTime)
	require.NotNil(t, state.LyingAlertTime)
	assert.Equal(t, feed.start.Add(12100*time.Millisecond), *state.LyingAlertTime)
}
