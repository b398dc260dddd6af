// Package session 单个摄像头的检测会话：把每一帧依次送入
// 特征提取 -> 历史缓冲 -> 静止跟踪 -> 规则评估 -> 状态分类。
package session

import (
	"errors"
	"sync"
	"time"

	"wisefido-pose/internal/classifier"
	"wisefido-pose/internal/evaluator"
	"wisefido-pose/internal/features"
	"wisefido-pose/internal/history"
	"wisefido-pose/internal/models"
	"wisefido-pose/internal/stillness"
	"wisefido-pose/internal/timeutil"

	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionStopped 会话已停止，帧被丢弃
	ErrSessionStopped = errors.New("session stopped")
)

const (
	TextNoPerson     = "No person detected"
	TextInsufficient = "Insufficient visibility"
	TextReset        = "Reset complete"
	TextStopped      = "Stopped"
)

// Options 会话参数（启动后不可修改）
type Options struct {
	MaxFrameGap time.Duration // 相邻可用帧的最大间隔，超过后清除静止/卧床计时；<=0 不检查
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		MaxFrameGap: time.Second,
	}
}

// Session 单个摄像头的检测会话
// 所有状态由 mu 保护，ProcessFrame 在锁内完整执行一次流水线
type Session struct {
	mu sync.Mutex

	cameraID  string
	opts      Options
	settings  Settings
	history   *history.Buffer
	tracker   stillness.Tracker
	state     models.SessionState
	evaluator *evaluator.Evaluator
	clock     timeutil.Clock
	logger    *zap.Logger

	prev        *models.FeatureVector // 上一可用帧的特征（用于位移计算）
	lastFrameAt *time.Time            // 上一可用帧的时间
	last        *models.FrameResult
	running     bool
}

// NewSession 创建会话（创建后即处于运行状态）
func NewSession(cameraID string, settings Settings, opts Options, clock timeutil.Clock, logger *zap.Logger) *Session {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logger = logger.With(zap.String("camera_id", cameraID))
	return &Session{
		cameraID:  cameraID,
		opts:      opts,
		settings:  settings.normalized(),
		history:   history.NewBuffer(),
		state:     models.NewSessionState(),
		evaluator: evaluator.NewEvaluator(logger),
		clock:     clock,
		logger:    logger,
		running:   true,
	}
}

// CameraID 摄像头ID
func (s *Session) CameraID() string {
	return s.cameraID
}

// ProcessFrame 处理一帧
// 返回的 FrameResult 中 Effects 只在状态进入边沿出现
func (s *Session) ProcessFrame(frame models.Frame) (models.FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return models.FrameResult{}, ErrSessionStopped
	}

	now := frame.Timestamp
	if now.IsZero() {
		now = s.clock.Now()
	}

	// 1. 断流检测：长时间无可用帧不能算作静止
	// 每次断流只清除一次，之后直到下一可用帧 lastFrameAt 为 nil
	if s.lastFrameAt != nil && s.opts.MaxFrameGap > 0 && now.Sub(*s.lastFrameAt) > s.opts.MaxFrameGap {
		s.logger.Info("Frame gap exceeded, clearing stillness and lying timers",
			zap.Duration("gap", now.Sub(*s.lastFrameAt)),
			zap.Duration("max_frame_gap", s.opts.MaxFrameGap),
		)
		s.clearTimers()
		s.lastFrameAt = nil
	}

	// 2. 未检测到人 / 可见度不足：跳过本帧
	if !frame.HasPerson() {
		return s.skip(frame, now, TextNoPerson), nil
	}

	fv, err := features.Extract(frame.Landmarks, s.prev)
	if err != nil {
		s.logger.Debug("Frame skipped", zap.Uint64("seq", frame.Seq), zap.Error(err))
		return s.skip(frame, now, TextInsufficient), nil
	}
	s.prev = &fv
	t := now
	s.lastFrameAt = &t

	// 3. 历史缓冲 + 静止跟踪（规则6读取静止时长，需先更新）
	s.history.Push(fv, now)
	s.tracker.Update(fv.Movement, now)
	s.state.StillStartTime = s.tracker.StartTime()
	stillFor := s.tracker.Duration(now)

	// 4. 规则评估（整帧使用同一份配置快照）
	settings := s.settings
	outcomes := s.evaluator.Evaluate(evaluator.Input{
		Current:       fv,
		History:       s.history,
		Thresholds:    settings.Thresholds,
		StillDuration: stillFor,
	})

	// 5. 状态分类
	decision := classifier.Classify(classifier.Input{
		State:         s.state,
		Features:      fv,
		Outcomes:      outcomes,
		Enabled:       settings.Enabled,
		Policy:        settings.Policy,
		Thresholds:    settings.Thresholds,
		StillDuration: stillFor,
		Now:           now,
	})
	if decision.State.CurrentStatus != s.state.CurrentStatus {
		s.logger.Info("Status changed",
			zap.String("from", string(s.state.CurrentStatus)),
			zap.String("to", string(decision.State.CurrentStatus)),
			zap.String("branch", string(decision.Branch)),
		)
	}
	s.state = decision.State

	result := models.FrameResult{
		CameraID:  s.cameraID,
		Seq:       frame.Seq,
		Timestamp: now,
		Status:    decision.Status,
		Text:      decision.Text,
		Features:  &fv,
		Rules:     ruleStatuses(settings.Enabled, &outcomes),
		Triggered: decision.Triggered,
		Effects:   applyAlertToggle(decision.Effects, settings.AlertEnabled),
	}
	s.last = &result
	return result, nil
}

// skip 生成跳过帧的结果：对外状态 unknown，规则状态全部清除
// 内部状态（含 fall 滞回）保持不变，单帧丢失不会重复触发报警
func (s *Session) skip(frame models.Frame, now time.Time, text string) models.FrameResult {
	result := models.FrameResult{
		CameraID:  s.cameraID,
		Seq:       frame.Seq,
		Timestamp: now,
		Status:    models.StatusUnknown,
		Text:      text,
		Skipped:   true,
		Rules:     ruleStatuses(s.settings.Enabled, nil),
	}
	s.last = &result
	return result
}

func (s *Session) clearTimers() {
	s.tracker.Reset()
	s.state.StillStartTime = nil
	s.state.ClearLying()
	s.prev = nil
}

func ruleStatuses(enabled models.RuleToggles, outcomes *models.RuleOutcomes) []models.RuleStatus {
	statuses := make([]models.RuleStatus, 0, models.RuleCount)
	for _, id := range models.AllRules {
		rs := models.RuleStatus{
			Rule:    id,
			Key:     id.Key(),
			Name:    id.Name(),
			Enabled: enabled.Enabled(id),
		}
		if outcomes != nil {
			o := outcomes.Get(id)
			rs.Active = rs.Enabled && o.Triggered
			rs.Diagnostic = o.Describe()
		}
		statuses = append(statuses, rs)
	}
	return statuses
}

func applyAlertToggle(effects []models.AlertEffect, alertEnabled bool) []models.AlertEffect {
	if alertEnabled || len(effects) == 0 {
		return effects
	}
	out := make([]models.AlertEffect, len(effects))
	// 只静音，震动和横幅保留
	for i, e := range effects {
		e.Tone = false
		out[i] = e
	}
	return out
}

// Start 开始（或恢复）处理帧
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// Stop 停止处理帧，保留内部状态；最近结果变为 unknown / "Stopped"
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false

	stopped := models.FrameResult{
		CameraID:  s.cameraID,
		Timestamp: s.clock.Now(),
		Status:    models.StatusUnknown,
		Text:      TextStopped,
		Skipped:   true,
		Rules:     ruleStatuses(s.settings.Enabled, nil),
	}
	if s.last != nil {
		stopped.Seq = s.last.Seq
		stopped.Features = s.last.Features
	}
	s.last = &stopped
}

// Running 是否在运行
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Reset 清空历史缓冲、所有计时器，状态回到 unknown（幂等）
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Reset()
	s.clearTimers()
	s.state = models.NewSessionState()
	s.lastFrameAt = nil
	s.last = &models.FrameResult{
		CameraID:  s.cameraID,
		Timestamp: s.clock.Now(),
		Status:    models.StatusUnknown,
		Text:      TextReset,
		Skipped:   true,
		Rules:     ruleStatuses(s.settings.Enabled, nil),
	}
	s.logger.Info("Session reset")
}

// State 当前会话状态快照
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HistoryLen 历史缓冲长度
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

// LastResult 最近一帧的结果
func (s *Session) LastResult() (models.FrameResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return models.FrameResult{}, false
	}
	return *s.last, true
}

// Settings 当前配置
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// UpdateSettings 更新配置，从下一帧开始生效
func (s *Session) UpdateSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings.normalized()
	s.logger.Info("Settings updated",
		zap.Any("thresholds", s.settings.Thresholds),
		zap.Int("enabled_rules", s.settings.Enabled.Count()),
		zap.String("policy", string(s.settings.Policy)),
		zap.Bool("alert_enabled", s.settings.AlertEnabled),
	)
	return nil
}
