package session

import (
	"fmt"
	"sort"
	"sync"

	"wisefido-pose/internal/timeutil"

	"go.uber.org/zap"
)

// Manager 会话管理器（每个摄像头一个独立会话）
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	defaults Settings
	opts     Options
	clock    timeutil.Clock
	logger   *zap.Logger
}

// NewManager 创建会话管理器
func NewManager(defaults Settings, opts Options, clock timeutil.Clock, logger *zap.Logger) *Manager {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Manager{
		sessions: make(map[string]*Session),
		defaults: defaults,
		opts:     opts,
		clock:    clock,
		logger:   logger,
	}
}

// GetOrCreate 获取会话，不存在时按默认配置创建
func (m *Manager) GetOrCreate(cameraID string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[cameraID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[cameraID]; ok {
		return s
	}
	s = NewSession(cameraID, m.defaults, m.opts, m.clock, m.logger)
	m.sessions[cameraID] = s
	m.logger.Info("Session created", zap.String("camera_id", cameraID))
	return s
}

// Get 获取已存在的会话
func (m *Manager) Get(cameraID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[cameraID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, cameraID)
	}
	return s, nil
}

// List 按摄像头ID排序的全部会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CameraID() < list[j].CameraID()
	})
	return list
}

