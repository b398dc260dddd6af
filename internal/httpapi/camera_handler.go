package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/notifier"
	"wisefido-pose/internal/session"

	"go.uber.org/zap"
)

const camerasPrefix = "/api/v1/cameras/"

// StatusCache 读取缓存中的最新状态（会话不在本实例时使用）
type StatusCache interface {
	GetStatus(ctx context.Context, cameraID string) (*models.FrameResult, error)
	ListCameraIDs(ctx context.Context) ([]string, error)
}

// StateStore 会话状态快照
type StateStore interface {
	GetState(ctx context.Context, cameraID string) (*models.SessionState, error)
	DeleteState(ctx context.Context, cameraID string) error
}

// CameraSummary 摄像头列表项
type CameraSummary struct {
	CameraID   string        `json:"camera_id"`
	Running    bool          `json:"running"`
	Status     models.Status `json:"status"`
	Text       string        `json:"text"`
	HistoryLen int           `json:"history_len"`
	Local      bool          `json:"local"` // 会话是否在本实例
}

// CameraStatus 摄像头状态详情
type CameraStatus struct {
	CameraID string               `json:"camera_id"`
	Running  bool                 `json:"running"`
	Result   *models.FrameResult  `json:"result,omitempty"`
	State    *models.SessionState `json:"state,omitempty"`
	Banner   *notifier.Banner     `json:"banner,omitempty"`
}

// CameraHandler 摄像头会话 Handler
type CameraHandler struct {
	manager *session.Manager
	banners *notifier.BannerBoard
	cache   StatusCache
	states  StateStore
	logger  *zap.Logger
}

// NewCameraHandler 创建摄像头会话 Handler；banners / cache / states 可为 nil
func NewCameraHandler(manager *session.Manager, banners *notifier.BannerBoard, cache StatusCache, states StateStore, logger *zap.Logger) *CameraHandler {
	return &CameraHandler{
		manager: manager,
		banners: banners,
		cache:   cache,
		states:  states,
		logger:  logger,
	}
}

// ServeHTTP 解析 /api/v1/cameras/{id}/{action}
func (h *CameraHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, camerasPrefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	cameraID, action := parts[0], parts[1]

	switch action {
	case "status":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetStatus(w, r, cameraID)
	case "settings":
		switch r.Method {
		case http.MethodGet:
			h.GetSettings(w, r, cameraID)
		case http.MethodPut:
			h.UpdateSettings(w, r, cameraID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "start", "stop", "reset":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Control(w, r, cameraID, action)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListCameras 列出本实例会话以及缓存中其他实例的摄像头
func (h *CameraHandler) ListCameras(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List()
	items := make([]CameraSummary, 0, len(sessions))
	local := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		item := CameraSummary{
			CameraID:   s.CameraID(),
			Running:    s.Running(),
			Status:     s.State().CurrentStatus,
			HistoryLen: s.HistoryLen(),
			Local:      true,
		}
		if last, ok := s.LastResult(); ok {
			item.Status = last.Status
			item.Text = last.Text
		}
		local[item.CameraID] = true
		items = append(items, item)
	}

	if h.cache != nil {
		items = append(items, h.cachedCameras(r.Context(), local)...)
		sort.Slice(items, func(i, j int) bool {
			return items[i].CameraID < items[j].CameraID
		})
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": items,
		"total": len(items),
	}))
}

// cachedCameras 缓存中存在但不在本实例的摄像头
func (h *CameraHandler) cachedCameras(ctx context.Context, local map[string]bool) []CameraSummary {
	cameraIDs, err := h.cache.ListCameraIDs(ctx)
	if err != nil {
		h.logger.Warn("Failed to list cached cameras", zap.Error(err))
		return nil
	}

	var items []CameraSummary
	for _, cameraID := range cameraIDs {
		if local[cameraID] {
			continue
		}
		result, err := h.cache.GetStatus(ctx, cameraID)
		if err != nil {
			// 扫描与读取之间键可能已过期
			h.logger.Debug("Cached status unavailable", zap.String("camera_id", cameraID), zap.Error(err))
			continue
		}
		items = append(items, CameraSummary{
			CameraID: cameraID,
			Running:  result.Text != session.TextStopped,
			Status:   result.Status,
			Text:     result.Text,
		})
	}
	return items
}

// GetStatus 获取最新帧结果
func (h *CameraHandler) GetStatus(w http.ResponseWriter, r *http.Request, cameraID string) {
	s, err := h.manager.Get(cameraID)
	if err != nil {
		h.statusFromCache(w, r, cameraID)
		return
	}

	resp := CameraStatus{
		CameraID: cameraID,
		Running:  s.Running(),
	}
	state := s.State()
	resp.State = &state
	if last, ok := s.LastResult(); ok {
		resp.Result = &last
	}
	if h.banners != nil {
		if banner, ok := h.banners.Active(cameraID); ok {
			resp.Banner = &banner
		}
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// statusFromCache 会话不在本实例时从 Redis 读取
func (h *CameraHandler) statusFromCache(w http.ResponseWriter, r *http.Request, cameraID string) {
	if h.cache == nil {
		writeJSON(w, http.StatusNotFound, Fail(fmt.Sprintf("camera not found: %s", cameraID)))
		return
	}
	result, err := h.cache.GetStatus(r.Context(), cameraID)
	if err != nil {
		h.logger.Debug("Status cache miss", zap.String("camera_id", cameraID), zap.Error(err))
		writeJSON(w, http.StatusNotFound, Fail(fmt.Sprintf("camera not found: %s", cameraID)))
		return
	}
	resp := CameraStatus{
		CameraID: cameraID,
		Running:  result.Text != session.TextStopped,
		Result:   result,
	}
	if h.states != nil {
		if state, err := h.states.GetState(r.Context(), cameraID); err == nil {
			resp.State = state
		} else {
			h.logger.Debug("Session state snapshot unavailable", zap.String("camera_id", cameraID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// GetSettings 获取检测配置
func (h *CameraHandler) GetSettings(w http.ResponseWriter, r *http.Request, cameraID string) {
	s, err := h.manager.Get(cameraID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, Ok(s.Settings()))
}

// UpdateSettings 更新检测配置（未出现的字段保持原值）
// 会话不存在时按默认配置创建，便于在首帧到达前预先配置
func (h *CameraHandler) UpdateSettings(w http.ResponseWriter, r *http.Request, cameraID string) {
	s := h.manager.GetOrCreate(cameraID)

	settings := s.Settings()
	if err := readBodyJSON(r, maxBodyBytes, &settings); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(fmt.Sprintf("invalid body: %v", err)))
		return
	}
	if err := s.UpdateSettings(settings); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	h.logger.Info("Camera settings updated via API", zap.String("camera_id", cameraID))
	writeJSON(w, http.StatusOK, Ok(s.Settings()))
}

// Control 会话控制：start / stop / reset
func (h *CameraHandler) Control(w http.ResponseWriter, r *http.Request, cameraID, action string) {
	var s *session.Session
	if action == "start" {
		s = h.manager.GetOrCreate(cameraID)
	} else {
		var err error
		s, err = h.manager.Get(cameraID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				writeJSON(w, http.StatusNotFound, Fail(err.Error()))
				return
			}
			writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
			return
		}
	}

	switch action {
	case "start":
		s.Start()
	case "stop":
		s.Stop()
	case "reset":
		s.Reset()
		if h.banners != nil {
			h.banners.Clear(cameraID)
		}
		if h.states != nil {
			if err := h.states.DeleteState(r.Context(), cameraID); err != nil {
				h.logger.Warn("Failed to delete session state snapshot",
					zap.String("camera_id", cameraID),
					zap.Error(err),
				)
			}
		}
	}

	h.logger.Info("Camera session control",
		zap.String("camera_id", cameraID),
		zap.String("action", action),
	)

	resp := map[string]any{
		"camera_id": cameraID,
		"running":   s.Running(),
	}
	if last, ok := s.LastResult(); ok {
		resp["status"] = last.Status
		resp["text"] = last.Text
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}
