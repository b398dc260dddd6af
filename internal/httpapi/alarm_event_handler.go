package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wisefido-pose/internal/models"
	"wisefido-pose/internal/report"
	"wisefido-pose/internal/repository"

	"go.uber.org/zap"
)

const alarmEventsPrefix = "/api/v1/alarm-events/"

const (
	// exportLimit 单次导出的最大条数
	exportLimit = 10000
	// maxPageSize 列表接口单页最大条数
	maxPageSize = 100
)

// AlarmEventRepository 报警事件查询接口
type AlarmEventRepository interface {
	ListAlarmEvents(ctx context.Context, filters repository.AlarmEventFilters, page, size int) ([]*models.AlarmEvent, int, error)
	AcknowledgeAlarmEvent(ctx context.Context, eventID string) error
}

// AlarmEventHandler 报警事件 Handler
type AlarmEventHandler struct {
	repo   AlarmEventRepository
	loc    *time.Location
	logger *zap.Logger
}

// NewAlarmEventHandler 创建报警事件 Handler
func NewAlarmEventHandler(repo AlarmEventRepository, loc *time.Location, logger *zap.Logger) *AlarmEventHandler {
	return &AlarmEventHandler{
		repo:   repo,
		loc:    loc,
		logger: logger,
	}
}

// ServeHTTP 解析 /api/v1/alarm-events/{id}/acknowledge
func (h *AlarmEventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, alarmEventsPrefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "acknowledge" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.AcknowledgeAlarmEvent(w, r, parts[0])
}

// filtersFromQuery 解析查询参数
func filtersFromQuery(r *http.Request) (repository.AlarmEventFilters, error) {
	q := r.URL.Query()
	filters := repository.AlarmEventFilters{
		CameraID:    optionalString(q.Get("camera_id")),
		EventType:   optionalString(q.Get("event_type")),
		AlarmStatus: optionalString(q.Get("alarm_status")),
	}

	start, err := parseTime(q.Get("start_time"))
	if err != nil {
		return filters, fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := parseTime(q.Get("end_time"))
	if err != nil {
		return filters, fmt.Errorf("invalid end_time: %w", err)
	}
	filters.StartTime = start
	filters.EndTime = end
	return filters, nil
}

// ListAlarmEvents 报警事件列表
func (h *AlarmEventHandler) ListAlarmEvents(w http.ResponseWriter, r *http.Request) {
	filters, err := filtersFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	page := parseInt(r.URL.Query().Get("page"), 1)
	size := parseInt(r.URL.Query().Get("size"), 20)
	if size > maxPageSize {
		size = maxPageSize
	}

	items, total, err := h.repo.ListAlarmEvents(r.Context(), filters, page, size)
	if err != nil {
		h.logger.Error("ListAlarmEvents failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to list alarm events: %v", err)))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": items,
		"total": total,
	}))
}

// ExportAlarmEvents 导出报警事件
func (h *AlarmEventHandler) ExportAlarmEvents(w http.ResponseWriter, r *http.Request) {
	filters, err := filtersFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	items, _, err := h.repo.ListAlarmEvents(r.Context(), filters, 1, exportLimit)
	if err != nil {
		h.logger.Error("ListAlarmEvents failed for export", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to list alarm events: %v", err)))
		return
	}

	excelData, err := report.GenerateAlarmEventExport(items, h.loc)
	if err != nil {
		h.logger.Error("GenerateAlarmEventExport failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=pose-alarm-events.xlsx")
	w.WriteHeader(http.StatusOK)
	w.Write(excelData)
}

// AcknowledgeAlarmEvent 确认报警
func (h *AlarmEventHandler) AcknowledgeAlarmEvent(w http.ResponseWriter, r *http.Request, eventID string) {
	if err := h.repo.AcknowledgeAlarmEvent(r.Context(), eventID); err != nil {
		if errors.Is(err, repository.ErrAlarmEventNotFound) {
			writeJSON(w, http.StatusNotFound, Fail(err.Error()))
			return
		}
		h.logger.Error("AcknowledgeAlarmEvent failed", zap.String("event_id", eventID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to acknowledge alarm event: %v", err)))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"event_id":     eventID,
		"alarm_status": "acknowledged",
	}))
}
