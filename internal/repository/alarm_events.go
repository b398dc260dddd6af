package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wisefido-pose/internal/models"

	"go.uber.org/zap"
)

// ErrAlarmEventNotFound 报警事件不存在
var ErrAlarmEventNotFound = errors.New("alarm event not found")

// AlarmEventsRepository 报警事件仓库（pose_alarm_events 表）
type AlarmEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmEventsRepository 创建报警事件仓库
func NewAlarmEventsRepository(db *sql.DB, logger *zap.Logger) *AlarmEventsRepository {
	return &AlarmEventsRepository{
		db:     db,
		logger: logger,
	}
}

// AlarmEventFilters 报警事件过滤条件
type AlarmEventFilters struct {
	StartTime   *time.Time // triggered_at >= StartTime
	EndTime     *time.Time // triggered_at <= EndTime
	CameraID    *string
	EventType   *string
	AlarmStatus *string
}

const alarmEventColumns = `
			event_id,
			camera_id,
			event_type,
			category,
			alarm_level,
			alarm_status,
			triggered_at,
			trigger_data,
			metadata,
			created_at`

// CreateAlarmEvent 创建报警事件
func (r *AlarmEventsRepository) CreateAlarmEvent(ctx context.Context, event *models.AlarmEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.CameraID == "" {
		return fmt.Errorf("camera_id is required")
	}

	query := `
		INSERT INTO pose_alarm_events (` + alarmEventColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		event.EventID,
		event.CameraID,
		event.EventType,
		event.Category,
		event.AlarmLevel,
		event.AlarmStatus,
		event.TriggeredAt,
		event.TriggerData,
		event.Metadata,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alarm event: %w", err)
	}

	r.logger.Info("Alarm event created",
		zap.String("event_id", event.EventID),
		zap.String("camera_id", event.CameraID),
		zap.String("event_type", event.EventType),
		zap.String("alarm_level", event.AlarmLevel),
	)
	return nil
}

// buildWhereClause 构建 WHERE 子句
func buildWhereClause(filters AlarmEventFilters, args *[]interface{}) []string {
	var where []string
	add := func(cond string, v interface{}) {
		*args = append(*args, v)
		where = append(where, fmt.Sprintf(cond, len(*args)))
	}

	if filters.StartTime != nil {
		add("triggered_at >= $%d", *filters.StartTime)
	}
	if filters.EndTime != nil {
		add("triggered_at <= $%d", *filters.EndTime)
	}
	if filters.CameraID != nil {
		add("camera_id = $%d", *filters.CameraID)
	}
	if filters.EventType != nil {
		add("event_type = $%d", *filters.EventType)
	}
	if filters.AlarmStatus != nil {
		add("alarm_status = $%d", *filters.AlarmStatus)
	}
	return where
}

// ListAlarmEvents 列表查询（多条件过滤、分页，按触发时间倒序）
func (r *AlarmEventsRepository) ListAlarmEvents(ctx context.Context, filters AlarmEventFilters, page, size int) ([]*models.AlarmEvent, int, error) {
	args := []interface{}{}
	where := buildWhereClause(filters, &args)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	// 查询总数
	queryCount := fmt.Sprintf(`SELECT COUNT(*) FROM pose_alarm_events %s`, whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count alarm events: %w", err)
	}

	// 分页处理
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT %s
		FROM pose_alarm_events
		%s
		ORDER BY triggered_at DESC
		LIMIT $%d OFFSET $%d
	`, alarmEventColumns, whereClause, len(args)+1, len(args)+2)
	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alarm events: %w", err)
	}
	defer rows.Close()

	events := []*models.AlarmEvent{}
	for rows.Next() {
		event, err := scanAlarmEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alarm events: %w", err)
	}

	return events, total, nil
}

func scanAlarmEvent(rows *sql.Rows) (*models.AlarmEvent, error) {
	var event models.AlarmEvent
	var triggerData, metadata []byte

	if err := rows.Scan(
		&event.EventID,
		&event.CameraID,
		&event.EventType,
		&event.Category,
		&event.AlarmLevel,
		&event.AlarmStatus,
		&event.TriggeredAt,
		&triggerData,
		&metadata,
		&event.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan alarm event: %w", err)
	}

	// JSONB 字段
	event.TriggerData = "{}"
	if len(triggerData) > 0 {
		event.TriggerData = string(triggerData)
	}
	event.Metadata = "{}"
	if len(metadata) > 0 {
		event.Metadata = string(metadata)
	}
	return &event, nil
}

// AcknowledgeAlarmEvent 确认报警（alarm_status = acknowledged）
func (r *AlarmEventsRepository) AcknowledgeAlarmEvent(ctx context.Context, eventID string) error {
	if eventID == "" {
		return fmt.Errorf("event_id is required")
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE pose_alarm_events SET alarm_status = 'acknowledged' WHERE event_id = $1`,
		eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alarm event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrAlarmEventNotFound, eventID)
	}
	return nil
}
