// Package report 报警事件导出
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wisefido-pose/internal/models"

	"github.com/xuri/excelize/v2"
)

// AlarmEventSheet 导出工作表名称
const AlarmEventSheet = "Alarm Events"

// AlarmEventExportHeader 导出表头
var AlarmEventExportHeader = []string{
	"Event ID",
	"Camera ID",
	"Event Type",
	"Alarm Level",
	"Alarm Status",
	"Triggered At",
	"Body Angle",
	"Triggered Rules",
	"Duration (s)",
}

var alarmEventColumnWidths = []float64{
	38, // Event ID
	15, // Camera ID
	18, // Event Type
	12, // Alarm Level
	14, // Alarm Status
	22, // Triggered At
	12, // Body Angle
	50, // Triggered Rules
	12, // Duration (s)
}

// GenerateAlarmEventExport 生成报警事件导出 Excel 文件
// events 为空时只生成表头；loc 为时间显示时区，nil 使用 UTC
func GenerateAlarmEventExport(events []*models.AlarmEvent, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	// Note: WriteTo 之前不能 Close

	index, err := f.NewSheet(AlarmEventSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	// 表头样式
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 写入表头
	for col, header := range AlarmEventExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(AlarmEventSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(AlarmEventSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		colName, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(AlarmEventSheet, colName, colName, alarmEventColumnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 写入数据（从第2行开始）
	for i, event := range events {
		row := i + 2
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		values := alarmEventRow(event, loc)
		if err := f.SetSheetRow(AlarmEventSheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	// 冻结表头
	if err := f.SetPanes(AlarmEventSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// alarmEventRow 按表头顺序生成一行；trigger_data 无法解析时相关列留空
func alarmEventRow(event *models.AlarmEvent, loc *time.Location) []interface{} {
	row := []interface{}{
		event.EventID,
		event.CameraID,
		event.EventType,
		event.AlarmLevel,
		event.AlarmStatus,
		event.TriggeredAt.In(loc).Format("2006-01-02 15:04:05"),
		"",
		"",
		"",
	}

	var td models.TriggerData
	if err := json.Unmarshal([]byte(event.TriggerData), &td); err != nil {
		return row
	}
	row[6] = td.BodyAngle
	row[7] = strings.Join(td.TriggeredRules, ", ")
	if td.DurationSec != nil {
		row[8] = *td.DurationSec
	}
	return row
}
