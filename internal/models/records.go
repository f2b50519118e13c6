package models

import (
	"encoding/json"
	"time"
)

// ClassificationRecord 持久化的分类记录（vital_classifications 表）
type ClassificationRecord struct {
	ID          int64                `json:"id"`
	DeviceID    string               `json:"device_id"`
	ReadingTime time.Time            `json:"reading_time"`
	Raw         VitalSigns           `json:"raw"`
	DeviceLabel *RiskLabel           `json:"device_label,omitempty"`
	Result      ClassificationResult `json:"result"`
	CreatedAt   time.Time            `json:"created_at"`
}

// RiskAlert 风险告警（risk_alerts 表 + 告警 stream）
type RiskAlert struct {
	AlertID         string          `json:"alert_id"`
	DeviceID        string          `json:"device_id"`
	Level           string          `json:"level"` // ALERT / WARNING
	Label           RiskLabel       `json:"label"`
	Strategy        Strategy        `json:"strategy"`
	Confidence      float64         `json:"confidence"`
	TriggeredAt     time.Time       `json:"triggered_at"`
	TriggerData     json.RawMessage `json:"trigger_data"`
	ExplanationText string          `json:"explanation_text,omitempty"`
}

const (
	AlertLevelAlert   = "ALERT"
	AlertLevelWarning = "WARNING"
)
