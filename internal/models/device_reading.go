package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeviceReading ESP32 上报的原始读数（字段名沿用设备固件）
type DeviceReading struct {
	DeviceID      string   `json:"device_id"`
	Timestamp     int64    `json:"timestamp,omitempty"` // Unix 秒，0 表示未提供
	Suhu          *float64 `json:"suhu"`
	BPM           *float64 `json:"bpm"`
	SpO2          *float64 `json:"spo2"`
	TekananSys    *float64 `json:"tekanan_sys"`
	TekananDia    *float64 `json:"tekanan_dia"`
	SignalQuality *float64 `json:"signal_quality"`
	Kondisi       string   `json:"kondisi,omitempty"` // 设备端规则判定，仅留档
}

// ParseDeviceReading 解析设备 JSON
func ParseDeviceReading(payload []byte) (*DeviceReading, error) {
	var r DeviceReading
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}
	return &r, nil
}

// ToVitalSigns 缺失或非法字段返回 ValidationError
func (r *DeviceReading) ToVitalSigns() (VitalSigns, error) {
	return assembleVitalSigns([FeatureCount]*float64{
		r.Suhu,
		r.BPM,
		r.SpO2,
		r.TekananSys,
		r.TekananDia,
		r.SignalQuality,
	})
}

// ReadingTime 未提供时间戳时使用 fallback
func (r *DeviceReading) ReadingTime(fallback time.Time) time.Time {
	if r.Timestamp <= 0 {
		return fallback
	}
	// 固件有时上报毫秒
	if r.Timestamp > 1e12 {
		return time.UnixMilli(r.Timestamp).UTC()
	}
	return time.Unix(r.Timestamp, 0).UTC()
}

// DeviceLabel 设备端判定，无法识别返回 false
func (r *DeviceReading) DeviceLabel() (RiskLabel, bool) {
	if r.Kondisi == "" {
		return 0, false
	}
	l, err := ParseRiskLabel(r.Kondisi)
	if err != nil {
		return 0, false
	}
	return l, true
}
