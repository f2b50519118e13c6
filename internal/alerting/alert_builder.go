package alerting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wisefido-vitalrisk/internal/models"
)

// TriggerData 告警触发时的读数快照
type TriggerData struct {
	Source        string                    `json:"source"`
	Raw           models.VitalSigns         `json:"raw"`
	Calibrated    models.VitalSigns         `json:"calibrated"`
	Probabilities models.LabelProbabilities `json:"probabilities"`
	AbnormalCount *int                      `json:"abnormal_count,omitempty"`
	DeviceLabel   string                    `json:"device_label,omitempty"`
}

// AlertBuilder 风险告警构建器
type AlertBuilder struct {
	minLabel models.RiskLabel
	now      func() time.Time
}

// NewAlertBuilder minLabel 及以上等级触发告警
func NewAlertBuilder(minLabel models.RiskLabel) *AlertBuilder {
	return &AlertBuilder{
		minLabel: minLabel,
		now:      time.Now,
	}
}

// ShouldAlert 是否达到告警等级
func (b *AlertBuilder) ShouldAlert(label models.RiskLabel) bool {
	return label >= b.minLabel && label != models.RiskNormal
}

// LevelFor Critical -> ALERT，其他 -> WARNING
func LevelFor(label models.RiskLabel) string {
	if label == models.RiskCritical {
		return models.AlertLevelAlert
	}
	return models.AlertLevelWarning
}

// Build 根据分类记录构建告警，未达到等级返回 nil
func (b *AlertBuilder) Build(rec *models.ClassificationRecord) (*models.RiskAlert, error) {
	if !b.ShouldAlert(rec.Result.Label) {
		return nil, nil
	}

	trigger := TriggerData{
		Source:        "vitalrisk",
		Raw:           rec.Raw,
		Calibrated:    rec.Result.Inputs.VitalSigns,
		Probabilities: rec.Result.Probabilities,
		AbnormalCount: rec.Result.AbnormalCount,
	}
	if rec.DeviceLabel != nil {
		trigger.DeviceLabel = rec.DeviceLabel.SourceTerm()
	}
	triggerJSON, err := json.Marshal(trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger data: %w", err)
	}

	return &models.RiskAlert{
		AlertID:         uuid.New().String(),
		DeviceID:        rec.DeviceID,
		Level:           LevelFor(rec.Result.Label),
		Label:           rec.Result.Label,
		Strategy:        rec.Result.Strategy,
		Confidence:      rec.Result.Confidence,
		TriggeredAt:     b.now().UTC(),
		TriggerData:     triggerJSON,
		ExplanationText: rec.Result.ExplanationText,
	}, nil
}
