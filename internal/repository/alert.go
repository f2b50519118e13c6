package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/models"
)

// AlertRepository risk_alerts 表
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建告警仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 写入告警，alert_id 冲突时忽略
func (r *AlertRepository) Insert(ctx context.Context, alert *models.RiskAlert) error {
	query := `
		INSERT INTO risk_alerts (
			alert_id,
			device_id,
			level,
			label,
			strategy,
			confidence,
			triggered_at,
			trigger_data,
			explanation_text
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (alert_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.DeviceID,
		alert.Level,
		alert.Label.String(),
		string(alert.Strategy),
		alert.Confidence,
		alert.TriggeredAt,
		string(alert.TriggerData),
		alert.ExplanationText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert risk alert: %w", err)
	}
	return nil
}
