package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/models"
)

// ClassificationRepository vital_classifications 表
type ClassificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewClassificationRepository 创建分类记录仓库
func NewClassificationRepository(db *sql.DB, logger *zap.Logger) *ClassificationRepository {
	return &ClassificationRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 写入一条分类记录，返回 id
func (r *ClassificationRepository) Insert(ctx context.Context, rec *models.ClassificationRecord) (int64, error) {
	probs, err := json.Marshal(rec.Result.Probabilities)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal probabilities: %w", err)
	}
	contribs, err := json.Marshal(rec.Result.FeatureContributions)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal feature contributions: %w", err)
	}

	var deviceLabel sql.NullString
	if rec.DeviceLabel != nil {
		deviceLabel = sql.NullString{String: rec.DeviceLabel.String(), Valid: true}
	}
	var abnormalCount sql.NullInt64
	if rec.Result.AbnormalCount != nil {
		abnormalCount = sql.NullInt64{Int64: int64(*rec.Result.AbnormalCount), Valid: true}
	}

	query := `
		INSERT INTO vital_classifications (
			device_id,
			reading_time,
			temperature,
			heart_rate,
			oxygen_saturation,
			systolic_raw,
			diastolic_raw,
			systolic_calibrated,
			diastolic_calibrated,
			signal_quality,
			device_label,
			strategy,
			label,
			confidence,
			probabilities,
			feature_contributions,
			abnormal_count,
			explanation_text
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		RETURNING id
	`

	var id int64
	err = r.db.QueryRowContext(ctx, query,
		rec.DeviceID,
		rec.ReadingTime,
		rec.Raw.Temperature,
		rec.Raw.HeartRate,
		rec.Raw.OxygenSaturation,
		rec.Raw.Systolic,
		rec.Raw.Diastolic,
		rec.Result.Inputs.Systolic,
		rec.Result.Inputs.Diastolic,
		rec.Raw.SignalQuality,
		deviceLabel,
		string(rec.Result.Strategy),
		rec.Result.Label.String(),
		rec.Result.Confidence,
		string(probs),
		string(contribs),
		abnormalCount,
		rec.Result.ExplanationText,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert classification: %w", err)
	}

	r.logger.Debug("Inserted classification",
		zap.Int64("id", id),
		zap.String("device_id", rec.DeviceID),
		zap.String("label", rec.Result.Label.String()),
	)
	return id, nil
}

// ListRecentByDevice 按读数时间倒序
func (r *ClassificationRepository) ListRecentByDevice(ctx context.Context, deviceID string, limit int) ([]models.ClassificationRecord, error) {
	query := `
		SELECT
			id,
			device_id,
			reading_time,
			temperature,
			heart_rate,
			oxygen_saturation,
			systolic_raw,
			diastolic_raw,
			systolic_calibrated,
			diastolic_calibrated,
			signal_quality,
			device_label,
			strategy,
			label,
			confidence,
			probabilities,
			feature_contributions,
			abnormal_count,
			explanation_text,
			created_at
		FROM vital_classifications
		WHERE device_id = $1
		ORDER BY reading_time DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer rows.Close()

	var records []models.ClassificationRecord
	for rows.Next() {
		rec, err := scanClassification(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate classifications: %w", err)
	}
	return records, nil
}

func scanClassification(rows *sql.Rows) (*models.ClassificationRecord, error) {
	var (
		rec             models.ClassificationRecord
		sysCal, diaCal  float64
		deviceLabel     sql.NullString
		strategy, label string
		probs, contribs []byte
		abnormalCount   sql.NullInt64
		explanation     sql.NullString
	)
	err := rows.Scan(
		&rec.ID,
		&rec.DeviceID,
		&rec.ReadingTime,
		&rec.Raw.Temperature,
		&rec.Raw.HeartRate,
		&rec.Raw.OxygenSaturation,
		&rec.Raw.Systolic,
		&rec.Raw.Diastolic,
		&sysCal,
		&diaCal,
		&rec.Raw.SignalQuality,
		&deviceLabel,
		&strategy,
		&label,
		&rec.Result.Confidence,
		&probs,
		&contribs,
		&abnormalCount,
		&explanation,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan classification: %w", err)
	}

	if rec.Result.Label, err = models.ParseRiskLabel(label); err != nil {
		return nil, fmt.Errorf("classification %d: %w", rec.ID, err)
	}
	if deviceLabel.Valid {
		if dl, err := models.ParseRiskLabel(deviceLabel.String); err == nil {
			rec.DeviceLabel = &dl
		}
	}
	if err := json.Unmarshal(probs, &rec.Result.Probabilities); err != nil {
		return nil, fmt.Errorf("classification %d: failed to decode probabilities: %w", rec.ID, err)
	}
	if err := json.Unmarshal(contribs, &rec.Result.FeatureContributions); err != nil {
		return nil, fmt.Errorf("classification %d: failed to decode feature contributions: %w", rec.ID, err)
	}
	if abnormalCount.Valid {
		n := int(abnormalCount.Int64)
		rec.Result.AbnormalCount = &n
	}

	rec.Result.Strategy = models.Strategy(strategy)
	rec.Result.ExplanationText = explanation.String
	rec.Result.Inputs = models.CalibratedVitalSigns{VitalSigns: rec.Raw}
	rec.Result.Inputs.Systolic = sysCal
	rec.Result.Inputs.Diastolic = diaCal
	return &rec, nil
}
