package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/models"
)

// TrainingExampleRepository vital_training_examples 表（原始读数 + 标签）
type TrainingExampleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTrainingExampleRepository 创建训练样本仓库
func NewTrainingExampleRepository(db *sql.DB, logger *zap.Logger) *TrainingExampleRepository {
	return &TrainingExampleRepository{
		db:     db,
		logger: logger,
	}
}

// ListAll 读取全部样本；无法识别的标签视为错误
func (r *TrainingExampleRepository) ListAll(ctx context.Context) ([]models.TrainingExample, error) {
	query := `
		SELECT
			temperature,
			heart_rate,
			oxygen_saturation,
			systolic,
			diastolic,
			signal_quality,
			label
		FROM vital_training_examples
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query training examples: %w", err)
	}
	defer rows.Close()

	var examples []models.TrainingExample
	for rows.Next() {
		var (
			ex    models.TrainingExample
			label string
		)
		if err := rows.Scan(
			&ex.Vitals.Temperature,
			&ex.Vitals.HeartRate,
			&ex.Vitals.OxygenSaturation,
			&ex.Vitals.Systolic,
			&ex.Vitals.Diastolic,
			&ex.Vitals.SignalQuality,
			&label,
		); err != nil {
			return nil, fmt.Errorf("failed to scan training example: %w", err)
		}
		if ex.Label, err = models.ParseRiskLabel(label); err != nil {
			return nil, fmt.Errorf("training example %d: %w", len(examples)+1, err)
		}
		examples = append(examples, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate training examples: %w", err)
	}

	r.logger.Debug("Loaded training examples", zap.Int("count", len(examples)))
	return examples, nil
}

// InsertBatch 单事务批量写入
func (r *TrainingExampleRepository) InsertBatch(ctx context.Context, examples []models.TrainingExample, source string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO vital_training_examples (
			temperature, heart_rate, oxygen_saturation, systolic, diastolic, signal_quality, label, source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, ex := range examples {
		if _, err := stmt.ExecContext(ctx,
			ex.Vitals.Temperature,
			ex.Vitals.HeartRate,
			ex.Vitals.OxygenSaturation,
			ex.Vitals.Systolic,
			ex.Vitals.Diastolic,
			ex.Vitals.SignalQuality,
			ex.Label.String(),
			source,
		); err != nil {
			return fmt.Errorf("failed to insert training example %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit training examples: %w", err)
	}
	return nil
}
