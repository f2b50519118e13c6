package modelsource

import (
	"context"
	"fmt"

	"wisefido-vitalrisk/internal/classifier"
	"wisefido-vitalrisk/internal/dataset"
	"wisefido-vitalrisk/internal/models"
)

// DatabaseSourceName Postgres 训练样本来源名
const DatabaseSourceName = "database"

// ExampleLister 训练样本来源（vital_training_examples 表）
type ExampleLister interface {
	ListAll(ctx context.Context) ([]models.TrainingExample, error)
}

// ExampleSource 读取带标签样本，校准后现场训练
type ExampleSource struct {
	name       string
	load       func(ctx context.Context) ([]models.TrainingExample, error)
	calibrator *classifier.Calibrator
}

// NewDatabaseSource 从 Postgres 读取样本
func NewDatabaseSource(repo ExampleLister, calibrator *classifier.Calibrator) *ExampleSource {
	return &ExampleSource{
		name:       DatabaseSourceName,
		load:       repo.ListAll,
		calibrator: calibrator,
	}
}

// NewDatasetSource 从 xlsx / json 文件读取样本
func NewDatasetSource(path, sheet string, calibrator *classifier.Calibrator) *ExampleSource {
	return &ExampleSource{
		name: "dataset",
		load: func(ctx context.Context) ([]models.TrainingExample, error) {
			return dataset.LoadFile(path, sheet)
		},
		calibrator: calibrator,
	}
}

// Name 来源名
func (s *ExampleSource) Name() string {
	return s.name
}

// Load 训练样本不足时返回 InsufficientDataError
func (s *ExampleSource) Load(ctx context.Context) (*classifier.ClassStatistics, error) {
	examples, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s training examples: %w", s.name, err)
	}
	return classifier.Train(s.calibrator.CalibrateExamples(examples))
}
