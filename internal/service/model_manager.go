package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/classifier"
	"wisefido-vitalrisk/internal/metrics"
)

// ErrNoModelSource 未配置任何统计量来源
var ErrNoModelSource = errors.New("no model statistics source configured")

// StatisticsSource 高斯统计量来源
type StatisticsSource interface {
	Name() string
	Load(ctx context.Context) (*classifier.ClassStatistics, error)
}

// ModelManager 按顺序尝试各来源，第一个可用的统计量生效
type ModelManager struct {
	gaussian *classifier.GaussianClassifier
	sources  []StatisticsSource
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewModelManager sources 按优先级排列
func NewModelManager(gaussian *classifier.GaussianClassifier, sources []StatisticsSource, m *metrics.Metrics, logger *zap.Logger) *ModelManager {
	return &ModelManager{
		gaussian: gaussian,
		sources:  sources,
		metrics:  m,
		logger:   logger,
	}
}

// Sources 已配置的来源名
func (m *ModelManager) Sources() []string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return names
}

// Reload 返回生效的来源名；全部失败时保留原统计量并返回最后一个错误
func (m *ModelManager) Reload(ctx context.Context) (string, error) {
	if len(m.sources) == 0 {
		m.metrics.SetModelTrained(m.gaussian.Trained())
		return "", ErrNoModelSource
	}

	var lastErr error
	for _, src := range m.sources {
		if err := m.load(ctx, src); err != nil {
			lastErr = err
			continue
		}
		return src.Name(), nil
	}

	m.metrics.SetModelTrained(m.gaussian.Trained())
	return "", lastErr
}

// ReloadFrom 只从指定来源加载，不回退到其他来源
func (m *ModelManager) ReloadFrom(ctx context.Context, name string) (string, error) {
	for _, src := range m.sources {
		if src.Name() != name {
			continue
		}
		if err := m.load(ctx, src); err != nil {
			m.metrics.SetModelTrained(m.gaussian.Trained())
			return "", err
		}
		return src.Name(), nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrNoModelSource)
}

func (m *ModelManager) load(ctx context.Context, src StatisticsSource) error {
	stats, err := src.Load(ctx)
	if err == nil {
		err = m.gaussian.SetStatistics(stats)
	}
	if err != nil {
		m.metrics.RecordModelReload(src.Name(), false)
		m.logger.Warn("Model statistics source failed",
			zap.String("source", src.Name()),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", src.Name(), err)
	}

	m.metrics.RecordModelReload(src.Name(), true)
	m.metrics.SetModelTrained(true)
	m.logger.Info("Gaussian model statistics loaded",
		zap.String("source", src.Name()),
		zap.Int("samples", stats.TotalSamples()),
		zap.Time("trained_at", stats.TrainedAt),
	)
	return nil
}
