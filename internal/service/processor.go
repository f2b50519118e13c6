package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/alerting"
	"wisefido-vitalrisk/internal/cache"
	"wisefido-vitalrisk/internal/classifier"
	"wisefido-vitalrisk/internal/metrics"
	"wisefido-vitalrisk/internal/models"
)

// ClassificationStore 分类记录持久化
type ClassificationStore interface {
	Insert(ctx context.Context, rec *models.ClassificationRecord) (int64, error)
}

// AlertStore 告警持久化
type AlertStore interface {
	Insert(ctx context.Context, alert *models.RiskAlert) error
}

// AlertPublisher 告警下发
type AlertPublisher interface {
	Publish(ctx context.Context, alert *models.RiskAlert) error
}

// ReadingProcessor 设备读数：分类 -> 入库 -> 更新缓存 -> 告警
// classifications / alerts / publisher 为 nil 时跳过对应步骤（如 DB 关闭）
type ReadingProcessor struct {
	pipeline        *classifier.Pipeline
	classifications ClassificationStore
	alerts          AlertStore
	publisher       AlertPublisher
	cache           *cache.ResultCache
	alertBuilder    *alerting.AlertBuilder
	metrics         *metrics.Metrics
	logger          *zap.Logger
	now             func() time.Time
}

// NewReadingProcessor 创建读数处理器
func NewReadingProcessor(
	pipeline *classifier.Pipeline,
	classifications ClassificationStore,
	alerts AlertStore,
	publisher AlertPublisher,
	resultCache *cache.ResultCache,
	alertBuilder *alerting.AlertBuilder,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReadingProcessor {
	return &ReadingProcessor{
		pipeline:        pipeline,
		classifications: classifications,
		alerts:          alerts,
		publisher:       publisher,
		cache:           resultCache,
		alertBuilder:    alertBuilder,
		metrics:         m,
		logger:          logger,
		now:             time.Now,
	}
}

// Classify 分类并记录指标，strategy 为空使用默认策略
func (p *ReadingProcessor) Classify(raw models.VitalSigns, strategy models.Strategy) (*models.ClassificationResult, error) {
	if strategy == "" {
		strategy = p.pipeline.DefaultStrategy()
	}
	result, err := p.pipeline.Classify(raw, strategy)
	if err != nil {
		kind := ErrorKind(err)
		// 未注册的策略名来自外部输入，不作为指标标签
		if kind == "unknown_strategy" {
			strategy = "unknown"
		}
		p.metrics.RecordClassificationError(strategy, kind)
		return nil, err
	}
	p.metrics.RecordClassification(result.Strategy, result.Label)
	return result, nil
}

// Process 处理一条设备读数
func (p *ReadingProcessor) Process(ctx context.Context, reading *models.DeviceReading) (*models.ClassificationRecord, error) {
	if reading.DeviceID == "" {
		return nil, models.ErrMissingDeviceID
	}

	raw, err := reading.ToVitalSigns()
	if err != nil {
		p.metrics.RecordClassificationError(p.pipeline.DefaultStrategy(), ErrorKind(err))
		return nil, err
	}

	result, err := p.Classify(raw, "")
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	rec := &models.ClassificationRecord{
		DeviceID:    reading.DeviceID,
		ReadingTime: reading.ReadingTime(now),
		Raw:         raw,
		Result:      *result,
		CreatedAt:   now,
	}
	if label, ok := reading.DeviceLabel(); ok {
		rec.DeviceLabel = &label
	}

	if p.classifications != nil {
		id, err := p.classifications.Insert(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("failed to save classification: %w", err)
		}
		rec.ID = id
	}

	previous := p.previousLabel(ctx, reading.DeviceID)

	latest := &cache.LatestResult{
		DeviceID:    rec.DeviceID,
		ReadingTime: rec.ReadingTime,
		Result:      rec.Result,
		Explanation: classifier.Explain(result),
		UpdatedAt:   now,
	}
	if err := p.cache.Put(ctx, latest); err != nil {
		p.logger.Warn("Failed to update latest result cache",
			zap.String("device_id", rec.DeviceID),
			zap.Error(err),
		)
	}

	// 同一设备连续处于同一风险等级时只告警一次
	if previous != nil && *previous == result.Label {
		return rec, nil
	}
	p.raiseAlert(ctx, rec)

	return rec, nil
}

// previousLabel 缓存中的上一次结果，缺失或读取失败返回 nil
func (p *ReadingProcessor) previousLabel(ctx context.Context, deviceID string) *models.RiskLabel {
	prev, err := p.cache.Get(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			p.logger.Warn("Failed to read previous result",
				zap.String("device_id", deviceID),
				zap.Error(err),
			)
		}
		return nil
	}
	label := prev.Result.Label
	return &label
}

func (p *ReadingProcessor) raiseAlert(ctx context.Context, rec *models.ClassificationRecord) {
	alert, err := p.alertBuilder.Build(rec)
	if err != nil {
		p.logger.Error("Failed to build risk alert", zap.String("device_id", rec.DeviceID), zap.Error(err))
		return
	}
	if alert == nil {
		return
	}

	if p.alerts != nil {
		if err := p.alerts.Insert(ctx, alert); err != nil {
			p.logger.Error("Failed to save risk alert",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err),
			)
		}
	}
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, alert); err != nil {
			p.logger.Error("Failed to publish risk alert",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err),
			)
		}
	}
	p.metrics.RecordAlert(alert.Level)

	p.logger.Info("Risk alert raised",
		zap.String("alert_id", alert.AlertID),
		zap.String("device_id", alert.DeviceID),
		zap.String("level", alert.Level),
		zap.String("label", alert.Label.String()),
		zap.Float64("confidence", alert.Confidence),
	)
}

// ErrorKind 分类错误归类，用于指标标签
func ErrorKind(err error) string {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, classifier.ErrUntrainedModel):
		return "untrained"
	case errors.Is(err, classifier.ErrUnknownStrategy):
		return "unknown_strategy"
	default:
		return "internal"
	}
}
