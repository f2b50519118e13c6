package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/alerting"
	"wisefido-vitalrisk/internal/cache"
	"wisefido-vitalrisk/internal/classifier"
	"wisefido-vitalrisk/internal/common/database"
	mqttcommon "wisefido-vitalrisk/internal/common/mqtt"
	rediscommon "wisefido-vitalrisk/internal/common/redis"
	"wisefido-vitalrisk/internal/config"
	"wisefido-vitalrisk/internal/consumer"
	"wisefido-vitalrisk/internal/metrics"
	"wisefido-vitalrisk/internal/modelsource"
	"wisefido-vitalrisk/internal/repository"
)

// VitalRiskService 生命体征风险分类服务（整合各层）
type VitalRiskService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	logger      *zap.Logger

	metrics            *metrics.Metrics
	pipeline           *classifier.Pipeline
	resultCache        *cache.ResultCache
	classificationRepo *repository.ClassificationRepository
	trainingRepo       *repository.TrainingExampleRepository
	processor          *ReadingProcessor
	modelManager       *ModelManager
	streamConsumer     *consumer.StreamConsumer
	mqttConsumer       *consumer.MQTTConsumer

	wg sync.WaitGroup
}

// NewVitalRiskService 连接外部依赖并组装各层
// DB 连接失败时降级为不持久化，MQTT 未启用时只消费 Stream
func NewVitalRiskService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*VitalRiskService, error) {
	var db *sql.DB
	if cfg.DBEnabled {
		d, err := database.NewPostgresDB(ctx, &cfg.Database)
		if err != nil {
			logger.Warn("DB enabled but connection failed, running without persistence", zap.Error(err))
		} else {
			if err := repository.EnsureSchema(ctx, d); err != nil {
				_ = d.Close()
				return nil, fmt.Errorf("failed to ensure schema: %w", err)
			}
			db = d
		}
	}

	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	var mqttClient *mqttcommon.Client
	if cfg.MQTT.Enabled {
		c, err := mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect MQTT: %w", err)
		}
		mqttClient = c
	}

	return newVitalRiskService(cfg, db, redisClient, mqttClient, metrics.New(), logger)
}

func newVitalRiskService(
	cfg *config.Config,
	db *sql.DB,
	redisClient *redis.Client,
	mqttClient *mqttcommon.Client,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*VitalRiskService, error) {
	calibrator := classifier.NewCalibrator(classifier.CalibrationOffsets{
		Systolic:  cfg.VitalRisk.Calibration.SystolicOffset,
		Diastolic: cfg.VitalRisk.Calibration.DiastolicOffset,
	})
	pipeline, err := classifier.NewPipeline(calibrator, classifier.DefaultNormalRanges(), cfg.VitalRisk.Strategy)
	if err != nil {
		return nil, err
	}

	resultCache := cache.NewResultCache(
		cache.NewRedisKVStore(redisClient),
		cfg.VitalRisk.Cache.KeyPrefix,
		cfg.VitalRisk.Cache.Suffix,
		time.Duration(cfg.VitalRisk.Cache.TTL)*time.Second,
		logger,
	)

	s := &VitalRiskService{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		logger:      logger,
		metrics:     m,
		pipeline:    pipeline,
		resultCache: resultCache,
	}

	// 接口字段必须保持真正的 nil，不能装入 nil 指针
	var (
		classifications ClassificationStore
		alerts          AlertStore
		sources         []StatisticsSource
	)

	if cfg.VitalRisk.Model.URL != "" {
		sources = append(sources, modelsource.NewRemoteStatisticsSource(cfg.VitalRisk.Model.URL, modelsource.Options{
			Timeout:      cfg.VitalRisk.Model.Timeout,
			RetryCount:   cfg.VitalRisk.Model.RetryCount,
			RetryWait:    time.Second,
			RetryMaxWait: 5 * time.Second,
		}, logger))
	}
	if db != nil {
		s.classificationRepo = repository.NewClassificationRepository(db, logger)
		s.trainingRepo = repository.NewTrainingExampleRepository(db, logger)
		classifications = s.classificationRepo
		alerts = repository.NewAlertRepository(db, logger)
		sources = append(sources, modelsource.NewDatabaseSource(s.trainingRepo, calibrator))
	}
	if cfg.VitalRisk.Model.DatasetPath != "" {
		sources = append(sources, modelsource.NewDatasetSource(cfg.VitalRisk.Model.DatasetPath, cfg.VitalRisk.Model.DatasetSheet, calibrator))
	}

	s.processor = NewReadingProcessor(
		pipeline,
		classifications,
		alerts,
		alerting.NewStreamPublisher(redisClient, cfg.VitalRisk.Streams.Alerts),
		resultCache,
		alerting.NewAlertBuilder(cfg.VitalRisk.Alert.MinLabel),
		m,
		logger,
	)
	s.modelManager = NewModelManager(pipeline.Gaussian(), sources, m, logger)
	s.streamConsumer = consumer.NewStreamConsumer(cfg, redisClient, s.processor, m, logger)
	if mqttClient != nil {
		s.mqttConsumer = consumer.NewMQTTConsumer(cfg, mqttClient, redisClient, logger)
	}

	return s, nil
}

// Start 加载模型并启动消费者，不阻塞
func (s *VitalRiskService) Start(ctx context.Context) error {
	s.logger.Info("Starting vital risk service",
		zap.String("strategy", string(s.pipeline.DefaultStrategy())),
		zap.Bool("db_enabled", s.db != nil),
		zap.Bool("mqtt_enabled", s.mqttConsumer != nil),
		zap.Strings("model_sources", s.modelManager.Sources()),
	)

	// 模型加载失败不阻止启动，规则策略仍可用
	if source, err := s.modelManager.Reload(ctx); err != nil {
		s.logger.Warn("Gaussian classifier not trained at startup", zap.Error(err))
	} else {
		s.logger.Info("Gaussian classifier ready", zap.String("source", source))
	}

	errCh := make(chan error, 2)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.streamConsumer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("stream consumer: %w", err)
		}
	}()

	if s.mqttConsumer != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.mqttConsumer.Start(ctx); err != nil {
				errCh <- fmt.Errorf("mqtt consumer: %w", err)
			}
		}()
	}

	// 启动阶段的错误（如无法创建消费者组）直接返回
	select {
	case err := <-errCh:
		return err
	case <-time.After(500 * time.Millisecond):
		return nil
	}
}

// Stop 等待消费者退出后关闭连接，调用前应先取消 Start 的 ctx
func (s *VitalRiskService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping vital risk service")

	if s.mqttConsumer != nil {
		_ = s.mqttConsumer.Stop(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for consumers to stop")
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	return nil
}

func (s *VitalRiskService) Metrics() *metrics.Metrics {
	return s.metrics
}

func (s *VitalRiskService) Pipeline() *classifier.Pipeline {
	return s.pipeline
}

func (s *VitalRiskService) Processor() *ReadingProcessor {
	return s.processor
}

func (s *VitalRiskService) ModelManager() *ModelManager {
	return s.modelManager
}

func (s *VitalRiskService) ResultCache() *cache.ResultCache {
	return s.resultCache
}

// ClassificationRepo DB 未启用时为 nil
func (s *VitalRiskService) ClassificationRepo() *repository.ClassificationRepository {
	return s.classificationRepo
}

// TrainingRepo DB 未启用时为 nil
func (s *VitalRiskService) TrainingRepo() *repository.TrainingExampleRepository {
	return s.trainingRepo
}
