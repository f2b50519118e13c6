package consumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "wisefido-vitalrisk/internal/common/redis"
	"wisefido-vitalrisk/internal/config"
	"wisefido-vitalrisk/internal/metrics"
	"wisefido-vitalrisk/internal/models"
)

// ReadingProcessor 处理单条设备读数
type ReadingProcessor interface {
	Process(ctx context.Context, reading *models.DeviceReading) (*models.ClassificationRecord, error)
}

// StreamConsumer 原始读数 Stream 消费者
type StreamConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	processor   ReadingProcessor
	metrics     *metrics.Metrics
	logger      *zap.Logger

	block time.Duration
}

// NewStreamConsumer 创建 Streams 消费者
func NewStreamConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	processor ReadingProcessor,
	m *metrics.Metrics,
	logger *zap.Logger,
) *StreamConsumer {
	return &StreamConsumer{
		config:      cfg,
		redisClient: redisClient,
		processor:   processor,
		metrics:     m,
		logger:      logger,
		block:       2 * time.Second,
	}
}

// Start 创建消费者组并进入消费循环，直到 ctx 取消
func (c *StreamConsumer) Start(ctx context.Context) error {
	stream := c.config.VitalRisk.Streams.Raw
	group := c.config.VitalRisk.Consumer.Group

	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, stream, group); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	c.logger.Info("Stream consumer started",
		zap.String("stream", stream),
		zap.String("consumer_group", group),
		zap.String("consumer_name", c.config.VitalRisk.Consumer.Name),
	)

	backoffDuration := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.ConsumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("Failed to consume stream",
				zap.String("stream", stream),
				zap.Error(err),
				zap.Duration("backoff", backoffDuration),
			)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoffDuration):
				backoffDuration *= 2
				if backoffDuration > maxBackoff {
					backoffDuration = maxBackoff
				}
			}
			continue
		}
		backoffDuration = time.Second
	}
}

// ConsumeOnce 读取一批消息并逐条处理，返回处理的消息数
// 单条消息失败只记录日志；所有消息处理后都会 ACK，失败的读数不重试
func (c *StreamConsumer) ConsumeOnce(ctx context.Context) (int, error) {
	stream := c.config.VitalRisk.Streams.Raw
	group := c.config.VitalRisk.Consumer.Group

	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		stream,
		group,
		c.config.VitalRisk.Consumer.Name,
		c.config.VitalRisk.Consumer.BatchSize,
		c.block,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to read from stream %s: %w", stream, err)
	}

	for _, msg := range messages {
		outcome := "processed"
		if err := c.processMessage(ctx, msg); err != nil {
			outcome = outcomeFor(err)
			c.logger.Error("Failed to process message",
				zap.String("stream", stream),
				zap.String("message_id", msg.ID),
				zap.String("outcome", outcome),
				zap.Error(err),
			)
		}
		c.metrics.RecordStreamMessage(outcome)

		if err := rediscommon.AckMessage(ctx, c.redisClient, stream, group, msg.ID); err != nil {
			c.logger.Warn("Failed to ack message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}

	return len(messages), nil
}

func (c *StreamConsumer) processMessage(ctx context.Context, msg rediscommon.StreamMessage) error {
	data, ok := msg.Field("data")
	if !ok {
		return fmt.Errorf("%w: missing data field", models.ErrInvalidReading)
	}

	reading, err := models.ParseDeviceReading([]byte(data))
	if err != nil {
		return err
	}
	if reading.DeviceID == "" {
		if id, ok := msg.Field("device_id"); ok {
			reading.DeviceID = id
		}
	}

	rec, err := c.processor.Process(ctx, reading)
	if err != nil {
		return err
	}

	c.logger.Debug("Classified vital reading",
		zap.String("device_id", rec.DeviceID),
		zap.String("label", rec.Result.Label.String()),
		zap.Float64("confidence", rec.Result.Confidence),
	)
	return nil
}

func outcomeFor(err error) string {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, models.ErrInvalidReading),
		errors.Is(err, models.ErrMissingDeviceID):
		return "invalid"
	default:
		return "failed"
	}
}
