package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	mqttcommon "wisefido-vitalrisk/internal/common/mqtt"
	rediscommon "wisefido-vitalrisk/internal/common/redis"
	"wisefido-vitalrisk/internal/config"
	"wisefido-vitalrisk/internal/models"
)

// MQTTConsumer 订阅设备读数并转发到原始读数 Stream
type MQTTConsumer struct {
	config      *config.Config
	mqttClient  mqttcommon.Subscriber
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient mqttcommon.Subscriber,
	redisClient *redis.Client,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:      cfg,
		mqttClient:  mqttClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 订阅主题后阻塞直到 ctx 取消
func (c *MQTTConsumer) Start(ctx context.Context) error {
	topic := c.config.MQTT.Topic
	if topic == "" {
		return fmt.Errorf("vital reading MQTT topic not configured")
	}

	if err := c.mqttClient.Subscribe(topic, c.config.MQTT.QoS, c.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to vital reading topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", topic),
		zap.String("stream", c.config.VitalRisk.Streams.Raw),
	)

	<-ctx.Done()
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if topic := c.config.MQTT.Topic; topic != "" {
		if err := c.mqttClient.Unsubscribe(topic); err != nil {
			c.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// HandleMessage 解析设备消息，补全 device_id 后写入原始 Stream
// 无法解析的消息只记录日志并丢弃
func (c *MQTTConsumer) HandleMessage(topic string, payload []byte) error {
	reading, err := models.ParseDeviceReading(payload)
	if err != nil {
		c.logger.Warn("Dropping unparsable vital reading",
			zap.String("topic", topic),
			zap.Error(err),
		)
		return nil
	}

	if reading.DeviceID == "" {
		reading.DeviceID = DeviceIDFromTopic(topic)
	}
	if reading.DeviceID == "" {
		c.logger.Warn("Dropping vital reading without device_id", zap.String("topic", topic))
		return nil
	}

	// 原样保留读数，校验放到分类阶段统一计数
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	ctx := context.Background()
	if _, err := rediscommon.PublishToStream(ctx, c.redisClient, c.config.VitalRisk.Streams.Raw, map[string]interface{}{
		"device_id": reading.DeviceID,
		"data":      data,
		"topic":     topic,
	}); err != nil {
		return fmt.Errorf("failed to publish reading to stream: %w", err)
	}

	c.logger.Debug("Forwarded vital reading",
		zap.String("device_id", reading.DeviceID),
		zap.String("topic", topic),
	)
	return nil
}

// DeviceIDFromTopic 从 vitals/{device_id}/reading 取设备 ID，格式不符返回空串
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[2] != "reading" {
		return ""
	}
	return parts[1]
}
