package alerting

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	rediscommon "wisefido-vitalrisk/internal/common/redis"
	"wisefido-vitalrisk/internal/models"
)

// StreamPublisher 把告警写入 Redis Stream，供通知服务消费
type StreamPublisher struct {
	client *redis.Client
	stream string
}

// NewStreamPublisher 创建告警发布器
func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

// Publish 发布一条告警
func (p *StreamPublisher) Publish(ctx context.Context, alert *models.RiskAlert) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, alert); err != nil {
		return fmt.Errorf("failed to publish alert %s: %w", alert.AlertID, err)
	}
	return nil
}
