package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/classifier"
	"wisefido-vitalrisk/internal/models"
)

// LatestResult 设备最新一次分类结果
type LatestResult struct {
	DeviceID    string                          `json:"device_id"`
	ReadingTime time.Time                       `json:"reading_time"`
	Result      models.ClassificationResult     `json:"result"`
	Explanation []classifier.FeatureExplanation `json:"explanation"`
	UpdatedAt   time.Time                       `json:"updated_at"`
}

// ResultCache 最新结果缓存，key = prefix + device_id + suffix
type ResultCache struct {
	kv     KVStore
	prefix string
	suffix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewResultCache 创建结果缓存
func NewResultCache(kv KVStore, prefix, suffix string, ttl time.Duration, logger *zap.Logger) *ResultCache {
	return &ResultCache{
		kv:     kv,
		prefix: prefix,
		suffix: suffix,
		ttl:    ttl,
		logger: logger,
	}
}

// Key 设备缓存键
func (c *ResultCache) Key(deviceID string) string {
	return c.prefix + deviceID + c.suffix
}

// Put 覆盖写入
func (c *ResultCache) Put(ctx context.Context, latest *LatestResult) error {
	data, err := json.Marshal(latest)
	if err != nil {
		return fmt.Errorf("failed to marshal latest result: %w", err)
	}
	key := c.Key(latest.DeviceID)
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to set cache %s: %w", key, err)
	}

	c.logger.Debug("Updated latest result cache",
		zap.String("key", key),
		zap.String("label", latest.Result.Label.String()),
	)
	return nil
}

// Get 缓存不存在时返回 ErrCacheMiss
func (c *ResultCache) Get(ctx context.Context, deviceID string) (*LatestResult, error) {
	val, err := c.kv.Get(ctx, c.Key(deviceID))
	if err != nil {
		return nil, err
	}
	var latest LatestResult
	if err := json.Unmarshal([]byte(val), &latest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal latest result: %w", err)
	}
	return &latest, nil
}
