package modelsource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"wisefido-vitalrisk/internal/classifier"
)

// RemoteStatisticsSource 通过 HTTP 拉取预训练的高斯统计量文档
type RemoteStatisticsSource struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// Options 拉取参数
type Options struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// DefaultOptions 10s 超时，重试 3 次
func DefaultOptions() Options {
	return Options{
		Timeout:      10 * time.Second,
		RetryCount:   3,
		RetryWait:    1 * time.Second,
		RetryMaxWait: 5 * time.Second,
	}
}

// NewRemoteStatisticsSource 创建远程统计量源
func NewRemoteStatisticsSource(url string, opts Options, logger *zap.Logger) *RemoteStatisticsSource {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			// 5xx 与 429 重试，其他 4xx 直接失败
			return r != nil && (r.StatusCode() >= 500 || r.StatusCode() == 429)
		})

	return &RemoteStatisticsSource{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

// Name 来源名，用于日志和指标
func (s *RemoteStatisticsSource) Name() string {
	return "remote"
}

// Load 拉取并校验统计量
func (s *RemoteStatisticsSource) Load(ctx context.Context) (*classifier.ClassStatistics, error) {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch model statistics: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("model statistics endpoint returned %d", resp.StatusCode())
	}

	var stats classifier.ClassStatistics
	if err := json.Unmarshal(resp.Body(), &stats); err != nil {
		return nil, fmt.Errorf("failed to decode model statistics: %w", err)
	}
	if err := stats.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model statistics: %w", err)
	}

	s.logger.Info("Fetched model statistics",
		zap.String("url", s.url),
		zap.Int("sample_count", stats.TotalSamples()),
		zap.Int("attempts", resp.Request.Attempt),
	)
	return &stats, nil
}
