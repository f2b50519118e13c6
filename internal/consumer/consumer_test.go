package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqttcommon "wisefido-vitalrisk/internal/common/mqtt"
	rediscommon "wisefido-vitalrisk/internal/common/redis"
	"wisefido-vitalrisk/internal/config"
	"wisefido-vitalrisk/internal/metrics"
	"wisefido-vitalrisk/internal/models"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.MQTT.Topic = "vitals/+/reading"
	cfg.MQTT.QoS = 1
	cfg.VitalRisk.Streams.Raw = "vitals:raw:stream"
	cfg.VitalRisk.Consumer.Group = "vitalrisk-classifier"
	cfg.VitalRisk.Consumer.Name = "test-consumer"
	cfg.VitalRisk.Consumer.BatchSize = 10
	return cfg
}

type fakeSubscriber struct {
	mu           sync.Mutex
	topics       map[string]mqttcommon.MessageHandler
	unsubscribed []string
}

func (f *fakeSubscriber) Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topics == nil {
		f.topics = map[string]mqttcommon.MessageHandler{}
	}
	f.topics[topic] = handler
	return nil
}

func (f *fakeSubscriber) topicsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for topic := range f.topics {
		out = append(out, topic)
	}
	return out
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

type fakeProcessor struct {
	mu       sync.Mutex
	readings []*models.DeviceReading
	err      error
}

func (f *fakeProcessor) Process(ctx context.Context, reading *models.DeviceReading) (*models.ClassificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings = append(f.readings, reading)
	if f.err != nil {
		return nil, f.err
	}
	return &models.ClassificationRecord{
		DeviceID: reading.DeviceID,
		Result:   models.ClassificationResult{Label: models.RiskNormal, Confidence: 0.9},
	}, nil
}

const readingJSON = `{"suhu":36.8,"bpm":75,"spo2":98,"tekanan_sys":110,"tekanan_dia":70,"signal_quality":90}`

func TestDeviceIDFromTopic(t *testing.T) {
	assert.Equal(t, "esp32-01", DeviceIDFromTopic("vitals/esp32-01/reading"))
	assert.Equal(t, "", DeviceIDFromTopic("vitals/esp32-01"))
	assert.Equal(t, "", DeviceIDFromTopic("other/esp32-01/status"))
}

func TestMQTTConsumer_HandleMessage_ForwardsToStream(t *testing.T) {
	client := setupRedis(t)
	cfg := testConfig()
	c := NewMQTTConsumer(cfg, &fakeSubscriber{}, client, zap.NewNop())

	require.NoError(t, c.HandleMessage("vitals/esp32-01/reading", []byte(readingJSON)))

	entries, err := client.XRange(context.Background(), cfg.VitalRisk.Streams.Raw, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "esp32-01", entries[0].Values["device_id"])

	var forwarded models.DeviceReading
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["data"].(string)), &forwarded))
	assert.Equal(t, "esp32-01", forwarded.DeviceID)
	require.NotNil(t, forwarded.SpO2)
	assert.Equal(t, 98.0, *forwarded.SpO2)
}

func TestMQTTConsumer_HandleMessage_DropsInvalid(t *testing.T) {
	client := setupRedis(t)
	cfg := testConfig()
	c := NewMQTTConsumer(cfg, &fakeSubscriber{}, client, zap.NewNop())

	assert.NoError(t, c.HandleMessage("vitals/esp32-01/reading", []byte("not json")))
	// 主题无法解析出设备且消息未带 device_id
	assert.NoError(t, c.HandleMessage("vitals/reading", []byte(readingJSON)))

	n, err := client.XLen(context.Background(), cfg.VitalRisk.Streams.Raw).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMQTTConsumer_StartStop(t *testing.T) {
	client := setupRedis(t)
	cfg := testConfig()
	sub := &fakeSubscriber{}
	c := NewMQTTConsumer(cfg, sub, client, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(sub.topicsSnapshot()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	require.NoError(t, c.Stop(context.Background()))
	assert.Equal(t, []string{"vitals/+/reading"}, sub.unsubscribed)
}

func newTestStreamConsumer(t *testing.T, client *redis.Client, p ReadingProcessor) (*StreamConsumer, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	c := NewStreamConsumer(testConfig(), client, p, m, zap.NewNop())
	c.block = -1
	require.NoError(t, rediscommon.CreateConsumerGroup(context.Background(), client, c.config.VitalRisk.Streams.Raw, c.config.VitalRisk.Consumer.Group))
	return c, m
}

func TestStreamConsumer_ConsumeOnce(t *testing.T) {
	client := setupRedis(t)
	p := &fakeProcessor{}
	c, _ := newTestStreamConsumer(t, client, p)
	ctx := context.Background()
	stream := c.config.VitalRisk.Streams.Raw

	_, err := rediscommon.PublishToStream(ctx, client, stream, map[string]interface{}{
		"device_id": "esp32-01",
		"data":      readingJSON,
	})
	require.NoError(t, err)
	_, err = rediscommon.PublishToStream(ctx, client, stream, map[string]interface{}{
		"data": "{broken",
	})
	require.NoError(t, err)

	n, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, p.readings, 1)
	assert.Equal(t, "esp32-01", p.readings[0].DeviceID)

	pending, err := client.XPending(ctx, stream, c.config.VitalRisk.Consumer.Group).Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)

	n, err = c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStreamConsumer_ProcessorErrorDoesNotStop(t *testing.T) {
	client := setupRedis(t)
	p := &fakeProcessor{err: &models.ValidationError{Field: "heart_rate", Reason: "missing"}}
	c, _ := newTestStreamConsumer(t, client, p)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := rediscommon.PublishToStream(ctx, client, c.config.VitalRisk.Streams.Raw, map[string]interface{}{
			"device_id": "esp32-02",
			"data":      readingJSON,
		})
		require.NoError(t, err)
	}

	n, err := c.ConsumeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, p.readings, 3)
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, "invalid", outcomeFor(&models.ValidationError{Field: "temperature", Reason: "NaN"}))
	assert.Equal(t, "invalid", outcomeFor(models.ErrMissingDeviceID))
	assert.Equal(t, "failed", outcomeFor(errors.New("db down")))
}
