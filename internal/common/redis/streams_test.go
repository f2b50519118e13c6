package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCreateConsumerGroup_Idempotent(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)

	require.NoError(t, CreateConsumerGroup(ctx, client, "vitals:raw:stream", "vitalrisk"))
	require.NoError(t, CreateConsumerGroup(ctx, client, "vitals:raw:stream", "vitalrisk"))
}

func TestPublishAndRead(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)
	require.NoError(t, CreateConsumerGroup(ctx, client, "s", "g"))

	_, err := PublishJSONToStream(ctx, client, "s", map[string]interface{}{"device_id": "esp32-01", "bpm": 72})
	require.NoError(t, err)
	_, err = PublishToStream(ctx, client, "s", map[string]interface{}{"n": 3, "ok": true, "v": 1.5})
	require.NoError(t, err)

	msgs, err := ReadFromStream(ctx, client, "s", "g", "c1", 10, -1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	data, ok := msgs[0].Field("data")
	require.True(t, ok)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(data), &decoded))
	assert.Equal(t, "esp32-01", decoded["device_id"])

	n, _ := msgs[1].Field("n")
	assert.Equal(t, "3", n)
	okField, _ := msgs[1].Field("ok")
	assert.Equal(t, "true", okField)
	v, _ := msgs[1].Field("v")
	assert.Equal(t, "1.5", v)

	require.NoError(t, AckMessage(ctx, client, "s", "g", msgs[0].ID, msgs[1].ID))

	msgs, err = ReadFromStream(ctx, client, "s", "g", "c1", 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
