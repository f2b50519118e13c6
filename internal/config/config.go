package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	commoncfg "wisefido-vitalrisk/internal/common/config"
	"wisefido-vitalrisk/internal/models"
)

// Config wisefido-vitalrisk 服务配置
type Config struct {
	HTTP struct {
		Addr string
	}

	DBEnabled bool
	Database  commoncfg.DatabaseConfig
	Redis     commoncfg.RedisConfig

	MQTT struct {
		commoncfg.MQTTConfig
		Enabled bool
		Topic   string // 如 "vitals/+/reading"
	}

	VitalRisk struct {
		Strategy    models.Strategy
		Calibration struct {
			SystolicOffset  float64
			DiastolicOffset float64
		}

		Streams struct {
			Raw    string // 设备原始读数
			Alerts string // 风险告警
		}
		Consumer struct {
			Group     string
			Name      string
			BatchSize int64
		}

		// 最新结果缓存
		Cache struct {
			KeyPrefix string // "vital-risk:device:"
			Suffix    string // ":latest"
			TTL       int    // 秒
		}

		Model struct {
			URL          string // 远程统计量文档，为空不使用
			DatasetPath  string // xlsx 或 json 训练集，为空不使用
			DatasetSheet string
			Timeout      time.Duration
			RetryCount   int
		}

		Alert struct {
			MinLabel models.RiskLabel
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 读取可选 .env 后从环境变量加载
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8090")

	cfg.DBEnabled = getEnv("DB_ENABLED", "true") == "true"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "owlrd"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 2
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "true") == "true"
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "wisefido-vitalrisk"
	cfg.MQTT.QoS = 1
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")
	cfg.MQTT.Topic = getEnv("MQTT_TOPIC", "vitals/+/reading")

	strategy := getEnv("CLASSIFIER_STRATEGY", string(models.StrategyRuleBased))
	switch models.Strategy(strategy) {
	case models.StrategyRuleBased, models.StrategyGaussianNB:
		cfg.VitalRisk.Strategy = models.Strategy(strategy)
	default:
		return nil, fmt.Errorf("invalid CLASSIFIER_STRATEGY: %q", strategy)
	}

	var err error
	if cfg.VitalRisk.Calibration.SystolicOffset, err = getEnvFloat("CALIBRATION_SYSTOLIC_OFFSET", 15); err != nil {
		return nil, err
	}
	if cfg.VitalRisk.Calibration.DiastolicOffset, err = getEnvFloat("CALIBRATION_DIASTOLIC_OFFSET", 10); err != nil {
		return nil, err
	}

	cfg.VitalRisk.Streams.Raw = getEnv("STREAM_RAW", "vitals:raw:stream")
	cfg.VitalRisk.Streams.Alerts = getEnv("STREAM_ALERTS", "vitals:alerts:stream")
	cfg.VitalRisk.Consumer.Group = getEnv("CONSUMER_GROUP", "vitalrisk-classifier")
	cfg.VitalRisk.Consumer.Name = getEnv("CONSUMER_NAME", hostnameOr("vitalrisk-1"))
	cfg.VitalRisk.Consumer.BatchSize = int64(parseInt(getEnv("CONSUMER_BATCH_SIZE", "10"), 10))

	cfg.VitalRisk.Cache.KeyPrefix = getEnv("CACHE_RESULT_PREFIX", "vital-risk:device:")
	cfg.VitalRisk.Cache.Suffix = ":latest"
	cfg.VitalRisk.Cache.TTL = parseInt(getEnv("CACHE_RESULT_TTL", "300"), 300)

	cfg.VitalRisk.Model.URL = getEnv("MODEL_URL", "")
	cfg.VitalRisk.Model.DatasetPath = getEnv("TRAINING_DATASET_PATH", "")
	cfg.VitalRisk.Model.DatasetSheet = getEnv("TRAINING_DATASET_SHEET", "")
	cfg.VitalRisk.Model.Timeout = time.Duration(parseInt(getEnv("MODEL_FETCH_TIMEOUT_SECONDS", "10"), 10)) * time.Second
	cfg.VitalRisk.Model.RetryCount = parseInt(getEnv("MODEL_FETCH_RETRIES", "3"), 3)

	minLabel, err := models.ParseRiskLabel(getEnv("ALERT_MIN_LABEL", "Critical"))
	if err != nil {
		return nil, fmt.Errorf("invalid ALERT_MIN_LABEL: %w", err)
	}
	cfg.VitalRisk.Alert.MinLabel = minLabel

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s: %q is not a finite number", key, value)
	}
	return f, nil
}

func parseInt(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func hostnameOr(def string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return def
}
