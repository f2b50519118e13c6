package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig PostgreSQL 连接配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT broker 配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// GetDSN 获取 lib/pq 连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv 用 prefix_* 环境变量覆盖已有值，如 DB_HOST / DB_PORT
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	overrideString(&c.Host, prefix+"_HOST")
	overrideInt(&c.Port, prefix+"_PORT")
	overrideString(&c.User, prefix+"_USER")
	overrideString(&c.Password, prefix+"_PASSWORD")
	overrideString(&c.Database, prefix+"_NAME")
	overrideString(&c.SSLMode, prefix+"_SSLMODE")
	overrideInt(&c.MaxConns, prefix+"_MAX_CONNS")
	overrideInt(&c.MaxIdle, prefix+"_MAX_IDLE")
}

// LoadFromEnv 从环境变量加载 Redis 配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	overrideString(&c.Addr, prefix+"_ADDR")
	overrideString(&c.Password, prefix+"_PASSWORD")
	overrideInt(&c.DB, prefix+"_DB")
}

// LoadFromEnv 从环境变量加载 MQTT 配置
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	overrideString(&c.Broker, prefix+"_BROKER")
	overrideString(&c.ClientID, prefix+"_CLIENT_ID")
	overrideString(&c.Username, prefix+"_USERNAME")
	overrideString(&c.Password, prefix+"_PASSWORD")
	if v := os.Getenv(prefix + "_QOS"); v != "" {
		if qos, err := strconv.Atoi(v); err == nil && qos >= 0 && qos <= 2 {
			c.QoS = byte(qos)
		}
	}
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// 非法数字保留原值
func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
