// Package config 提供调度监控服务配置管理
package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config 服务配置
type Config struct {
	Service   ServiceConfig   `yaml:"service" json:"service"`
	Upstream  UpstreamConfig  `yaml:"upstream" json:"upstream"`
	Postgres  PostgresConfig  `yaml:"postgres" json:"postgres"`
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka" json:"kafka"`
	Monitor   MonitorConfig   `yaml:"monitor" json:"monitor"`
	Log       LogConfig       `yaml:"log" json:"log"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	Env      string `yaml:"env" json:"env"`
}

// UpstreamConfig 上游数据源配置
type UpstreamConfig struct {
	DispatchBaseURL   string `yaml:"dispatch_base_url" json:"dispatch_base_url"`     // 工单 API
	TelemetryBaseURL  string `yaml:"telemetry_base_url" json:"telemetry_base_url"`   // 车辆遥测 API，空表示禁用
	APIToken          string `yaml:"api_token" json:"api_token"`
	FetchTimeoutSec   int    `yaml:"fetch_timeout_sec" json:"fetch_timeout_sec"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Enabled                bool   `yaml:"enabled" json:"enabled"`
	Host                   string `yaml:"host" json:"host"`
	Port                   int    `yaml:"port" json:"port"`
	Database               string `yaml:"database" json:"database"`
	User                   string `yaml:"user" json:"user"`
	Password               string `yaml:"password" json:"password"`
	MaxConnections         int    `yaml:"max_connections" json:"max_connections"`
	MaxIdleConns           int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" json:"conn_max_lifetime_minutes"`
}

// RedisConfig Redis 配置 (去重缓存后端，可选)
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// KafkaConfig Kafka 配置 (告警下游通知，可选)
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled" json:"enabled"`
	Brokers  []string `yaml:"brokers" json:"brokers"`
	ClientID string   `yaml:"client_id" json:"client_id"`
	Topic    string   `yaml:"topic" json:"topic"`
}

// MonitorConfig 轮询与告警配置
type MonitorConfig struct {
	PollIntervalSec       int    `yaml:"poll_interval_sec" json:"poll_interval_sec"`
	CacheCapacity         int    `yaml:"cache_capacity" json:"cache_capacity"`
	CacheTTLMinutes       int    `yaml:"cache_ttl_minutes" json:"cache_ttl_minutes"`
	DedupWindowSec        int    `yaml:"dedup_window_sec" json:"dedup_window_sec"`
	HistoryLimit          int    `yaml:"history_limit" json:"history_limit"`
	HighValueThreshold    string `yaml:"high_value_threshold" json:"high_value_threshold"`         // 高价值工单阈值
	StartGraceMinutes     int    `yaml:"start_grace_minutes" json:"start_grace_minutes"`           // 超过计划开始多久视为迟滞
	MaxJobDurationMinutes int    `yaml:"max_job_duration_minutes" json:"max_job_duration_minutes"` // 作业最长时长
	TelemetryStaleMinutes int    `yaml:"telemetry_stale_minutes" json:"telemetry_stale_minutes"`   // 遥测静默阈值
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// 环境变量替换
	content := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	return &cfg, nil
}

// expandEnvVars 展开环境变量 ${VAR:default}
func expandEnvVars(s string) string {
	result := s
	for {
		start := strings.Index(result, "${")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}")
		if end == -1 {
			break
		}
		end += start

		expr := result[start+2 : end]
		parts := strings.SplitN(expr, ":", 2)
		varName := parts[0]
		defaultVal := ""
		if len(parts) > 1 {
			defaultVal = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			value = defaultVal
		}

		result = result[:start] + value + result[end+1:]
	}
	return result
}

// setDefaults 设置默认值
func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = "dispatch-monitor"
	}
	if cfg.Service.HTTPPort == 0 {
		cfg.Service.HTTPPort = 8087
	}
	if cfg.Service.Env == "" {
		cfg.Service.Env = "dev"
	}

	if cfg.Upstream.FetchTimeoutSec == 0 {
		cfg.Upstream.FetchTimeoutSec = 10
	}

	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.MaxConnections == 0 {
		cfg.Postgres.MaxConnections = 20
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}
	if cfg.Postgres.ConnMaxLifetimeMinutes == 0 {
		cfg.Postgres.ConnMaxLifetimeMinutes = 60
	}

	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 20
	}

	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = "dispatch-monitor"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "dispatch-alerts"
	}

	if cfg.Monitor.PollIntervalSec == 0 {
		cfg.Monitor.PollIntervalSec = 30
	}
	if cfg.Monitor.CacheCapacity == 0 {
		cfg.Monitor.CacheCapacity = 5000
	}
	if cfg.Monitor.CacheTTLMinutes == 0 {
		cfg.Monitor.CacheTTLMinutes = 120
	}
	if cfg.Monitor.DedupWindowSec == 0 {
		cfg.Monitor.DedupWindowSec = 300
	}
	if cfg.Monitor.HistoryLimit == 0 {
		cfg.Monitor.HistoryLimit = 1000
	}
	if cfg.Monitor.HighValueThreshold == "" {
		cfg.Monitor.HighValueThreshold = "5000"
	}
	if cfg.Monitor.StartGraceMinutes == 0 {
		cfg.Monitor.StartGraceMinutes = 30
	}
	if cfg.Monitor.MaxJobDurationMinutes == 0 {
		cfg.Monitor.MaxJobDurationMinutes = 480
	}
	if cfg.Monitor.TelemetryStaleMinutes == 0 {
		cfg.Monitor.TelemetryStaleMinutes = 20
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// PollInterval 轮询周期
func (c *MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// CacheTTL 快照缓存 TTL
func (c *MonitorConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// DedupWindow 去重窗口
func (c *MonitorConfig) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSec) * time.Second
}

// StartGrace 迟滞宽限
func (c *MonitorConfig) StartGrace() time.Duration {
	return time.Duration(c.StartGraceMinutes) * time.Minute
}

// MaxJobDuration 作业最长时长
func (c *MonitorConfig) MaxJobDuration() time.Duration {
	return time.Duration(c.MaxJobDurationMinutes) * time.Minute
}

// TelemetryStale 遥测静默阈值
func (c *MonitorConfig) TelemetryStale() time.Duration {
	return time.Duration(c.TelemetryStaleMinutes) * time.Minute
}

// GetHighValueThreshold 获取高价值工单阈值
func (c *MonitorConfig) GetHighValueThreshold() decimal.Decimal {
	d, err := decimal.NewFromString(c.HighValueThreshold)
	if err != nil {
		return decimal.NewFromInt(5000)
	}
	return d
}

// FetchTimeout 上游拉取超时
func (c *UpstreamConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSec) * time.Second
}
