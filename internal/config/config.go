package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Refund     RefundConfig     `mapstructure:"refund"`
	Payment    PaymentConfig    `mapstructure:"payment"`
}

// PaymentConfig 支付网关配置
type PaymentConfig struct {
	// GatewayBaseURL 支付服务商地址，为空时使用开发模拟网关
	GatewayBaseURL string `mapstructure:"gateway_base_url"`
	GatewayAPIKey  string `mapstructure:"gateway_api_key"`
	// GatewayTimeout 调用超时（秒）
	GatewayTimeout int `mapstructure:"gateway_timeout"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// RedisConfig Redis 配置（任务队列与调度器使用）
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// SettlementConfig 结算配置
type SettlementConfig struct {
	// FeePercent 平台佣金比例（百分数，默认 10）
	FeePercent float64 `mapstructure:"fee_percent"`
	// WaitingPeriod 付款后等待多久才允许结算（时长字符串，如 "72h"）
	WaitingPeriod string `mapstructure:"waiting_period"`
	// Interval 结算扫描周期（时长字符串，如 "30s"）
	Interval string `mapstructure:"interval"`
	// BatchSize 单次扫描处理的最大订单数
	BatchSize int `mapstructure:"batch_size"`
	// AutoCompleteAfter 发货后多久自动确认完成（时长字符串，如 "240h"）
	AutoCompleteAfter string `mapstructure:"auto_complete_after"`
	// AutoCompleteInterval 自动确认扫描周期
	AutoCompleteInterval string `mapstructure:"auto_complete_interval"`
}

// RefundConfig 退款配置
type RefundConfig struct {
	// ClawbackPolicy 已结算订单退款时的资金回收策略:
	//   seller_and_platform - 卖家与平台按佣金比例分摊（默认）
	//   platform_only       - 全部由平台托管账户承担
	ClawbackPolicy string `mapstructure:"clawback_policy"`
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 环境变量优先级高于配置文件
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_DATABASE_HOST

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults()

	globalConfig = &cfg
	return &cfg, nil
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// applyDefaults 补齐结算相关默认值
func (c *Config) applyDefaults() {
	if c.Settlement.FeePercent <= 0 {
		c.Settlement.FeePercent = 10
	}
	if c.Settlement.WaitingPeriod == "" {
		c.Settlement.WaitingPeriod = "72h"
	}
	if c.Settlement.Interval == "" {
		c.Settlement.Interval = "30s"
	}
	if c.Settlement.BatchSize <= 0 {
		c.Settlement.BatchSize = 100
	}
	if c.Settlement.AutoCompleteAfter == "" {
		c.Settlement.AutoCompleteAfter = "240h"
	}
	if c.Settlement.AutoCompleteInterval == "" {
		c.Settlement.AutoCompleteInterval = "10m"
	}
	if c.Refund.ClawbackPolicy == "" {
		c.Refund.ClawbackPolicy = "seller_and_platform"
	}
	if c.Payment.GatewayTimeout <= 0 {
		c.Payment.GatewayTimeout = 10
	}
}

// parseDurationOr 解析时长字符串，非法时回退默认值
func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// WaitingPeriodDuration 解析结算等待时长
func (c *SettlementConfig) WaitingPeriodDuration() time.Duration {
	return parseDurationOr(c.WaitingPeriod, 72*time.Hour)
}

// IntervalDuration 解析结算扫描周期
func (c *SettlementConfig) IntervalDuration() time.Duration {
	return parseDurationOr(c.Interval, 30*time.Second)
}

// AutoCompleteAfterDuration 解析自动确认时长
func (c *SettlementConfig) AutoCompleteAfterDuration() time.Duration {
	return parseDurationOr(c.AutoCompleteAfter, 240*time.Hour)
}

// AutoCompleteIntervalDuration 解析自动确认扫描周期
func (c *SettlementConfig) AutoCompleteIntervalDuration() time.Duration {
	return parseDurationOr(c.AutoCompleteInterval, 10*time.Minute)
}

// GetAddr 获取 Redis 连接地址
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
