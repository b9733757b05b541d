package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Ledger      LedgerConfig      `mapstructure:"ledger"`
	Reserve     ReserveConfig     `mapstructure:"reserve"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Task        TaskConfig        `mapstructure:"task"`
	Wallet      WalletConfig      `mapstructure:"wallet"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	DSN      string `mapstructure:"dsn"` // sqlite 文件路径或完整连接串
}

// LedgerConfig 账本存储配置
type LedgerConfig struct {
	Driver string `mapstructure:"driver"` // gorm, memory
}

// ReserveConfig 最低保留金额策略（租金模型）
type ReserveConfig struct {
	RecordSize          int     `mapstructure:"record_size"`            // 单条资金记录占用字节数
	StorageOverhead     int     `mapstructure:"storage_overhead"`       // 账户固定开销字节数
	LamportsPerByteYear uint64  `mapstructure:"lamports_per_byte_year"` // 每字节每年租金
	ExemptionThreshold  float64 `mapstructure:"exemption_threshold"`    // 免租年数
}

// AuthConfig 请求签名校验配置
type AuthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	MaxSkew time.Duration `mapstructure:"max_skew"` // 签名时间戳允许的偏差
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type TaskConfig struct {
	Interval int `mapstructure:"interval"`  // 秒
	PoolSize int `mapstructure:"pool_size"` // 对账协程池大小
}

type WalletConfig struct {
	Faucet bool `mapstructure:"faucet"` // 是否开放充值接口（仅测试网）
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// Load 从默认路径和环境变量加载配置
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/fundvault")
	return load(v)
}

// LoadFile 从指定文件加载配置
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// 自动读取环境变量, 例如 FUNDVAULT_SERVER_PORT
	v.SetEnvPrefix("fundvault")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fundvault")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.dsn", "")
	v.SetDefault("ledger.driver", "gorm")
	v.SetDefault("reserve.record_size", 9000)
	v.SetDefault("reserve.storage_overhead", 128)
	v.SetDefault("reserve.lamports_per_byte_year", 3480)
	v.SetDefault("reserve.exemption_threshold", 2.0)
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.max_skew", "5m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("idempotency.ttl", "24h")
	v.SetDefault("task.interval", 60)
	v.SetDefault("task.pool_size", 8)
	v.SetDefault("wallet.faucet", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Ledger.Driver {
	case "gorm", "memory":
	default:
		return fmt.Errorf("unsupported ledger driver %q", c.Ledger.Driver)
	}
	if c.Reserve.RecordSize < 0 || c.Reserve.StorageOverhead < 0 {
		return errors.New("reserve sizes must not be negative")
	}
	if c.Reserve.ExemptionThreshold < 0 {
		return errors.New("reserve exemption threshold must not be negative")
	}
	if c.Task.Interval <= 0 {
		return errors.New("task interval must be positive")
	}
	if c.Task.PoolSize <= 0 {
		return errors.New("task pool size must be positive")
	}
	return nil
}
