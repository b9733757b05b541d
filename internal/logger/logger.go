package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// LogConfig 日志配置, 由 config.LogConfig 实现
type LogConfig interface {
	GetLevel() string
	GetOutput() string
	GetFile() string
}

// Logger 自定义日志器
type Logger struct {
	zapLogger *zap.Logger
}

// LumberjackConfig lumberjack 配置
type LumberjackConfig struct {
	Filename   string // 日志文件路径
	MaxSize    int    // 每个日志文件的最大大小（MB）
	MaxBackups int    // 保留的旧日志文件数量
	MaxAge     int    // 保留日志文件的天数
	Compress   bool   // 是否压缩旧日志文件
}

var (
	mu            sync.RWMutex
	defaultLogger *Logger
)

func init() {
	l, err := New(INFO)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defaultLogger = l
}

// Setup 根据配置创建并替换默认日志器
func Setup(cfg LogConfig) error {
	level := ParseLogLevel(cfg.GetLevel())

	var (
		l   *Logger
		err error
	)
	switch strings.ToLower(cfg.GetOutput()) {
	case "", "stdout":
		l = NewWithWriter(level, os.Stdout)
	case "stderr":
		l = NewWithWriter(level, os.Stderr)
	case "file":
		if cfg.GetFile() == "" {
			return fmt.Errorf("log output is file but no file path configured")
		}
		l, err = NewWithFileRotation(level, cfg.GetFile())
	default:
		return fmt.Errorf("unsupported log output %q", cfg.GetOutput())
	}
	if err != nil {
		return err
	}

	SetDefaultLogger(l)
	return nil
}

// New 创建输出到标准输出的日志器
func New(level LogLevel) (*Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevelFromLogLevel(level))
	config.EncoderConfig = encoderConfig()

	if level == DEBUG {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(zapLevelFromLogLevel(level))
	}

	zapLogger, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}

	return &Logger{zapLogger: zapLogger}, nil
}

// NewWithWriter 创建写入指定 writer 的 JSON 日志器
func NewWithWriter(level LogLevel, w io.Writer) *Logger {
	encoder := zapcore.NewJSONEncoder(encoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zap.NewAtomicLevelAt(zapLevelFromLogLevel(level)))
	return &Logger{zapLogger: zap.New(core, zap.AddCallerSkip(2), zap.AddCaller())}
}

// NewNop 创建不输出任何内容的日志器
func NewNop() *Logger {
	return &Logger{zapLogger: zap.NewNop()}
}

// NewWithFileRotation 创建支持文件轮转的日志器
func NewWithFileRotation(level LogLevel, logFile string) (*Logger, error) {
	config := LumberjackConfig{
		Filename:   logFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	return NewWithLumberjackConfig(level, config)
}

// NewWithLumberjackConfig 使用自定义 lumberjack 配置创建日志器
func NewWithLumberjackConfig(level LogLevel, config LumberjackConfig) (*Logger, error) {
	if config.Filename == "" {
		return nil, fmt.Errorf("lumberjack filename is required")
	}
	// 设置默认值
	if config.MaxSize == 0 {
		config.MaxSize = 100
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}
	if config.MaxAge == 0 {
		config.MaxAge = 28
	}

	return NewWithWriter(level, &lumberjack.Logger{
		Filename:   config.Filename,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}), nil
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05"))
	}
	cfg.CallerKey = "caller"
	cfg.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.LevelKey = "level"
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.MessageKey = "message"
	cfg.EncodeName = zapcore.FullNameEncoder
	return cfg
}

// Debug 调试日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zapLogger.Debug(fmt.Sprintf(format, args...))
}

// Info 信息日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.zapLogger.Info(fmt.Sprintf(format, args...))
}

// Warn 警告日志
func (l *Logger) Warn(format string, args ...interface{}) {
	l.zapLogger.Warn(fmt.Sprintf(format, args...))
}

// Error 错误日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.zapLogger.Error(fmt.Sprintf(format, args...))
}

// Fatal 致命错误日志
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.zapLogger.Fatal(fmt.Sprintf(format, args...))
}

// Sync 同步日志
func (l *Logger) Sync() {
	_ = l.zapLogger.Sync()
}

// With 添加字段, 返回的日志器直接调用方法, 调用栈比全局函数少一层
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zapLogger: l.zapLogger.With(fields...).WithOptions(zap.AddCallerSkip(-1))}
}

// SetDefaultLogger 设置默认日志器
func SetDefaultLogger(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	if defaultLogger != nil {
		defaultLogger.Sync()
	}
	defaultLogger = l
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// 全局函数

func Debug(format string, args ...interface{}) {
	current().Debug(format, args...)
}

func Info(format string, args ...interface{}) {
	current().Info(format, args...)
}

func Warn(format string, args ...interface{}) {
	current().Warn(format, args...)
}

func Error(format string, args ...interface{}) {
	current().Error(format, args...)
}

func Fatal(format string, args ...interface{}) {
	current().Fatal(format, args...)
}

func Sync() {
	current().Sync()
}

func With(fields ...zap.Field) *Logger {
	return current().With(fields...)
}

// ParseLogLevel 解析日志级别字符串
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// zapLevelFromLogLevel 转换日志级别
func zapLevelFromLogLevel(level LogLevel) zapcore.Level {
	switch level {
	case DEBUG:
		return zapcore.DebugLevel
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}
