package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 全局日志实例
var Logger = logrus.New()

// rotator 由 Init 创建的文件写入器。SuppressConsole 复用同一个实例，
// 一个日志文件只能有一个轮转器在管理。
var rotator *lumberjack.Logger

// Config 日志配置
type Config struct {
	Level      string `yaml:"level"`      // 日志级别: debug, info, warn, error
	OutputFile string `yaml:"outputFile"` // 日志文件路径（可选，为空则只输出到控制台）
	MaxSize    int    `yaml:"maxSize"`    // 日志文件最大大小（MB）
	MaxBackups int    `yaml:"maxBackups"` // 保留的旧日志文件数量
	MaxAge     int    `yaml:"maxAge"`     // 保留旧日志文件的天数
	Compress   bool   `yaml:"compress"`   // 是否压缩旧日志文件
}

// DefaultConfig 返回默认日志配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     7,
	}
}

// Init 初始化全局日志
// 配置了 OutputFile 时同时写文件（lumberjack 轮转）和控制台。
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	rotator = nil
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return err
		}
		rotator = &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		Logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	} else {
		Logger.SetOutput(os.Stdout)
	}

	// 同步标准 logrus 实例，保证 logrus.WithField 风格的组件 logger
	// 与全局配置一致
	logrus.SetLevel(level)
	logrus.SetFormatter(Logger.Formatter)
	logrus.SetOutput(Logger.Out)

	return nil
}

// SuppressConsole 停止向控制台输出（TUI 接管终端后 stdout 不再可用）。
// Init 配置了日志文件时继续写同一个轮转器，否则静默。
func SuppressConsole() {
	var out io.Writer = io.Discard
	if rotator != nil {
		out = rotator
	}
	Logger.SetOutput(out)
	logrus.SetOutput(out)
}

// Component 返回带 component 字段的 logger
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}

// Debugf 输出 debug 日志
func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

// Infof 输出 info 日志
func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

// Warnf 输出 warn 日志
func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

// Errorf 输出 error 日志
func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}
