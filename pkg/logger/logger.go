package logger

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	Log  *zap.Logger
	once sync.Once
)

// Init 初始化全局日志记录器
// 控制台输出人类可读格式，文件输出JSON格式（带滚动）
func Init(logDir string, debug bool) {
	once.Do(func() {
		if logDir == "" {
			logDir = "logs"
		}
		if err := os.MkdirAll(logDir, 0755); err != nil {
			panic(err)
		}

		level := zapcore.InfoLevel
		if debug {
			level = zapcore.DebugLevel
		}

		// 控制台输出 (彩色、短时间戳)
		consoleCfg := zap.NewDevelopmentEncoderConfig()
		consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		consoleCore := zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.AddSync(os.Stdout),
			level,
		)

		// 文件输出 (JSON + 滚动)
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(fileCfg),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   filepath.Join(logDir, "tvhook.json"),
				MaxSize:    10, // MB
				MaxBackups: 30,
				MaxAge:     30, // 天
				Compress:   true,
			}),
			zapcore.InfoLevel,
		)

		Log = zap.New(
			zapcore.NewTee(consoleCore, fileCore),
			zap.AddCaller(),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)

		// 拦截部分第三方库的log输出
		zap.ReplaceGlobals(Log)
	})
}

// Named 获取带 module 字段的子logger
func Named(module string) *zap.Logger {
	if Log == nil {
		Init("logs", true)
	}
	return Log.With(zap.String("module", module))
}

// Sync 刷新缓冲的日志（退出前调用）
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
