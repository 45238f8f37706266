package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Параметры ротации файла логов
const (
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 30
)

// Options - настройки логгера
type Options struct {
	Level       string // debug, info, warn, error
	Development bool   // человекочитаемый вывод в консоль
	FilePath    string // пусто - только консоль
}

var (
	logMu sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// Init создает логгер: консоль + файл с ротацией, и делает его глобальным
func Init(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Development {
		level = zapcore.DebugLevel
	}
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return fmt.Errorf("неизвестный уровень логирования %q: %w", opts.Level, err)
		}
	}

	setLogger(zap.New(newCore(level, opts), zap.AddCaller()))
	return nil
}

func newCore(level zapcore.Level, opts Options) zapcore.Core {
	encCfg := encoderConfig()

	var consoleEncoder zapcore.Encoder
	if opts.Development {
		devCfg := encCfg
		devCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(devCfg)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
	}

	if opts.FilePath != "" {
		// В файл всегда пишем JSON
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encCfg),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    DefaultMaxSizeMB,
				MaxBackups: DefaultMaxBackups,
				MaxAge:     DefaultMaxAgeDays,
				Compress:   true,
			}),
			level,
		))
	}
	return zapcore.NewTee(cores...)
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// setLogger заменяет глобальный логгер zap и локальные ссылки
func setLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// Log возвращает *zap.Logger (до Init - глобальный noop)
func Log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

// S возвращает *zap.SugaredLogger
func S() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Sync сбрасывает буферы
func Sync() {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
