package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"zone-detection-console/internal/models"
	"zone-detection-console/internal/service/cache"
	"zone-detection-console/internal/service/configsync"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
	Mode string `yaml:"mode"` // debug, release, test
}

// BackendConfig - настройки бэкенда консоли
type BackendConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Timeout     time.Duration `yaml:"timeout"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// DatabaseConfig - настройки базы данных
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig - настройки Redis
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// TelemetryConfig - окна агрегации телеметрии
type TelemetryConfig struct {
	Window     time.Duration `yaml:"window"`
	History    time.Duration `yaml:"history"`
	RecentSize int           `yaml:"recent_size"`
	Timezone   string        `yaml:"timezone"` // часовой пояс подписей health-графиков
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	FilePath    string `yaml:"file_path"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
			Mode: "release",
		},
		Backend: BackendConfig{
			BaseURL:     "http://localhost:8000/",
			Timeout:     30 * time.Second,
			SettleDelay: configsync.DefaultSettleDelay,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "console",
			Password: "console",
			DBName:   "zone_console",
			SSLMode:  "disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  cache.DefaultTTL,
		},
		Telemetry: TelemetryConfig{
			Window:     models.AveragingWindow,
			History:    models.HistoryTimeLength,
			RecentSize: models.RecentTelemetrySize,
			Timezone:   "Local",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load загружает конфигурацию: значения по умолчанию, затем YAML файл
// из CONFIG_FILE, затем переменные окружения (в том числе из .env)
func Load() (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile накладывает YAML файл поверх текущих значений
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	c.Server.Mode = getEnv("GIN_MODE", c.Server.Mode)

	c.Backend.BaseURL = getEnv("BACKEND_URL", c.Backend.BaseURL)
	c.Backend.Timeout = getEnvDuration("BACKEND_TIMEOUT", c.Backend.Timeout)
	c.Backend.SettleDelay = getEnvDuration("CONFIG_SETTLE_DELAY", c.Backend.SettleDelay)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)
	c.Redis.TTL = getEnvDuration("REDIS_TTL", c.Redis.TTL)

	c.Telemetry.Window = getEnvDuration("TELEMETRY_WINDOW", c.Telemetry.Window)
	c.Telemetry.History = getEnvDuration("TELEMETRY_HISTORY", c.Telemetry.History)
	c.Telemetry.RecentSize = getEnvInt("TELEMETRY_RECENT_SIZE", c.Telemetry.RecentSize)
	c.Telemetry.Timezone = getEnv("TIMEZONE", c.Telemetry.Timezone)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Development = getEnvBool("LOG_DEVELOPMENT", c.Log.Development)
	c.Log.FilePath = getEnv("LOG_FILE", c.Log.FilePath)
}

// Validate проверяет значения, без которых сервис не запустится
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base url is required")
	}
	if c.Telemetry.Window <= 0 || c.Telemetry.History < c.Telemetry.Window {
		return fmt.Errorf("telemetry history (%s) must be at least one window (%s)", c.Telemetry.History, c.Telemetry.Window)
	}
	if c.Telemetry.RecentSize <= 0 {
		return fmt.Errorf("telemetry recent size must be positive, got %d", c.Telemetry.RecentSize)
	}
	if _, err := c.Telemetry.Location(); err != nil {
		return err
	}
	return nil
}

// Location возвращает часовой пояс подписей графиков
func (t TelemetryConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
	}
	return loc, nil
}

// GetDSN возвращает строку подключения к PostgreSQL
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool получает булеву переменную окружения
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration понимает "30s", "5m" и число миллисекунд
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
