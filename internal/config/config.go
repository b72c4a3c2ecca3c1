package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config конфигурация приложения
type Config struct {
	ServerPort       string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	TickInterval     time.Duration
	HistoryLimit     int
	ReadingRetention time.Duration
	WindowSize       int
	AnomalyThreshold float64
	AnalyzerWorkers  int
	SimulationSeed   int64
	TimeScale        float64
	AlertCooldown    time.Duration
	SeedTowers       int
	AllowedOrigins   []string

	// ошибки разбора переменных окружения
	parseErrs []error
}

// Load загружает конфигурацию из environment. Некорректные значения
// заменяются значениями по умолчанию и возвращаются из Validate.
func Load() Config {
	env := &envLoader{}
	cfg := Config{
		ServerPort:       env.getEnv("SERVER_PORT", "8080"),
		RedisAddr:        env.getEnv("REDIS_ADDR", ""),
		RedisPassword:    env.getEnv("REDIS_PASSWORD", ""),
		RedisDB:          env.getEnvAsInt("REDIS_DB", 0),
		TickInterval:     time.Duration(env.getEnvAsFloat("TICK_INTERVAL_SECONDS", 5) * float64(time.Second)),
		HistoryLimit:     env.getEnvAsInt("HISTORY_LIMIT", 500),
		ReadingRetention: time.Duration(env.getEnvAsInt("READING_RETENTION_HOURS", 1)) * time.Hour,
		WindowSize:       env.getEnvAsInt("WINDOW_SIZE", 50),
		AnomalyThreshold: env.getEnvAsFloat("ANOMALY_THRESHOLD", 2.5),
		AnalyzerWorkers:  env.getEnvAsInt("ANALYZER_WORKERS", 4),
		SimulationSeed:   int64(env.getEnvAsInt("SIMULATION_SEED", 0)),
		TimeScale:        env.getEnvAsFloat("SIMULATION_TIME_SCALE", 720),
		AlertCooldown:    time.Duration(env.getEnvAsInt("ALERT_COOLDOWN_SECONDS", 60)) * time.Second,
		SeedTowers:       env.getEnvAsInt("SEED_TOWERS", 3),
		AllowedOrigins:   env.getEnvAsList("WS_ALLOWED_ORIGINS"),
	}
	cfg.parseErrs = env.errs
	return cfg
}

// Validate проверяет значения конфигурации
func (c Config) Validate() error {
	errs := append([]error(nil), c.parseErrs...)
	if c.ServerPort == "" {
		errs = append(errs, errors.New("SERVER_PORT must not be empty"))
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("TICK_INTERVAL_SECONDS must be positive, got %s", c.TickInterval))
	}
	if c.TimeScale <= 0 {
		errs = append(errs, fmt.Errorf("SIMULATION_TIME_SCALE must be positive, got %.2f", c.TimeScale))
	}
	if c.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit))
	}
	if c.ReadingRetention <= 0 {
		errs = append(errs, fmt.Errorf("READING_RETENTION_HOURS must be positive, got %s", c.ReadingRetention))
	}
	if c.WindowSize <= 1 {
		errs = append(errs, fmt.Errorf("WINDOW_SIZE must be greater than 1, got %d", c.WindowSize))
	}
	if c.AnomalyThreshold <= 0 {
		errs = append(errs, fmt.Errorf("ANOMALY_THRESHOLD must be positive, got %.2f", c.AnomalyThreshold))
	}
	if c.AnalyzerWorkers <= 0 {
		errs = append(errs, fmt.Errorf("ANALYZER_WORKERS must be positive, got %d", c.AnalyzerWorkers))
	}
	if c.AlertCooldown < 0 {
		errs = append(errs, fmt.Errorf("ALERT_COOLDOWN_SECONDS must not be negative, got %s", c.AlertCooldown))
	}
	if c.SeedTowers < 0 {
		errs = append(errs, fmt.Errorf("SEED_TOWERS must not be negative, got %d", c.SeedTowers))
	}
	return errors.Join(errs...)
}

// envLoader читает environment и запоминает ошибки разбора
type envLoader struct {
	errs []error
}

func (l *envLoader) fallback(key, value string, defaultValue interface{}, err error) {
	log.Printf("Invalid %s=%q, using default %v: %v", key, value, defaultValue, err)
	l.errs = append(l.errs, fmt.Errorf("%s: invalid value %q", key, value))
}

// getEnv получает environment variable или возвращает default
func (l *envLoader) getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt получает environment variable как int
func (l *envLoader) getEnvAsInt(key string, defaultValue int) int {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		l.fallback(key, valueStr, defaultValue, err)
		return defaultValue
	}
	return value
}

// getEnvAsFloat получает environment variable как float64
func (l *envLoader) getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		l.fallback(key, valueStr, defaultValue, err)
		return defaultValue
	}
	return value
}

// getEnvAsList получает environment variable как список через запятую
func (l *envLoader) getEnvAsList(key string) []string {
	var result []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
