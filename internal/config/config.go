// Пакет config — загрузка и валидация конфигурации медиа-сервиса
// из переменных окружения (и необязательного файла .env).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Директория хранения загруженных файлов
	UploadDir string
	// Внешний базовый URL для ссылок на файлы (опционально).
	// Если не задан — схема и хост берутся из запроса.
	PublicBaseURL string
	// Максимальный размер загружаемого файла в байтах (0 — без ограничения)
	MaxFileSize int64
	// Префиксы допустимых MIME-типов (пусто — принимается любой тип)
	AllowedMIMETypes []string
	// Время жизни кэша листинга (0 — кэш отключён)
	ListCacheTTL time.Duration
	// Количество записей в кэше листинга
	ListCacheSize int
	// Интервал очистки временных файлов незавершённых загрузок
	SweepInterval time.Duration
	// Возраст, после которого временный файл считается брошенным
	TmpMaxAge time.Duration
	// Разрешённые CORS origins
	CORSAllowedOrigins []string

	// URL JWKS endpoint (опционально; пусто — аутентификация отключена)
	JWKSUrl string
	// Путь к CA-сертификату для TLS JWKS endpoint (опционально)
	CACertPath string
	// Пропускать проверку TLS-сертификата JWKS endpoint
	TLSSkipVerify bool
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления ключей JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое отклонение часов при проверке JWT
	JWTLeeway time.Duration
	// Ожидаемые aud и iss токена (пусто — не проверяются)
	JWTAudience string
	JWTIssuer   string

	// Имя сервиса в метриках topologymetrics
	ServiceID string
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string
	// HTTP-таймауты сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown
	ShutdownTimeout time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
}

// AuthEnabled — включена ли JWT-аутентификация.
func (c *Config) AuthEnabled() bool {
	return c.JWKSUrl != ""
}

// TLSEnabled — настроен ли TLS для HTTP-сервера.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку.
// Если в рабочей директории есть .env, переменные из него подгружаются
// без перезаписи уже заданных.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env: %w", err)
	}

	cfg := &Config{}
	var err error

	// MH_PORT — порт HTTP-сервера (по умолчанию 5000)
	cfg.Port, err = getEnvInt("MH_PORT", 5000)
	if err != nil {
		return nil, fmt.Errorf("MH_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("MH_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// MH_UPLOAD_DIR — директория загрузок (по умолчанию uploads)
	cfg.UploadDir = getEnvDefault("MH_UPLOAD_DIR", "uploads")

	// MH_PUBLIC_BASE_URL — внешний базовый URL (опционально)
	cfg.PublicBaseURL = strings.TrimRight(getEnvDefault("MH_PUBLIC_BASE_URL", ""), "/")
	if cfg.PublicBaseURL != "" {
		u, parseErr := url.Parse(cfg.PublicBaseURL)
		if parseErr != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("MH_PUBLIC_BASE_URL: ожидается абсолютный URL, получено %q", cfg.PublicBaseURL)
		}
	}

	// MH_MAX_FILE_SIZE — лимит размера файла (по умолчанию 0 — без ограничения)
	cfg.MaxFileSize, err = getEnvInt64("MH_MAX_FILE_SIZE", 0)
	if err != nil {
		return nil, fmt.Errorf("MH_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize < 0 {
		return nil, fmt.Errorf("MH_MAX_FILE_SIZE: значение не может быть отрицательным")
	}

	// MH_ALLOWED_MIME_TYPES — префиксы MIME через запятую, например "image/,video/"
	cfg.AllowedMIMETypes = getEnvList("MH_ALLOWED_MIME_TYPES", nil)

	// MH_LIST_CACHE_TTL — время жизни кэша листинга (по умолчанию 2s)
	cfg.ListCacheTTL, err = getEnvDuration("MH_LIST_CACHE_TTL", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_LIST_CACHE_TTL: %w", err)
	}

	// MH_LIST_CACHE_SIZE — размер кэша листинга (по умолчанию 64)
	cfg.ListCacheSize, err = getEnvInt("MH_LIST_CACHE_SIZE", 64)
	if err != nil {
		return nil, fmt.Errorf("MH_LIST_CACHE_SIZE: %w", err)
	}
	if cfg.ListCacheSize <= 0 {
		return nil, fmt.Errorf("MH_LIST_CACHE_SIZE: значение должно быть положительным")
	}

	// MH_SWEEP_INTERVAL — интервал очистки временных файлов (по умолчанию 10m)
	cfg.SweepInterval, err = getEnvDuration("MH_SWEEP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MH_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("MH_SWEEP_INTERVAL: значение должно быть положительным")
	}

	// MH_TMP_MAX_AGE — возраст брошенного временного файла (по умолчанию 1h)
	cfg.TmpMaxAge, err = getEnvDuration("MH_TMP_MAX_AGE", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("MH_TMP_MAX_AGE: %w", err)
	}

	// MH_CORS_ALLOWED_ORIGINS — origins через запятую (по умолчанию "*")
	cfg.CORSAllowedOrigins = getEnvList("MH_CORS_ALLOWED_ORIGINS", []string{"*"})

	// MH_JWKS_URL — URL JWKS (опционально)
	cfg.JWKSUrl = getEnvDefault("MH_JWKS_URL", "")

	// MH_CA_CERT_PATH — CA-сертификат для JWKS endpoint (опционально)
	cfg.CACertPath = getEnvDefault("MH_CA_CERT_PATH", "")

	// MH_TLS_SKIP_VERIFY — пропуск проверки TLS JWKS (по умолчанию false)
	cfg.TLSSkipVerify, err = getEnvBool("MH_TLS_SKIP_VERIFY", false)
	if err != nil {
		return nil, fmt.Errorf("MH_TLS_SKIP_VERIFY: %w", err)
	}

	// MH_JWKS_CLIENT_TIMEOUT — таймаут HTTP-клиента JWKS (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvDuration("MH_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// MH_JWKS_REFRESH_INTERVAL — интервал обновления JWKS (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvDuration("MH_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MH_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// MH_JWT_LEEWAY — допустимое отклонение часов (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("MH_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_JWT_LEEWAY: %w", err)
	}

	// MH_JWT_AUDIENCE / MH_JWT_ISSUER — проверка aud и iss (опционально)
	cfg.JWTAudience = getEnvDefault("MH_JWT_AUDIENCE", "")
	cfg.JWTIssuer = getEnvDefault("MH_JWT_ISSUER", "")

	// MH_SERVICE_ID — имя вершины графа в topologymetrics (по умолчанию media-api)
	cfg.ServiceID = getEnvDefault("MH_SERVICE_ID", "media-api")

	// MH_DEPHEALTH_GROUP — имя группы в topologymetrics (по умолчанию krazy-notesy)
	cfg.DephealthGroup = getEnvDefault("MH_DEPHEALTH_GROUP", "krazy-notesy")

	// MH_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("MH_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// MH_TLS_CERT / MH_TLS_KEY — задаются только вместе
	cfg.TLSCert = getEnvDefault("MH_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("MH_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("MH_TLS_CERT и MH_TLS_KEY должны задаваться вместе")
	}

	// HTTP-таймауты: загрузка больших видео требует длинных таймаутов
	cfg.HTTPReadTimeout, err = getEnvDuration("MH_HTTP_READ_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MH_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("MH_HTTP_WRITE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MH_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("MH_HTTP_IDLE_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("MH_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// MH_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 30s)
	cfg.ShutdownTimeout, err = getEnvDuration("MH_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("MH_SHUTDOWN_TIMEOUT: %w", err)
	}

	// MH_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("MH_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("MH_LOG_LEVEL: %w", err)
	}

	// MH_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("MH_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("MH_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvList возвращает список значений, разделённых запятой.
// Пустые элементы отбрасываются.
func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var result []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	if len(result) == 0 {
		return defaultVal
	}
	return result
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("длительность не может быть отрицательной: %q", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
