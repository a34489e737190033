package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	DifyBaseURL       string
	DifyAPIKey        string
	DifyUser          string
	DifyCategoryField string
	DifyImageField    string
	DifyOutputField   string

	ImageMaxSide     int
	ImageJPEGQuality int

	NormalizeTimeout time.Duration
	UploadTimeout    time.Duration
	GenerateTimeout  time.Duration

	SessionTTL     time.Duration
	MaxUploadBytes int64

	GeoIPDBPath        string
	DefaultLocale      string
	CORSAllowedOrigins []string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               getEnv("PORT", "8080"),
		DifyBaseURL:        strings.TrimRight(getEnv("DIFY_BASE_URL", "https://api.dify.ai/v1"), "/"),
		DifyAPIKey:         strings.TrimSpace(os.Getenv("DIFY_API_KEY")),
		DifyUser:           getEnv("DIFY_USER", "web-client-user"),
		DifyCategoryField:  getEnv("DIFY_CATEGORY_FIELD", "ip_name"),
		DifyImageField:     getEnv("DIFY_IMAGE_FIELD", "user_image"),
		DifyOutputField:    getEnv("DIFY_OUTPUT_FIELD", "poster_url"),
		ImageMaxSide:       getEnvInt("IMAGE_MAX_SIDE", 1200),
		ImageJPEGQuality:   getEnvInt("IMAGE_JPEG_QUALITY", 85),
		NormalizeTimeout:   getEnvSeconds("NORMALIZE_TIMEOUT_SECONDS", 20),
		UploadTimeout:      getEnvSeconds("UPLOAD_TIMEOUT_SECONDS", 60),
		GenerateTimeout:    getEnvSeconds("GENERATE_TIMEOUT_SECONDS", 300),
		SessionTTL:         time.Minute * time.Duration(getEnvInt("SESSION_TTL_MINUTES", 30)),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 20)) << 20,
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", "zh"),
		CORSAllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		HTTPReadTimeout:    getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout:   getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 30),
		HTTPIdleTimeout:    getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DifyAPIKey == "" {
		return nil, fmt.Errorf("DIFY_API_KEY is required")
	}
	if cfg.ImageMaxSide <= 0 {
		return nil, fmt.Errorf("IMAGE_MAX_SIDE must be positive")
	}
	if cfg.ImageJPEGQuality < 1 || cfg.ImageJPEGQuality > 100 {
		return nil, fmt.Errorf("IMAGE_JPEG_QUALITY must be between 1 and 100")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
