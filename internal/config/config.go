package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port            int
	DBDSN           string
	RedisURL        string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	JWTSecret       string
	AllowOrigins    []string
	PublicBaseURL   string
	LogLevel        string
	LogFormat       string
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig
	Staging         StagingConfig
	Metadata        MetadataConfig
	Storage         StorageConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// StagingConfig controla o cache temporário de uploads.
type StagingConfig struct {
	Backend       string
	MaxItemBytes  int64
	MaxTotalBytes int64
	TTL           time.Duration
	SweepInterval time.Duration
	UploadURLTTL  time.Duration
}

// MetadataConfig limita a busca de metadados de links externos.
type MetadataConfig struct {
	MaxBodyBytes int64
	Timeout      time.Duration
	UserAgent    string
}

// StorageConfig define onde os documentos das receitas são persistidos.
type StorageConfig struct {
	Provider    string
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

const (
	StagingBackendMemory = "memory"
	StagingBackendRedis  = "redis"

	defaultUserAgent = "ReceitasBot/1.0 (+link preview)"
)

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	port, err := parseIntEnv("PORT", 8080)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	accessTTL, err := parseDurationEnv("JWT_ACCESS_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.JWTAccessTTL = accessTTL

	refreshTTL, err := parseDurationEnv("JWT_REFRESH_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	if refreshTTL <= accessTTL {
		return nil, errors.New("JWT_REFRESH_TTL deve ser maior que JWT_ACCESS_TTL")
	}
	cfg.JWTRefreshTTL = refreshTTL

	for _, origin := range strings.Split(getEnv("ALLOW_ORIGINS", ""), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(getEnv("PUBLIC_BASE_URL", "http://localhost:8080")), "/")
	if !strings.HasPrefix(cfg.PublicBaseURL, "http://") && !strings.HasPrefix(cfg.PublicBaseURL, "https://") {
		return nil, errors.New("PUBLIC_BASE_URL deve incluir protocolo http/https")
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info")))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "console")))

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	if cfg.Staging, err = loadStaging(); err != nil {
		return nil, err
	}

	cfg.RedisURL = strings.TrimSpace(getEnv("REDIS_URL", ""))
	if cfg.Staging.Backend == StagingBackendRedis && cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório quando STAGING_BACKEND=redis")
	}

	if cfg.Metadata, err = loadMetadata(); err != nil {
		return nil, err
	}

	cfg.Storage = StorageConfig{
		Provider:    strings.ToLower(strings.TrimSpace(getEnv("STORAGE_PROVIDER", ""))),
		S3Endpoint:  strings.TrimSpace(getEnv("S3_ENDPOINT", "")),
		S3Region:    strings.TrimSpace(getEnv("S3_REGION", "auto")),
		S3Bucket:    strings.TrimSpace(getEnv("S3_BUCKET", "")),
		S3AccessKey: strings.TrimSpace(getEnv("S3_ACCESS_KEY", "")),
		S3SecretKey: strings.TrimSpace(getEnv("S3_SECRET_KEY", "")),
		S3PublicURL: strings.TrimSpace(getEnv("S3_PUBLIC_URL", "")),
	}

	return cfg, nil
}

func loadStaging() (StagingConfig, error) {
	var (
		sc  StagingConfig
		err error
	)

	sc.Backend = strings.ToLower(strings.TrimSpace(getEnv("STAGING_BACKEND", StagingBackendMemory)))
	switch sc.Backend {
	case StagingBackendMemory, StagingBackendRedis:
	default:
		return sc, fmt.Errorf("STAGING_BACKEND %q não suportado", sc.Backend)
	}

	if sc.MaxItemBytes, err = parseBytesEnv("STAGING_MAX_ITEM_BYTES", 10*humanize.MiByte); err != nil {
		return sc, err
	}
	if sc.MaxTotalBytes, err = parseBytesEnv("STAGING_MAX_TOTAL_BYTES", 256*humanize.MiByte); err != nil {
		return sc, err
	}
	if sc.MaxItemBytes <= 0 {
		return sc, errors.New("STAGING_MAX_ITEM_BYTES deve ser positivo")
	}
	if sc.MaxTotalBytes < sc.MaxItemBytes {
		return sc, errors.New("STAGING_MAX_TOTAL_BYTES deve ser maior ou igual a STAGING_MAX_ITEM_BYTES")
	}

	if sc.TTL, err = parseDurationEnv("STAGING_TTL", 30*time.Minute); err != nil {
		return sc, err
	}
	if sc.SweepInterval, err = parseDurationEnv("STAGING_SWEEP_INTERVAL", time.Minute); err != nil {
		return sc, err
	}
	if sc.UploadURLTTL, err = parseDurationEnv("UPLOAD_URL_TTL", 15*time.Minute); err != nil {
		return sc, err
	}
	if sc.TTL <= 0 {
		return sc, errors.New("STAGING_TTL deve ser positivo")
	}

	return sc, nil
}

func loadMetadata() (MetadataConfig, error) {
	var (
		mc  MetadataConfig
		err error
	)

	if mc.MaxBodyBytes, err = parseBytesEnv("METADATA_MAX_BODY_BYTES", 5*humanize.MiByte); err != nil {
		return mc, err
	}
	if mc.MaxBodyBytes <= 0 {
		return mc, errors.New("METADATA_MAX_BODY_BYTES deve ser positivo")
	}
	if mc.Timeout, err = parseDurationEnv("METADATA_TIMEOUT", 10*time.Second); err != nil {
		return mc, err
	}
	if mc.Timeout <= 0 {
		return mc, errors.New("METADATA_TIMEOUT deve ser positivo")
	}
	mc.UserAgent = strings.TrimSpace(getEnv("METADATA_USER_AGENT", defaultUserAgent))
	if mc.UserAgent == "" {
		mc.UserAgent = defaultUserAgent
	}

	return mc, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseIntEnv(key string, def int) (int, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return n, nil
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

// parseBytesEnv aceita "10MiB", "5MB" ou o número de bytes.
func parseBytesEnv(key string, def int64) (int64, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	n, err := humanize.ParseBytes(val)
	if err != nil || n > uint64(1<<62) {
		return 0, errors.New(key + " inválido")
	}
	return int64(n), nil
}
