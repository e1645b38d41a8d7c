package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	AI         AIConfig
	Analysis   AnalysisConfig
	Sync       SyncConfig
	R2         R2Config
	OIDC       OIDCConfig
	Generation GenerationConfig
	Gateway    GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	GeneratePerHour int
	RefinePerHour   int
	ExportPerHour   int
}

// AIConfig configures the OpenAI-compatible generation endpoint used for
// show plans, keyframes and smoothing passes.
type AIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// AnalysisConfig configures the music-structure analysis microservice.
type AnalysisConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

// SyncConfig configures the collaborative document sync service.
type SyncConfig struct {
	ServiceURL string
	APIKey     string
	Timeout    int // seconds
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type OIDCConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

// GenerationConfig tunes the orchestration pipeline itself.
type GenerationConfig struct {
	ApprovalPollSeconds    int
	ApprovalTimeoutSeconds int
	SyncGraceMs            int // presence hold before disconnect
	SyncChunkSize          int // performers per incremental write
	DefaultSongDurationMs  int // fallback when analysis has no song
	FallbackSectionMs      int // slice length for synthesized sections
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("AI_API_KEY")
	readSecret("SYNC_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("OIDC_CLIENT_ID")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ai.api_key", "AI_API_KEY")
	_ = viper.BindEnv("ai.base_url", "AI_BASE_URL")
	_ = viper.BindEnv("ai.model", "AI_MODEL")
	_ = viper.BindEnv("analysis.service_url", "ANALYSIS_SERVICE_URL")
	_ = viper.BindEnv("analysis.timeout", "ANALYSIS_SERVICE_TIMEOUT")
	_ = viper.BindEnv("sync.service_url", "SYNC_SERVICE_URL")
	_ = viper.BindEnv("sync.api_key", "SYNC_API_KEY")
	_ = viper.BindEnv("sync.timeout", "SYNC_SERVICE_TIMEOUT")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("oidc.domain", "OIDC_DOMAIN")
	_ = viper.BindEnv("oidc.client_id", "OIDC_CLIENT_ID")
	_ = viper.BindEnv("oidc.issuer", "OIDC_ISSUER")
	_ = viper.BindEnv("generation.approval_poll_seconds", "APPROVAL_POLL_SECONDS")
	_ = viper.BindEnv("generation.approval_timeout_seconds", "APPROVAL_TIMEOUT_SECONDS")
	_ = viper.BindEnv("generation.sync_grace_ms", "SYNC_GRACE_MS")
	_ = viper.BindEnv("generation.sync_chunk_size", "SYNC_CHUNK_SIZE")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.generate_per_hour", 10)
	viper.SetDefault("ratelimit.refine_per_hour", 30)
	viper.SetDefault("ratelimit.export_per_hour", 20)

	// AI defaults
	viper.SetDefault("ai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("ai.model", "gpt-4o")

	// Analysis service defaults
	viper.SetDefault("analysis.service_url", "http://localhost:8086")
	viper.SetDefault("analysis.timeout", 60)

	// Sync service defaults
	viper.SetDefault("sync.service_url", "http://localhost:8090")
	viper.SetDefault("sync.timeout", 30)

	// Generation pipeline defaults
	viper.SetDefault("generation.approval_poll_seconds", 2)
	viper.SetDefault("generation.approval_timeout_seconds", 300)
	viper.SetDefault("generation.sync_grace_ms", 1000)
	viper.SetDefault("generation.sync_chunk_size", 8)
	viper.SetDefault("generation.default_song_duration_ms", 180000)
	viper.SetDefault("generation.fallback_section_ms", 15000)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			RefinePerHour:   viper.GetInt("ratelimit.refine_per_hour"),
			ExportPerHour:   viper.GetInt("ratelimit.export_per_hour"),
		},
		AI: AIConfig{
			APIKey:  viper.GetString("ai.api_key"),
			BaseURL: viper.GetString("ai.base_url"),
			Model:   viper.GetString("ai.model"),
		},
		Analysis: AnalysisConfig{
			ServiceURL: viper.GetString("analysis.service_url"),
			Timeout:    viper.GetInt("analysis.timeout"),
		},
		Sync: SyncConfig{
			ServiceURL: viper.GetString("sync.service_url"),
			APIKey:     viper.GetString("sync.api_key"),
			Timeout:    viper.GetInt("sync.timeout"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		OIDC: OIDCConfig{
			Domain:   viper.GetString("oidc.domain"),
			ClientID: viper.GetString("oidc.client_id"),
			Issuer:   viper.GetString("oidc.issuer"),
		},
		Generation: GenerationConfig{
			ApprovalPollSeconds:    viper.GetInt("generation.approval_poll_seconds"),
			ApprovalTimeoutSeconds: viper.GetInt("generation.approval_timeout_seconds"),
			SyncGraceMs:            viper.GetInt("generation.sync_grace_ms"),
			SyncChunkSize:          viper.GetInt("generation.sync_chunk_size"),
			DefaultSongDurationMs:  viper.GetInt("generation.default_song_duration_ms"),
			FallbackSectionMs:      viper.GetInt("generation.fallback_section_ms"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
