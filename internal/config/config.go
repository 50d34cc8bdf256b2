// Package config loads server configuration from the environment, with
// Docker-secret file fallback for credentials.
package config

import (
	"time"

	"chatlink-backend/pkg/constants"
	"chatlink-backend/pkg/env"
)

// Config holds every tunable the server reads at startup
type Config struct {
	Env  string
	Port string

	// DataDir is the root of the flat-file store
	DataDir string

	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	// Real-time behavior knobs
	RingTimeout  time.Duration
	TypingTTL    time.Duration
	DedupWindow  time.Duration
	MaxVoiceTime time.Duration

	// Redis presence mirror; empty address disables mirroring
	RedisAddr     string
	RedisPassword string

	// MinIO object storage; empty endpoint falls back to local disk under
	// DataDir/uploads
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// Push providers; empty credential paths disable the provider
	FCMCredentialsFile string
	APNsKeyFile        string
	APNsKeyID          string
	APNsTeamID         string
	APNsTopic          string
	APNsProduction     bool
}

// Load reads the configuration from the environment
func Load() *Config {
	return &Config{
		Env:     env.GetString("ENV", "development"),
		Port:    env.GetString("PORT", "8080"),
		DataDir: env.GetString("DATA_DIR", "./data"),

		JWTSecret:          env.GetStringFromFile("JWT_SECRET", "dev-secret-change-me"),
		AccessTokenExpiry:  env.GetDuration("ACCESS_TOKEN_EXPIRY", constants.AccessTokenExpiry),
		RefreshTokenExpiry: env.GetDuration("REFRESH_TOKEN_EXPIRY", constants.RefreshTokenExpiry),

		RingTimeout:  env.GetDuration("CALL_RING_TIMEOUT", constants.DefaultRingTimeout),
		TypingTTL:    env.GetDuration("TYPING_TTL", constants.DefaultTypingTTL),
		DedupWindow:  env.GetDuration("MESSAGE_DEDUP_WINDOW", constants.DefaultDedupWindow),
		MaxVoiceTime: env.GetDuration("MAX_VOICE_DURATION", constants.DefaultMaxVoiceDuration),

		RedisAddr:     env.GetString("REDIS_ADDR", ""),
		RedisPassword: env.GetStringFromFile("REDIS_PASSWORD", ""),

		MinIOEndpoint:  env.GetString("MINIO_ENDPOINT", ""),
		MinIOAccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", "minioadmin"),
		MinIOBucket:    env.GetString("MINIO_BUCKET", "chatlink-uploads"),
		MinIOUseSSL:    env.GetBool("MINIO_USE_SSL", false),

		FCMCredentialsFile: env.GetString("FCM_CREDENTIALS_FILE", ""),
		APNsKeyFile:        env.GetString("APNS_KEY_FILE", ""),
		APNsKeyID:          env.GetString("APNS_KEY_ID", ""),
		APNsTeamID:         env.GetString("APNS_TEAM_ID", ""),
		APNsTopic:          env.GetString("APNS_TOPIC", ""),
		APNsProduction:     env.GetBool("APNS_PRODUCTION", false),
	}
}

// IsProduction reports whether the server runs with production settings
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
