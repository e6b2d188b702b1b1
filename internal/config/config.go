package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Access    AccessConfig
	Feed      FeedConfig
	Lock      LockConfig
	JWT       JWTConfig
	OIDC      OIDCConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// StorageConfig carries the document storage layout explicitly; there is no
// ambient directory cache. BaseDir is where attachment files live now,
// UploadDir is the directory attachment paths were recorded under (they may
// differ after a storage move, in which case serve-time path substitution
// applies).
type StorageConfig struct {
	Backend   string // "local" or "minio"
	BaseDir   string
	UploadDir string
	Slug      string // URL namespace for documents, default "documents"
	// Permalink switches pretty URLs on; off means query-string links only.
	Permalink bool
	MinIO     MinIOConfig
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// AccessConfig selects the capability regime. DocumentReadUsesRead true means
// lenient mode: generic read access suffices for published documents. False
// means strict mode: reads require the document-specific capability and list
// results are filtered for callers without read_document_revisions.
type AccessConfig struct {
	DocumentReadUsesRead bool
}

type FeedConfig struct {
	Enabled   bool
	KeyLength int
}

type LockConfig struct {
	TTL        time.Duration
	SendNotice bool
	SMTPAddr   string
	SMTPFrom   string
	SiteName   string
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "5002")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("SERVER_BASE_URL", "http://localhost:5002")
	viper.SetDefault("MONGODB_DATABASE", "docvault")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("STORAGE_BACKEND", "local")
	viper.SetDefault("STORAGE_BASE_DIR", "./data/documents")
	viper.SetDefault("STORAGE_SLUG", "documents")
	viper.SetDefault("STORAGE_PERMALINK", true)
	viper.SetDefault("MINIO_BUCKET", "docvault")
	viper.SetDefault("ACCESS_DOCUMENT_READ_USES_READ", true)
	viper.SetDefault("FEED_ENABLED", true)
	viper.SetDefault("FEED_KEY_LENGTH", 32)
	viper.SetDefault("LOCK_TTL_SECONDS", 120)
	viper.SetDefault("LOCK_SEND_NOTICE", true)
	viper.SetDefault("LOCK_SITE_NAME", "docvault")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	uploadDir := viper.GetString("STORAGE_UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = viper.GetString("STORAGE_BASE_DIR")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			BaseURL:      viper.GetString("SERVER_BASE_URL"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      viper.GetString("MONGODB_URI"),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		Storage: StorageConfig{
			Backend:   viper.GetString("STORAGE_BACKEND"),
			BaseDir:   viper.GetString("STORAGE_BASE_DIR"),
			UploadDir: uploadDir,
			Slug:      viper.GetString("STORAGE_SLUG"),
			Permalink: viper.GetBool("STORAGE_PERMALINK"),
			MinIO: MinIOConfig{
				Endpoint:  viper.GetString("MINIO_ENDPOINT"),
				AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
				SecretKey: os.Getenv("MINIO_SECRET_KEY"),
				UseSSL:    viper.GetBool("MINIO_USE_SSL"),
				Bucket:    viper.GetString("MINIO_BUCKET"),
			},
		},
		Access: AccessConfig{
			DocumentReadUsesRead: viper.GetBool("ACCESS_DOCUMENT_READ_USES_READ"),
		},
		Feed: FeedConfig{
			Enabled:   viper.GetBool("FEED_ENABLED"),
			KeyLength: viper.GetInt("FEED_KEY_LENGTH"),
		},
		Lock: LockConfig{
			TTL:        time.Duration(viper.GetInt("LOCK_TTL_SECONDS")) * time.Second,
			SendNotice: viper.GetBool("LOCK_SEND_NOTICE"),
			SMTPAddr:   viper.GetString("LOCK_SMTP_ADDR"),
			SMTPFrom:   viper.GetString("LOCK_SMTP_FROM"),
			SiteName:   viper.GetString("LOCK_SITE_NAME"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		OIDC: OIDCConfig{
			IssuerURL:    viper.GetString("OIDC_ISSUER_URL"),
			ClientID:     viper.GetString("OIDC_CLIENT_ID"),
			ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	return cfg, nil
}
