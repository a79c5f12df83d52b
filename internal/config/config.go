package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
	MaxLen   int64
}

type StorageConfig struct {
	Endpoint      string
	PublicURL     string
	AccessKey     string
	SecretKey     string
	BucketPhotos  string
	UseSSL        bool
	Region        string
	MaxPhotoBytes int64
}

type SecurityConfig struct {
	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	JWTIssuer        string
	JWTAudience      string
	RefreshCookieTTL time.Duration
	CookieDomain     string
}

type QueueConfig struct {
	ClaimInterval time.Duration
}

type AuditConfig struct {
	Retention     time.Duration
	PruneSchedule string
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Queues           QueueConfig
	Audit            AuditConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

// IsDevelopment reports whether cookies may be issued without the Secure flag.
func (c *AppConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, EnvDevelopment)
}

func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("GYMDEV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the process must not start with.
func (c *AppConfig) Validate() error {
	return c.Security.Validate()
}

func (s SecurityConfig) Validate() error {
	if strings.TrimSpace(s.JWTAccessSecret) == "" {
		return errors.New("config: security.jwtaccesssecret is required")
	}
	if strings.TrimSpace(s.JWTRefreshSecret) == "" {
		return errors.New("config: security.jwtrefreshsecret is required")
	}
	if s.JWTAccessSecret == s.JWTRefreshSecret {
		return errors.New("config: security.jwtaccesssecret and security.jwtrefreshsecret must differ")
	}
	if s.JWTAccessTTL <= 0 || s.JWTRefreshTTL <= 0 {
		return errors.New("config: token ttls must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvProduction)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 5)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "auth:events")
	v.SetDefault("redis.group", "audit-writers")
	v.SetDefault("redis.consumer", "worker-1")
	v.SetDefault("redis.maxlen", 100000)

	v.SetDefault("storage.endpoint", "127.0.0.1:9000")
	v.SetDefault("storage.publicurl", "")
	v.SetDefault("storage.accesskey", "")
	v.SetDefault("storage.secretkey", "")
	v.SetDefault("storage.bucketphotos", "gym-member-photos")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.maxphotobytes", 5<<20)

	// Secrets have no usable default; registering the keys lets env vars bind.
	v.SetDefault("security.jwtaccesssecret", "")
	v.SetDefault("security.jwtrefreshsecret", "")
	v.SetDefault("security.jwtaccessttl", "15m")
	v.SetDefault("security.jwtrefreshttl", "168h")
	v.SetDefault("security.jwtissuer", "gym-dev-api")
	v.SetDefault("security.jwtaudience", "gym-dev-clients")
	v.SetDefault("security.refreshcookiettl", "168h") // 7 days
	v.SetDefault("security.cookiedomain", "")

	v.SetDefault("queues.claiminterval", "30s")

	v.SetDefault("audit.retention", "2160h") // 90 days
	v.SetDefault("audit.pruneschedule", "0 30 3 * * *")

	v.SetDefault("logging.level", "info")
	v.SetDefault("allowcorsorigins", []string{})
}
