package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"     validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"   validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"       validate:"required"`
	Task      TaskConfig      `mapstructure:"task"       validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"  validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
	Mail      MailConfig      `mapstructure:"mail"`
	Search    SearchConfig    `mapstructure:"search"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Broker    BrokerConfig    `mapstructure:"broker"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int      `mapstructure:"port"                     validate:"required,gt=0,lt=65536"`
	LogLevel               string   `mapstructure:"log_level"                validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds" validate:"gte=1"`
	AllowedOrigins         []string `mapstructure:"allowed_origins"`
	// PublicURL is used to build links in outgoing emails (password reset).
	PublicURL string `mapstructure:"public_url" validate:"required,url"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL          string `mapstructure:"url"            validate:"required,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret"                     validate:"required,min=32"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes"         validate:"required,gt=0,lt=1440"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"required,gt=0,lt=43200"`
	ResetTokenLifetimeMinutes   int    `mapstructure:"reset_token_lifetime_minutes"   validate:"required,gt=0,lt=1440"`
	BcryptCost                  int    `mapstructure:"bcrypt_cost"                    validate:"gte=4,lte=31"`
	CookieName                  string `mapstructure:"cookie_name"                    validate:"required"`
	CookieSecure                bool   `mapstructure:"cookie_secure"`
}

// TaskConfig controls the background task runner.
type TaskConfig struct {
	WorkerCount         int `mapstructure:"worker_count"           validate:"required,gt=0"`
	QueueSize           int `mapstructure:"queue_size"             validate:"required,gt=0"`
	StuckTaskAgeMinutes int `mapstructure:"stuck_task_age_minutes" validate:"required,gt=0"`
	MaxAttempts         int `mapstructure:"max_attempts"           validate:"required,gt=0,lte=20"`
	RetryDelaySeconds   int `mapstructure:"retry_delay_seconds"    validate:"gte=0"`
	TimeoutSeconds      int `mapstructure:"timeout_seconds"        validate:"required,gt=0"`
}

// SchedulerConfig holds the cron specs for periodic sweeps.
type SchedulerConfig struct {
	PublishSpec   string `mapstructure:"publish_spec"   validate:"required"`
	ReconcileSpec string `mapstructure:"reconcile_spec" validate:"required"`
	BatchSize     int    `mapstructure:"batch_size"     validate:"required,gt=0,lte=1000"`
	// StaleAfterMinutes is how long pending deletions and queued publishes
	// may sit unchanged before the reconcile sweep re-emits them.
	StaleAfterMinutes int `mapstructure:"stale_after_minutes" validate:"required,gt=0"`
}

// RedisConfig is optional. An empty URL disables caching and falls back
// to in-memory attempt counters.
type RedisConfig struct {
	URL                 string `mapstructure:"url"                    validate:"omitempty,url"`
	BlogCacheTTLSeconds int    `mapstructure:"blog_cache_ttl_seconds" validate:"gte=0"`
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second" validate:"required,gt=0"`
	Burst             int `mapstructure:"burst"               validate:"required,gt=0"`
	AuthAttempts      int `mapstructure:"auth_attempts"       validate:"required,gt=0"`
	AuthWindowSeconds int `mapstructure:"auth_window_seconds" validate:"required,gt=0"`
}

// MailConfig configures outbound SMTP. An empty host logs emails instead of sending.
type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"     validate:"omitempty,gt=0,lt=65536"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"     validate:"required,email"`
}

// SearchConfig configures Elasticsearch. An empty URL uses SQL search.
type SearchConfig struct {
	ElasticsearchURL string `mapstructure:"elasticsearch_url" validate:"omitempty,url"`
	Index            string `mapstructure:"index"             validate:"required"`
}

// StorageConfig configures image hosting on Google Cloud Storage.
// An empty bucket disables uploads.
type StorageConfig struct {
	Bucket          string `mapstructure:"bucket"`
	CredentialsFile string `mapstructure:"credentials_file"`
	PublicBaseURL   string `mapstructure:"public_base_url" validate:"omitempty,url"`
	MaxUploadBytes  int64  `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// BrokerConfig configures the RabbitMQ event stream. An empty URL disables it.
type BrokerConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange" validate:"required"`
}
