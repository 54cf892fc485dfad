package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	OTP           OTPConfig
	Matching      MatchingConfig
	Booking       BookingConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	CORS          CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Matching.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AUTOCARE_APP_ENV" required:"true"`
	Port         string `envconfig:"AUTOCARE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"AUTOCARE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"AUTOCARE_LOG_WARN_STACK" default:"false"`
	// MetricsAddr is where background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"AUTOCARE_METRICS_ADDR" default:""`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"AUTOCARE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"AUTOCARE_DB_DSN"`
	Driver string `envconfig:"AUTOCARE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"AUTOCARE_DB_HOST"`
	LegacyPort     int    `envconfig:"AUTOCARE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"AUTOCARE_DB_USER"`
	LegacyPassword string `envconfig:"AUTOCARE_DB_PASSWORD"`
	LegacyName     string `envconfig:"AUTOCARE_DB_NAME"`
	LegacySSLMode  string `envconfig:"AUTOCARE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"AUTOCARE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"AUTOCARE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"AUTOCARE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"AUTOCARE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"AUTOCARE_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AUTOCARE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"AUTOCARE_REDIS_ADDR"`
	Password     string        `envconfig:"AUTOCARE_REDIS_PASSWORD"`
	DB           int           `envconfig:"AUTOCARE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AUTOCARE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"AUTOCARE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"AUTOCARE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AUTOCARE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AUTOCARE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"AUTOCARE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"AUTOCARE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"AUTOCARE_JWT_EXPIRATION_MINUTES" default:"60"`
	RefreshTokenTTLMinutes int    `envconfig:"AUTOCARE_REFRESH_TOKEN_TTL_MINUTES" default:"10080"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

// OTPConfig controls one-time password issuance and the argon2 parameters
// used to hash codes at rest in redis.
type OTPConfig struct {
	Length           int           `envconfig:"AUTOCARE_OTP_LENGTH" default:"6"`
	TTL              time.Duration `envconfig:"AUTOCARE_OTP_TTL" default:"5m"`
	ResendCooldown   time.Duration `envconfig:"AUTOCARE_OTP_RESEND_COOLDOWN" default:"60s"`
	MaxAttempts      int           `envconfig:"AUTOCARE_OTP_MAX_ATTEMPTS" default:"3"`
	ExposeInResponse bool          `envconfig:"AUTOCARE_OTP_EXPOSE_IN_RESPONSE" default:"false"`
	ArgonMemoryKB    int           `envconfig:"AUTOCARE_OTP_ARGON_MEMORY_KB" default:"19456"`
	ArgonTime        int           `envconfig:"AUTOCARE_OTP_ARGON_TIME" default:"2"`
	ArgonParallelism int           `envconfig:"AUTOCARE_OTP_ARGON_PARALLELISM" default:"1"`
	ArgonSaltLen     int           `envconfig:"AUTOCARE_OTP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int           `envconfig:"AUTOCARE_OTP_ARGON_KEY_LEN" default:"32"`
}

type MatchingConfig struct {
	Policy               string        `envconfig:"AUTOCARE_MATCHING_POLICY" default:"nearest_first"`
	DistanceWeight       float64       `envconfig:"AUTOCARE_MATCHING_DISTANCE_WEIGHT" default:"0.5"`
	RatingWeight         float64       `envconfig:"AUTOCARE_MATCHING_RATING_WEIGHT" default:"0.3"`
	WorkloadWeight       float64       `envconfig:"AUTOCARE_MATCHING_WORKLOAD_WEIGHT" default:"0.2"`
	NearestRadiusKm      float64       `envconfig:"AUTOCARE_MATCHING_NEAREST_RADIUS_KM" default:"10"`
	WeightedRadiusKm     float64       `envconfig:"AUTOCARE_MATCHING_WEIGHTED_RADIUS_KM" default:"50"`
	LocationStaleAfter   time.Duration `envconfig:"AUTOCARE_MATCHING_LOCATION_STALE_AFTER" default:"30m"`
	MaxMatchAttempts     int           `envconfig:"AUTOCARE_MATCHING_MAX_MATCH_ATTEMPTS" default:"3"`
	MaxActivePerProvider int           `envconfig:"AUTOCARE_MATCHING_MAX_ACTIVE_PER_PROVIDER" default:"0"`
	BookingLockTTL       time.Duration `envconfig:"AUTOCARE_MATCHING_BOOKING_LOCK_TTL" default:"15s"`
	AverageSpeedKmh      float64       `envconfig:"AUTOCARE_MATCHING_AVERAGE_SPEED_KMH" default:"30"`
	ArrivalBuffer        time.Duration `envconfig:"AUTOCARE_MATCHING_ARRIVAL_BUFFER" default:"10m"`
}

func (m MatchingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(m.Policy)) {
	case "nearest_first", "weighted_score":
	default:
		return fmt.Errorf("%s must be nearest_first or weighted_score, got %q", EnvMatchingPolicy, m.Policy)
	}
	if m.DistanceWeight < 0 || m.RatingWeight < 0 || m.WorkloadWeight < 0 {
		return fmt.Errorf("matching weights must be non-negative")
	}
	if m.DistanceWeight+m.RatingWeight+m.WorkloadWeight == 0 {
		return fmt.Errorf("matching weights must not all be zero")
	}
	if m.NearestRadiusKm <= 0 || m.WeightedRadiusKm <= 0 {
		return fmt.Errorf("matching radii must be positive")
	}
	if m.LocationStaleAfter < 0 {
		return fmt.Errorf("%s must not be negative", EnvMatchingStaleAfter)
	}
	if m.MaxMatchAttempts < 1 {
		return fmt.Errorf("%s must be at least 1", EnvMatchingMaxAttempts)
	}
	if m.AverageSpeedKmh <= 0 {
		return fmt.Errorf("matching average speed must be positive")
	}
	return nil
}

type BookingConfig struct {
	Timezone          string `envconfig:"AUTOCARE_BOOKING_TIMEZONE" default:"Asia/Kolkata"`
	AutoAssign        bool   `envconfig:"AUTOCARE_BOOKING_AUTO_ASSIGN" default:"true"`
	DefaultAreaRadius int    `envconfig:"AUTOCARE_SERVICE_AREA_DEFAULT_RADIUS_KM" default:"30"`
}

// Location resolves the booking timezone, falling back to UTC.
func (b BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(b.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

type AuthRateLimitConfig struct {
	OTPSendWindow        time.Duration `envconfig:"AUTOCARE_AUTH_RATE_LIMIT_OTP_SEND_WINDOW" default:"10m"`
	OTPSendMobileLimit   int           `envconfig:"AUTOCARE_AUTH_RATE_LIMIT_OTP_SEND_MOBILE_LIMIT" default:"5"`
	OTPSendIPLimit       int           `envconfig:"AUTOCARE_AUTH_RATE_LIMIT_OTP_SEND_IP_LIMIT" default:"30"`
	OTPVerifyWindow      time.Duration `envconfig:"AUTOCARE_AUTH_RATE_LIMIT_OTP_VERIFY_WINDOW" default:"5m"`
	OTPVerifyMobileLimit int           `envconfig:"AUTOCARE_AUTH_RATE_LIMIT_OTP_VERIFY_MOBILE_LIMIT" default:"10"`
	OTPVerifyIPLimit     int           `envconfig:"AUTOCARE_AUTH_RATE_LIMIT_OTP_VERIFY_IP_LIMIT" default:"50"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"AUTOCARE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"AUTOCARE_AUTO_MIGRATE" default:"false"`
	Realtime    bool `envconfig:"AUTOCARE_FEATURE_REALTIME" default:"true"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"AUTOCARE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"AUTOCARE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"AUTOCARE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"AUTOCARE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AssignmentsTopic         string `envconfig:"AUTOCARE_PUBSUB_ASSIGNMENTS_TOPIC" default:"ac-assignment-events"`
	NotificationTopic        string `envconfig:"AUTOCARE_PUBSUB_NOTIFICATION_TOPIC" default:"ac-notification-events"`
	AssignmentsSubscription  string `envconfig:"AUTOCARE_PUBSUB_ASSIGNMENTS_SUBSCRIPTION" required:"true"`
	NotificationSubscription string `envconfig:"AUTOCARE_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"AUTOCARE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"AUTOCARE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"AUTOCARE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Tick                     time.Duration `envconfig:"AUTOCARE_CRON_TICK" default:"1m"`
	RematchEvery             time.Duration `envconfig:"AUTOCARE_CRON_REMATCH_EVERY" default:"1m"`
	CleanupEvery             time.Duration `envconfig:"AUTOCARE_CRON_CLEANUP_EVERY" default:"24h"`
	LockTTL                  time.Duration `envconfig:"AUTOCARE_CRON_LOCK_TTL" default:"5m"`
	RematchBatchSize         int           `envconfig:"AUTOCARE_CRON_REMATCH_BATCH_SIZE" default:"100"`
	CleanupBatchSize         int           `envconfig:"AUTOCARE_CRON_CLEANUP_BATCH_SIZE" default:"1000"`
	NotificationRetention    time.Duration `envconfig:"AUTOCARE_CRON_NOTIFICATION_RETENTION" default:"720h"`
	OutboxPublishedRetention time.Duration `envconfig:"AUTOCARE_CRON_OUTBOX_RETENTION" default:"720h"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"AUTOCARE_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
