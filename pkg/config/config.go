package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"bikeshare/pkg/client"
	"bikeshare/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitMQURL       string
	NotificationQueue string

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	IntakeGracePeriod       time.Duration
	ModificationGracePeriod time.Duration
	CancellationNotice      time.Duration
	UnitLockTTL             time.Duration

	SweepInterval time.Duration

	SchedulerQueue       string
	SchedulerConcurrency int
	TransitionMaxRetry   int

	RequestTopic     string
	RequestDLQTopic  string
	ProcessorGroupID string

	Log    *logger.Logger
	Client *client.Client
}

// Load reads an optional .env file, then the environment. It exits the
// process when the resulting configuration is invalid.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		RabbitMQURL:       getEnvStr(EnvRabbitMQURL, DefaultRabbitMQURL),
		NotificationQueue: getEnvStr(EnvNotificationQueue, DefaultNotificationQueue),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		IntakeGracePeriod:       getEnvDuration(EnvIntakeGracePeriod, DefaultIntakeGracePeriod),
		ModificationGracePeriod: getEnvDuration(EnvModificationGracePeriod, DefaultModificationGracePeriod),
		CancellationNotice:      getEnvDuration(EnvCancellationNotice, DefaultCancellationNotice),
		UnitLockTTL:             getEnvDuration(EnvUnitLockTTL, DefaultUnitLockTTL),

		SweepInterval: getEnvDuration(EnvSweepInterval, DefaultSweepInterval),

		SchedulerQueue:       getEnvStr(EnvSchedulerQueue, DefaultSchedulerQueue),
		SchedulerConcurrency: getEnvNum(EnvSchedulerConcurrency, DefaultSchedulerConcurrency),
		TransitionMaxRetry:   getEnvNum(EnvTransitionMaxRetry, DefaultTransitionMaxRetry),

		RequestTopic:     getEnvStr(EnvRequestTopic, DefaultRequestTopic),
		RequestDLQTopic:  getEnvStr(EnvRequestDLQTopic, DefaultRequestDLQTopic),
		ProcessorGroupID: getEnvStr(EnvProcessorGroupID, DefaultProcessorGroupID),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, logger.INFO),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty")
	}
	if cfg.RedisDB < 0 {
		errors = append(errors, fmt.Sprintf("RedisDB cannot be negative, got: %d", cfg.RedisDB))
	}
	if !regexp.MustCompile(`^amqps?://`).MatchString(cfg.RabbitMQURL) {
		errors = append(errors, fmt.Sprintf("RabbitMQURL must start with 'amqp://' or 'amqps://', got: %s", redactURI(cfg.RabbitMQURL)))
	}
	if cfg.NotificationQueue == "" {
		errors = append(errors, "NotificationQueue cannot be empty")
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"MongoConnTimeout", cfg.MongoConnTimeout},
		{"RateLimitWindow", cfg.RateLimitWindow},
		{"RequestTimeout", cfg.RequestTimeout},
		{"IdempotencyTTL", cfg.IdempotencyTTL},
		{"ReadTimeout", cfg.ReadTimeout},
		{"WriteTimeout", cfg.WriteTimeout},
		{"IdleTimeout", cfg.IdleTimeout},
		{"ShutdownTimeout", cfg.ShutdownTimeout},
		{"UnitLockTTL", cfg.UnitLockTTL},
		{"SweepInterval", cfg.SweepInterval},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", p.name, p.value))
		}
	}

	if longest := max(cfg.ReadTimeout, cfg.WriteTimeout, cfg.RequestTimeout); cfg.UnitLockTTL > 0 && cfg.UnitLockTTL <= longest {
		errors = append(errors, fmt.Sprintf("UnitLockTTL must exceed the read, write and request timeouts (%s), got: %s", longest, cfg.UnitLockTTL))
	}

	if cfg.IntakeGracePeriod < 0 {
		errors = append(errors, fmt.Sprintf("IntakeGracePeriod cannot be negative, got: %s", cfg.IntakeGracePeriod))
	}
	if cfg.ModificationGracePeriod < 0 {
		errors = append(errors, fmt.Sprintf("ModificationGracePeriod cannot be negative, got: %s", cfg.ModificationGracePeriod))
	}
	if cfg.CancellationNotice < 0 {
		errors = append(errors, fmt.Sprintf("CancellationNotice cannot be negative, got: %s", cfg.CancellationNotice))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.SchedulerQueue == "" {
		errors = append(errors, "SchedulerQueue cannot be empty")
	}
	if cfg.SchedulerConcurrency <= 0 {
		errors = append(errors, fmt.Sprintf("SchedulerConcurrency must be positive, got: %d", cfg.SchedulerConcurrency))
	}
	if cfg.TransitionMaxRetry < 0 {
		errors = append(errors, fmt.Sprintf("TransitionMaxRetry cannot be negative, got: %d", cfg.TransitionMaxRetry))
	}
	if cfg.RequestTopic == "" {
		errors = append(errors, "RequestTopic cannot be empty")
	}
	if cfg.RequestDLQTopic == "" {
		errors = append(errors, "RequestDLQTopic cannot be empty")
	}
	if cfg.ProcessorGroupID == "" {
		errors = append(errors, "ProcessorGroupID cannot be empty")
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_db", cfg.RedisDB,
		"redis_password_set", cfg.RedisPassword != "",
		"rabbitmq_url", redactURI(cfg.RabbitMQURL),
		"notification_queue", cfg.NotificationQueue,
		"port", cfg.Port,
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"intake_grace_period", cfg.IntakeGracePeriod,
		"modification_grace_period", cfg.ModificationGracePeriod,
		"cancellation_notice", cfg.CancellationNotice,
		"unit_lock_ttl", cfg.UnitLockTTL,
		"sweep_interval", cfg.SweepInterval,
		"scheduler_queue", cfg.SchedulerQueue,
		"scheduler_concurrency", cfg.SchedulerConcurrency,
		"transition_max_retry", cfg.TransitionMaxRetry,
		"request_topic", cfg.RequestTopic,
		"request_dlq_topic", cfg.RequestDLQTopic,
		"processor_group_id", cfg.ProcessorGroupID,
	)
}

// redactURI hides user:password credentials in mongodb:// and amqp:// URIs.
func redactURI(uri string) string {
	credentialRegex := regexp.MustCompile(`^([a-z+]+://)[^:/@]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
