package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvRabbitMQURL       = "RABBITMQ_URL"
	EnvNotificationQueue = "NOTIFICATION_QUEUE"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvIntakeGracePeriod       = "INTAKE_GRACE_PERIOD"
	EnvModificationGracePeriod = "MODIFICATION_GRACE_PERIOD"
	EnvCancellationNotice      = "CANCELLATION_NOTICE"
	EnvUnitLockTTL             = "UNIT_LOCK_TTL"

	EnvSweepInterval = "SWEEP_INTERVAL"

	EnvSchedulerQueue       = "SCHEDULER_QUEUE"
	EnvSchedulerConcurrency = "SCHEDULER_CONCURRENCY"
	EnvTransitionMaxRetry   = "TRANSITION_MAX_RETRY"

	EnvRequestTopic     = "REQUEST_TOPIC"
	EnvRequestDLQTopic  = "REQUEST_DLQ_TOPIC"
	EnvProcessorGroupID = "PROCESSOR_GROUP_ID"
)
