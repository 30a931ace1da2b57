package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env         string
	ServiceName string
	HTTPPort    int
	LogLevel    string

	DatabaseURL      string
	DBMaxConns       int
	DBMinConns       int
	DBConnMaxIdleSec int
	DBConnMaxLifeSec int

	AsynqRedisAddr string
	AsynqRedisPass string
	AsynqRedisDB   int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers  []string
	KafkaClientID string
	KafkaRetryMax int
	KafkaWriteMS  int

	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	InfluxTimeoutMS int

	SlaSweepSec       int
	HealthSweepSec    int
	CloudSyncSweepSec int
	TickLockTTLSec    int

	SlaConcurrency       int
	HealthConcurrency    int
	NotifyConcurrency    int
	CloudSyncConcurrency int

	SlaRatePerMin       int
	HealthRatePerMin    int
	NotifyRatePerMin    int
	CloudSyncRatePerMin int

	JobMaxRetry      int
	JobRetryBaseMS   int
	DoneRetentionSec int

	CredentialKey string

	EmailRelayURL       string
	EmailRelayTimeoutMS int

	SlackWebhookTimeoutMS int

	BreakerFailureThreshold int
	BreakerCooldownSec      int
	BreakerCallTimeoutMS    int

	OtelEnabled     bool
	OtelEndpoint    string
	OtelInsecure    bool
	OtelSampleRatio float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	cfg := Config{
		Env:         strings.TrimSpace(os.Getenv("ENV")),
		ServiceName: serviceNameDefault,
		HTTPPort:    httpPortDefault,
		LogLevel:    "info",

		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       10,
		DBMinConns:       1,
		DBConnMaxIdleSec: 300,
		DBConnMaxLifeSec: 1800,

		AsynqRedisAddr: strings.TrimSpace(os.Getenv("ASYNQ_REDIS_ADDR")),
		AsynqRedisPass: os.Getenv("ASYNQ_REDIS_PASSWORD"),
		AsynqRedisDB:   0,

		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       0,

		KafkaClientID: strings.TrimSpace(os.Getenv("KAFKA_CLIENT_ID")),
		KafkaRetryMax: 5,
		KafkaWriteMS:  5000,

		InfluxURL:       strings.TrimSpace(os.Getenv("INFLUX_URL")),
		InfluxToken:     os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:       strings.TrimSpace(os.Getenv("INFLUX_ORG")),
		InfluxBucket:    strings.TrimSpace(os.Getenv("INFLUX_BUCKET")),
		InfluxTimeoutMS: 5000,

		SlaSweepSec:       300,
		HealthSweepSec:    3600,
		CloudSyncSweepSec: 3600,
		TickLockTTLSec:    60,

		SlaConcurrency:       3,
		HealthConcurrency:    2,
		NotifyConcurrency:    5,
		CloudSyncConcurrency: 1,

		SlaRatePerMin:       60,
		HealthRatePerMin:    60,
		NotifyRatePerMin:    120,
		CloudSyncRatePerMin: 30,

		JobMaxRetry:      5,
		JobRetryBaseMS:   2000,
		DoneRetentionSec: 3600,

		CredentialKey: strings.TrimSpace(os.Getenv("CREDENTIAL_ENCRYPTION_KEY")),

		EmailRelayURL:       strings.TrimSpace(os.Getenv("EMAIL_RELAY_URL")),
		EmailRelayTimeoutMS: 10000,

		SlackWebhookTimeoutMS: 10000,

		BreakerFailureThreshold: 5,
		BreakerCooldownSec:      30,
		BreakerCallTimeoutMS:    10000,

		OtelEnabled:     false,
		OtelEndpoint:    strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelInsecure:    true,
		OtelSampleRatio: 1.0,
	}

	problems := make([]Problem, 0, 4)
	applyEnv(&cfg, &problems)

	if cfg.Env == "" {
		cfg.Env = "dev"
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		problems = append(problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.DBMaxConns <= 0 {
		problems = append(problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		problems = append(problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be 0..DB_MAX_CONNS"})
		cfg.DBMinConns = 1
	}
	if cfg.AsynqRedisDB < 0 {
		problems = append(problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be >= 0"})
		cfg.AsynqRedisDB = 0
	}
	if cfg.RedisDB < 0 {
		problems = append(problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be >= 0"})
		cfg.RedisDB = 0
	}
	for _, p := range []struct {
		field string
		value *int
		def   int
	}{
		{"SLA_SWEEP_INTERVAL_SECONDS", &cfg.SlaSweepSec, 300},
		{"HEALTH_SWEEP_INTERVAL_SECONDS", &cfg.HealthSweepSec, 3600},
		{"CLOUD_SYNC_SWEEP_INTERVAL_SECONDS", &cfg.CloudSyncSweepSec, 3600},
		{"TICK_LOCK_TTL_SECONDS", &cfg.TickLockTTLSec, 60},
		{"SLA_CONCURRENCY", &cfg.SlaConcurrency, 3},
		{"HEALTH_CONCURRENCY", &cfg.HealthConcurrency, 2},
		{"NOTIFY_CONCURRENCY", &cfg.NotifyConcurrency, 5},
		{"CLOUD_SYNC_CONCURRENCY", &cfg.CloudSyncConcurrency, 1},
		{"SLA_RATE_PER_MINUTE", &cfg.SlaRatePerMin, 60},
		{"HEALTH_RATE_PER_MINUTE", &cfg.HealthRatePerMin, 60},
		{"NOTIFY_RATE_PER_MINUTE", &cfg.NotifyRatePerMin, 120},
		{"CLOUD_SYNC_RATE_PER_MINUTE", &cfg.CloudSyncRatePerMin, 30},
		{"JOB_MAX_RETRY", &cfg.JobMaxRetry, 5},
		{"JOB_RETRY_BASE_MS", &cfg.JobRetryBaseMS, 2000},
		{"DONE_RETENTION_SECONDS", &cfg.DoneRetentionSec, 3600},
		{"KAFKA_WRITE_TIMEOUT_MS", &cfg.KafkaWriteMS, 5000},
		{"INFLUX_TIMEOUT_MS", &cfg.InfluxTimeoutMS, 5000},
		{"EMAIL_RELAY_TIMEOUT_MS", &cfg.EmailRelayTimeoutMS, 10000},
		{"SLACK_WEBHOOK_TIMEOUT_MS", &cfg.SlackWebhookTimeoutMS, 10000},
		{"BREAKER_FAILURE_THRESHOLD", &cfg.BreakerFailureThreshold, 5},
		{"BREAKER_COOLDOWN_SECONDS", &cfg.BreakerCooldownSec, 30},
		{"BREAKER_CALL_TIMEOUT_MS", &cfg.BreakerCallTimeoutMS, 10000},
	} {
		if *p.value <= 0 {
			problems = append(problems, Problem{Field: p.field, Message: p.field + " must be > 0"})
			*p.value = p.def
		}
	}
	if cfg.KafkaRetryMax < 0 {
		problems = append(problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		problems = append(problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}

	return cfg, problems
}

func applyEnv(cfg *Config, problems *[]Problem) {
	if v := strings.TrimSpace(os.Getenv("SERVICE_NAME")); v != "" {
		cfg.ServiceName = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	portRaw := strings.TrimSpace(os.Getenv("HTTP_PORT"))
	if portRaw == "" {
		portRaw = strings.TrimSpace(os.Getenv("PORT"))
	}
	if portRaw != "" {
		if p, err := strconv.Atoi(portRaw); err != nil {
			*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be an integer"})
		} else {
			cfg.HTTPPort = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = parseCSV(v)
	}

	intVars := []struct {
		name  string
		value *int
	}{
		{"DB_MAX_CONNS", &cfg.DBMaxConns},
		{"DB_MIN_CONNS", &cfg.DBMinConns},
		{"DB_CONN_MAX_IDLE_SECONDS", &cfg.DBConnMaxIdleSec},
		{"DB_CONN_MAX_LIFETIME_SECONDS", &cfg.DBConnMaxLifeSec},
		{"ASYNQ_REDIS_DB", &cfg.AsynqRedisDB},
		{"REDIS_DB", &cfg.RedisDB},
		{"KAFKA_RETRY_MAX", &cfg.KafkaRetryMax},
		{"KAFKA_WRITE_TIMEOUT_MS", &cfg.KafkaWriteMS},
		{"INFLUX_TIMEOUT_MS", &cfg.InfluxTimeoutMS},
		{"SLA_SWEEP_INTERVAL_SECONDS", &cfg.SlaSweepSec},
		{"HEALTH_SWEEP_INTERVAL_SECONDS", &cfg.HealthSweepSec},
		{"CLOUD_SYNC_SWEEP_INTERVAL_SECONDS", &cfg.CloudSyncSweepSec},
		{"TICK_LOCK_TTL_SECONDS", &cfg.TickLockTTLSec},
		{"SLA_CONCURRENCY", &cfg.SlaConcurrency},
		{"HEALTH_CONCURRENCY", &cfg.HealthConcurrency},
		{"NOTIFY_CONCURRENCY", &cfg.NotifyConcurrency},
		{"CLOUD_SYNC_CONCURRENCY", &cfg.CloudSyncConcurrency},
		{"SLA_RATE_PER_MINUTE", &cfg.SlaRatePerMin},
		{"HEALTH_RATE_PER_MINUTE", &cfg.HealthRatePerMin},
		{"NOTIFY_RATE_PER_MINUTE", &cfg.NotifyRatePerMin},
		{"CLOUD_SYNC_RATE_PER_MINUTE", &cfg.CloudSyncRatePerMin},
		{"JOB_MAX_RETRY", &cfg.JobMaxRetry},
		{"JOB_RETRY_BASE_MS", &cfg.JobRetryBaseMS},
		{"DONE_RETENTION_SECONDS", &cfg.DoneRetentionSec},
		{"EMAIL_RELAY_TIMEOUT_MS", &cfg.EmailRelayTimeoutMS},
		{"SLACK_WEBHOOK_TIMEOUT_MS", &cfg.SlackWebhookTimeoutMS},
		{"BREAKER_FAILURE_THRESHOLD", &cfg.BreakerFailureThreshold},
		{"BREAKER_COOLDOWN_SECONDS", &cfg.BreakerCooldownSec},
		{"BREAKER_CALL_TIMEOUT_MS", &cfg.BreakerCallTimeoutMS},
	}
	for _, iv := range intVars {
		raw := strings.TrimSpace(os.Getenv(iv.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			*problems = append(*problems, Problem{Field: iv.name, Message: iv.name + " must be an integer"})
			continue
		}
		*iv.value = n
	}

	if v := strings.TrimSpace(os.Getenv("OTEL_ENABLED")); v != "" {
		if b, ok := asBool(v); ok {
			cfg.OtelEnabled = b
		} else {
			*problems = append(*problems, Problem{Field: "OTEL_ENABLED", Message: "OTEL_ENABLED must be a boolean"})
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); v != "" {
		if b, ok := asBool(v); ok {
			cfg.OtelInsecure = b
		} else {
			*problems = append(*problems, Problem{Field: "OTEL_EXPORTER_OTLP_INSECURE", Message: "OTEL_EXPORTER_OTLP_INSECURE must be a boolean"})
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SAMPLE_RATIO")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			*problems = append(*problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be a number"})
		} else {
			cfg.OtelSampleRatio = f
		}
	}
}

func (c Config) JobRetryBase() time.Duration {
	return time.Duration(c.JobRetryBaseMS) * time.Millisecond
}

func (c Config) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSec) * time.Second
}

func (c Config) BreakerCallTimeout() time.Duration {
	return time.Duration(c.BreakerCallTimeoutMS) * time.Millisecond
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
