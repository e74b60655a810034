package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"
)

// Config holds all configuration for the napomni application.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	// WebhookURL receives reminder notifications; WebhookSecret signs them.
	WebhookURL        string        `json:"webhook_url"`
	WebhookSecret     string        `json:"webhook_secret"`
	WebhookTimeout    time.Duration `json:"-"`
	WebhookTimeoutStr string        `json:"webhook_timeout"`

	NotifierDrainTimeout    time.Duration `json:"-"`
	NotifierDrainTimeoutStr string        `json:"notifier_drain_timeout"`

	DueBusBufferSize int `json:"duebus_buffer_size"`

	SchedulerMaxWake          time.Duration `json:"-"`
	SchedulerMaxWakeStr       string        `json:"scheduler_max_wake"`
	SchedulerRetryInterval    time.Duration `json:"-"`
	SchedulerRetryIntervalStr string        `json:"scheduler_retry_interval"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`

	ReconcileEnabled     bool          `json:"reconcile_enabled"`
	ReconcileInterval    time.Duration `json:"-"`
	ReconcileIntervalStr string        `json:"reconcile_interval"`

	// ReconcileThreshold must exceed the notifier's maximum retry window (currently 12m30s).
	ReconcileThreshold    time.Duration `json:"-"`
	ReconcileThresholdStr string        `json:"reconcile_threshold"`

	ReconcileBatchSize int `json:"reconcile_batch_size"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	// LeaderLockKey: all instances sharing the same database must use the same key.
	LeaderLockKey int64 `json:"leader_lock_key"`

	// LeaderRetryInterval determines the maximum failover gap.
	LeaderRetryInterval    time.Duration `json:"-"`
	LeaderRetryIntervalStr string        `json:"leader_retry_interval"`

	// LeaderHeartbeatInterval: pings the dedicated connection to detect local
	// connection death. Does NOT renew the advisory lock.
	LeaderHeartbeatInterval    time.Duration `json:"-"`
	LeaderHeartbeatIntervalStr string        `json:"leader_heartbeat_interval"`

	// DefaultTimezone seeds settings for users who never set one.
	DefaultTimezone string `json:"default_timezone"`

	// DefaultReminderOffsets is a comma-separated list of offsets before the
	// event start, applied when an utterance names no reminders.
	DefaultReminderOffsets    []time.Duration `json:"-"`
	DefaultReminderOffsetsStr string          `json:"default_reminder_offsets"`

	// SameDayCutoff: local time of day before which a bare weekday naming
	// today resolves to today. Empty leaves such expressions ambiguous.
	SameDayCutoff    time.Duration `json:"-"`
	SameDayCutoffStr string        `json:"same_day_cutoff,omitempty"`

	// DefaultEventDuration applies when an utterance gives only a start time.
	DefaultEventDuration    time.Duration `json:"-"`
	DefaultEventDurationStr string        `json:"default_event_duration"`

	// PastHorizon is the slack behind now an event start may lie before
	// normalization rejects it.
	PastHorizon    time.Duration `json:"-"`
	PastHorizonStr string        `json:"past_horizon"`

	// FutureHorizon caps how far ahead an event start may lie.
	FutureHorizon    time.Duration `json:"-"`
	FutureHorizonStr string        `json:"future_horizon"`

	// MaxEventDuration caps the span of a single event.
	MaxEventDuration    time.Duration `json:"-"`
	MaxEventDurationStr string        `json:"max_event_duration"`

	BackgroundTimeout    time.Duration `json:"-"`
	BackgroundTimeoutStr string        `json:"background_timeout"`

	// OpenAIAPIKey: empty disables voice transcription and advisory notes.
	OpenAIAPIKey          string `json:"openai_api_key"`
	OpenAIBaseURL         string `json:"openai_base_url,omitempty"`
	OpenAIChatModel       string `json:"openai_chat_model,omitempty"`
	OpenAIEmbeddingModel  string `json:"openai_embedding_model,omitempty"`
	OpenAITranscribeModel string `json:"openai_transcribe_model,omitempty"`

	AdvisoryTimeout    time.Duration `json:"-"`
	AdvisoryTimeoutStr string        `json:"advisory_timeout"`

	// CalDAVURL: empty disables calendar mirroring.
	CalDAVURL        string        `json:"caldav_url,omitempty"`
	CalDAVUsername   string        `json:"caldav_username,omitempty"`
	CalDAVPassword   string        `json:"caldav_password,omitempty"`
	CalDAVTimeout    time.Duration `json:"-"`
	CalDAVTimeoutStr string        `json:"caldav_timeout"`

	// SweepSchedule is the cron expression for the event state sweeper.
	SweepSchedule string `json:"sweep_schedule"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:                os.Getenv("DATABASE_URL"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		HTTPAddr:                   os.Getenv("HTTP_ADDR"),
		DBOpTimeoutStr:             os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:       os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:       os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:     os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		WebhookURL:                 os.Getenv("WEBHOOK_URL"),
		WebhookSecret:              os.Getenv("WEBHOOK_SECRET"),
		WebhookTimeoutStr:          os.Getenv("WEBHOOK_TIMEOUT"),
		NotifierDrainTimeoutStr:    os.Getenv("NOTIFIER_DRAIN_TIMEOUT"),
		SchedulerMaxWakeStr:        os.Getenv("SCHEDULER_MAX_WAKE"),
		SchedulerRetryIntervalStr:  os.Getenv("SCHEDULER_RETRY_INTERVAL"),
		MetricsEnabled:             os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:                os.Getenv("METRICS_PATH"),
		ReconcileEnabled:           os.Getenv("RECONCILE_ENABLED") == "true",
		ReconcileIntervalStr:       os.Getenv("RECONCILE_INTERVAL"),
		ReconcileThresholdStr:      os.Getenv("RECONCILE_THRESHOLD"),
		CircuitBreakerCooldownStr:  os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		LeaderRetryIntervalStr:     os.Getenv("LEADER_RETRY_INTERVAL"),
		LeaderHeartbeatIntervalStr: os.Getenv("LEADER_HEARTBEAT_INTERVAL"),
		DefaultTimezone:            os.Getenv("DEFAULT_TIMEZONE"),
		DefaultReminderOffsetsStr:  os.Getenv("DEFAULT_REMINDER_OFFSETS"),
		SameDayCutoffStr:           os.Getenv("SAME_DAY_CUTOFF"),
		DefaultEventDurationStr:    os.Getenv("DEFAULT_EVENT_DURATION"),
		PastHorizonStr:             os.Getenv("PAST_HORIZON"),
		FutureHorizonStr:           os.Getenv("FUTURE_HORIZON"),
		MaxEventDurationStr:        os.Getenv("MAX_EVENT_DURATION"),
		BackgroundTimeoutStr:       os.Getenv("BACKGROUND_TIMEOUT"),
		OpenAIAPIKey:               os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:              os.Getenv("OPENAI_BASE_URL"),
		OpenAIChatModel:            os.Getenv("OPENAI_CHAT_MODEL"),
		OpenAIEmbeddingModel:       os.Getenv("OPENAI_EMBEDDING_MODEL"),
		OpenAITranscribeModel:      os.Getenv("OPENAI_TRANSCRIBE_MODEL"),
		AdvisoryTimeoutStr:         os.Getenv("ADVISORY_TIMEOUT"),
		CalDAVURL:                  os.Getenv("CALDAV_URL"),
		CalDAVUsername:             os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:             os.Getenv("CALDAV_PASSWORD"),
		CalDAVTimeoutStr:           os.Getenv("CALDAV_TIMEOUT"),
		SweepSchedule:              os.Getenv("SWEEP_SCHEDULE"),
	}

	if batchStr := os.Getenv("RECONCILE_BATCH_SIZE"); batchStr != "" {
		if batch, err := parseInt(batchStr); err == nil && batch > 0 {
			cfg.ReconcileBatchSize = batch
		}
	}
	if cfg.ReconcileBatchSize == 0 {
		cfg.ReconcileBatchSize = 100
	}

	if bufStr := os.Getenv("DUEBUS_BUFFER_SIZE"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.DueBusBufferSize = n
		} else {
			log.Printf("config: invalid DUEBUS_BUFFER_SIZE %q (must be a positive integer), using default 100", bufStr)
		}
	}
	if cfg.DueBusBufferSize == 0 {
		cfg.DueBusBufferSize = 100
	}

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	}
	if cfg.CircuitBreakerThreshold == 0 && os.Getenv("CIRCUIT_BREAKER_THRESHOLD") == "" {
		cfg.CircuitBreakerThreshold = 5
	}

	if lockKeyStr := os.Getenv("LEADER_LOCK_KEY"); lockKeyStr != "" {
		if n, err := parseInt(lockKeyStr); err == nil && n > 0 {
			cfg.LeaderLockKey = int64(n)
		} else {
			log.Printf("config: invalid LEADER_LOCK_KEY %q (must be a positive integer), using default 917203", lockKeyStr)
		}
	}
	if cfg.LeaderLockKey == 0 {
		cfg.LeaderLockKey = 917203
	}

	if maxOpenStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxOpenStr != "" {
		if n, err := parseInt(maxOpenStr); err == nil && n > 0 {
			cfg.DBMaxOpenConns = n
		}
	}
	if cfg.DBMaxOpenConns == 0 {
		cfg.DBMaxOpenConns = 25
	}

	if maxIdleStr := os.Getenv("DB_MAX_IDLE_CONNS"); maxIdleStr != "" {
		if n, err := parseInt(maxIdleStr); err == nil && n > 0 {
			cfg.DBMaxIdleConns = n
		}
	}
	if cfg.DBMaxIdleConns == 0 {
		cfg.DBMaxIdleConns = 5
	}

	// Support Railway's PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.WebhookTimeoutStr == "" {
		cfg.WebhookTimeoutStr = "30s"
	}
	if cfg.NotifierDrainTimeoutStr == "" {
		cfg.NotifierDrainTimeoutStr = "30s"
	}
	if cfg.SchedulerMaxWakeStr == "" {
		cfg.SchedulerMaxWakeStr = "1m"
	}
	if cfg.SchedulerRetryIntervalStr == "" {
		cfg.SchedulerRetryIntervalStr = "15s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.ReconcileIntervalStr == "" {
		cfg.ReconcileIntervalStr = "5m"
	}
	if cfg.ReconcileThresholdStr == "" {
		cfg.ReconcileThresholdStr = "15m"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}
	if cfg.LeaderRetryIntervalStr == "" {
		cfg.LeaderRetryIntervalStr = "5s"
	}
	if cfg.LeaderHeartbeatIntervalStr == "" {
		cfg.LeaderHeartbeatIntervalStr = "2s"
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "Europe/Moscow"
	}
	if cfg.DefaultReminderOffsetsStr == "" {
		cfg.DefaultReminderOffsetsStr = "15m"
	}
	if cfg.BackgroundTimeoutStr == "" {
		cfg.BackgroundTimeoutStr = "30s"
	}
	if cfg.DefaultEventDurationStr == "" {
		cfg.DefaultEventDurationStr = "1h"
	}
	if cfg.PastHorizonStr == "" {
		cfg.PastHorizonStr = "5m"
	}
	// 366 days: a named date is valid up to one year ahead, leap years included.
	if cfg.FutureHorizonStr == "" {
		cfg.FutureHorizonStr = "8784h"
	}
	if cfg.MaxEventDurationStr == "" {
		cfg.MaxEventDurationStr = "24h"
	}
	if cfg.AdvisoryTimeoutStr == "" {
		cfg.AdvisoryTimeoutStr = "15s"
	}
	if cfg.CalDAVTimeoutStr == "" {
		cfg.CalDAVTimeoutStr = "10s"
	}
	if cfg.SweepSchedule == "" {
		cfg.SweepSchedule = "* * * * *"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.WebhookTimeoutStr); err == nil {
		cfg.WebhookTimeout = d
	}
	if d, err := time.ParseDuration(cfg.NotifierDrainTimeoutStr); err == nil {
		cfg.NotifierDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.SchedulerMaxWakeStr); err == nil {
		cfg.SchedulerMaxWake = d
	}
	if d, err := time.ParseDuration(cfg.SchedulerRetryIntervalStr); err == nil {
		cfg.SchedulerRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileIntervalStr); err == nil {
		cfg.ReconcileInterval = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileThresholdStr); err == nil {
		cfg.ReconcileThreshold = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.LeaderRetryIntervalStr); err == nil {
		cfg.LeaderRetryInterval = d
	}
	if d, err := time.ParseDuration(cfg.LeaderHeartbeatIntervalStr); err == nil {
		cfg.LeaderHeartbeatInterval = d
	}
	if d, err := time.ParseDuration(cfg.BackgroundTimeoutStr); err == nil {
		cfg.BackgroundTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DefaultEventDurationStr); err == nil {
		cfg.DefaultEventDuration = d
	}
	if d, err := time.ParseDuration(cfg.PastHorizonStr); err == nil {
		cfg.PastHorizon = d
	}
	if d, err := time.ParseDuration(cfg.FutureHorizonStr); err == nil {
		cfg.FutureHorizon = d
	}
	if d, err := time.ParseDuration(cfg.MaxEventDurationStr); err == nil {
		cfg.MaxEventDuration = d
	}
	if d, err := time.ParseDuration(cfg.AdvisoryTimeoutStr); err == nil {
		cfg.AdvisoryTimeout = d
	}
	if d, err := time.ParseDuration(cfg.CalDAVTimeoutStr); err == nil {
		cfg.CalDAVTimeout = d
	}
	if cfg.SameDayCutoffStr != "" {
		if d, err := time.ParseDuration(cfg.SameDayCutoffStr); err == nil {
			cfg.SameDayCutoff = d
		}
	}
	if offsets, err := ParseOffsetList(cfg.DefaultReminderOffsetsStr); err == nil {
		cfg.DefaultReminderOffsets = offsets
	}

	return cfg
}

// ParseOffsetList parses a comma-separated list of positive durations
// ("15m,1h"). An empty string yields an empty list.
func ParseOffsetList(s string) ([]time.Duration, error) {
	var offsets []time.Duration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, os.ErrInvalid
		}
		offsets = append(offsets, d)
	}
	return offsets, nil
}

// parseInt parses a string as an integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL             string `json:"database_url"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		HTTPAddr                string `json:"http_addr"`
		DBOpTimeout             string `json:"db_op_timeout"`
		DBMaxOpenConns          int    `json:"db_max_open_conns"`
		DBMaxIdleConns          int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime       string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime       string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		WebhookURL              string `json:"webhook_url"`
		WebhookSecret           string `json:"webhook_secret"`
		WebhookTimeout          string `json:"webhook_timeout"`
		NotifierDrainTimeout    string `json:"notifier_drain_timeout"`
		DueBusBufferSize        int    `json:"duebus_buffer_size"`
		SchedulerMaxWake        string `json:"scheduler_max_wake"`
		SchedulerRetryInterval  string `json:"scheduler_retry_interval"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		ReconcileEnabled        bool   `json:"reconcile_enabled"`
		ReconcileInterval       string `json:"reconcile_interval"`
		ReconcileThreshold      string `json:"reconcile_threshold"`
		ReconcileBatchSize      int    `json:"reconcile_batch_size"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
		LeaderLockKey           int64  `json:"leader_lock_key"`
		LeaderRetryInterval     string `json:"leader_retry_interval"`
		LeaderHeartbeatInterval string `json:"leader_heartbeat_interval"`
		DefaultTimezone         string `json:"default_timezone"`
		DefaultReminderOffsets  string `json:"default_reminder_offsets"`
		SameDayCutoff           string `json:"same_day_cutoff,omitempty"`
		DefaultEventDuration    string `json:"default_event_duration"`
		PastHorizon             string `json:"past_horizon"`
		FutureHorizon           string `json:"future_horizon"`
		MaxEventDuration        string `json:"max_event_duration"`
		BackgroundTimeout       string `json:"background_timeout"`
		OpenAIAPIKey            string `json:"openai_api_key"`
		OpenAIBaseURL           string `json:"openai_base_url,omitempty"`
		OpenAIChatModel         string `json:"openai_chat_model,omitempty"`
		OpenAIEmbeddingModel    string `json:"openai_embedding_model,omitempty"`
		OpenAITranscribeModel   string `json:"openai_transcribe_model,omitempty"`
		AdvisoryTimeout         string `json:"advisory_timeout"`
		CalDAVURL               string `json:"caldav_url,omitempty"`
		CalDAVUsername          string `json:"caldav_username,omitempty"`
		CalDAVPassword          string `json:"caldav_password,omitempty"`
		CalDAVTimeout           string `json:"caldav_timeout"`
		SweepSchedule           string `json:"sweep_schedule"`
	}{
		DatabaseURL:             maskSecret(c.DatabaseURL),
		RedisAddr:               c.RedisAddr,
		HTTPAddr:                c.HTTPAddr,
		DBOpTimeout:             c.DBOpTimeoutStr,
		DBMaxOpenConns:          c.DBMaxOpenConns,
		DBMaxIdleConns:          c.DBMaxIdleConns,
		DBConnMaxLifetime:       c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:       c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		WebhookURL:              c.WebhookURL,
		WebhookSecret:           maskSecret(c.WebhookSecret),
		WebhookTimeout:          c.WebhookTimeoutStr,
		NotifierDrainTimeout:    c.NotifierDrainTimeoutStr,
		DueBusBufferSize:        c.DueBusBufferSize,
		SchedulerMaxWake:        c.SchedulerMaxWakeStr,
		SchedulerRetryInterval:  c.SchedulerRetryIntervalStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		ReconcileEnabled:        c.ReconcileEnabled,
		ReconcileInterval:       c.ReconcileIntervalStr,
		ReconcileThreshold:      c.ReconcileThresholdStr,
		ReconcileBatchSize:      c.ReconcileBatchSize,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
		LeaderLockKey:           c.LeaderLockKey,
		LeaderRetryInterval:     c.LeaderRetryIntervalStr,
		LeaderHeartbeatInterval: c.LeaderHeartbeatIntervalStr,
		DefaultTimezone:         c.DefaultTimezone,
		DefaultReminderOffsets:  c.DefaultReminderOffsetsStr,
		SameDayCutoff:           c.SameDayCutoffStr,
		DefaultEventDuration:    c.DefaultEventDurationStr,
		PastHorizon:             c.PastHorizonStr,
		FutureHorizon:           c.FutureHorizonStr,
		MaxEventDuration:        c.MaxEventDurationStr,
		BackgroundTimeout:       c.BackgroundTimeoutStr,
		OpenAIAPIKey:            maskSecret(c.OpenAIAPIKey),
		OpenAIBaseURL:           c.OpenAIBaseURL,
		OpenAIChatModel:         c.OpenAIChatModel,
		OpenAIEmbeddingModel:    c.OpenAIEmbeddingModel,
		OpenAITranscribeModel:   c.OpenAITranscribeModel,
		AdvisoryTimeout:         c.AdvisoryTimeoutStr,
		CalDAVURL:               c.CalDAVURL,
		CalDAVUsername:          c.CalDAVUsername,
		CalDAVPassword:          maskSecret(c.CalDAVPassword),
		CalDAVTimeout:           c.CalDAVTimeoutStr,
		SweepSchedule:           c.SweepSchedule,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}
