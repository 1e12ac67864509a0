package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Email      EmailConfig      `mapstructure:"email"`
	Zoom       ZoomConfig       `mapstructure:"zoom"`
	Crisis     CrisisConfig     `mapstructure:"crisis"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Worker     WorkerConfig     `mapstructure:"worker"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// ZoomConfig configures the videoconference provider. Credentials come
// from the environment, never from the config file.
type ZoomConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	AccountID    string `mapstructure:"account_id"`
	UserEmail    string `mapstructure:"user_email"`
}

// Configured reports whether real API credentials are present. Without
// them every meeting is synthesized locally.
func (z ZoomConfig) Configured() bool {
	return z.ClientID != "" && z.ClientSecret != "" && z.AccountID != ""
}

// CrisisKeywordsConfig carries the tiered screening vocabularies. The
// defaults ship in setDefaults; a deployment can replace any tier
// wholesale from its config file.
type CrisisKeywordsConfig struct {
	High   []string `mapstructure:"high"`
	Medium []string `mapstructure:"medium"`
	Low    []string `mapstructure:"low"`
}

type CrisisConfig struct {
	Enabled          bool                 `mapstructure:"enabled"`
	ResponseTemplate string               `mapstructure:"response_template"`
	HotlineNumber    string               `mapstructure:"hotline_number"`
	Keywords         CrisisKeywordsConfig `mapstructure:"keywords"`
	ExtraKeywords    []string             `mapstructure:"extra_keywords"`
}

type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	PerHour   int `mapstructure:"per_hour"`
	PerDay    int `mapstructure:"per_day"`
}

// ProfanityConfig tiers the profanity vocabulary by severity. Severe
// words are replaced with "[filtered]", moderate words with asterisks,
// mild words only flagged.
type ProfanityConfig struct {
	Severe   []string `mapstructure:"severe"`
	Moderate []string `mapstructure:"moderate"`
	Mild     []string `mapstructure:"mild"`
}

// BoundaryConfig tiers the professional-boundary phrases. Block phrases
// stop the message outright, filter phrases redact it, log phrases are
// only recorded.
type BoundaryConfig struct {
	Block  []string `mapstructure:"block"`
	Filter []string `mapstructure:"filter"`
	Log    []string `mapstructure:"log"`
}

type ModerationConfig struct {
	Enabled            bool            `mapstructure:"enabled"`
	MaxMessageLength   int             `mapstructure:"max_message_length"`
	StudentRateLimit   RateLimitConfig `mapstructure:"student_rate_limit"`
	TherapistRateLimit RateLimitConfig `mapstructure:"therapist_rate_limit"`
	BusinessHourStart  int             `mapstructure:"business_hour_start"`
	BusinessHourEnd    int             `mapstructure:"business_hour_end"`
	Profanity          ProfanityConfig `mapstructure:"profanity"`
	Boundary           BoundaryConfig  `mapstructure:"boundary"`
	// Campus-specific additions on top of the tiered vocabularies. Extra
	// profanity is treated as severe, extra boundary phrases block.
	ExtraProfanity       []string `mapstructure:"extra_profanity"`
	ExtraBoundaryPhrases []string `mapstructure:"extra_boundary_phrases"`
}

type SchedulingConfig struct {
	Timezone          string `mapstructure:"timezone"`
	BufferMinutes     int    `mapstructure:"buffer_minutes"`
	HorizonDays       int    `mapstructure:"horizon_days"`
	UrgentHorizonDays int    `mapstructure:"urgent_horizon_days"`
	PriorityHours     []int  `mapstructure:"priority_hours"`
	MaxSuggestions    int    `mapstructure:"max_suggestions"`
}

type WorkerConfig struct {
	ExpirySweepInterval time.Duration `mapstructure:"expiry_sweep_interval"`
	CleanupInterval     time.Duration `mapstructure:"cleanup_interval"`
	OutboxBatchSize     int           `mapstructure:"outbox_batch_size"`
	OutboxPollInterval  time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxMaxRetries    int           `mapstructure:"outbox_max_retries"`
	OutboxRetryDelay    time.Duration `mapstructure:"outbox_retry_delay"`
	OutboxRetentionDays int           `mapstructure:"outbox_retention_days"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.AutomaticEnv()
	bindEnvOverrides()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeout_seconds", 30)

	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)

	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)

	viper.SetDefault("jwt.expiry_hours", 24)

	viper.SetDefault("zoom.base_url", "https://api.zoom.us/v2")
	viper.SetDefault("zoom.token_url", "https://zoom.us/oauth/token")

	viper.SetDefault("crisis.enabled", true)
	viper.SetDefault("crisis.hotline_number", "988")
	viper.SetDefault("crisis.keywords.high", []string{
		"i want to die", "kill myself", "suicide", "end my life",
		"not worth living", "better off dead", "want to disappear",
		"take my own life", "end it all",
	})
	viper.SetDefault("crisis.keywords.medium", []string{
		"hurt myself", "self harm", "cutting", "overdose",
		"can't go on", "give up", "no point", "want to die",
		"life is meaningless", "nothing matters",
	})
	viper.SetDefault("crisis.keywords.low", []string{
		"depressed", "hopeless", "worthless", "empty inside",
		"feel terrible", "can't take it", "very sad",
	})

	viper.SetDefault("moderation.enabled", true)
	viper.SetDefault("moderation.max_message_length", 2000)
	viper.SetDefault("moderation.student_rate_limit.per_minute", 3)
	viper.SetDefault("moderation.student_rate_limit.per_hour", 20)
	viper.SetDefault("moderation.student_rate_limit.per_day", 100)
	viper.SetDefault("moderation.therapist_rate_limit.per_minute", 5)
	viper.SetDefault("moderation.therapist_rate_limit.per_hour", 50)
	viper.SetDefault("moderation.therapist_rate_limit.per_day", 200)
	viper.SetDefault("moderation.business_hour_start", 8)
	viper.SetDefault("moderation.business_hour_end", 20)
	viper.SetDefault("moderation.profanity.severe", []string{
		"fuck", "fucking", "cunt",
	})
	viper.SetDefault("moderation.profanity.moderate", []string{
		"shit", "bitch", "asshole", "idiot",
	})
	viper.SetDefault("moderation.profanity.mild", []string{
		"damn", "hell", "crap", "stupid",
	})
	viper.SetDefault("moderation.boundary.block", []string{
		"personal phone number", "my address is", "meet me at",
		"sexual", "romantic feelings", "in love with you",
		"date me", "kiss you", "sleep with",
	})
	viper.SetDefault("moderation.boundary.filter", []string{
		"personal email", "social media", "outside appointment",
		"personal life", "dating", "phone number", "home address",
	})
	viper.SetDefault("moderation.boundary.log", []string{
		"friend", "personal", "outside therapy", "after work",
	})

	viper.SetDefault("scheduling.timezone", "America/New_York")
	viper.SetDefault("scheduling.buffer_minutes", 60)
	viper.SetDefault("scheduling.horizon_days", 7)
	viper.SetDefault("scheduling.urgent_horizon_days", 2)
	viper.SetDefault("scheduling.priority_hours", []int{9, 11, 14, 16})
	viper.SetDefault("scheduling.max_suggestions", 6)

	viper.SetDefault("worker.expiry_sweep_interval", 10*time.Minute)
	viper.SetDefault("worker.cleanup_interval", time.Hour)
	viper.SetDefault("worker.outbox_batch_size", 100)
	viper.SetDefault("worker.outbox_poll_interval", 5*time.Second)
	viper.SetDefault("worker.outbox_max_retries", 5)
	viper.SetDefault("worker.outbox_retry_delay", 10*time.Second)
	viper.SetDefault("worker.outbox_retention_days", 7)
}

func bindEnvOverrides() {
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("email.password", "EMAIL_PASSWORD")
	viper.BindEnv("zoom.client_id", "ZOOM_CLIENT_ID")
	viper.BindEnv("zoom.client_secret", "ZOOM_CLIENT_SECRET")
	viper.BindEnv("zoom.account_id", "ZOOM_ACCOUNT_ID")
	viper.BindEnv("zoom.user_email", "ZOOM_USER_EMAIL")
}
