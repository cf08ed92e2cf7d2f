package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "CRATEDIGGER_CONFIG"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	youtubeKeysEnv    = "YOUTUBE_API_KEYS"
	redisURLEnv       = "REDIS_URL"
	logLevelEnv       = "LOG_LEVEL"
	logFormatEnv      = "LOG_FORMAT"
	httpAddrEnv       = "HTTP_ADDR"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	YouTube       YouTubeConfig      `yaml:"youtube"`
	Cache         CacheConfig        `yaml:"cache"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	HTTP          HTTPConfig         `yaml:"http"`
	Logging       LoggingConfig      `yaml:"logging"`
	Notifications NotificationConfig `yaml:"notifications"`
	Retrieval     RetrievalConfig    `yaml:"retrieval"`
	Sources       []SourceConfig     `yaml:"sources" validate:"dive"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres sqlite"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// YouTubeConfig describes how to reach the platform API.
type YouTubeConfig struct {
	APIKeys           []string      `yaml:"apiKeys"`
	BaseURL           string        `yaml:"baseUrl" validate:"required,url"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gt=0"`
	Burst             int           `yaml:"burst" validate:"gte=1"`
}

// CacheConfig bounds the result cache and its optional Redis tier.
type CacheConfig struct {
	MaxEntries    int           `yaml:"maxEntries" validate:"gte=1"`
	EvictBlock    int           `yaml:"evictBlock" validate:"gte=1"`
	SweepInterval time.Duration `yaml:"sweepInterval" validate:"gt=0"`
	SearchTTL     time.Duration `yaml:"searchTtl" validate:"gt=0"`
	DetailsTTL    time.Duration `yaml:"detailsTtl" validate:"gt=0"`
	ListTTL       time.Duration `yaml:"listTtl" validate:"gt=0"`
	RedisURL      string        `yaml:"redisUrl"`
}

// PipelineConfig bounds every batch stage.
type PipelineConfig struct {
	EnrichLimit       int      `yaml:"enrichLimit" validate:"gte=1"`
	ScoreLimit        int      `yaml:"scoreLimit" validate:"gte=1"`
	PromoteLimit      int      `yaml:"promoteLimit" validate:"gte=1"`
	MinScore          int      `yaml:"minScore" validate:"gte=0,lte=100"`
	RelaxedSources    []string `yaml:"relaxedSources" validate:"dive,oneof=search playlist channel page"`
	SearchEarlyBreak  int      `yaml:"searchEarlyBreak" validate:"gte=0"`
	SearchMaxPages    int      `yaml:"searchMaxPages" validate:"gte=1"`
	MaxEnrichAttempts int      `yaml:"maxEnrichAttempts" validate:"gte=1"`
	LockFile          string   `yaml:"lockFile"`
}

// SchedulerConfig defines how often the pipeline should run.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval" validate:"gt=0"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// HTTPConfig configures the read API.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// RetrievalConfig bounds the random sample read path.
type RetrievalConfig struct {
	MaxExclusions   int `yaml:"maxExclusions" validate:"gte=1"`
	RecycleAttempts int `yaml:"recycleAttempts" validate:"gte=0"`
}

// SourceConfig is one seed discovery source ingested every scheduled cycle.
type SourceConfig struct {
	Kind     string `yaml:"kind" validate:"oneof=search playlist channel page"`
	Ref      string `yaml:"ref" validate:"required"`
	MaxItems int    `yaml:"maxItems" validate:"gte=0"`
}

// Load reads .env and the YAML file at path (or $CRATEDIGGER_CONFIG), merges it over defaults,
// applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(youtubeKeysEnv); v != "" {
		c.YouTube.APIKeys = splitList(v)
	}

	if v := os.Getenv(redisURLEnv); v != "" {
		c.Cache.RedisURL = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: unknown scheduler timezone %q: %w", tz, err)
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
	return nil
}

var validate = validator.New()

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

func validationMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt", "gte", "lte":
		return fmt.Sprintf("%s must be %s %s", field, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "cratedigger.db"},
		YouTube: YouTubeConfig{
			BaseURL:           "https://www.googleapis.com/youtube/v3",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 5,
			Burst:             1,
		},
		Cache: CacheConfig{
			MaxEntries:    1000,
			EvictBlock:    100,
			SweepInterval: 5 * time.Minute,
			SearchTTL:     6 * time.Hour,
			DetailsTTL:    24 * time.Hour,
			ListTTL:       6 * time.Hour,
		},
		Pipeline: PipelineConfig{
			EnrichLimit:       50,
			ScoreLimit:        200,
			PromoteLimit:      100,
			MinScore:          15,
			RelaxedSources:    []string{"page"},
			SearchEarlyBreak:  0,
			SearchMaxPages:    1,
			MaxEnrichAttempts: 3,
			LockFile:          "cratedigger.lock",
		},
		Scheduler: SchedulerConfig{Interval: 6 * time.Hour, Timezone: defaultTimezone, location: tz},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Logging:   LoggingConfig{Level: "info", Format: "auto"},
		Retrieval: RetrievalConfig{MaxExclusions: 500, RecycleAttempts: 0},
	}
}
