package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	env "github.com/Netflix/go-env"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/gochat-presence/internal/chat"
)

const (
	defaultPort              = ":8080"
	defaultMaxMessageSize    = 8192
	defaultBurst             = 5
	defaultRefillInterval    = time.Second
	defaultSendBufferSize    = 256
	defaultCensorReplacement = "*"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// Config holds the coordinator settings.
type Config struct {
	Port           string          `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	// SendBufferSize is the number of frames queued per connection before
	// the connection is considered too slow and evicted.
	SendBufferSize int           `yaml:"send_buffer_size"`
	TypingTimeout  time.Duration `yaml:"typing_timeout"`
	// EchoPrivateToSender also delivers a stored private message back to its
	// sender, carrying the sender's local id.
	EchoPrivateToSender bool `yaml:"echo_private_to_sender"`
	// RejectDuplicateNames drops a join whose display name is held by
	// another live connection.
	RejectDuplicateNames bool     `yaml:"reject_duplicate_names"`
	CensoredWords        []string `yaml:"censored_words"`
	CensorReplacement    string   `yaml:"censor_replacement"`
}

// envConfig mirrors the environment variables the server understands. Fields
// are strings so that an unparsable value falls back to the current setting
// instead of failing start-up.
type envConfig struct {
	Port                 string `env:"SERVER_PORT"`
	AllowedOrigins       string `env:"ALLOWED_ORIGINS"`
	MaxMessageSize       string `env:"MAX_MESSAGE_SIZE"`
	RateLimitBurst       string `env:"RATE_LIMIT_BURST"`
	RateLimitRefill      string `env:"RATE_LIMIT_REFILL_INTERVAL"`
	SendBufferSize       string `env:"SEND_BUFFER_SIZE"`
	TypingTimeout        string `env:"TYPING_TIMEOUT"`
	EchoPrivateToSender  string `env:"ECHO_PRIVATE_TO_SENDER"`
	RejectDuplicateNames string `env:"REJECT_DUPLICATE_NAMES"`
	CensoredWords        string `env:"CENSORED_WORDS"`
	CensorReplacement    string `env:"CENSOR_REPLACEMENT"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		SendBufferSize:    defaultSendBufferSize,
		TypingTimeout:     chat.DefaultTypingTimeout,
		CensorReplacement: defaultCensorReplacement,
	}
}

// LoadConfig layers the optional YAML file at path and the environment on
// top of the defaults. environ uses the os.Environ format.
func LoadConfig(path string, environ []string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	var overrides envConfig
	if err := env.Unmarshal(es, &overrides); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	cfg = overrides.apply(cfg)

	cfg = cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (e envConfig) apply(cfg Config) Config {
	if e.Port != "" {
		cfg.Port = e.Port
	}
	if e.AllowedOrigins != "" {
		cfg.AllowedOrigins = parseList(e.AllowedOrigins)
	}
	if e.MaxMessageSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(e.MaxMessageSize, cfg.MaxMessageSize)
	}
	if e.RateLimitBurst != "" {
		cfg.RateLimit.Burst = parseIntValue(e.RateLimitBurst, cfg.RateLimit.Burst)
	}
	if e.RateLimitRefill != "" {
		cfg.RateLimit.RefillInterval = parseInterval(e.RateLimitRefill, cfg.RateLimit.RefillInterval)
	}
	if e.SendBufferSize != "" {
		cfg.SendBufferSize = parseIntValue(e.SendBufferSize, cfg.SendBufferSize)
	}
	if e.TypingTimeout != "" {
		cfg.TypingTimeout = parseInterval(e.TypingTimeout, cfg.TypingTimeout)
	}
	if e.EchoPrivateToSender != "" {
		cfg.EchoPrivateToSender = parseBool(e.EchoPrivateToSender, cfg.EchoPrivateToSender)
	}
	if e.RejectDuplicateNames != "" {
		cfg.RejectDuplicateNames = parseBool(e.RejectDuplicateNames, cfg.RejectDuplicateNames)
	}
	if e.CensoredWords != "" {
		cfg.CensoredWords = parseList(e.CensoredWords)
	}
	if e.CensorReplacement != "" {
		cfg.CensorReplacement = e.CensorReplacement
	}
	return cfg
}

func (c Config) sanitize() Config {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaultBurst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRefillInterval
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBufferSize
	}
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = chat.DefaultTypingTimeout
	}
	if c.CensorReplacement == "" {
		c.CensorReplacement = defaultCensorReplacement
	}
	c.AllowedOrigins = cleanList(c.AllowedOrigins)
	c.CensoredWords = cleanList(c.CensoredWords)
	return c
}

// Validate reports settings that cannot be repaired with a default.
func (c Config) Validate() error {
	var errs []error
	if !strings.Contains(c.Port, ":") {
		errs = append(errs, fmt.Errorf("port %q must be in host:port or :port form", c.Port))
	}
	if utf8.RuneCountInString(c.CensorReplacement) != 1 {
		errs = append(errs, fmt.Errorf("censor replacement %q must be a single character", c.CensorReplacement))
	}
	for _, origin := range c.AllowedOrigins {
		if err := validateOriginPattern(origin); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CensorRune returns the mask character used by the censor.
func (c Config) CensorRune() rune {
	r, _ := utf8.DecodeRuneInString(c.CensorReplacement)
	return r
}

func parseList(value string) []string {
	return cleanList(strings.Split(value, ","))
}

// cleanList trims entries, drops blanks and keeps nil for an empty list.
func cleanList(list []string) []string {
	out := lo.FilterMap(list, func(item string, _ int) (string, bool) {
		item = strings.TrimSpace(item)
		return item, item != ""
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseInterval accepts a Go duration ("1500ms") or a whole number of seconds.
func parseInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func parseBool(value string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}
