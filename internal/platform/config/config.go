package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultEnvironment      = "local"
	defaultRuleTimeout      = 3 * time.Second
	defaultRuleCacheTTL     = 5 * time.Minute
	defaultCustomerTimeout  = 2 * time.Second
	defaultOrderPrefix      = "DOX"
	defaultPubSubTopic      = "doxvisum-events"
	defaultLogLevel         = "info"
	maxOrderNumberPrefixLen = 8
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firestore     FirestoreConfig
	PubSub        PubSubConfig
	Pricing       PricingConfig
	Orders        OrderConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID string
	// DatabaseID selects a named database; empty means "(default)".
	DatabaseID   string
	EmulatorHost string
}

// PubSubConfig selects the topic domain events are published to. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID       string
	Topic           string
	EmulatorHost    string
	OrderingEnabled bool
}

// PricingConfig bounds rule store access made while pricing a request.
type PricingConfig struct {
	RuleTimeout     time.Duration
	RuleCacheTTL    time.Duration
	CustomerTimeout time.Duration
}

// OrderConfig controls order number formatting.
type OrderConfig struct {
	NumberPrefix string
}

// ObservabilityConfig carries logging and build metadata.
type ObservabilityConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

// ValidationError lists every field that was missing or failed to parse.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile points Load at a dotenv file; an empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects values that win over both the process environment and the dotenv file.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv stops Load from consulting the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load resolves every key from, in order, the explicit map, the process environment and the
// dotenv file, then falls back to defaults. A missing dotenv file is not an error.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	dotenv, err := readDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	src := &source{layers: []func(string) (string, bool){mapLayer(options.envMap)}}
	if options.useSystemEnv {
		src.layers = append(src.layers, os.LookupEnv)
	}
	src.layers = append(src.layers, mapLayer(dotenv))

	cfg := Config{
		Server: ServerConfig{
			Port:            src.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:     src.duration("Server.ReadTimeout", "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    src.duration("Server.WriteTimeout", "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     src.duration("Server.IdleTimeout", "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: src.duration("Server.ShutdownTimeout", "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.str("API_FIRESTORE_PROJECT_ID", ""),
			DatabaseID:   src.str("API_FIRESTORE_DATABASE_ID", ""),
			EmulatorHost: src.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:       src.str("API_PUBSUB_PROJECT_ID", ""),
			Topic:           src.str("API_PUBSUB_TOPIC", defaultPubSubTopic),
			EmulatorHost:    src.str("API_PUBSUB_EMULATOR_HOST", ""),
			OrderingEnabled: src.boolean("PubSub.OrderingEnabled", "API_PUBSUB_ORDERING", true),
		},
		Pricing: PricingConfig{
			RuleTimeout:     src.duration("Pricing.RuleTimeout", "API_PRICING_RULE_TIMEOUT", defaultRuleTimeout),
			RuleCacheTTL:    src.duration("Pricing.RuleCacheTTL", "API_PRICING_RULE_CACHE_TTL", defaultRuleCacheTTL),
			CustomerTimeout: src.duration("Pricing.CustomerTimeout", "API_PRICING_CUSTOMER_TIMEOUT", defaultCustomerTimeout),
		},
		Orders: OrderConfig{
			NumberPrefix: strings.ToUpper(src.str("API_ORDERS_NUMBER_PREFIX", defaultOrderPrefix)),
		},
		Observability: ObservabilityConfig{
			Environment: strings.ToLower(src.str("API_ENVIRONMENT", defaultEnvironment)),
			LogLevel:    strings.ToLower(src.str("API_LOG_LEVEL", defaultLogLevel)),
			Version:     src.str("API_VERSION", ""),
		},
	}

	// Pub/Sub shares the Firestore project unless configured separately.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if strings.EqualFold(cfg.PubSub.Topic, "none") {
		cfg.PubSub.Topic = ""
	}

	if invalid := append(src.invalid, validate(cfg)...); len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}
	return cfg, nil
}

func validate(cfg Config) []string {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}
	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	check(cfg.Pricing.RuleTimeout > 0, "Pricing.RuleTimeout")
	check(cfg.Pricing.RuleCacheTTL >= 0, "Pricing.RuleCacheTTL")
	check(cfg.Pricing.CustomerTimeout > 0, "Pricing.CustomerTimeout")
	prefix := cfg.Orders.NumberPrefix
	check(prefix != "" && len(prefix) <= maxOrderNumberPrefixLen && !strings.ContainsAny(prefix, " -"), "Orders.NumberPrefix")
	return invalid
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func mapLayer(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

// source resolves keys through its layers and remembers which fields failed to parse.
type source struct {
	layers  []func(string) (string, bool)
	invalid []string
}

func (s *source) lookup(key string) (string, bool) {
	for _, layer := range s.layers {
		if value, ok := layer(key); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value, true
			}
		}
	}
	return "", false
}

func (s *source) str(key, fallback string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return fallback
}

func (s *source) duration(field, key string, fallback time.Duration) time.Duration {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		s.invalid = append(s.invalid, field)
		return fallback
	}
	return d
}

func (s *source) boolean(field, key string, fallback bool) bool {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	s.invalid = append(s.invalid, field)
	return fallback
}
