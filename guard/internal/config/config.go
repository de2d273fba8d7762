// Package config loads the guard service configuration with viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	common "github.com/rahnavardnetwork/sos/common/config"
	"github.com/rahnavardnetwork/sos/common/middleware"
	"github.com/rahnavardnetwork/sos/guard/internal/csrf"
	"github.com/rahnavardnetwork/sos/guard/internal/ipblock"
	"github.com/rahnavardnetwork/sos/guard/internal/maintenance"
	"github.com/rahnavardnetwork/sos/guard/internal/ratelimit"
	"github.com/rahnavardnetwork/sos/guard/internal/requestguard"
	"github.com/rahnavardnetwork/sos/guard/internal/secevent"
	"github.com/rahnavardnetwork/sos/guard/internal/session"
	"github.com/rahnavardnetwork/sos/guard/internal/threat"
	"github.com/rahnavardnetwork/sos/guard/internal/validate"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server     common.ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig          `mapstructure:"database"`
	Store      StoreConfig             `mapstructure:"store"`
	Redis      common.RedisConfig      `mapstructure:"redis"`
	NATS       common.NATSConfig       `mapstructure:"nats"`
	AMQP       common.AMQPConfig       `mapstructure:"amqp"`
	OpenSearch common.OpenSearchConfig `mapstructure:"opensearch"`
	Logging    common.LoggingConfig    `mapstructure:"logging"`
	HTTP       HTTPConfig              `mapstructure:"http"`

	Guard      requestguard.Config     `mapstructure:"guard"`
	RateLimit  RateLimitConfig         `mapstructure:"rate_limit"`
	IPBlock    ipblock.Config          `mapstructure:"ip_block"`
	Session    session.Config          `mapstructure:"session"`
	Token      session.TokenConfig     `mapstructure:"token"`
	MFA        session.MFAConfig       `mapstructure:"mfa"`
	CSRF       csrf.Config             `mapstructure:"csrf"`
	Threat     threat.Families         `mapstructure:"threat"`
	Validation ValidationConfig        `mapstructure:"validation"`
	Events     secevent.Config         `mapstructure:"events"`
	Notifier   secevent.NotifierConfig `mapstructure:"notifier"`
	Sweeps     maintenance.Intervals   `mapstructure:"sweeps"`
}

type DatabaseConfig struct {
	Type     string                `mapstructure:"type"`
	Postgres common.PostgresConfig `mapstructure:"postgres"`
	// Migrate runs pending migrations at startup.
	Migrate bool `mapstructure:"migrate"`
}

// StoreConfig selects where rate-limit, block, CSRF and MFA state lives.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type HTTPConfig struct {
	CORS middleware.CORSConfig `mapstructure:"cors"`
	// CrossOrigin enables Sec-Fetch-Site based origin checks.
	CrossOrigin    bool     `mapstructure:"cross_origin"`
	TrustedOrigins []string `mapstructure:"trusted_origins"`
}

type RateLimitConfig struct {
	General   ratelimit.Policy `mapstructure:"general"`
	Auth      ratelimit.Policy `mapstructure:"auth"`
	Sensitive ratelimit.Policy `mapstructure:"sensitive"`
	// MemoryBuckets caps the in-memory bucket count.
	MemoryBuckets int `mapstructure:"memory_buckets"`
}

// Policies returns the per-class policy map the limiter takes.
func (c RateLimitConfig) Policies() map[ratelimit.Class]ratelimit.Policy {
	return map[ratelimit.Class]ratelimit.Policy{
		ratelimit.ClassGeneral:   c.General,
		ratelimit.ClassAuth:      c.Auth,
		ratelimit.ClassSensitive: c.Sensitive,
	}
}

type ValidationConfig struct {
	MaxInputLength int                     `mapstructure:"max_input_length"`
	Password       validate.PasswordPolicy `mapstructure:"password"`
}

// Load reads configuration from configPath, or from config.yaml in the
// working directory or /etc/sos/guard when configPath is empty. GUARD_*
// environment variables override file values.
func Load(configPath string) (*Config, error) {
	v, err := NewViper(configPath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewViper returns the viper instance Load decodes from.
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	common.SetInfraDefaults(v)
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sos/guard")
	}

	v.SetEnvPrefix("GUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.migrate", true)
	v.SetDefault("store.backend", BackendMemory)

	cors := middleware.DefaultCORSConfig()
	v.SetDefault("http.cors.allowed_origins", cors.AllowedOrigins)
	v.SetDefault("http.cors.allowed_methods", cors.AllowedMethods)
	v.SetDefault("http.cors.allowed_headers", cors.AllowedHeaders)
	v.SetDefault("http.cors.exposed_headers", cors.ExposedHeaders)
	v.SetDefault("http.cors.allow_credentials", cors.AllowCredentials)
	v.SetDefault("http.cors.max_age", cors.MaxAge)
	v.SetDefault("http.cross_origin", true)
	v.SetDefault("http.trusted_origins", []string{})

	v.SetDefault("guard.block_on_detection", true)
	v.SetDefault("guard.max_body_bytes", 1<<20)
	v.SetDefault("guard.locale", string(requestguard.LocaleFA))

	v.SetDefault("rate_limit.general.quota", 100)
	v.SetDefault("rate_limit.general.window", "15m")
	v.SetDefault("rate_limit.general.block_duration", "1m")
	v.SetDefault("rate_limit.general.promote_to_block", false)
	v.SetDefault("rate_limit.auth.quota", 5)
	v.SetDefault("rate_limit.auth.window", "15m")
	v.SetDefault("rate_limit.auth.block_duration", "15m")
	v.SetDefault("rate_limit.auth.promote_to_block", true)
	v.SetDefault("rate_limit.sensitive.quota", 20)
	v.SetDefault("rate_limit.sensitive.window", "1h")
	v.SetDefault("rate_limit.sensitive.block_duration", "30m")
	v.SetDefault("rate_limit.sensitive.promote_to_block", true)
	v.SetDefault("rate_limit.memory_buckets", ratelimit.DefaultMemoryBuckets)

	v.SetDefault("ip_block.max_failed_attempts", 10)
	v.SetDefault("ip_block.block_duration", "24h")
	v.SetDefault("ip_block.permanent_block_after", 0)

	v.SetDefault("session.rotation_interval", "1h")
	v.SetDefault("session.absolute_timeout", "168h")

	v.SetDefault("token.secret", "")
	v.SetDefault("token.algorithm", "HS512")
	v.SetDefault("token.issuer", "rahnavard-security")
	v.SetDefault("token.audience", "rahnavard-app")
	v.SetDefault("token.lifetime", "168h")

	v.SetDefault("mfa.enabled", true)
	v.SetDefault("mfa.required", false)
	v.SetDefault("mfa.code_length", 6)
	v.SetDefault("mfa.expiry", "5m")
	v.SetDefault("mfa.max_attempts", 3)

	v.SetDefault("csrf.token_ttl", "1h")

	v.SetDefault("threat.sql_injection", true)
	v.SetDefault("threat.xss", true)
	v.SetDefault("threat.command_injection", true)
	v.SetDefault("threat.path_traversal", true)

	v.SetDefault("validation.max_input_length", validate.DefaultMaxInputLength)
	v.SetDefault("validation.password.min_length", 12)
	v.SetDefault("validation.password.require_uppercase", true)
	v.SetDefault("validation.password.require_lowercase", true)
	v.SetDefault("validation.password.require_numbers", true)
	v.SetDefault("validation.password.require_special_chars", true)

	v.SetDefault("events.capacity", 10000)
	v.SetDefault("events.prune_batch", 1000)
	v.SetDefault("events.retention", "2160h")
	v.SetDefault("events.identity_threshold", 10)
	v.SetDefault("events.subject_threshold", 5)
	v.SetDefault("events.identity_salt", "")
	v.SetDefault("events.signing_key", "")

	v.SetDefault("notifier.subject", "security.events.critical")
	v.SetDefault("notifier.rate", 5.0)
	v.SetDefault("notifier.burst", 20)

	v.SetDefault("sweeps.blocks", "1h")
	v.SetDefault("sweeps.csrf", "30m")
	v.SetDefault("sweeps.mfa", "5m")
	v.SetDefault("sweeps.events", "1h")
	v.SetDefault("sweeps.sessions", "1h")
}

// Validate rejects configurations the guard cannot run with.
func (c *Config) Validate() error {
	var errs []error
	for _, class := range ratelimit.Classes {
		name, p := string(class), c.RateLimit.Policies()[class]
		if p.Quota <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.%s.quota must be positive", name))
		}
		if p.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.%s.window must be positive", name))
		}
	}
	if c.Token.Secret == "" {
		errs = append(errs, errors.New("token.secret is required"))
	}
	if c.Events.IdentitySalt == "" {
		errs = append(errs, errors.New("events.identity_salt is required"))
	}
	if c.Events.SigningKey == "" {
		errs = append(errs, errors.New("events.signing_key is required"))
	}
	if c.Session.RotationInterval <= 0 || c.Session.AbsoluteTimeout <= 0 {
		errs = append(errs, errors.New("session intervals must be positive"))
	}
	if c.Session.RotationInterval > c.Session.AbsoluteTimeout {
		errs = append(errs, errors.New("session.rotation_interval exceeds session.absolute_timeout"))
	}
	if c.IPBlock.BlockDuration <= 0 {
		errs = append(errs, errors.New("ip_block.block_duration must be positive"))
	}
	if c.MFA.CodeLength < 4 || c.MFA.CodeLength > 32 {
		errs = append(errs, errors.New("mfa.code_length must be between 4 and 32"))
	}
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not one of memory, redis", c.Store.Backend))
	}
	switch c.Database.Type {
	case BackendMemory, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.type %q is not one of memory, postgres", c.Database.Type))
	}
	return errors.Join(errs...)
}
