// Package config loads and validates the fabric's configuration, grounded
// on _examples/original_source/notify_server/src/config.rs: the same
// search-path priority, environment overrides, validation, and
// production-readiness audit, carried over with spf13/viper standing in
// for config.rs's serde_yaml/hand-rolled loader.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AppConfig is the root configuration document, matching the recognized
// options spec.md §6 names.
type AppConfig struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Messaging  MessagingConfig  `mapstructure:"messaging"`
	Notify     NotifyConfig     `mapstructure:"notification"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Security   SecurityConfig   `mapstructure:"security"`
	Ingress    IngressConfig    `mapstructure:"ingress"`
	Membership MembershipConfig `mapstructure:"membership"`
}

// ServerConfig is the §6 server.* block. DBURL is kept for schema parity
// with config.rs's server.db_url (the relational store backing C3's
// InstanceStore is an external collaborator this repo never dials
// directly — see DESIGN.md); only validate and ValidateProductionReadiness
// read it.
type ServerConfig struct {
	Port             int    `mapstructure:"port"`
	DBURL            string `mapstructure:"db_url"`
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
}

func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMs) * time.Millisecond
}

// AuthConfig is the §6 auth.* block. PK is the RSA public key PEM the push
// engine (C6) verifies bearer tokens against. SK and TokenExpiration are
// kept for schema parity with the issuing service's config (which also
// mints tokens); this fabric never mints a token, so SK is never read.
type AuthConfig struct {
	PK              string `mapstructure:"pk"`
	SK              string `mapstructure:"sk"`
	TokenExpiration int64  `mapstructure:"token_expiration"`
}

// MessagingConfig is the §6 messaging.* block: bus transport selection
// between the NATS JetStream transport (default) and the watermill/AMQP
// alternative.
type MessagingConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Provider string       `mapstructure:"provider"` // "nats" or "amqp"
	Nats     NatsConfig   `mapstructure:"nats"`
	Amqp     AmqpConfig   `mapstructure:"amqp"`
}

type NatsConfig struct {
	URL                  string             `mapstructure:"url"`
	SubscriptionSubjects []string           `mapstructure:"subscription_subjects"`
	JetStream            JetStreamConfig    `mapstructure:"jetstream"`
}

type JetStreamConfig struct {
	Stream    string          `mapstructure:"stream"`
	Storage   string          `mapstructure:"storage"`
	MaxBytes  int64           `mapstructure:"max_bytes"`
	MaxAge    int64           `mapstructure:"max_age"` // seconds
	Consumers ConsumersConfig `mapstructure:"consumers"`
}

type ConsumersConfig struct {
	NotificationProcessor ConsumerConfig `mapstructure:"notification_processor"`
}

type ConsumerConfig struct {
	Name           string   `mapstructure:"name"`
	FilterSubjects []string `mapstructure:"filter_subjects"`
	AckWait        string   `mapstructure:"ack_wait"` // Go duration string, e.g. "30s"
	MaxDeliver     int      `mapstructure:"max_deliver"`
	MaxBatch       int      `mapstructure:"max_batch"`
	IdleHeartbeat  string   `mapstructure:"idle_heartbeat"`
}

func (c ConsumerConfig) AckWaitDuration() time.Duration       { return parseDurationOrZero(c.AckWait) }
func (c ConsumerConfig) IdleHeartbeatDuration() time.Duration { return parseDurationOrZero(c.IdleHeartbeat) }

func parseDurationOrZero(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

type AmqpConfig struct {
	URI      string `mapstructure:"uri"`
	Exchange string `mapstructure:"exchange"`
}

// NotifyConfig is the §6 notification.delivery.web.* block (C6 tuning).
type NotifyConfig struct {
	Delivery DeliveryConfig `mapstructure:"delivery"`
}

type DeliveryConfig struct {
	Web WebDeliveryConfig `mapstructure:"web"`
}

type WebDeliveryConfig struct {
	SSEEnabled             bool `mapstructure:"sse_enabled"`
	WSEnabled              bool `mapstructure:"ws_enabled"`
	ConnectionTimeoutMs    int  `mapstructure:"connection_timeout_ms"`
	HeartbeatIntervalMs    int  `mapstructure:"heartbeat_interval_ms"`
	MailboxSize            int  `mapstructure:"mailbox_size"`
}

func (w WebDeliveryConfig) ConnectionTimeout() time.Duration {
	return time.Duration(w.ConnectionTimeoutMs) * time.Millisecond
}

func (w WebDeliveryConfig) HeartbeatInterval() time.Duration {
	return time.Duration(w.HeartbeatIntervalMs) * time.Millisecond
}

// AnalyticsConfig is the §6 analytics.* block (C7 tuning).
type AnalyticsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	SubjectPrefix   string `mapstructure:"subject_prefix"`
	BatchSize       int    `mapstructure:"batch_size"`
	FlushIntervalMs int    `mapstructure:"flush_interval_ms"`
	QueueCapacity   int    `mapstructure:"queue_capacity"`
}

func (a AnalyticsConfig) FlushInterval() time.Duration {
	return time.Duration(a.FlushIntervalMs) * time.Millisecond
}

// SecurityConfig is the §6 security.* block.
type SecurityConfig struct {
	HMACSecret       string `mapstructure:"hmac_secret"`
	VerifySignatures bool   `mapstructure:"verify_signatures"`
}

// IngressConfig tunes C8, not named explicitly in spec.md §6 but sharing
// its subject-prefix/retry shape with analytics.
type IngressConfig struct {
	SubjectPrefix   string `mapstructure:"subject_prefix"`
	MaxPublishRetry int    `mapstructure:"max_publish_retry"`
	RetryBackoffMs  int    `mapstructure:"retry_backoff_ms"`
}

func (c IngressConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// MembershipConfig tunes C3's negative-cache and circuit-breaker, plus an
// optional set of workspaces to warm at boot (see cmd's startup warmup,
// grounded on the teacher's parallel-fan-out enrichment shape).
type MembershipConfig struct {
	NegativeCacheSize int     `mapstructure:"negative_cache_size"`
	WarmWorkspaceIDs  []int64 `mapstructure:"warm_workspace_ids"`
	// StaticSeed backs the dev/local InstanceStore (internal/adapter/membership/static)
	// that `cmd` wires when no production relational store is configured. Empty in
	// any deployment that supplies its own InstanceStore via fx.Replace.
	StaticSeed StaticSeedConfig `mapstructure:"static_seed"`
}

// StaticSeedConfig seeds the dev/local membership.InstanceStore from config
// rather than a relational store. Keys are decimal chat/workspace ids.
type StaticSeedConfig struct {
	ChatMembers    map[string][]int64 `mapstructure:"chat_members"`
	WorkspaceUsers map[string][]int64 `mapstructure:"workspace_users"`
}

// Load finds, reads, overrides, validates, and defaults the configuration,
// mirroring config.rs's load() pipeline step for step. explicitPath, when
// non-empty, is tried first (the --config_file CLI flag); falling back to
// the NOTIFY_CONFIG env var and then a fixed search list otherwise.
func Load(explicitPath string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if err := locateConfigFile(v, explicitPath); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
	}

	applyEnvOverrides(v)

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal %s: %w", v.ConfigFileUsed(), err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validate %s: %w", v.ConfigFileUsed(), err)
	}

	return &cfg, nil
}

// locateConfigFile mirrors config.rs's find_config_file priority order:
// explicit path/flag, then NOTIFY_CONFIG, then a fixed list of
// conventional container/host paths, then CWD.
func locateConfigFile(v *viper.Viper, explicitPath string) error {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return nil
	}

	if envPath := os.Getenv("NOTIFY_CONFIG"); envPath != "" {
		v.SetConfigFile(envPath)
		return nil
	}

	v.SetConfigName("notify")
	for _, p := range []string{
		"/app/config",
		"/etc/chatfabric",
		".",
	} {
		v.AddConfigPath(p)
	}
	return nil
}

// applyEnvOverrides mirrors config.rs's apply_env_overrides: a small,
// explicit list of environment variables win over file values, rather
// than viper.AutomaticEnv's blanket every-key override (which would make
// the file's shape advisory instead of authoritative).
func applyEnvOverrides(v *viper.Viper) {
	_ = v.BindEnv("server.port", "NOTIFY_PORT")
	_ = v.BindEnv("server.db_url", "DATABASE_URL")
	_ = v.BindEnv("messaging.nats.url", "NATS_URL")
}

// WatchForChanges installs an fsnotify-backed watch on the resolved config
// file and invokes onChange with the re-decoded AppConfig whenever the
// file is rewritten. The watch swaps nothing into running components
// itself; onChange is the only effect (cmd's onChange only logs the
// change). Returns the underlying
// viper instance's config path for logging.
func WatchForChanges(explicitPath string, onChange func(*AppConfig)) (string, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := locateConfigFile(v, explicitPath); err != nil {
		return "", err
	}
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
	}
	applyEnvOverrides(v)

	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg AppConfig
		if err := v.Unmarshal(&cfg); err != nil {
			slog.Default().Warn("config: hot-reload failed, keeping previous values", "error", err)
			return
		}
		applyDefaults(&cfg)
		onChange(&cfg)
	})
	v.WatchConfig()

	return v.ConfigFileUsed(), nil
}

// applyDefaults mirrors config.rs's apply_defaults.
func applyDefaults(c *AppConfig) {
	if c.Server.RequestTimeoutMs == 0 {
		c.Server.RequestTimeoutMs = 30_000
	}
	if c.Auth.TokenExpiration == 0 {
		c.Auth.TokenExpiration = 1800
	}
	if c.Messaging.Provider == "" {
		c.Messaging.Provider = "nats"
	}
	if c.Messaging.Nats.JetStream.MaxBytes == 0 {
		c.Messaging.Nats.JetStream.MaxBytes = 1 << 30
	}
	if c.Messaging.Nats.JetStream.MaxAge == 0 {
		c.Messaging.Nats.JetStream.MaxAge = 86_400
	}
	if c.Notify.Delivery.Web.ConnectionTimeoutMs == 0 {
		c.Notify.Delivery.Web.ConnectionTimeoutMs = 60_000
	}
	if c.Notify.Delivery.Web.HeartbeatIntervalMs == 0 {
		c.Notify.Delivery.Web.HeartbeatIntervalMs = 20_000
	}
	if c.Notify.Delivery.Web.MailboxSize == 0 {
		c.Notify.Delivery.Web.MailboxSize = 256
	}
	if c.Analytics.SubjectPrefix == "" {
		c.Analytics.SubjectPrefix = "notify.analytics.events"
	}
	if c.Analytics.BatchSize == 0 {
		c.Analytics.BatchSize = 100
	}
	if c.Analytics.FlushIntervalMs == 0 {
		c.Analytics.FlushIntervalMs = 5_000
	}
	if c.Analytics.QueueCapacity == 0 {
		c.Analytics.QueueCapacity = 2048
	}
	if c.Ingress.SubjectPrefix == "" {
		c.Ingress.SubjectPrefix = "notify"
	}
	if c.Ingress.MaxPublishRetry == 0 {
		c.Ingress.MaxPublishRetry = 5
	}
	if c.Ingress.RetryBackoffMs == 0 {
		c.Ingress.RetryBackoffMs = 200
	}
	if c.Membership.NegativeCacheSize == 0 {
		c.Membership.NegativeCacheSize = 4096
	}
}

// validate mirrors config.rs's validate_config.
func validate(c *AppConfig) error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port)
	}
	if c.Server.DBURL != "" &&
		!strings.HasPrefix(c.Server.DBURL, "postgres://") &&
		!strings.HasPrefix(c.Server.DBURL, "postgresql://") {
		return fmt.Errorf("server.db_url must start with postgres:// or postgresql://")
	}
	if c.Auth.PK == "" {
		return fmt.Errorf("auth.pk (JWT public key) cannot be empty")
	}
	if c.Auth.TokenExpiration <= 0 {
		return fmt.Errorf("auth.token_expiration must be positive, got %d", c.Auth.TokenExpiration)
	}
	if c.Messaging.Provider != "nats" && c.Messaging.Provider != "amqp" {
		return fmt.Errorf("messaging.provider must be nats or amqp, got %q", c.Messaging.Provider)
	}
	if c.Messaging.Enabled && c.Messaging.Provider == "nats" {
		if c.Messaging.Nats.URL == "" {
			return fmt.Errorf("messaging.nats.url cannot be empty when messaging is enabled")
		}
		if !strings.HasPrefix(c.Messaging.Nats.URL, "nats://") {
			return fmt.Errorf("messaging.nats.url must start with nats://")
		}
	}
	if c.Messaging.Enabled && c.Messaging.Provider == "amqp" {
		if c.Messaging.Amqp.URI == "" {
			return fmt.Errorf("messaging.amqp.uri cannot be empty when messaging is enabled")
		}
	}
	if c.Security.VerifySignatures && c.Security.HMACSecret == "" {
		return fmt.Errorf("security.hmac_secret is required when security.verify_signatures is true")
	}
	return nil
}

// ValidateProductionReadiness mirrors config.rs's validate_production_readiness:
// warnings are logged, not fatal; only genuine insecurity is an error.
func ValidateProductionReadiness(c *AppConfig, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	if strings.Contains(c.Server.DBURL, "postgres:postgres") {
		log.Warn("production readiness: using default database credentials")
	}
	if strings.Contains(c.Server.DBURL, "localhost") {
		log.Warn("production readiness: db_url is localhost, confirm this is intentional")
	}
	if !c.Security.VerifySignatures {
		log.Warn("production readiness: signature verification is disabled")
	}
	if c.Security.VerifySignatures && len(c.Security.HMACSecret) < 16 {
		return fmt.Errorf("production readiness: security.hmac_secret is too short for production use")
	}
	if strings.Contains(c.Messaging.Nats.URL, "localhost") {
		log.Warn("production readiness: messaging.nats.url is localhost, confirm this is intentional")
	}

	return nil
}

// Summary is a one-line, secret-free description for startup logs,
// mirroring config.rs's get_summary.
func (c *AppConfig) Summary() string {
	return fmt.Sprintf(
		"notify-server config: port=%d messaging=%s(%s) analytics=%v",
		c.Server.Port,
		c.Messaging.Provider,
		enabledOrDisabled(c.Messaging.Enabled),
		c.Analytics.Enabled,
	)
}

func enabledOrDisabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
