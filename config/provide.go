package config

import (
	"strconv"
	"time"

	"github.com/chatfabric/notify-server/internal/adapter/membership/static"
	"github.com/chatfabric/notify-server/internal/adapter/pubsub"
	"github.com/chatfabric/notify-server/internal/adapter/pubsub/amqp"
	"github.com/chatfabric/notify-server/internal/adapter/pubsub/nats"
	"github.com/chatfabric/notify-server/internal/domain/ids"
	"github.com/chatfabric/notify-server/internal/service/analytics"
	"github.com/chatfabric/notify-server/internal/service/fanout"
	"github.com/chatfabric/notify-server/internal/server/http"
	"github.com/chatfabric/notify-server/internal/service/ingress"
	"github.com/chatfabric/notify-server/internal/service/push"
)

// NatsTransportConfig projects AppConfig onto the nats adapter's Config.
func (c *AppConfig) NatsTransportConfig() nats.Config {
	js := c.Messaging.Nats.JetStream
	return nats.Config{
		URL:            c.Messaging.Nats.URL,
		StreamName:     js.Stream,
		StreamSubjects: c.Messaging.Nats.SubscriptionSubjects,
		MaxAge:         time.Duration(js.MaxAge) * time.Second,
		MaxBytes:       js.MaxBytes,
	}
}

// AmqpTransportConfig projects AppConfig onto the amqp adapter's Config.
func (c *AppConfig) AmqpTransportConfig() amqp.Config {
	return amqp.Config{
		URI:      c.Messaging.Amqp.URI,
		Exchange: c.Messaging.Amqp.Exchange,
	}
}

// ConsumerConfig projects the notification_processor consumer block onto
// C2's transport-agnostic pubsub.ConsumerConfig, used by C5's durable
// subscription.
func (c *AppConfig) ConsumerConfig() pubsub.ConsumerConfig {
	cc := c.Messaging.Nats.JetStream.Consumers.NotificationProcessor
	return pubsub.ConsumerConfig{
		Stream:         c.Messaging.Nats.JetStream.Stream,
		Durable:        cc.Name,
		FilterSubjects: cc.FilterSubjects,
		AckWait:        cc.AckWaitDuration(),
		MaxDeliver:     cc.MaxDeliver,
		MaxBatch:       cc.MaxBatch,
		IdleHeartbeat:  cc.IdleHeartbeatDuration(),
	}
}

// SigningKey projects security.hmac_secret onto C5's SigningKey type. A
// disabled verify_signatures setting yields a nil key, which fanout.New
// (and ingress, below) both treat as "skip signing/verification" — the
// single knob spec.md's security.verify_signatures names.
func (c *AppConfig) SigningKey() fanout.SigningKey {
	if !c.Security.VerifySignatures {
		return nil
	}
	return fanout.SigningKey(c.Security.HMACSecret)
}

// AuthPublicKeyPEM returns the RSA public key PEM push verifies bearer
// tokens against. auth.sk/auth.token_expiration are kept for config schema
// parity with config.rs but never read here — push only verifies, it never
// mints tokens.
func (c *AppConfig) AuthPublicKeyPEM() []byte {
	return []byte(c.Auth.PK)
}

// PushConfig projects notification.delivery.web.* onto C6's Config.
func (c *AppConfig) PushConfig() push.Config {
	web := c.Notify.Delivery.Web
	return push.Config{
		HeartbeatInterval: web.HeartbeatInterval(),
		WriteTimeout:      web.ConnectionTimeout(),
		MailboxSize:       web.MailboxSize,
	}
}

// IngressPublisherConfig projects the ingress.* block onto C8's Config, reusing
// security.hmac_secret as the signing key ingress stamps onto every
// envelope it publishes — the same secret fanout.SigningKey verifies
// against on the consume side, since they are two ends of one signature.
func (c *AppConfig) IngressPublisherConfig() ingress.Config {
	var key []byte
	if c.Security.VerifySignatures {
		key = []byte(c.Security.HMACSecret)
	}
	return ingress.Config{
		SubjectPrefix:   c.Ingress.SubjectPrefix,
		SigningKey:      key,
		MaxPublishRetry: c.Ingress.MaxPublishRetry,
		RetryBackoff:    c.Ingress.RetryBackoff(),
	}
}

// AnalyticsPublisherConfig projects the analytics.* block onto C7's Config.
func (c *AppConfig) AnalyticsPublisherConfig() analytics.Config {
	return analytics.Config{
		Enabled:       c.Analytics.Enabled,
		Subject:       c.Analytics.SubjectPrefix,
		BatchSize:     c.Analytics.BatchSize,
		FlushInterval: c.Analytics.FlushInterval(),
		QueueCapacity: c.Analytics.QueueCapacity,
	}
}

// ServerHTTPConfig projects server.port onto the HTTP server's Config.
func (c *AppConfig) ServerHTTPConfig() httpserver.Config {
	return httpserver.Config{Port: c.Server.Port}
}

// WarmWorkspaceIDs projects membership.warm_workspace_ids onto typed
// WorkspaceIDs for the startup cache-warming hook in cmd.
func (c *AppConfig) WarmWorkspaceIDs() []ids.WorkspaceID {
	out := make([]ids.WorkspaceID, len(c.Membership.WarmWorkspaceIDs))
	for i, id := range c.Membership.WarmWorkspaceIDs {
		out[i] = ids.WorkspaceID(id)
	}
	return out
}

// StaticMembershipSeed projects membership.static_seed onto static.Seed for
// the dev/local InstanceStore. Malformed keys are skipped rather than
// failing startup — this is dev/test wiring, not a production data path.
func (c *AppConfig) StaticMembershipSeed() static.Seed {
	seed := static.Seed{
		ChatMembers:    make(map[ids.ChatID][]ids.UserID, len(c.Membership.StaticSeed.ChatMembers)),
		WorkspaceUsers: make(map[ids.WorkspaceID][]ids.UserID, len(c.Membership.StaticSeed.WorkspaceUsers)),
	}
	for k, members := range c.Membership.StaticSeed.ChatMembers {
		chatID, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		users := make([]ids.UserID, len(members))
		for i, u := range members {
			users[i] = ids.UserID(u)
		}
		seed.ChatMembers[ids.ChatID(chatID)] = users
	}
	for k, members := range c.Membership.StaticSeed.WorkspaceUsers {
		wsID, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		users := make([]ids.UserID, len(members))
		for i, u := range members {
			users[i] = ids.UserID(u)
		}
		seed.WorkspaceUsers[ids.WorkspaceID(wsID)] = users
	}
	return seed
}
