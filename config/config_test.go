package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatfabric/notify-server/config"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "notify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const minimalYAML = `
server:
  port: 9090
auth:
  pk: "-----BEGIN PUBLIC KEY-----\ntest\n-----END PUBLIC KEY-----"
messaging:
  enabled: true
  provider: nats
  nats:
    url: "nats://localhost:4222"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(1800), cfg.Auth.TokenExpiration)
	assert.Equal(t, int64(1<<30), cfg.Messaging.Nats.JetStream.MaxBytes)
	assert.Equal(t, int64(86_400), cfg.Messaging.Nats.JetStream.MaxAge)
	assert.Equal(t, 256, cfg.Notify.Delivery.Web.MailboxSize)
	assert.Equal(t, "notify.analytics.events", cfg.Analytics.SubjectPrefix)
	assert.Equal(t, "notify", cfg.Ingress.SubjectPrefix)
	assert.Equal(t, 4096, cfg.Membership.NegativeCacheSize)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 0
auth:
  pk: "key"
`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestLoadRejectsMissingAuthKey(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.pk")
}

func TestLoadRejectsUnknownMessagingProvider(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
auth:
  pk: "key"
messaging:
  provider: kafka
`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "messaging.provider")
}

func TestLoadRejectsMissingHMACSecretWhenVerifyEnabled(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
auth:
  pk: "key"
security:
  verify_signatures: true
`)
	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hmac_secret")
}

func TestValidateProductionReadinessWarnsButSucceeds(t *testing.T) {
	path := writeConfigFile(t, minimalYAML)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.NoError(t, config.ValidateProductionReadiness(cfg, nil))
}

func TestValidateProductionReadinessFailsOnShortHMACSecret(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
auth:
  pk: "key"
security:
  verify_signatures: true
  hmac_secret: "short"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	err = config.ValidateProductionReadiness(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hmac_secret")
}

func TestSummaryOmitsSecrets(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
auth:
  pk: "key"
security:
  hmac_secret: "super-secret-value"
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	summary := cfg.Summary()
	assert.NotContains(t, summary, "super-secret-value")
	assert.Contains(t, summary, "port=8080")
}

func TestStaticMembershipSeedSkipsMalformedKeys(t *testing.T) {
	path := writeConfigFile(t, `
server:
  port: 8080
auth:
  pk: "key"
membership:
  static_seed:
    chat_members:
      "7": [1, 2, 3]
      "not-a-number": [9]
    workspace_users:
      "42": [1, 2]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	seed := cfg.StaticMembershipSeed()
	assert.Len(t, seed.ChatMembers, 1)
	assert.Len(t, seed.WorkspaceUsers, 1)
}
