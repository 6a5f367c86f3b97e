package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/store/sqlstore"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GOIDENTITY_JWT_SECRET", strings.Repeat("x", 32))

	sc, cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite://goidentity.db", sc.DatabaseURL)
	assert.Equal(t, "log", sc.MailTransport)
	assert.Equal(t, []string{"db"}, sc.AuditSinks)
	assert.Equal(t, ":8080", sc.HTTP.Addr)
	assert.True(t, sc.HTTP.SecureCookies)
	assert.Equal(t, 587, sc.SMTP.Port)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("GOIDENTITY_JWT_SECRET", strings.Repeat("x", 32))
	t.Setenv("GOIDENTITY_REDIS_ADDR", "memory")
	t.Setenv("GOIDENTITY_AUDIT_SINKS", "DB, log")
	t.Setenv("GOIDENTITY_HTTP_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("GOIDENTITY_HTTP_SECURE_COOKIES", "false")
	t.Setenv("GOIDENTITY_SMTP_HOST", "smtp.example.com")
	t.Setenv("GOIDENTITY_LOCKOUT_THRESHOLD", "3")

	sc, cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, redisInMemory, sc.RedisAddr)
	assert.Equal(t, []string{"db", "log"}, sc.AuditSinks)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, sc.HTTP.AllowedOrigins)
	assert.False(t, sc.HTTP.SecureCookies)
	assert.Equal(t, "smtp.example.com", sc.SMTP.Host)
	assert.Equal(t, 3, cfg.Lockout.Threshold)
}

func TestLoadConfigRejectsUnknownValues(t *testing.T) {
	t.Setenv("GOIDENTITY_JWT_SECRET", strings.Repeat("x", 32))

	t.Setenv("GOIDENTITY_MAIL_TRANSPORT", "pigeon")
	_, _, err := loadConfig()
	require.Error(t, err)

	t.Setenv("GOIDENTITY_MAIL_TRANSPORT", "log")
	t.Setenv("GOIDENTITY_AUDIT_SINKS", "kafka")
	_, _, err = loadConfig()
	require.Error(t, err)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("GOIDENTITY_JWT_SECRET", "short")
	_, _, err := loadConfig()
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = newLogger("loud", false)
	require.Error(t, err)
}

func TestConnectRedisInMemory(t *testing.T) {
	client, closeFn, err := connectRedis(serverConfig{RedisAddr: redisInMemory}, zap.NewNop())
	require.NoError(t, err)
	defer closeFn()
	require.NoError(t, client.Ping(t.Context()).Err())
}

func TestNewAuditSinkFanOut(t *testing.T) {
	store, err := sqlstore.Open("sqlite://" + t.TempDir() + "/audit.db")
	require.NoError(t, err)
	defer store.Close()

	sc := serverConfig{
		AuditSinks: []string{"db", "log", "file"},
		AuditFile:  auditFileConfig{Path: t.TempDir() + "/audit.log", MaxSizeMB: 1},
	}
	sink, closeFn := newAuditSink(sc, store, zap.NewNop())
	defer closeFn()
	require.NotNil(t, sink)
}
