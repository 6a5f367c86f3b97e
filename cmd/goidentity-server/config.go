package main

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/httpapi"
	"github.com/MrEthical07/goIdentity/notify"
)

// serverConfig is everything outside the engine: where the stores live,
// how mail leaves and how the process logs.
type serverConfig struct {
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"sqlite://goidentity.db"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"true"`

	// MailTransport is "smtp" or "log".
	MailTransport string            `env:"MAIL_TRANSPORT" envDefault:"log"`
	SMTP          notify.SMTPConfig `envPrefix:"SMTP_"`

	// AuditSinks is a comma-separated subset of db, log and file.
	AuditSinks []string        `env:"AUDIT_SINKS" envSeparator:"," envDefault:"db"`
	AuditFile  auditFileConfig `envPrefix:"AUDIT_FILE_"`
	HTTP       httpapi.Options `envPrefix:"HTTP_"`
}

type auditFileConfig struct {
	Path       string `env:"PATH" envDefault:"audit.log"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"100"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"10"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"90"`
	Compress   bool   `env:"COMPRESS" envDefault:"true"`
}

const redisInMemory = "memory"

func loadConfig() (serverConfig, goIdentity.Config, error) {
	var sc serverConfig
	if err := env.ParseWithOptions(&sc, env.Options{Prefix: goIdentity.EnvPrefix}); err != nil {
		return serverConfig{}, goIdentity.Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := sc.validate(); err != nil {
		return serverConfig{}, goIdentity.Config{}, err
	}

	cfg, err := goIdentity.LoadConfigFromEnv()
	if err != nil {
		return serverConfig{}, goIdentity.Config{}, err
	}
	return sc, cfg, nil
}

func (c *serverConfig) validate() error {
	switch c.MailTransport {
	case "smtp", "log":
	default:
		return fmt.Errorf("MAIL_TRANSPORT must be smtp or log, got %q", c.MailTransport)
	}
	for i, s := range c.AuditSinks {
		s = strings.ToLower(strings.TrimSpace(s))
		switch s {
		case "db", "log", "file", "none":
		default:
			return fmt.Errorf("unknown audit sink %q", s)
		}
		c.AuditSinks[i] = s
	}
	return nil
}
