package httpapi

import "time"

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refresh_token"

// Options configures the HTTP surface. Fields carry env tags so the server
// binary can load them with the GOIDENTITY_HTTP_ prefix.
type Options struct {
	Addr           string        `env:"ADDR" envDefault:":8080"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	SecureCookies  bool          `env:"SECURE_COOKIES" envDefault:"true"`
	CookieDomain   string        `env:"COOKIE_DOMAIN"`
	TrustProxy     bool          `env:"TRUST_PROXY"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES" envDefault:"16384"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	// ExposeMetrics mounts the Prometheus handler on /metrics.
	ExposeMetrics bool `env:"EXPOSE_METRICS" envDefault:"true"`
}

// DefaultOptions mirrors the envDefault tags.
func DefaultOptions() Options {
	return Options{
		Addr:           ":8080",
		AllowedOrigins: []string{"http://localhost:3000"},
		SecureCookies:  true,
		MaxBodyBytes:   16 << 10,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		ExposeMetrics:  true,
	}
}
