package app

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the provisioning tools.
type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"development"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	SupabaseURL         string        `envconfig:"SUPABASE_URL" required:"true"`
	SupabaseServiceKey  string        `envconfig:"SUPABASE_SERVICE_ROLE_KEY" required:"true"`
	SupabaseHTTPTimeout time.Duration `envconfig:"SUPABASE_HTTP_TIMEOUT" default:"30s"`

	// PGDSN switches record storage to a direct Postgres connection when set.
	PGDSN string `envconfig:"PG_DSN"`

	// RedisAddr enables the per-type code lock and queue mode when set.
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	LockTTL       time.Duration `envconfig:"PROVISION_LOCK_TTL" default:"90s"`
	LockWait      time.Duration `envconfig:"PROVISION_LOCK_WAIT" default:"10s"`
	ReportListKey string        `envconfig:"PROVISION_REPORT_LIST" default:"provision:reports"`

	RosterPath string `envconfig:"PROVISION_ROSTER_PATH"`
	ReportPath string `envconfig:"PROVISION_REPORT_PATH" default:"provisioning-report.json"`

	CodeScheme string `envconfig:"PROVISION_CODE_SCHEME" default:"sequential"`
	CodeWidth  int    `envconfig:"PROVISION_CODE_WIDTH" default:"4"`
	RecordMode string `envconfig:"PROVISION_RECORD_MODE" default:"steps"`

	ProfilePause      time.Duration `envconfig:"PROVISION_PROFILE_PAUSE" default:"2s"`
	VisibilityTimeout time.Duration `envconfig:"PROVISION_VISIBILITY_TIMEOUT" default:"10s"`
	PollInterval      time.Duration `envconfig:"PROVISION_POLL_INTERVAL" default:"250ms"`
	RollbackIdentity  bool          `envconfig:"PROVISION_ROLLBACK_IDENTITY" default:"false"`

	OpsAddr string `envconfig:"OPS_ADDR" default:":9090"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return errors.New("supabase url must be provided")
	}
	if c.SupabaseServiceKey == "" {
		return errors.New("supabase service role key must be provided")
	}
	if InTestMode() && !isLoopback(c.SupabaseURL) {
		return fmt.Errorf("test mode refuses non-local SUPABASE_URL %q", c.SupabaseURL)
	}
	switch c.CodeScheme {
	case "padded", "sequential", "dashed":
	default:
		return fmt.Errorf("invalid PROVISION_CODE_SCHEME %q (expected padded, sequential or dashed)", c.CodeScheme)
	}
	switch c.RecordMode {
	case "steps", "rpc":
	default:
		return fmt.Errorf("invalid PROVISION_RECORD_MODE %q (expected steps or rpc)", c.RecordMode)
	}
	if c.CodeWidth <= 0 {
		return errors.New("code width must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	// The code lock is held across the latest-code read and the insert,
	// two requests of up to SupabaseHTTPTimeout each.
	if c.RedisAddr != "" && c.LockTTL <= 2*c.SupabaseHTTPTimeout {
		return fmt.Errorf("PROVISION_LOCK_TTL %s must exceed twice SUPABASE_HTTP_TIMEOUT %s", c.LockTTL, c.SupabaseHTTPTimeout)
	}
	return nil
}

// IsProduction returns true when the tools run against production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func isLoopback(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
