// Package profile holds the runtime configuration consumed by the server.
// Values come from the environment (DEALCOACH_* variables), with a local
// .env file honored in development; no core behavior depends on how they
// are loaded.
package profile

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Profile is the set of scalar configuration values.
type Profile struct {
	// Mode is "prod" or "dev".
	Mode string
	// Addr is the bind address, Port the bind port.
	Addr string
	Port int
	// Data is the working directory for sqlite and the vector index.
	Data string
	// DSN is the sqlite database path; defaults to Data/dealcoach.db.
	DSN string

	// Secret signs and verifies bearer tokens.
	Secret string

	// UpstreamAPIKey is the provider credential; per-request overrides are
	// possible but this is the default key.
	UpstreamAPIKey string
	// UpstreamBaseURL is the provider API root, e.g. https://api.openai.com/v1.
	UpstreamBaseURL string
	// RealtimeModel negotiates voice sessions; ScoringModel runs evaluations.
	RealtimeModel string
	ScoringModel  string

	// Upstream retry policy.
	RequestTimeout    time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	BackoffMultiplier float64

	// CacheTTL applies to aggregate reads; CacheLocalTTL caps the in-process
	// shadow. RedisAddr enables the shared layer when non-empty.
	CacheTTL      time.Duration
	CacheLocalTTL time.Duration
	RedisAddr     string

	// Quota policy.
	QuotaWindow       time.Duration
	QuotaDefaultLimit int32
}

// IsDev reports whether the profile runs in development mode.
func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// DatabasePath returns the effective sqlite path.
func (p *Profile) DatabasePath() string {
	if p.DSN != "" {
		return p.DSN
	}
	return fmt.Sprintf("%s/dealcoach.db", p.Data)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "dev")
	v.SetDefault("addr", "")
	v.SetDefault("port", 8081)
	v.SetDefault("data", "./data")
	v.SetDefault("dsn", "")
	v.SetDefault("secret", "dealcoach")
	v.SetDefault("upstream_api_key", "")
	v.SetDefault("upstream_base_url", "https://api.openai.com/v1")
	v.SetDefault("realtime_model", "gpt-4o-realtime-preview")
	v.SetDefault("scoring_model", "gpt-4o-mini")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("max_retries", 3)
	v.SetDefault("initial_backoff", "500ms")
	v.SetDefault("backoff_multiplier", 2.0)
	v.SetDefault("cache_ttl", "5m")
	v.SetDefault("cache_local_ttl", "30s")
	v.SetDefault("redis_addr", "")
	v.SetDefault("quota_window", "720h") // 30 days
	v.SetDefault("quota_default_limit", 50)
}

// Load reads the profile from the environment.
func Load() (*Profile, error) {
	v := viper.New()
	v.SetEnvPrefix("dealcoach")
	v.AutomaticEnv()
	setDefaults(v)

	p := &Profile{
		Mode:              v.GetString("mode"),
		Addr:              v.GetString("addr"),
		Port:              v.GetInt("port"),
		Data:              v.GetString("data"),
		DSN:               v.GetString("dsn"),
		Secret:            v.GetString("secret"),
		UpstreamAPIKey:    v.GetString("upstream_api_key"),
		UpstreamBaseURL:   v.GetString("upstream_base_url"),
		RealtimeModel:     v.GetString("realtime_model"),
		ScoringModel:      v.GetString("scoring_model"),
		RequestTimeout:    v.GetDuration("request_timeout"),
		MaxRetries:        v.GetInt("max_retries"),
		InitialBackoff:    v.GetDuration("initial_backoff"),
		BackoffMultiplier: v.GetFloat64("backoff_multiplier"),
		CacheTTL:          v.GetDuration("cache_ttl"),
		CacheLocalTTL:     v.GetDuration("cache_local_ttl"),
		RedisAddr:         v.GetString("redis_addr"),
		QuotaWindow:       v.GetDuration("quota_window"),
		QuotaDefaultLimit: int32(v.GetInt("quota_default_limit")),
	}
	if p.Mode != "prod" && p.Mode != "dev" {
		p.Mode = "dev"
	}
	return p, nil
}
