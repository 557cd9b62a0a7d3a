package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/storefront/internal/flagx"
	"github.com/dmitrijs2005/storefront/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration, so both "15m" and integer nanoseconds are accepted.
// Fields absent from the file leave the corresponding Config value as is.
type JsonConfig struct {
	HTTPAddr             *string         `json:"http_addr"`
	DatabaseDSN          *string         `json:"database_dsn"`
	SecretKey            *string         `json:"secret_key"`
	BaseURL              *string         `json:"base_url"`
	SessionTTL           *timex.Duration `json:"session_ttl"`
	SessionSweepInterval *timex.Duration `json:"session_sweep_interval"`
	ResetTokenTTL        *timex.Duration `json:"reset_token_ttl"`
	MinPasswordLength    *int            `json:"min_password_length"`
	CookieSecure         *bool           `json:"cookie_secure"`
	SMTPHost             *string         `json:"smtp_host"`
	SMTPPort             *int            `json:"smtp_port"`
	SMTPUser             *string         `json:"smtp_user"`
	SMTPPassword         *string         `json:"smtp_password"`
	MailFrom             *string         `json:"mail_from"`
	MailTimeout          *timex.Duration `json:"mail_timeout"`
	RedisAddr            *string         `json:"redis_addr"`
	RedisPassword        *string         `json:"redis_password"`
	RateLimitMax         *int            `json:"rate_limit_max"`
	RateLimitWindow      *timex.Duration `json:"rate_limit_window"`
	LogLevel             *string         `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by the
// -c or -config flag. Without the flag nothing is loaded. An unreadable
// file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.BaseURL, c.BaseURL)
	setDuration(&config.SessionTTL, c.SessionTTL)
	setDuration(&config.SessionSweepInterval, c.SessionSweepInterval)
	setDuration(&config.ResetTokenTTL, c.ResetTokenTTL)
	if c.MinPasswordLength != nil {
		config.MinPasswordLength = *c.MinPasswordLength
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	setString(&config.SMTPHost, c.SMTPHost)
	if c.SMTPPort != nil {
		config.SMTPPort = *c.SMTPPort
	}
	setString(&config.SMTPUser, c.SMTPUser)
	setString(&config.SMTPPassword, c.SMTPPassword)
	setString(&config.MailFrom, c.MailFrom)
	setDuration(&config.MailTimeout, c.MailTimeout)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RateLimitMax != nil {
		config.RateLimitMax = *c.RateLimitMax
	}
	setDuration(&config.RateLimitWindow, c.RateLimitWindow)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
