package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/storefront/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":3000")
//	-d string   PostgreSQL DSN
//	-s string   session cookie HMAC secret
//	-u string   public base URL used in mail links
//	-t int      session TTL, minutes
//	-r int      reset token TTL, minutes
//	-m int      minimum password length
//	-secure     mark the session cookie Secure
//	-smtp string  SMTP host (empty: log mail only)
//	-redis string Redis address (empty: no throttling)
//	-l string   log level
//
// The function filters os.Args to the flags it recognizes using
// flagx.FilterArgs, so the JSON config flags do not collide.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-u", "-t", "-r", "-m", "-secure", "-smtp", "-redis", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.BaseURL, "u", config.BaseURL, "public base URL")

	sessionTTL := fs.Int("t", int(config.SessionTTL.Minutes()), "session ttl (in minutes)")
	resetTokenTTL := fs.Int("r", int(config.ResetTokenTTL.Minutes()), "reset token ttl (in minutes)")

	fs.IntVar(&config.MinPasswordLength, "m", config.MinPasswordLength, "minimum password length")
	fs.BoolVar(&config.CookieSecure, "secure", config.CookieSecure, "secure session cookie")
	fs.StringVar(&config.SMTPHost, "smtp", config.SMTPHost, "SMTP host")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "Redis address")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionTTL) * time.Minute
	config.ResetTokenTTL = time.Duration(*resetTokenTTL) * time.Minute
}
