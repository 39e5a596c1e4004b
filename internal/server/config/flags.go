package config

import (
	"flag"
	"fmt"
	"strconv"
	"time"
)

// flagBinding binds one command-line flag to a Config field. Values go through
// the same parsers as environment variables.
type flagBinding struct {
	name  string
	usage string
	get   func(*Config) string
	set   func(*Config, string) error
}

func stringFlag(name, usage string, field func(*Config) *string) flagBinding {
	return flagBinding{
		name:  name,
		usage: usage,
		get:   func(c *Config) string { return *field(c) },
		set:   func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func durationFlag(name, usage string, field func(*Config) *time.Duration) flagBinding {
	return flagBinding{
		name:  name,
		usage: usage,
		get:   func(c *Config) string { return field(c).String() },
		set: func(c *Config, v string) error {
			d, err := parseDuration(v)
			if err != nil {
				return err
			}
			*field(c) = d
			return nil
		},
	}
}

// Supported flags:
//
//	-a string        HTTP bind address (e.g. ":8000")
//	-d string        PostgreSQL DSN
//	-store string    "postgres" or "memory"
//	-as string       access token secret
//	-rs string       refresh token secret
//	-t duration      access token lifetime ("15m")
//	-r duration      refresh token lifetime ("10d")
//	-hasher string   "bcrypt" or "argon2id"
//	-secure bool     Secure attribute on token cookies
//	-u, -p, -b, -g, -e, -public   S3 access key, secret key, bucket, region,
//	                 endpoint and public base URL
//	-c, -config      JSON config file
var flagBindings = []flagBinding{
	stringFlag("a", "address and port to run server", func(c *Config) *string { return &c.HTTPAddr }),
	stringFlag("d", "database DSN", func(c *Config) *string { return &c.DatabaseDSN }),
	stringFlag("store", "user store kind (postgres|memory)", func(c *Config) *string { return &c.StoreKind }),
	stringFlag("as", "access token secret", func(c *Config) *string { return &c.AccessTokenSecret }),
	stringFlag("rs", "refresh token secret", func(c *Config) *string { return &c.RefreshTokenSecret }),
	durationFlag("t", "access token lifetime", func(c *Config) *time.Duration { return &c.AccessTokenTTL }),
	durationFlag("r", "refresh token lifetime", func(c *Config) *time.Duration { return &c.RefreshTokenTTL }),
	stringFlag("hasher", "password hasher (bcrypt|argon2id)", func(c *Config) *string { return &c.PasswordHasher }),
	{
		name:  "secure",
		usage: "set Secure on token cookies",
		get:   func(c *Config) string { return strconv.FormatBool(c.CookieSecure) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			c.CookieSecure = b
			return err
		},
	},
	stringFlag("log-level", "log level", func(c *Config) *string { return &c.LogLevel }),
	stringFlag("upload-dir", "temporary upload directory", func(c *Config) *string { return &c.UploadDir }),
	stringFlag("u", "S3 access key", func(c *Config) *string { return &c.S3AccessKey }),
	stringFlag("p", "S3 secret key", func(c *Config) *string { return &c.S3SecretKey }),
	stringFlag("b", "S3 bucket", func(c *Config) *string { return &c.S3Bucket }),
	stringFlag("g", "S3 region", func(c *Config) *string { return &c.S3Region }),
	stringFlag("e", "S3 base endpoint", func(c *Config) *string { return &c.S3BaseEndpoint }),
	stringFlag("public", "public base URL of stored media", func(c *Config) *string { return &c.S3PublicBaseURL }),
}

// newFlagSet declares every flag with the current config value as default and
// returns an accessor for the JSON config path (-c / -config).
func newFlagSet(config *Config) (*flag.FlagSet, func() string) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	var jsonPath string
	fs.StringVar(&jsonPath, "config", "", "path to JSON config file")
	fs.StringVar(&jsonPath, "c", "", "path to JSON config file (short)")

	for _, s := range flagBindings {
		fs.String(s.name, s.get(config), s.usage)
	}
	return fs, func() string { return jsonPath }
}

// applyFlags writes only the flags given explicitly on the command line, so
// values from the JSON file survive unless overridden.
func applyFlags(config *Config, fs *flag.FlagSet) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		for _, s := range flagBindings {
			if s.name == f.Name {
				if e := s.set(config, f.Value.String()); e != nil {
					err = fmt.Errorf("flag -%s: %w", f.Name, e)
				}
				return
			}
		}
	})
	return err
}
