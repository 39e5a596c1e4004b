package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// jsonDuration accepts both "15m"/"10d" strings and integer nanoseconds.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = jsonDuration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = jsonDuration(n)
	return nil
}

// JsonConfig is the on-disk shape of the JSON config file. Absent keys keep
// the values configured by earlier layers.
type JsonConfig struct {
	HTTPAddr           *string       `json:"http_addr"`
	DatabaseDSN        *string       `json:"database_dsn"`
	StoreKind          *string       `json:"store_kind"`
	AccessTokenSecret  *string       `json:"access_token_secret"`
	RefreshTokenSecret *string       `json:"refresh_token_secret"`
	AccessTokenTTL     *jsonDuration `json:"access_token_ttl"`
	RefreshTokenTTL    *jsonDuration `json:"refresh_token_ttl"`
	PasswordHasher     *string       `json:"password_hasher"`
	BcryptCost         *int          `json:"bcrypt_cost"`
	CookieSecure       *bool         `json:"cookie_secure"`
	LogLevel           *string       `json:"log_level"`
	LogFormat          *string       `json:"log_format"`
	UploadDir          *string       `json:"upload_dir"`
	MaxUploadBytes     *int64        `json:"max_upload_bytes"`
	RequestTimeout     *jsonDuration `json:"request_timeout"`
	S3AccessKey        *string       `json:"s3_access_key"`
	S3SecretKey        *string       `json:"s3_secret_key"`
	S3Bucket           *string       `json:"s3_bucket"`
	S3Region           *string       `json:"s3_region"`
	S3BaseEndpoint     *string       `json:"s3_base_endpoint"`
	S3PublicBaseURL    *string       `json:"s3_public_base_url"`
}

// parseJSON reads path and overlays every present key onto config.
func parseJSON(config *Config, path string) error {
	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setDuration := func(dst *time.Duration, v *jsonDuration) {
		if v != nil {
			*dst = time.Duration(*v)
		}
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StoreKind, c.StoreKind)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setDuration(&config.AccessTokenTTL, c.AccessTokenTTL)
	setDuration(&config.RefreshTokenTTL, c.RefreshTokenTTL)
	setString(&config.PasswordHasher, c.PasswordHasher)
	if c.BcryptCost != nil {
		config.BcryptCost = *c.BcryptCost
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.UploadDir, c.UploadDir)
	if c.MaxUploadBytes != nil {
		config.MaxUploadBytes = *c.MaxUploadBytes
	}
	setDuration(&config.RequestTimeout, c.RequestTimeout)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicBaseURL, c.S3PublicBaseURL)

	return nil
}
