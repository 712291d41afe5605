package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/erpkeeper/internal/flagx"
	"github.com/dmitrijs2005/erpkeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the server configuration. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted. Only
// fields present in the file override the defaults.
type FileConfig struct {
	HTTPAddr        string         `json:"http_addr" yaml:"http_addr"`
	ShutdownTimeout timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`

	DatabaseDriver string `json:"database_driver" yaml:"database_driver"`
	DatabaseDSN    string `json:"database_dsn" yaml:"database_dsn"`
	MongoURI       string `json:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase  string `json:"mongo_database" yaml:"mongo_database"`

	AccessTokenSecret   string         `json:"access_token_secret" yaml:"access_token_secret"`
	RefreshTokenSecret  string         `json:"refresh_token_secret" yaml:"refresh_token_secret"`
	AccessTokenTTL      timex.Duration `json:"access_token_ttl" yaml:"access_token_ttl"`
	RefreshTokenTTL     timex.Duration `json:"refresh_token_ttl" yaml:"refresh_token_ttl"`
	VerificationCodeTTL timex.Duration `json:"verification_code_ttl" yaml:"verification_code_ttl"`
	BcryptCost          int            `json:"bcrypt_cost" yaml:"bcrypt_cost"`

	ConcealAccountExistence *bool `json:"conceal_account_existence" yaml:"conceal_account_existence"`

	CookieSecure   *bool    `json:"cookie_secure" yaml:"cookie_secure"`
	CookieSameSite string   `json:"cookie_samesite" yaml:"cookie_samesite"`
	CookieDomain   string   `json:"cookie_domain" yaml:"cookie_domain"`
	CORSOrigins    []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	RequestsPerMin int      `json:"requests_per_minute" yaml:"requests_per_minute"`

	S3AccessKey     string `json:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey     string `json:"s3_secret_key" yaml:"s3_secret_key"`
	S3Bucket        string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region        string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint  string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3PublicBaseURL string `json:"s3_public_base_url" yaml:"s3_public_base_url"`

	NotifySink   string `json:"notify_sink" yaml:"notify_sink"`
	SMTPHost     string `json:"smtp_host" yaml:"smtp_host"`
	SMTPPort     int    `json:"smtp_port" yaml:"smtp_port"`
	SMTPUser     string `json:"smtp_user" yaml:"smtp_user"`
	SMTPPassword string `json:"smtp_pass" yaml:"smtp_pass"`
	MailFrom     string `json:"mail_from" yaml:"mail_from"`
	NATSURL      string `json:"nats_url" yaml:"nats_url"`
	NATSSubject  string `json:"nats_subject" yaml:"nats_subject"`

	RedisAddr     string         `json:"redis_addr" yaml:"redis_addr"`
	AttemptLimit  int            `json:"attempt_limit" yaml:"attempt_limit"`
	AttemptWindow timex.Duration `json:"attempt_window" yaml:"attempt_window"`

	LogFormat    string `json:"log_format" yaml:"log_format"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint"`
}

// parseFile overlays values from the file named by -c / -config. The format
// is picked by extension: .yaml and .yml are YAML, anything else JSON.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.HTTPAddr, fc.HTTPAddr)
	setDuration(&c.ShutdownTimeout, fc.ShutdownTimeout)

	setString(&c.DatabaseDriver, fc.DatabaseDriver)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.MongoURI, fc.MongoURI)
	setString(&c.MongoDatabase, fc.MongoDatabase)

	setString(&c.AccessTokenSecret, fc.AccessTokenSecret)
	setString(&c.RefreshTokenSecret, fc.RefreshTokenSecret)
	setDuration(&c.AccessTokenTTL, fc.AccessTokenTTL)
	setDuration(&c.RefreshTokenTTL, fc.RefreshTokenTTL)
	setDuration(&c.VerificationCodeTTL, fc.VerificationCodeTTL)
	setInt(&c.BcryptCost, fc.BcryptCost)

	if fc.ConcealAccountExistence != nil {
		c.ConcealAccountExistence = *fc.ConcealAccountExistence
	}
	if fc.CookieSecure != nil {
		c.CookieSecure = *fc.CookieSecure
	}
	setString(&c.CookieSameSite, fc.CookieSameSite)
	setString(&c.CookieDomain, fc.CookieDomain)
	if len(fc.CORSOrigins) > 0 {
		c.CORSOrigins = fc.CORSOrigins
	}
	setInt(&c.RequestsPerMin, fc.RequestsPerMin)

	setString(&c.S3AccessKey, fc.S3AccessKey)
	setString(&c.S3SecretKey, fc.S3SecretKey)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&c.S3PublicBaseURL, fc.S3PublicBaseURL)

	setString(&c.NotifySink, fc.NotifySink)
	setString(&c.SMTPHost, fc.SMTPHost)
	setInt(&c.SMTPPort, fc.SMTPPort)
	setString(&c.SMTPUser, fc.SMTPUser)
	setString(&c.SMTPPassword, fc.SMTPPassword)
	setString(&c.MailFrom, fc.MailFrom)
	setString(&c.NATSURL, fc.NATSURL)
	setString(&c.NATSSubject, fc.NATSSubject)

	setString(&c.RedisAddr, fc.RedisAddr)
	setInt(&c.AttemptLimit, fc.AttemptLimit)
	setDuration(&c.AttemptWindow, fc.AttemptWindow)

	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.OTLPEndpoint, fc.OTLPEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
