package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration accepts both "15m"-style strings and integer nanoseconds in JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// JsonConfig is the on-disk shape of the optional JSON config file.
// Pointer fields distinguish "absent" from "zero" so a partial file only
// overrides what it names.
type JsonConfig struct {
	EndpointAddrHTTP            *string   `json:"endpoint_addr_http"`
	DatabaseDSN                 *string   `json:"database_dsn"`
	SecretKey                   *string   `json:"secret_key"`
	EncryptionKey               *string   `json:"encryption_key"`
	AccessTokenValidityDuration *Duration `json:"access_token_validity_duration"`
	EmailTokenValidityDuration  *Duration `json:"email_token_validity_duration"`
	BcryptCost                  *int      `json:"bcrypt_cost"`

	ProjectName    *string  `json:"project_name"`
	FrontendURL    *string  `json:"frontend_url"`
	AllowedOrigins []string `json:"allowed_origins"`

	SMTPHost        *string `json:"smtp_host"`
	SMTPPort        *int    `json:"smtp_port"`
	SMTPUser        *string `json:"smtp_user"`
	SMTPPassword    *string `json:"smtp_password"`
	SMTPTLS         *bool   `json:"smtp_tls"`
	SMTPSSL         *bool   `json:"smtp_ssl"`
	EmailsFromEmail *string `json:"emails_from_email"`
	EmailsFromName  *string `json:"emails_from_name"`

	FirstSuperuserUsername *string `json:"first_superuser_username"`
	FirstSuperuserEmail    *string `json:"first_superuser_email"`
	FirstSuperuserPassword *string `json:"first_superuser_password"`

	RedisAddr        *string   `json:"redis_addr"`
	LoginMaxAttempts *int      `json:"login_max_attempts"`
	LoginCooldown    *Duration `json:"login_cooldown"`

	LogFormat *string `json:"log_format"`
	LogLevel  *string `json:"log_level"`
}

// parseJson loads configuration values from the JSON file named by the
// -c or -config flag. Without the flag nothing is loaded. An unreadable
// file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := stringFlag("-c", "-config")
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	set(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.SecretKey, c.SecretKey)
	set(&config.EncryptionKey, c.EncryptionKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.EmailTokenValidityDuration, c.EmailTokenValidityDuration)
	set(&config.BcryptCost, c.BcryptCost)

	set(&config.ProjectName, c.ProjectName)
	set(&config.FrontendURL, c.FrontendURL)
	if c.AllowedOrigins != nil {
		config.AllowedOrigins = c.AllowedOrigins
	}

	set(&config.SMTPHost, c.SMTPHost)
	set(&config.SMTPPort, c.SMTPPort)
	set(&config.SMTPUser, c.SMTPUser)
	set(&config.SMTPPassword, c.SMTPPassword)
	set(&config.SMTPTLS, c.SMTPTLS)
	set(&config.SMTPSSL, c.SMTPSSL)
	set(&config.EmailsFromEmail, c.EmailsFromEmail)
	set(&config.EmailsFromName, c.EmailsFromName)

	set(&config.FirstSuperuserUsername, c.FirstSuperuserUsername)
	set(&config.FirstSuperuserEmail, c.FirstSuperuserEmail)
	set(&config.FirstSuperuserPassword, c.FirstSuperuserPassword)

	set(&config.RedisAddr, c.RedisAddr)
	set(&config.LoginMaxAttempts, c.LoginMaxAttempts)
	setDuration(&config.LoginCooldown, c.LoginCooldown)

	set(&config.LogFormat, c.LogFormat)
	set(&config.LogLevel, c.LogLevel)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
