package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays values from the process environment. A dotenv file is
// loaded first (path from -env, ENV_FILE or ".env"); variables that are
// already set in the environment win over the file, and a missing file is
// not an error.
func parseEnv(config *Config) {
	envFile := stringFlag("-env")
	if envFile == "" {
		envFile = os.Getenv("ENV_FILE")
	}
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	str(&config.EndpointAddrHTTP, "HTTP_ADDR")
	str(&config.DatabaseDSN, "DATABASE_DSN")
	str(&config.SecretKey, "SECRET_KEY")
	str(&config.EncryptionKey, "ENCRYPTION_KEY")
	minutes(&config.AccessTokenValidityDuration, "ACCESS_TOKEN_EXPIRE_MINUTES")
	hours(&config.EmailTokenValidityDuration, "EMAIL_TOKEN_EXPIRE_HOURS")
	integer(&config.BcryptCost, "BCRYPT_COST")

	str(&config.ProjectName, "PROJECT_NAME")
	str(&config.FrontendURL, "FRONTEND_URL")
	list(&config.AllowedOrigins, "BACKEND_CORS_ORIGINS")

	str(&config.SMTPHost, "SMTP_HOST")
	integer(&config.SMTPPort, "SMTP_PORT")
	str(&config.SMTPUser, "SMTP_USER")
	str(&config.SMTPPassword, "SMTP_PASSWORD")
	boolean(&config.SMTPTLS, "SMTP_TLS")
	boolean(&config.SMTPSSL, "SMTP_SSL")
	str(&config.EmailsFromEmail, "EMAILS_FROM_EMAIL")
	str(&config.EmailsFromName, "EMAILS_FROM_NAME")
	integer(&config.MailWorkers, "MAIL_WORKERS")
	integer(&config.MailQueueSize, "MAIL_QUEUE_SIZE")

	str(&config.FirstSuperuserUsername, "FIRST_SUPERUSER_USERNAME")
	str(&config.FirstSuperuserEmail, "FIRST_SUPERUSER_EMAIL")
	str(&config.FirstSuperuserPassword, "FIRST_SUPERUSER_PASSWORD")

	str(&config.RedisAddr, "REDIS_ADDR")
	str(&config.RedisPassword, "REDIS_PASSWORD")
	integer(&config.LoginMaxAttempts, "LOGIN_MAX_ATTEMPTS")
	minutes(&config.LoginCooldown, "LOGIN_COOLDOWN_MINUTES")

	str(&config.LogFormat, "LOG_FORMAT")
	str(&config.LogLevel, "LOG_LEVEL")
}

// Each helper leaves the target untouched when the variable is unset or empty.
// Malformed numbers and booleans panic, the same way bad JSON or flags do.

func str(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func integer(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			panic(err)
		}
		*dst = n
	}
}

func boolean(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			panic(err)
		}
		*dst = b
	}
}

func minutes(dst *time.Duration, key string) {
	var n int
	if v, ok := os.LookupEnv(key); ok && v != "" {
		integer(&n, key)
		*dst = time.Duration(n) * time.Minute
	}
}

func hours(dst *time.Duration, key string) {
	var n int
	if v, ok := os.LookupEnv(key); ok && v != "" {
		integer(&n, key)
		*dst = time.Duration(n) * time.Hour
	}
}

func list(dst *[]string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}
