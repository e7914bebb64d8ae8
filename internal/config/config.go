package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Duration lets TOML files spell durations as "720h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type S3 struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	PublicURL string `toml:"public_url"`
}

func (s S3) Configured() bool {
	return s.Bucket != "" && s.AccessKey != "" && s.SecretKey != ""
}

type Cloudinary struct {
	CloudName string `toml:"cloud_name"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	Folder    string `toml:"folder"`
}

type AMQP struct {
	URL      string `toml:"url"`
	Exchange string `toml:"exchange"`
}

type Push struct {
	VAPIDPublicKey  string `toml:"vapid_public_key"`
	VAPIDPrivateKey string `toml:"vapid_private_key"`
	Subscriber      string `toml:"subscriber"`
}

type Postmark struct {
	ServerToken string `toml:"server_token"`
	FromEmail   string `toml:"from_email"`
}

type Config struct {
	Port      string `toml:"port"`
	DBPath    string `toml:"db_path"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	JWTSecret  string   `toml:"jwt_secret"`
	JWTIssuer  string   `toml:"jwt_issuer"`
	SessionTTL Duration `toml:"session_ttl"`
	BcryptCost int      `toml:"bcrypt_cost"`

	DefaultAdminName string `toml:"default_admin_name"`
	GrantTitle       string `toml:"daily_grant_title"`
	GrantPoints      int    `toml:"daily_grant_points"`
	Timezone         string `toml:"timezone"`

	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`

	// ImageStore is "s3", "cloudinary" or "" for no uploads.
	ImageStore string `toml:"image_store"`

	S3         S3         `toml:"s3"`
	Cloudinary Cloudinary `toml:"cloudinary"`
	AMQP       AMQP       `toml:"amqp"`
	Push       Push       `toml:"push"`
	Postmark   Postmark   `toml:"postmark"`
}

func defaults() *Config {
	return &Config{
		Port:             "8080",
		DBPath:           "./data/familybank.db",
		LogLevel:         "info",
		LogFormat:        "text",
		JWTIssuer:        "familybank",
		SessionTTL:       Duration{30 * 24 * time.Hour},
		BcryptCost:       10,
		DefaultAdminName: "Admin",
		GrantTitle:       "Daily bonus",
		GrantPoints:      1,
		Timezone:         "UTC",
		RateLimit:        5,
		RateBurst:        10,
		AMQP:             AMQP{Exchange: "familybank"},
		S3:               S3{Region: "us-east-1"},
		Cloudinary:       Cloudinary{Folder: "familybank"},
	}
}

// Load reads .env if present, then the TOML file named by FAMILYBANK_CONFIG,
// then the environment. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("FAMILYBANK_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "PORT")
	setString(&c.DBPath, "DB_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")

	setString(&c.JWTSecret, "JWT_SECRET")
	setString(&c.JWTIssuer, "JWT_ISSUER")
	c.SessionTTL.Duration = getEnvDuration("SESSION_TTL", c.SessionTTL.Duration)
	c.BcryptCost = getEnvInt("BCRYPT_COST", c.BcryptCost)

	setString(&c.DefaultAdminName, "DEFAULT_ADMIN_NAME")
	setString(&c.GrantTitle, "DAILY_GRANT_TITLE")
	c.GrantPoints = getEnvInt("DAILY_GRANT_POINTS", c.GrantPoints)
	setString(&c.Timezone, "TIMEZONE")

	c.RateLimit = getEnvFloat("RATE_LIMIT", c.RateLimit)
	c.RateBurst = getEnvInt("RATE_BURST", c.RateBurst)

	setString(&c.ImageStore, "IMAGE_STORE")

	setString(&c.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.S3.Bucket, "S3_BUCKET")
	setString(&c.S3.Region, "S3_REGION")
	setString(&c.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.S3.SecretKey, "S3_SECRET_KEY")
	setString(&c.S3.PublicURL, "S3_PUBLIC_URL")

	setString(&c.Cloudinary.CloudName, "CLOUDINARY_CLOUD_NAME")
	setString(&c.Cloudinary.APIKey, "CLOUDINARY_API_KEY")
	setString(&c.Cloudinary.APISecret, "CLOUDINARY_API_SECRET")
	setString(&c.Cloudinary.Folder, "CLOUDINARY_FOLDER")

	setString(&c.AMQP.URL, "AMQP_URL")
	setString(&c.AMQP.Exchange, "AMQP_EXCHANGE")

	setString(&c.Push.VAPIDPublicKey, "VAPID_PUBLIC_KEY")
	setString(&c.Push.VAPIDPrivateKey, "VAPID_PRIVATE_KEY")
	setString(&c.Push.Subscriber, "VAPID_SUBSCRIBER")

	setString(&c.Postmark.ServerToken, "POSTMARK_SERVER_TOKEN")
	setString(&c.Postmark.FromEmail, "POSTMARK_FROM_EMAIL")
}

// Location resolves Timezone. Validate reports a bad zone; here it falls
// back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.DBPath == "" {
		problems = append(problems, "database path cannot be empty")
	} else if dir := filepath.Dir(c.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
		}
	}

	if len(c.JWTSecret) < 32 {
		problems = append(problems, "JWT_SECRET must be at least 32 characters")
	}
	if c.SessionTTL.Duration < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid session ttl %v: must be at least 1 minute", c.SessionTTL.Duration))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		problems = append(problems, fmt.Sprintf("invalid bcrypt cost %d: must be between 4 and 31", c.BcryptCost))
	}

	if strings.TrimSpace(c.GrantTitle) == "" {
		problems = append(problems, "daily grant title cannot be empty")
	}
	if c.GrantPoints < 1 {
		problems = append(problems, fmt.Sprintf("invalid daily grant points %d: must be at least 1", c.GrantPoints))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if c.RateLimit <= 0 || c.RateBurst < 1 {
		problems = append(problems, "rate limit and burst must be positive")
	}

	switch c.ImageStore {
	case "":
	case "s3":
		if !c.S3.Configured() {
			problems = append(problems, "IMAGE_STORE=s3 requires S3_BUCKET, S3_ACCESS_KEY and S3_SECRET_KEY")
		}
	case "cloudinary":
		if c.Cloudinary.CloudName == "" || c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "" {
			problems = append(problems, "IMAGE_STORE=cloudinary requires CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid image store '%s': must be s3, cloudinary or empty", c.ImageStore))
	}

	if c.AMQP.URL != "" {
		if u, err := url.Parse(c.AMQP.URL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQP.Exchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		problems = append(problems, "VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	if c.Postmark.ServerToken != "" && c.Postmark.FromEmail == "" {
		problems = append(problems, "POSTMARK_FROM_EMAIL is required when POSTMARK_SERVER_TOKEN is set")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
