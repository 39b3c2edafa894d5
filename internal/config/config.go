package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"os"
)

// Config holds the complete application configuration. It is loaded once at
// startup and treated as immutable afterwards; components receive it by
// reference and never mutate it.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Payments PaymentsConfig `yaml:"payments" json:"payments"`
	Gateways GatewaysConfig `yaml:"gateways" json:"gateways"`
	Currency CurrencyConfig `yaml:"currency" json:"currency"`
	Mail     MailConfig     `yaml:"mail" json:"mail"`
	Security SecurityConfig `yaml:"security" json:"security"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"CINEMARWA_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" json:"port" env:"CINEMARWA_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"CINEMARWA_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"CINEMARWA_WRITE_TIMEOUT" default:"30s"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors" env:"CINEMARWA_ENABLE_CORS" default:"true"`
	FrontendURL  string        `yaml:"frontend_url" json:"frontend_url" env:"FRONTEND_URL" default:"http://localhost:3000"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Type            string        `yaml:"type" json:"type" env:"DATABASE_TYPE" default:"sqlite"`
	Host            string        `yaml:"host" json:"host" env:"POSTGRES_HOST" default:"localhost"`
	Port            int           `yaml:"port" json:"port" env:"POSTGRES_PORT" default:"5432"`
	Username        string        `yaml:"username" json:"username" env:"POSTGRES_USER" default:"cinemarwa"`
	Password        string        `yaml:"password" json:"password" env:"POSTGRES_PASSWORD"`
	Database        string        `yaml:"database" json:"database" env:"POSTGRES_DB" default:"cinemarwa"`
	SQLitePath      string        `yaml:"sqlite_path" json:"sqlite_path" env:"SQLITE_PATH" default:"./data/cinemarwa.db"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" default:"100"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" default:"20"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" default:"2h"`
	LogQueries      bool          `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES" default:"false"`
}

// PaymentsConfig holds the revenue split and withdrawal policy knobs.
type PaymentsConfig struct {
	FilmmakerSharePercent int64  `yaml:"filmmaker_share_percent" json:"filmmaker_share_percent" env:"FILMMAKER_SHARE_PERCENTAGE" default:"70"`
	AdminSharePercent     int64  `yaml:"admin_share_percent" json:"admin_share_percent" env:"ADMIN_SHARE_PERCENTAGE" default:"30"`
	AdminMomoNumber       string `yaml:"admin_momo_number" json:"admin_momo_number" env:"ADMIN_MOMO_NUMBER"`
	MinimumWithdrawal     int64  `yaml:"minimum_withdrawal" json:"minimum_withdrawal" env:"MINIMUM_WITHDRAWAL" default:"500"`
	// BalanceInsufficientMessage is shown to viewers when the collecting
	// gateway reports the payer's wallet cannot cover the amount. It is a
	// config knob so deployments can localise it.
	BalanceInsufficientMessage string `yaml:"balance_insufficient_message" json:"balance_insufficient_message" env:"BALANCE_INSUFFICIENT_MESSAGE" default:"Amafaranga kuri konti yawe ntahagije"`
}

// GatewaysConfig holds the external payment gateway endpoints and credentials.
type GatewaysConfig struct {
	CollectingURL string        `yaml:"collecting_url" json:"collecting_url" env:"COLLECTING_GATEWAY_URL"`
	CollectingKey string        `yaml:"collecting_key" json:"collecting_key" env:"COLLECTING_GATEWAY_KEY"`
	DisbursingURL string        `yaml:"disbursing_url" json:"disbursing_url" env:"DISBURSING_GATEWAY_URL"`
	DisbursingKey string        `yaml:"disbursing_key" json:"disbursing_key" env:"DISBURSING_GATEWAY_KEY"`
	CardURL       string        `yaml:"card_url" json:"card_url" env:"CARD_GATEWAY_URL" default:"https://api.stripe.com/v1"`
	CardKey       string        `yaml:"card_key" json:"card_key" env:"CARD_GATEWAY_KEY"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" env:"GATEWAY_TIMEOUT" default:"30s"`
}

// CurrencyConfig holds the fixed conversion rate table. Each rate is the
// number of RWF bought by one unit of the foreign currency.
type CurrencyConfig struct {
	USDToRWF float64 `yaml:"usd_to_rwf" json:"usd_to_rwf" env:"RATE_USD_RWF" default:"1350"`
	EURToRWF float64 `yaml:"eur_to_rwf" json:"eur_to_rwf" env:"RATE_EUR_RWF" default:"1460"`
	GHSToRWF float64 `yaml:"ghs_to_rwf" json:"ghs_to_rwf" env:"RATE_GHS_RWF" default:"92"`
	XOFToRWF float64 `yaml:"xof_to_rwf" json:"xof_to_rwf" env:"RATE_XOF_RWF" default:"2.2"`
}

// MailConfig holds outbound email configuration for the outbox worker.
type MailConfig struct {
	SMTPHost     string `yaml:"smtp_host" json:"smtp_host" env:"SMTP_HOST"`
	SMTPPort     int    `yaml:"smtp_port" json:"smtp_port" env:"SMTP_PORT" default:"587"`
	SMTPUsername string `yaml:"smtp_username" json:"smtp_username" env:"SMTP_USERNAME"`
	SMTPPassword string `yaml:"smtp_password" json:"smtp_password" env:"SMTP_PASSWORD"`
	FromAddress  string `yaml:"from_address" json:"from_address" env:"MAIL_FROM" default:"no-reply@cinemarwa.rw"`
	SupportEmail string `yaml:"support_email" json:"support_email" env:"SUPPORT_EMAIL" default:"support@cinemarwa.rw"`
}

// SecurityConfig holds authentication secrets
type SecurityConfig struct {
	JWTSecret string `yaml:"jwt_secret" json:"jwt_secret" env:"JWT_SECRET"`
}

// Load builds the configuration from environment variables with struct-tag
// defaults and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Payments.FilmmakerSharePercent+c.Payments.AdminSharePercent != 100 {
		return fmt.Errorf("share percentages must sum to 100, got %d + %d",
			c.Payments.FilmmakerSharePercent, c.Payments.AdminSharePercent)
	}
	if c.Payments.FilmmakerSharePercent < 0 || c.Payments.AdminSharePercent < 0 {
		return fmt.Errorf("share percentages must not be negative")
	}
	if c.Payments.MinimumWithdrawal < 0 {
		return fmt.Errorf("minimum withdrawal must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	return nil
}

func loadStructFromEnv(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		// Handle nested structs recursively
		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := loadStructFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			envValue = fieldType.Tag.Get("default")
		}
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return err
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind: %s", field.Kind())
	}
	return nil
}
