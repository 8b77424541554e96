package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Firebase  FirebaseConfig
	Payment   PaymentConfig
	Paymob    PaymobConfig
	PayPal    PayPalConfig
	Tap       TapConfig
	Reconcile ReconcileConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// PublicURL is where providers reach our callbacks, e.g. https://api.example.com
	PublicURL string
}

type DatabaseConfig struct {
	// Driver is mysql or sqlite.
	Driver          string
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type FirebaseConfig struct {
	CredentialsFile string
}

type PaymentConfig struct {
	DepositProvider    string
	WithdrawalProvider string
	PayoutProvider     string
	Timeout            time.Duration
	Currency           string
	// StubSecret signs stub provider callbacks; empty disables the check.
	StubSecret string
	ReturnURL  string
}

type PaymobConfig struct {
	BaseURL       string
	IframeBaseURL string
	APIKey        string
	IntegrationID int
	IframeID      string
	HMACSecret    string
}

type PayPalConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	Currency      string
}

type TapConfig struct {
	BaseURL   string
	SecretKey string
	Currency  string
}

type ReconcileConfig struct {
	StaleAfter time.Duration
	BatchSize  int
}

// Load reads .env when present, then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8099"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			PublicURL:    getEnv("PUBLIC_URL", "http://localhost:8099"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DATABASE_DRIVER", "mysql"),
			DSN:             getEnv("DATABASE_DSN", "marketplace:marketplace@tcp(localhost:3306)/marketplace?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			Issuer:       getEnv("JWT_ISSUER", "marketplace"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
		Payment: PaymentConfig{
			DepositProvider:    getEnv("PAYMENT_DEPOSIT_PROVIDER", "paymob"),
			WithdrawalProvider: getEnv("PAYMENT_WITHDRAWAL_PROVIDER", "tap"),
			PayoutProvider:     getEnv("PAYMENT_PAYOUT_PROVIDER", "paypal"),
			Timeout:            getDuration("PAYMENT_PROVIDER_TIMEOUT", 20*time.Second),
			Currency:           getEnv("PAYMENT_CURRENCY", "EGP"),
			StubSecret:         getEnv("PAYMENT_STUB_SECRET", ""),
			ReturnURL:          getEnv("PAYMENT_RETURN_URL", ""),
		},
		Paymob: PaymobConfig{
			BaseURL:       getEnv("PAYMOB_BASE_URL", "https://accept.paymob.com/api"),
			IframeBaseURL: getEnv("PAYMOB_IFRAME_BASE_URL", "https://accept.paymob.com/api/acceptance/iframes"),
			APIKey:        getEnv("PAYMOB_API_KEY", ""),
			IntegrationID: getInt("PAYMOB_INTEGRATION_ID", 0),
			IframeID:      getEnv("PAYMOB_IFRAME_ID", ""),
			HMACSecret:    getEnv("PAYMOB_HMAC_SECRET", ""),
		},
		PayPal: PayPalConfig{
			BaseURL:       getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			ClientID:      getEnv("PAYPAL_CLIENT_ID", ""),
			ClientSecret:  getEnv("PAYPAL_CLIENT_SECRET", ""),
			WebhookSecret: getEnv("PAYPAL_WEBHOOK_SECRET", ""),
			Currency:      getEnv("PAYPAL_CURRENCY", "USD"),
		},
		Tap: TapConfig{
			BaseURL:   getEnv("TAP_BASE_URL", "https://api.tap.company"),
			SecretKey: getEnv("TAP_SECRET_KEY", ""),
			Currency:  getEnv("TAP_CURRENCY", "EGP"),
		},
		Reconcile: ReconcileConfig{
			StaleAfter: getDuration("RECONCILE_STALE_AFTER", 24*time.Hour),
			BatchSize:  getInt("RECONCILE_BATCH_SIZE", 100),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}
