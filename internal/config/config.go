package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"printstudio/internal/domain/model"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod

	DatabaseURL      string // あれば最優先
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret  string
	AccessTTL  time.Duration // アクセストークン
	SessionTTL time.Duration // サーバー側セッション

	TaxRate            decimal.Decimal
	ShippingRates      map[model.ShippingMethod]int64
	PaymentMaxAttempts int

	MPesa MPesaConfig
}

// M-Pesa (Daraja) の接続設定
type MPesaConfig struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionType string
	Timeout         time.Duration
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

// 配送方法ごとの送料。未知の方法は false
func (c Config) ShippingCost(method model.ShippingMethod) (int64, bool) {
	v, ok := c.ShippingRates[method]
	return v, ok
}

// Loadは環境変数（.envがあれば先に読む）
func Load() (Config, error) {
	envFile := getenv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	var errs []error
	num := func(key string, def int) int {
		v, err := atoiDefault(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	dur := func(key string, def time.Duration) time.Duration {
		v, err := durationDefault(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	taxRate, err := decimal.NewFromString(getenv("TAX_RATE", "0.16"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TAX_RATE must be decimal: %w", err))
	}

	cfg := Config{
		Port:  getenv("PORT", "8080"),
		GoEnv: os.Getenv("GO_ENV"),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     getenv("POSTGRES_USER", "postgres"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getenv("POSTGRES_DB", "printstudio"),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     num("POSTGRES_PORT", 5432),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       num("REDIS_DB", 0),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		AccessTTL:  dur("ACCESS_TTL", 15*time.Minute),
		SessionTTL: dur("SESSION_TTL", 7*24*time.Hour),

		TaxRate: taxRate,
		ShippingRates: map[model.ShippingMethod]int64{
			model.ShippingMethodStandard: int64(num("SHIPPING_STANDARD_COST", 500)),
			model.ShippingMethodExpress:  int64(num("SHIPPING_EXPRESS_COST", 1000)),
			model.ShippingMethodPickup:   int64(num("SHIPPING_PICKUP_COST", 0)),
		},
		PaymentMaxAttempts: num("PAYMENT_MAX_ATTEMPTS", 5),

		MPesa: MPesaConfig{
			BaseURL:         getenv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:     os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret:  os.Getenv("MPESA_CONSUMER_SECRET"),
			ShortCode:       os.Getenv("MPESA_SHORTCODE"),
			PassKey:         os.Getenv("MPESA_PASSKEY"),
			CallbackURL:     os.Getenv("MPESA_CALLBACK_URL"),
			TransactionType: getenv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
			Timeout:         dur("MPESA_TIMEOUT", 30*time.Second),
		},
	}

	//必須チェック
	required := map[string]string{
		"GO_ENV":                cfg.GoEnv,
		"JWT_SECRET":            cfg.JWTSecret,
		"MPESA_CONSUMER_KEY":    cfg.MPesa.ConsumerKey,
		"MPESA_CONSUMER_SECRET": cfg.MPesa.ConsumerSecret,
		"MPESA_SHORTCODE":       cfg.MPesa.ShortCode,
		"MPESA_PASSKEY":         cfg.MPesa.PassKey,
		"MPESA_CALLBACK_URL":    cfg.MPesa.CallbackURL,
	}
	for _, key := range requiredOrder {
		if required[key] == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	if cfg.TaxRate.IsNegative() || cfg.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("TAX_RATE must be between 0 and 1"))
	}
	if cfg.PaymentMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("PAYMENT_MAX_ATTEMPTS must be positive"))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// エラーメッセージの順番を固定するため
var requiredOrder = []string{
	"GO_ENV",
	"JWT_SECRET",
	"MPESA_CONSUMER_KEY",
	"MPESA_CONSUMER_SECRET",
	"MPESA_SHORTCODE",
	"MPESA_PASSKEY",
	"MPESA_CALLBACK_URL",
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoiDefault(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func durationDefault(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}
