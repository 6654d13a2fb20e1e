package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env              string                  `env:"ENV,default=local"`
	Logger           LoggerConfig            `env:",prefix=LOGGER_"`
	Observability    ObservabilityHTTPConfig `env:",prefix=OBSERVABILITY_"`
	API              APIHTTPConfig           `env:",prefix=API_"`
	ShutdownDuration time.Duration           `env:"SHUTDOWN_DURATION,default=30s"`
	DB               SQLiteConfig            `env:",prefix=DB_"`
	Auth             AuthConfig              `env:",prefix=AUTH_"`
	Admin            AdminConfig             `env:",prefix=ADMIN_"`
	YooKassa         YooKassaConfig          `env:",prefix=YOOKASSA_"`
	Payment          PaymentConfig           `env:",prefix=PAYMENT_"`
	Webhooks         WebhooksConfig          `env:",prefix=WEBHOOKS_"`
	WaiterCalls      WaiterCallsConfig       `env:",prefix=WAITER_CALLS_"`
}

type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=12h"`
}

type AdminConfig struct {
	Token string `env:"TOKEN,required"`
}

type YooKassaConfig struct {
	ShopID      string `env:"SHOP_ID"`
	SecretKey   string `env:"SECRET_KEY"`
	ReturnURL   string `env:"RETURN_URL,default=https://example.com/payment/return"`
	Currency    string `env:"CURRENCY,default=INR"`
	MockPayment bool   `env:"MOCK_PAYMENT,default=false"`
}

// Enabled reports whether gateway credentials are present.
func (c YooKassaConfig) Enabled() bool {
	return c.MockPayment || (c.ShopID != "" && c.SecretKey != "")
}

type PaymentConfig struct {
	CheckInterval time.Duration `env:"CHECK_INTERVAL,default=5s"`
	MaxChecks     int           `env:"MAX_CHECKS,default=60"`
}

type WebhooksConfig struct {
	Timeout time.Duration `env:"TIMEOUT,default=10s"`
	RPS     float64       `env:"RPS,default=10.0"`
}

type WaiterCallsConfig struct {
	TTL time.Duration `env:"TTL,default=30m"`
}

type LoggerConfig struct {
	Level string `env:"LEVEL,default=debug"`
}

type ObservabilityHTTPConfig struct {
	Host         string        `env:"HOST,default=127.0.0.1"`
	Port         uint16        `env:"PORT,default=8383"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a ObservabilityHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type APIHTTPConfig struct {
	Host        string        `env:"HOST,default=0.0.0.0"`
	Port        uint16        `env:"PORT,default=8080"`
	ReadTimeout time.Duration `env:"READ_TIMEOUT,default=30s"`
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT,default=2m"`
}

func (a APIHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type SQLiteConfig struct {
	Path         string `env:"PATH,default=./data/dinedesk.db"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS,default=1"`
	MaxIdleConns int    `env:"MAX_IDLE_CONNS,default=1"`
	MaxLifetime  string `env:"MAX_LIFETIME,default=5m"`
}
