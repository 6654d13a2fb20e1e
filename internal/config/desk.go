package config

import (
	"fmt"
	"time"
)

// DeskConfig configures the dashboard agent that runs next to the restaurant's screen.
type DeskConfig struct {
	Env              string                  `env:"ENV,default=local"`
	Logger           LoggerConfig            `env:",prefix=LOGGER_"`
	Observability    ObservabilityHTTPConfig `env:",prefix=OBSERVABILITY_"`
	ShutdownDuration time.Duration           `env:"SHUTDOWN_DURATION,default=10s"`
	Backend          BackendClientConfig     `env:",prefix=BACKEND_"`
	Desk             DeskHTTPConfig          `env:",prefix=DESK_"`
	Telegram         TelegramConfig          `env:",prefix=TELEGRAM_"`
	RabbitMQ         RabbitMQConfig          `env:",prefix=RABBITMQ_"`
}

type BackendClientConfig struct {
	URL           string        `env:"URL,default=http://127.0.0.1:8080"`
	RestaurantID  string        `env:"RESTAURANT_ID,required"`
	Username      string        `env:"USERNAME,required"`
	Password      string        `env:"PASSWORD,required"`
	Timeout       time.Duration `env:"TIMEOUT,default=15s"`
	PollInterval  time.Duration `env:"POLL_INTERVAL,default=30s"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL,default=3s"`
}

type DeskHTTPConfig struct {
	Host           string        `env:"HOST,default=127.0.0.1"`
	Port           uint16        `env:"PORT,default=8090"`
	Locale         string        `env:"LOCALE,default=en"`
	CurrencySymbol string        `env:"CURRENCY_SYMBOL,default=₹"`
	ActivitySize   int           `env:"ACTIVITY_SIZE,default=50"`
	Chime          bool          `env:"CHIME,default=true"`
	ReadTimeout    time.Duration `env:"READ_TIMEOUT,default=30s"`
}

func (d DeskHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

type TelegramConfig struct {
	BotToken string  `env:"BOT_TOKEN"`
	ChatIDs  []int64 `env:"CHAT_IDS"`
}

type RabbitMQConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT,default=5672"`
	User     string `env:"USER,default=guest"`
	Password string `env:"PASSWORD,default=guest"`
	Exchange string `env:"EXCHANGE,default=desk_activity"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.User, c.Password, c.Host, c.Port)
}
