package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	RedisURL    string `envconfig:"REDIS_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"booking.lifecycle.v1"`

	StripeSecretKey        string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret    string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeWebhookTolerance time.Duration `envconfig:"STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
	CheckoutSuccessURL     string        `envconfig:"CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/bookings/success"`
	CheckoutCancelURL      string        `envconfig:"CHECKOUT_CANCEL_URL" default:"http://localhost:3000/bookings/cancel"`
	ProcessorTimeout       time.Duration `envconfig:"PROCESSOR_TIMEOUT" default:"10s"`
	ProcessorReadRetries   uint          `envconfig:"PROCESSOR_READ_RETRIES" default:"3"`

	JWTSecret      string `envconfig:"JWT_SECRET" required:"true"`
	CronSecretHash string `envconfig:"CRON_SECRET_HASH"`

	Booking

	SendGridAPIKey   string `envconfig:"SENDGRID_API_KEY"`
	SendGridFrom     string `envconfig:"SENDGRID_FROM" default:"bookings@parkspace.local"`
	TwilioAccountSID string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom       string `envconfig:"TWILIO_FROM"`

	OTelEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTelEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
}

// Booking holds the business rules of the booking engine.
type Booking struct {
	ReferenceTimezone string `envconfig:"REFERENCE_TIMEZONE" default:"Europe/Rome"`
	// EnforceAvailability switches the weekly-schedule check on or off globally.
	EnforceAvailability   bool            `envconfig:"AVAILABILITY_ENFORCEMENT" default:"true"`
	MaxSegments           int             `envconfig:"MAX_SEGMENTS" default:"366"`
	RefundCutoff          time.Duration   `envconfig:"REFUND_CUTOFF" default:"12h"`
	DefaultCommissionRate decimal.Decimal `envconfig:"DEFAULT_COMMISSION_RATE" default:"0.15"`
	PaymentHoldTimeout    time.Duration   `envconfig:"PAYMENT_HOLD_TIMEOUT" default:"30m"`
	SweepSchedule         string          `envconfig:"SWEEP_SCHEDULE" default:"@every 5m"`
	RateLimitPerMinute    int             `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
}

// Load reads .env if present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) validate() error {
	if _, err := time.LoadLocation(c.Booking.ReferenceTimezone); err != nil {
		return fmt.Errorf("REFERENCE_TIMEZONE %q: %w", c.Booking.ReferenceTimezone, err)
	}
	rate := c.Booking.DefaultCommissionRate
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("DEFAULT_COMMISSION_RATE must be within [0,1], got %s", rate)
	}
	if c.Booking.MaxSegments <= 0 {
		return fmt.Errorf("MAX_SEGMENTS must be positive")
	}
	if strings.TrimSpace(c.StripeSecretKey) != "" && strings.TrimSpace(c.StripeWebhookSecret) == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	return nil
}

func (c Config) NotificationsEnabled() bool {
	return c.SendGridAPIKey != "" || (c.TwilioAccountSID != "" && c.TwilioAuthToken != "")
}
