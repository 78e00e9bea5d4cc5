package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the reminderd service.
type Config struct {
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string

	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers string
	SummaryTopic string

	Schedule     string
	Horizon      time.Duration
	QueryTimeout time.Duration
	SendTimeout  time.Duration

	Channel          string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
	CountryPrefix    string

	AdhocRateLimit  int
	AdhocRateWindow time.Duration
	DedupeEnabled   bool
	DedupeTTL       time.Duration

	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:    v.GetString("log_level"),
		HTTPAddr:    v.GetString("http_addr"),
		MetricsAddr: v.GetString("metrics_addr"),

		PostgresDSN:  v.GetString("postgres_dsn"),
		RedisAddr:    v.GetString("redis_addr"),
		KafkaBrokers: v.GetString("kafka_brokers"),
		SummaryTopic: v.GetString("summary_topic"),

		Schedule:     v.GetString("schedule"),
		Horizon:      v.GetDuration("horizon"),
		QueryTimeout: v.GetDuration("query_timeout"),
		SendTimeout:  v.GetDuration("send_timeout"),

		Channel:          v.GetString("channel"),
		TwilioAccountSID: v.GetString("twilio_account_sid"),
		TwilioAuthToken:  v.GetString("twilio_auth_token"),
		TwilioFromNumber: v.GetString("twilio_from_number"),
		CountryPrefix:    v.GetString("country_prefix"),

		AdhocRateLimit:  v.GetInt("adhoc_rate_limit"),
		AdhocRateWindow: v.GetDuration("adhoc_rate_window"),
		DedupeEnabled:   v.GetBool("dedupe_enabled"),
		DedupeTTL:       v.GetDuration("dedupe_ttl"),

		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
