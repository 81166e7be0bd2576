package config

import (
	"log"
	"strings"
	"time"

	"pix-gateway/internal/model"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	Settlements string `mapstructure:"settlements"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
}

type Acquirer struct {
	BaseURL    string `mapstructure:"base-url"`
	TimeoutMs  int    `mapstructure:"timeout-ms"`
	WebhookURL string `mapstructure:"webhook-url"`
	Scopes     string `mapstructure:"scopes"`
}

func (a Acquirer) Timeout() time.Duration {
	return time.Duration(a.TimeoutMs) * time.Millisecond
}

type Acquirers struct {
	SpedPay Acquirer `mapstructure:"spedpay"`
	Inter   Acquirer `mapstructure:"inter"`
	Ativus  Acquirer `mapstructure:"ativus"`
}

type Poller struct {
	PageSize int `mapstructure:"page-size"`
	DelayMs  int `mapstructure:"delay-ms"`
}

func (p Poller) Delay() time.Duration {
	return time.Duration(p.DelayMs) * time.Millisecond
}

// Platform holds the process-level fallbacks consulted after merchant and
// global settings rows.
type Platform struct {
	Acquirer          string `mapstructure:"acquirer"`
	FeePercentage     string `mapstructure:"fee-percentage"`
	FeeFixed          string `mapstructure:"fee-fixed"`
	ReportTimezone    string `mapstructure:"report-timezone"`
	SpedPaySecret     string `mapstructure:"spedpay-api-secret"`
	InterClientID     string `mapstructure:"inter-client-id"`
	InterClientSecret string `mapstructure:"inter-client-secret"`
	InterCertificate  string `mapstructure:"inter-certificate"`
	InterPrivateKey   string `mapstructure:"inter-private-key"`
	InterPixKey       string `mapstructure:"inter-pix-key"`
	AtivusAPIKey      string `mapstructure:"ativus-api-key"`
}

// Settings returns the non-empty fallbacks keyed by setting name.
func (p Platform) Settings() map[string]string {
	all := map[string]string{
		model.SettingAcquirer:          p.Acquirer,
		model.SettingFeePercentage:     p.FeePercentage,
		model.SettingFeeFixed:          p.FeeFixed,
		model.SettingReportTimezone:    p.ReportTimezone,
		model.SettingSpedPaySecret:     p.SpedPaySecret,
		model.SettingInterClientID:     p.InterClientID,
		model.SettingInterClientSecret: p.InterClientSecret,
		model.SettingInterCertificate:  p.InterCertificate,
		model.SettingInterPrivateKey:   p.InterPrivateKey,
		model.SettingInterPixKey:       p.InterPixKey,
		model.SettingAtivusAPIKey:      p.AtivusAPIKey,
	}

	settings := make(map[string]string, len(all))
	for k, v := range all {
		if v = strings.TrimSpace(v); v != "" {
			settings[k] = v
		}
	}
	return settings
}

type Server struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed-origins"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL   string `mapstructure:"url"`
	Level string `mapstructure:"level"`
}

type Config struct {
	Database  Database  `mapstructure:"database"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Acquirers Acquirers `mapstructure:"acquirers"`
	Poller    Poller    `mapstructure:"poller"`
	Platform  Platform  `mapstructure:"platform"`
	Server    Server    `mapstructure:"server"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Logs      Logs      `mapstructure:"logs"`
}

var defaults = map[string]any{
	"database.user":     "",
	"database.password": "",
	"database.name":     "",
	"database.host":     "",
	"database.port":     "5432",
	"database.ssl-mode": "disable",

	"kafka.writer.batch-size":       100,
	"kafka.writer.batch-timeout-ms": 100,
	"kafka.broker.url":              "",
	"kafka.topic.settlements":       "pix-settlements",

	"acquirers.spedpay.base-url":    "https://api.spedpay.space",
	"acquirers.spedpay.timeout-ms":  15_000,
	"acquirers.spedpay.webhook-url": "",
	"acquirers.spedpay.scopes":      "",
	"acquirers.inter.base-url":      "https://cdpj.partners.bancointer.com.br",
	"acquirers.inter.timeout-ms":    15_000,
	"acquirers.inter.webhook-url":   "",
	"acquirers.inter.scopes":        "cob.read cob.write",
	"acquirers.ativus.base-url":     "https://api.ativushub.com.br/v1",
	"acquirers.ativus.timeout-ms":   15_000,
	"acquirers.ativus.webhook-url":  "",
	"acquirers.ativus.scopes":       "",

	"poller.page-size": 100,
	"poller.delay-ms":  250,

	"platform.acquirer":            "",
	"platform.fee-percentage":      "",
	"platform.fee-fixed":           "",
	"platform.report-timezone":     "America/Sao_Paulo",
	"platform.spedpay-api-secret":  "",
	"platform.inter-client-id":     "",
	"platform.inter-client-secret": "",
	"platform.inter-certificate":   "",
	"platform.inter-private-key":   "",
	"platform.inter-pix-key":       "",
	"platform.ativus-api-key":      "",

	"server.port":            "8080",
	"server.allowed-origins": []string{"*"},

	"metrics.url":           "",
	"metrics.interval-ms":   10_000,
	"metrics.common-labels": "",

	"logs.url":   "",
	"logs.level": "info",
}

// LoadConfig reads config.yaml from path when present. Every key can be
// overridden from the environment, e.g. DATABASE_HOST or PLATFORM_FEE_PERCENTAGE.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}

// Validate reports platform configuration without which no invocation can run.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.Host == "" {
		missing = append(missing, "database.host")
	}
	if c.Database.User == "" {
		missing = append(missing, "database.user")
	}
	if c.Database.Name == "" {
		missing = append(missing, "database.name")
	}
	if len(missing) > 0 {
		return errors.Errorf("missing platform configuration: %s", strings.Join(missing, ", "))
	}

	if c.Platform.Acquirer != "" {
		if _, ok := model.ParseAcquirer(c.Platform.Acquirer); !ok {
			return errors.Errorf("platform.acquirer: unknown acquirer %q", c.Platform.Acquirer)
		}
	}
	if c.Poller.PageSize <= 0 {
		return errors.New("poller.page-size must be positive")
	}
	return nil
}
