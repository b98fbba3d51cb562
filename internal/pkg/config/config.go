package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DefaultAuthURL = "https://auth.production.ostrom-api.io/oauth2/token"
	DefaultAPIURL  = "https://production.ostrom-api.io"
)

type Config struct {
	OstromCfg *OstromConfig
	MqttCfg   *MqttConfig
	ServerCfg *ServerConfig
	// PollInterval is how often the scheduler kicks a refresh. Prices
	// only change hourly, 30m keeps the lookahead fresh without
	// hammering the API.
	PollInterval time.Duration
	LogLevel     string
}

type OstromConfig struct {
	ClientID     string `env:"OSTROM_CLIENT_ID"`
	ClientSecret string `env:"OSTROM_CLIENT_SECRET"`
	ZipCode      string `env:"OSTROM_ZIP_CODE"`
	AuthURL      string `env:"OSTROM_AUTH_URL"`
	APIURL       string `env:"OSTROM_API_URL"`
}

type MqttConfig struct {
	Host     string `env:"MQTT_HOST"`
	Username string `env:"MQTT_USER"`
	Password string `env:"MQTT_PASS"`
}

type ServerConfig struct {
	ListenAddr string `env:"HTTP_LISTEN_ADDR" envDefault:"0.0.0.0:8000"`
	// AdminPasswordHash is a bcrypt hash; when empty the admin
	// endpoints are open.
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
}

// FromEnv builds a Config purely from environment variables, for
// container deployments that bypass the CLI flags.
func FromEnv() (*Config, error) {
	cfg := &Config{
		OstromCfg:    &OstromConfig{},
		MqttCfg:      &MqttConfig{},
		ServerCfg:    &ServerConfig{},
		PollInterval: 30 * time.Minute,
		LogLevel:     "INFO",
	}
	if err := env.Parse(cfg.OstromCfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg.MqttCfg); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg.ServerCfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.OstromCfg == nil || c.OstromCfg.ClientID == "" || c.OstromCfg.ClientSecret == "" {
		return errors.New("ostrom client id and secret are required")
	}
	if c.OstromCfg.ZipCode == "" {
		return errors.New("ostrom zip code is required")
	}
	if c.OstromCfg.AuthURL == "" {
		c.OstromCfg.AuthURL = DefaultAuthURL
	}
	if c.OstromCfg.APIURL == "" {
		c.OstromCfg.APIURL = DefaultAPIURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Minute
	}
	return nil
}
