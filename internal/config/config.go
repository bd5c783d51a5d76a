package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "github.com/andyyen817/ATMWater-BACKEND--sub000/libs/config"
)

// Config defines the vending core configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN          string `yaml:"dsn" env:"POSTGRES_DSN"`
		MaxOpenConns int    `yaml:"maxOpenConns" env:"POSTGRES_MAX_OPEN"`
		MaxIdleConns int    `yaml:"maxIdleConns" env:"POSTGRES_MAX_IDLE"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"REDIS_ADDR"`
		Password string `yaml:"password" env:"REDIS_PASSWORD"`
		DB       int    `yaml:"db" env:"REDIS_DB"`
	} `yaml:"redis"`
	Vendor struct {
		AppKey  string `yaml:"appKey" env:"VENDOR_APPKEY"`
		BaseURL string `yaml:"baseUrl" env:"VENDOR_BASE_URL"`
	} `yaml:"vendor"`
	Auth struct {
		JWTSecret string        `yaml:"jwtSecret" env:"JWT_SECRET"`
		QRSecret  string        `yaml:"qrSecret" env:"QR_SECRET"`
		QRMaxAge  time.Duration `yaml:"qrMaxAge" env:"QR_MAX_AGE"`
	} `yaml:"auth"`
	Device struct {
		InstanceID          string `yaml:"instanceId" env:"INSTANCE_ID"`
		SnowflakeNode       int64  `yaml:"snowflakeNode" env:"SNOWFLAKE_NODE"`
		HeartbeatTimeoutSec int    `yaml:"heartbeatTimeoutSeconds" env:"HEARTBEAT_TIMEOUT"`
		WriteTimeoutSec     int    `yaml:"writeTimeoutSeconds" env:"WS_WRITE_TIMEOUT"`
	} `yaml:"device"`
	Dispense struct {
		TimeoutSec  int   `yaml:"timeoutSeconds" env:"DISPENSE_TIMEOUT"`
		HQAccountID int64 `yaml:"hqAccountId" env:"HQ_ACCOUNT_ID"`
	} `yaml:"dispense"`
	Sweeper struct {
		Interval   time.Duration `yaml:"interval" env:"SWEEP_INTERVAL"`
		MaxRetries int           `yaml:"maxRetries" env:"SWEEP_MAX_RETRIES"`
		StaleAfter time.Duration `yaml:"staleAfter" env:"SWEEP_STALE_AFTER"`
	} `yaml:"sweeper"`
}

// Load reads configuration and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8080"
	cfg.Device.HeartbeatTimeoutSec = 180
	cfg.Device.WriteTimeoutSec = 15
	cfg.Dispense.TimeoutSec = 300
	cfg.Auth.QRMaxAge = 10 * time.Minute

	if err := libconfig.Load(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database DSN is required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr is required")
	}
	if strings.TrimSpace(cfg.Vendor.AppKey) == "" {
		return nil, errors.New("config: vendor appkey is required")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("config: jwt secret is required")
	}
	if cfg.Dispense.HQAccountID == 0 {
		return nil, errors.New("config: headquarters account id is required")
	}
	if cfg.Auth.QRSecret == "" {
		cfg.Auth.QRSecret = cfg.Vendor.AppKey
	}
	if cfg.Device.InstanceID == "" {
		cfg.Device.InstanceID = fmt.Sprintf("instance-%d", cfg.Device.SnowflakeNode)
	}
	return cfg, nil
}

// HTTPAddress returns the :port listen address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// HeartbeatTimeout is the device liveness bound.
func (c *Config) HeartbeatTimeout() time.Duration {
	if c.Device.HeartbeatTimeoutSec <= 0 {
		return 180 * time.Second
	}
	return time.Duration(c.Device.HeartbeatTimeoutSec) * time.Second
}

// WriteTimeout is the device socket write deadline.
func (c *Config) WriteTimeout() time.Duration {
	if c.Device.WriteTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Device.WriteTimeoutSec) * time.Second
}

// DispenseTimeout is the safety window for a pending order.
func (c *Config) DispenseTimeout() time.Duration {
	if c.Dispense.TimeoutSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Dispense.TimeoutSec) * time.Second
}
