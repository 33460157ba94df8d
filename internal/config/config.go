package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of config/monitor.yaml
type Config struct {
	ServiceName   string              `yaml:"service_name"`
	Log           LogConfig           `yaml:"log"`
	HTTP          HTTPConfig          `yaml:"http"`
	Backend       BackendConfig       `yaml:"backend"`
	Channel       ChannelConfig       `yaml:"channel"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Cameras       CamerasConfig       `yaml:"cameras"`
	Views         ViewsConfig         `yaml:"views"`
	Relay         RelayConfig         `yaml:"relay"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json | console
	File       string `yaml:"file"`   // empty = stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type BackendConfig struct {
	BaseURL       string        `yaml:"base_url"`
	StreamPath    string        `yaml:"stream_path"`
	StreamBaseURL string        `yaml:"stream_base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryCount    int           `yaml:"retry_count"`
}

type ChannelConfig struct {
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HealthCheckInterval  time.Duration `yaml:"health_check_interval"`
	DedupWindow          time.Duration `yaml:"dedup_window"` // 0 disables replay suppression
	DedupSize            int           `yaml:"dedup_size"`
}

type NotificationsConfig struct {
	Max             int           `yaml:"max"`
	DefaultDuration time.Duration `yaml:"default_duration"`
}

type AlertsConfig struct {
	Max                  int           `yaml:"max"`
	DefaultAutoClose     time.Duration `yaml:"default_auto_close"`
	TrafficAutoClose     time.Duration `yaml:"traffic_auto_close"`
	EventAutoClose       time.Duration `yaml:"event_auto_close"`
	StatusErrorAutoClose time.Duration `yaml:"status_error_auto_close"`
	StatusAutoClose      time.Duration `yaml:"status_auto_close"`
}

type CamerasConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

type ViewsConfig struct {
	DashboardRingSize int         `yaml:"dashboard_ring_size"`
	DetailRingSize    int         `yaml:"detail_ring_size"`
	SearchPageSize    int         `yaml:"search_page_size"`
	Redis             RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

type RelayConfig struct {
	NATS NATSConfig `yaml:"nats"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

type NATSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Subject    string `yaml:"subject"`
	MaxRetries int    `yaml:"max_retries"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// Default returns the built-in policy values.
func Default() *Config {
	return &Config{
		ServiceName: "ts-vms-monitor",
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
		HTTP: HTTPConfig{
			Addr:            ":8090",
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:8080/api",
			StreamPath:    "/events/stream",
			StreamBaseURL: "http://localhost:5001",
			Timeout:       10 * time.Second,
			RetryCount:    2,
		},
		Channel: ChannelConfig{
			ReconnectDelay:       500 * time.Millisecond,
			MaxReconnectAttempts: 15,
			HealthCheckInterval:  10 * time.Second,
			DedupWindow:          time.Minute,
			DedupSize:            1024,
		},
		Notifications: NotificationsConfig{
			Max:             5,
			DefaultDuration: 3 * time.Second,
		},
		Alerts: AlertsConfig{
			Max:                  3,
			DefaultAutoClose:     8 * time.Second,
			TrafficAutoClose:     12 * time.Second,
			EventAutoClose:       8 * time.Second,
			StatusErrorAutoClose: 15 * time.Second,
			StatusAutoClose:      6 * time.Second,
		},
		Cameras: CamerasConfig{
			RefreshInterval: 60 * time.Second,
		},
		Views: ViewsConfig{
			DashboardRingSize: 50,
			DetailRingSize:    100,
			SearchPageSize:    20,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "monitor:events",
				TTL:       24 * time.Hour,
			},
		},
		Relay: RelayConfig{
			NATS: NATSConfig{
				URL:        "nats://localhost:4222",
				Subject:    "monitor.events",
				MaxRetries: 3,
			},
			MQTT: MQTTConfig{
				Broker:   "tcp://localhost:1883",
				ClientID: "ts-vms-monitor",
				Topic:    "monitor/events",
				QoS:      1,
			},
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies MONITOR_* env overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg.LoadFromEnv("MONITOR")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv overrides deployment-specific values.
func (c *Config) LoadFromEnv(prefix string) {
	setString(&c.Log.Level, prefix+"_LOG_LEVEL")
	setString(&c.Log.Format, prefix+"_LOG_FORMAT")
	setString(&c.Log.File, prefix+"_LOG_FILE")
	setString(&c.HTTP.Addr, prefix+"_HTTP_ADDR")
	setString(&c.Backend.BaseURL, prefix+"_BACKEND_URL")
	setString(&c.Backend.StreamBaseURL, prefix+"_STREAM_BASE_URL")
	setDuration(&c.Channel.ReconnectDelay, prefix+"_RECONNECT_DELAY")
	setInt(&c.Channel.MaxReconnectAttempts, prefix+"_MAX_RECONNECT_ATTEMPTS")
	setDuration(&c.Channel.DedupWindow, prefix+"_DEDUP_WINDOW")
	setDuration(&c.Cameras.RefreshInterval, prefix+"_REFRESH_INTERVAL")
	c.Views.Redis.LoadFromEnv(prefix + "_REDIS")
	c.Relay.NATS.LoadFromEnv(prefix + "_NATS")
	c.Relay.MQTT.LoadFromEnv(prefix + "_MQTT")
}

func (c *RedisConfig) LoadFromEnv(prefix string) {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		c.Addr = addr
		c.Enabled = true
	}
	setString(&c.Password, prefix+"_PASSWORD")
	setInt(&c.DB, prefix+"_DB")
}

func (c *NATSConfig) LoadFromEnv(prefix string) {
	if url := os.Getenv(prefix + "_URL"); url != "" {
		c.URL = url
		c.Enabled = true
	}
	setString(&c.Subject, prefix+"_SUBJECT")
}

func (c *MQTTConfig) LoadFromEnv(prefix string) {
	if broker := os.Getenv(prefix + "_BROKER"); broker != "" {
		c.Broker = broker
		c.Enabled = true
	}
	setString(&c.ClientID, prefix+"_CLIENT_ID")
	setString(&c.Username, prefix+"_USERNAME")
	setString(&c.Password, prefix+"_PASSWORD")
	setString(&c.Topic, prefix+"_TOPIC")
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Backend.BaseURL == "":
		return errors.New("backend.base_url is required")
	case c.Channel.ReconnectDelay <= 0:
		return errors.New("channel.reconnect_delay must be positive")
	case c.Channel.MaxReconnectAttempts < 0:
		return errors.New("channel.max_reconnect_attempts must not be negative")
	case c.Channel.HealthCheckInterval <= 0:
		return errors.New("channel.health_check_interval must be positive")
	case c.Notifications.Max <= 0:
		return errors.New("notifications.max must be positive")
	case c.Alerts.Max <= 0:
		return errors.New("alerts.max must be positive")
	case c.Channel.DedupWindow > 0 && c.Channel.DedupSize <= 0:
		return errors.New("channel.dedup_size must be positive when dedup_window is set")
	case c.Cameras.RefreshInterval <= 0:
		return errors.New("cameras.refresh_interval must be positive")
	case c.Views.DashboardRingSize <= 0:
		return errors.New("views.dashboard_ring_size must be positive")
	case c.Views.DetailRingSize <= 0:
		return errors.New("views.detail_ring_size must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format %q: want json or console", c.Log.Format)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
