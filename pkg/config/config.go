package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
		Port    int    `yaml:"port"`
	} `yaml:"metrics"`
	Engine struct {
		PollInterval time.Duration `yaml:"poll_interval"`
		MinSleep     time.Duration `yaml:"min_sleep"`
		SnapshotPath string        `yaml:"snapshot_path"`
		CompactPath  string        `yaml:"compact_path"`
		ActiveHours  struct {
			Timezone  string `yaml:"timezone"`
			OpenHour  int    `yaml:"open_hour"`
			CloseHour int    `yaml:"close_hour"`
		} `yaml:"active_hours"`
		Thresholds struct {
			A0ChangePct          float64       `yaml:"a0_change_pct"`
			A0VolumeRatio        float64       `yaml:"a0_volume_ratio"`
			A1ChangePct          float64       `yaml:"a1_change_pct"`
			A1VolumeRatio        float64       `yaml:"a1_volume_ratio"`
			A1SoloChangePct      float64       `yaml:"a1_solo_change_pct"`
			A2ChangePct          float64       `yaml:"a2_change_pct"`
			A2VolumeRatio        float64       `yaml:"a2_volume_ratio"`
			A2SurgeChangePct     float64       `yaml:"a2_surge_change_pct"`
			A2SurgeVolumeRatio   float64       `yaml:"a2_surge_volume_ratio"`
			MinAverageVolume     float64       `yaml:"min_average_volume"`
			StaleVelocityPolls   int           `yaml:"stale_velocity_polls"`
			StaleVelocityEpsPct  float64       `yaml:"stale_velocity_eps_pct"`
			CatalystPromoteScore float64       `yaml:"catalyst_promote_score"`
			CatalystFreshFor     time.Duration `yaml:"catalyst_fresh_for"`
		} `yaml:"thresholds"`
		Hysteresis struct {
			MarginPct float64       `yaml:"margin_pct"`
			MinHold   time.Duration `yaml:"min_hold"`
		} `yaml:"hysteresis"`
		Cooldown struct {
			Base     time.Duration `yaml:"base"`
			Min      time.Duration `yaml:"min"`
			Max      time.Duration `yaml:"max"`
			RingSize int           `yaml:"ring_size"`
		} `yaml:"cooldown"`
		Lifecycle struct {
			MaxLifetime       time.Duration `yaml:"max_lifetime"`
			A0MaxAge          time.Duration `yaml:"a0_max_age"`
			A1MaxAge          time.Duration `yaml:"a1_max_age"`
			FreshnessHalfLife time.Duration `yaml:"freshness_half_life"`
		} `yaml:"lifecycle"`
	} `yaml:"engine"`
	Quotes struct {
		Source         string        `yaml:"source"`
		BaseURL        string        `yaml:"base_url"`
		APIKey         string        `yaml:"api_key"`
		Timeout        time.Duration `yaml:"timeout"`
		WebSocketURL   string        `yaml:"websocket_url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"quotes"`
	Watchlist struct {
		Source         string        `yaml:"source"`
		MaxSize        int           `yaml:"max_size"`
		ReloadInterval time.Duration `yaml:"reload_interval"`
		Timeout        time.Duration `yaml:"timeout"`
	} `yaml:"watchlist"`
	Catalyst struct {
		Enabled         bool          `yaml:"enabled"`
		Source          string        `yaml:"source"`
		BaseURL         string        `yaml:"base_url"`
		APIKey          string        `yaml:"api_key"`
		RefreshInterval time.Duration `yaml:"refresh_interval"`
		Timeout         time.Duration `yaml:"timeout"`
	} `yaml:"catalyst"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		SignalsTopic string   `yaml:"signals_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled       bool          `yaml:"enabled"`
			CatalystTopic string        `yaml:"catalyst_topic"`
			GroupID       string        `yaml:"group_id"`
			Workers       int           `yaml:"workers"`
			BufferSize    int           `yaml:"buffer_size"`
			RetryMax      int           `yaml:"retry_max"`
			BackoffMin    time.Duration `yaml:"backoff_min"`
			BackoffMax    time.Duration `yaml:"backoff_max"`
			DLQTopic      string        `yaml:"dlq_topic"`
			MinBytes      int           `yaml:"min_bytes"`
			MaxBytes      int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Host      string        `yaml:"host"`
		Port      int           `yaml:"port"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		Prefix    string        `yaml:"prefix"`
		MirrorTTL time.Duration `yaml:"mirror_ttl"`
	} `yaml:"redis"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides selected fields with
// environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("QUOTE_API_KEY"); v != "" {
		c.Quotes.APIKey = v
	}
	if v := os.Getenv("QUOTE_BASE_URL"); v != "" {
		c.Quotes.BaseURL = v
	}
	if v := os.Getenv("CATALYST_API_KEY"); v != "" {
		c.Catalyst.APIKey = v
	}
	if v := os.Getenv("WATCHLIST_SOURCE"); v != "" {
		c.Watchlist.Source = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SIGNALS_TOPIC"); v != "" {
		c.Kafka.SignalsTopic = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Quotes.Source == "" {
		c.Quotes.Source = "http"
	}
	if c.Quotes.Source != "http" && c.Quotes.Source != "ws" {
		return fmt.Errorf("quotes.source must be 'http' or 'ws', got '%s'", c.Quotes.Source)
	}
	if c.Quotes.Source == "http" && c.Quotes.BaseURL == "" {
		return fmt.Errorf("quotes.base_url is required")
	}
	if c.Quotes.Source == "ws" && c.Quotes.WebSocketURL == "" {
		return fmt.Errorf("quotes.websocket_url is required")
	}
	if c.Watchlist.Source == "" {
		return fmt.Errorf("watchlist.source is required")
	}
	if c.Engine.SnapshotPath == "" {
		return fmt.Errorf("engine.snapshot_path is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Enabled && c.Kafka.SignalsTopic == "" {
		return fmt.Errorf("kafka.signals_topic is required when kafka is enabled")
	}
	if c.Catalyst.Enabled {
		switch c.Catalyst.Source {
		case "http":
			if c.Catalyst.BaseURL == "" {
				return fmt.Errorf("catalyst.base_url is required for http catalyst source")
			}
		case "kafka":
			if !c.Kafka.Enabled || !c.Kafka.Consumer.Enabled {
				return fmt.Errorf("kafka consumer must be enabled for kafka catalyst source")
			}
		default:
			return fmt.Errorf("catalyst.source must be 'http' or 'kafka', got '%s'", c.Catalyst.Source)
		}
	}
	return nil
}
