package config

import (
	"errors"
	"fmt"
	"os"

	"messbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Coordinator   CoordinatorConfig   `yaml:"coordinator"`
	Listings      []ListingSeed       `yaml:"listings"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey maps an API key onto the actor requests run as.
type APIClientKey struct {
	Key             string      `yaml:"key"`
	Name            string      `yaml:"name"`
	Role            models.Role `yaml:"role"`
	ActorID         string      `yaml:"actor_id"`
	OwnedListingIDs []string    `yaml:"owned_listing_ids"`
}

// Actor returns the identity the key authenticates.
func (k APIClientKey) Actor() models.Actor {
	return models.Actor{Role: k.Role, ID: k.ActorID, OwnedListingIDs: k.OwnedListingIDs}
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	// Channel is the pub/sub channel used to relay change events between instances.
	Channel string `yaml:"channel"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type NotificationsConfig struct {
	Enabled        bool    `yaml:"enabled"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	QueueSize      int     `yaml:"queue_size"`
	SendRate       float64 `yaml:"send_rate"`
	LedgerTTLHours int     `yaml:"ledger_ttl_hours"`
}

type CoordinatorConfig struct {
	// ReserveCapacityOnConfirm decrements the listing's available count when
	// a booking is confirmed.
	ReserveCapacityOnConfirm bool `yaml:"reserve_capacity_on_confirm"`
}

// ListingSeed is a listing profile with its units, loaded at startup.
type ListingSeed struct {
	models.Listing `yaml:",inline"`
	Units          []models.Unit `yaml:"units"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return errors.New("telegram chat_id is required when bot_token is set")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis address is required when redis is enabled")
	}

	if err := ValidateAPIKeys(c.API.Auth.APIKeys); err != nil {
		return err
	}

	return ValidateListings(c.Listings)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for '%s'", k.Name)
		}
		seen[k.Key] = true

		switch k.Role {
		case models.RoleStudent, models.RolePartner, models.RoleOperator:
		default:
			return fmt.Errorf("api key '%s' has unknown role %q", k.Name, k.Role)
		}
		if k.ActorID == "" {
			return fmt.Errorf("api key '%s' has no actor_id", k.Name)
		}
	}
	return nil
}

func ValidateListings(listings []ListingSeed) error {
	// Check for duplicate listing IDs
	ids := make(map[string]bool)
	for _, l := range listings {
		if l.ID == "" {
			return fmt.Errorf("listing '%s' has empty ID", l.Name)
		}
		if ids[l.ID] {
			return fmt.Errorf("duplicate listing ID found: %s", l.ID)
		}
		ids[l.ID] = true
		if l.AvailableCount < 0 {
			return fmt.Errorf("listing '%s' has negative available_count", l.ID)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "messbook"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = models.DefaultRateLimitRPS
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = models.DefaultRateLimitBurst
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "messbook:changes"
	}

	// Notification defaults
	if c.Notifications.TimeoutSeconds == 0 {
		c.Notifications.TimeoutSeconds = models.DefaultNotifyTimeout
	}
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = models.DefaultNotifyQueueSize
	}
	if c.Notifications.SendRate == 0 {
		c.Notifications.SendRate = models.DefaultSendRate
	}
	if c.Notifications.LedgerTTLHours == 0 {
		c.Notifications.LedgerTTLHours = models.DefaultLedgerTTL / 3600
	}
}
