package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the scanner processes.
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Tron        TronConfig     `mapstructure:"tron"`
	KuCoin      KuCoinConfig   `mapstructure:"kucoin"`
	Gateways    GatewayConfig  `mapstructure:"gateways"`
	Payment     PaymentConfig  `mapstructure:"payment"`
	Notify      NotifyConfig   `mapstructure:"notify"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TronConfig points at the full node and names the collection address swept
// funds end up at.
type TronConfig struct {
	APIURL            string `mapstructure:"api_url"`
	CollectionAddress string `mapstructure:"collection_address"`
	DynamicAddresses  bool   `mapstructure:"dynamic_addresses"`
	Timeout           int    `mapstructure:"timeout"`
}

type KuCoinConfig struct {
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`
	APIPassphrase string `mapstructure:"api_passphrase"`
	BaseURL       string `mapstructure:"base_url"`
	Timeout       int    `mapstructure:"timeout"`
}

// GatewayConfig carries the per-gateway endpoints; fee schedules are compiled
// into the domain layer.
type GatewayConfig struct {
	WeSwapPayURL    string `mapstructure:"weswap_pay_url"`
	WeSwapRateURL   string `mapstructure:"weswap_rate_url"`
	DigiSwapPayURL  string `mapstructure:"digiswap_pay_url"`
	DigiSwapRateURL string `mapstructure:"digiswap_rate_url"`
	ChangeToPayURL  string `mapstructure:"changeto_pay_url"`
	ChangeToRateURL string `mapstructure:"changeto_rate_url"`
	BitPinRateURL   string `mapstructure:"bitpin_rate_url"`
	RateCacheTTL    int    `mapstructure:"rate_cache_ttl"`
}

type PaymentConfig struct {
	MiddlePage bool   `mapstructure:"middle_page"`
	MiddleURL  string `mapstructure:"middle_url"`
}

// NotifyConfig is the outbound settlement callback.
type NotifyConfig struct {
	ServerURL string `mapstructure:"server_url"`
	Secret    string `mapstructure:"secret"`
}

// RateURL returns the configured rate endpoint for a gateway id.
func (g GatewayConfig) RateURL(gatewayID int) string {
	switch gatewayID {
	case 1:
		return g.WeSwapRateURL
	case 2:
		return g.DigiSwapRateURL
	case 3:
		return g.ChangeToRateURL
	case 4:
		return g.BitPinRateURL
	}
	return ""
}

// PayURL returns the configured payment page for a gateway id.
func (g GatewayConfig) PayURL(gatewayID int) string {
	switch gatewayID {
	case 1:
		return g.WeSwapPayURL
	case 2:
		return g.DigiSwapPayURL
	case 3:
		return g.ChangeToPayURL
	}
	return ""
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("metrics_addr", "")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "trxgate")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("tron.api_url", "https://api.trongrid.io")
	viper.SetDefault("tron.dynamic_addresses", true)
	viper.SetDefault("tron.timeout", 30)

	viper.SetDefault("kucoin.base_url", "https://api.kucoin.com")
	viper.SetDefault("kucoin.timeout", 30)

	viper.SetDefault("gateways.rate_cache_ttl", 60)

	viper.SetDefault("payment.middle_page", false)
}

func validate(cfg *Config) error {
	if cfg.Tron.CollectionAddress == "" {
		return fmt.Errorf("tron.collection_address is required")
	}
	return nil
}
