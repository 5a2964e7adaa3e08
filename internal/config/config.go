package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port          int    `yaml:"port"`
	PublicBaseURL string `yaml:"public_base_url"` // used in callback URLs and QR URIs
}

type AdminConfig struct {
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	JWTTTL    time.Duration `yaml:"jwt_ttl"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	NonceTTL time.Duration `yaml:"nonce_ttl"`
}

type ProtocolConfig struct {
	SigningSecret         string `yaml:"signing_secret"` // empty disables challenge signatures
	PaymentTimeoutSeconds int    `yaml:"payment_timeout_seconds"`
}

// TokenConfig describes one ERC-20 style token accepted on a chain.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

// ChainConfig describes one chain the verifier registry serves. Family
// selects the verifier implementation; there is no guessing from the id.
type ChainConfig struct {
	ID             string                 `yaml:"id"`
	Family         string                 `yaml:"family"` // evm | solana
	RPCURL         string                 `yaml:"rpc_url"`
	Confirmations  uint64                 `yaml:"confirmations"`
	RPCTimeout     time.Duration          `yaml:"rpc_timeout"`
	NativeSymbol   string                 `yaml:"native_symbol"`
	NativeDecimals int                    `yaml:"native_decimals"`
	Tokens         map[string]TokenConfig `yaml:"tokens"`
}

const (
	ChainFamilyEVM    = "evm"
	ChainFamilySolana = "solana"
)

type WebhookConfig struct {
	URL         string        `yaml:"url"` // empty disables delivery
	Secret      string        `yaml:"secret"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	QueueSize   int           `yaml:"queue_size"`
}

type SweepConfig struct {
	SubscriptionInterval time.Duration `yaml:"subscription_interval"`
	InstallmentInterval  time.Duration `yaml:"installment_interval"`
	BatchSize            int           `yaml:"batch_size"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Admin    AdminConfig    `yaml:"admin"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Chains   []ChainConfig  `yaml:"chains"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Sweep    SweepConfig    `yaml:"sweep"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	cfg, err := LoadConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// LoadConfigFile parses and validates a config file without touching the
// flag package, so tools and tests can load configs on their own terms.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	cfg.Server.PublicBaseURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	if cfg.Admin.JWTTTL <= 0 {
		cfg.Admin.JWTTTL = 12 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.NonceTTL <= 0 {
		cfg.Redis.NonceTTL = 15 * time.Minute
	}
	if cfg.Protocol.PaymentTimeoutSeconds <= 0 {
		cfg.Protocol.PaymentTimeoutSeconds = 900
	}
	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		c.Family = strings.ToLower(c.Family)
		if c.Confirmations == 0 {
			c.Confirmations = defaultConfirmations(c.Family)
		}
		if c.RPCTimeout <= 0 {
			c.RPCTimeout = 10 * time.Second
		}
		if c.NativeDecimals == 0 {
			c.NativeDecimals = defaultNativeDecimals(c.Family)
		}
	}
	if cfg.Webhook.MaxAttempts <= 0 {
		cfg.Webhook.MaxAttempts = 5
	}
	if cfg.Webhook.Backoff <= 0 {
		cfg.Webhook.Backoff = 2 * time.Second
	}
	if cfg.Webhook.QueueSize <= 0 {
		cfg.Webhook.QueueSize = 256
	}
	if cfg.Sweep.SubscriptionInterval <= 0 {
		cfg.Sweep.SubscriptionInterval = 5 * time.Minute
	}
	if cfg.Sweep.InstallmentInterval <= 0 {
		cfg.Sweep.InstallmentInterval = 15 * time.Minute
	}
	if cfg.Sweep.BatchSize <= 0 {
		cfg.Sweep.BatchSize = 100
	}
}

func defaultConfirmations(family string) uint64 {
	switch family {
	case ChainFamilySolana:
		return 1
	default:
		return 3
	}
}

func defaultNativeDecimals(family string) int {
	switch family {
	case ChainFamilySolana:
		return 9 // lamports
	default:
		return 18 // wei
	}
}

func validate(cfg *Config) error {
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.Admin.APIKey == "" {
		return errors.New("admin.api_key is required")
	}
	if cfg.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required")
	}
	if len(cfg.Chains) == 0 {
		return errors.New("at least one chain must be configured")
	}
	seen := map[string]bool{}
	for _, c := range cfg.Chains {
		if c.ID == "" {
			return errors.New("chain id is required")
		}
		if seen[strings.ToLower(c.ID)] {
			return fmt.Errorf("duplicate chain id %q", c.ID)
		}
		seen[strings.ToLower(c.ID)] = true
		if c.Family != ChainFamilyEVM && c.Family != ChainFamilySolana {
			return fmt.Errorf("chain %s: family must be %q or %q", c.ID, ChainFamilyEVM, ChainFamilySolana)
		}
		if c.RPCURL == "" {
			return fmt.Errorf("chain %s: rpc_url is required", c.ID)
		}
		if c.NativeSymbol == "" {
			return fmt.Errorf("chain %s: native_symbol is required", c.ID)
		}
	}
	return nil
}

// Chain returns the configured chain by id, matching case-insensitively.
func (c *Config) Chain(id string) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if strings.EqualFold(ch.ID, id) {
			return ch, true
		}
	}
	return ChainConfig{}, false
}
