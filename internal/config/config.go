package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration loaded from YAML.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Database   DatabaseConfig             `yaml:"database"`
	NATS       NATSConfig                 `yaml:"nats"`
	Blockchain BlockchainConfig           `yaml:"blockchain"`
	Admin      AdminConfig                `yaml:"admin"`
	CORS       CORSConfig                 `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig NATS message transport configuration
type NATSConfig struct {
	URL             string `yaml:"url"`
	Timeout         int    `yaml:"timeout"`
	ReconnectWait   int    `yaml:"reconnect_wait"`
	MaxReconnects   int    `yaml:"max_reconnects"`
	EnableJetStream bool   `yaml:"enable_jetstream"`
	// Subject prefixes. Inbound chain events arrive on
	// <events_subject>.<blockchain>, bridge completions on
	// <completions_subject>, outbound bridge actions go to
	// <bridge_subject>.<blockchain>.
	EventsSubject      string `yaml:"events_subject"`
	CompletionsSubject string `yaml:"completions_subject"`
	BridgeSubject      string `yaml:"bridge_subject"`
}

// BlockchainConfig per-network configuration
type BlockchainConfig struct {
	Networks map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig configuration of one chain
type NetworkConfig struct {
	ChainID      string `yaml:"chainId"`
	RPCEndpoint  string `yaml:"rpcEndpoint"`
	// Bridge contract address (EVM) or deposit wallet API base URL (Cardano).
	BridgeContract string `yaml:"bridgeContract"`
	WalletAPIURL   string `yaml:"walletApiUrl"`
	// Backend signing key, hex without 0x prefix. EVM chains only.
	PrivateKey string `yaml:"privateKey"`
	// Signature block-number window: a create request older than this many
	// blocks is rejected.
	SignatureExpiryBlocks uint64 `yaml:"signatureExpiryBlocks"`
	// Confirmation polling budget.
	ConfirmationRetrySeconds int `yaml:"confirmationRetrySeconds"`
	ConfirmationMaxRetries   int `yaml:"confirmationMaxRetries"`
	// Conversions still USER_INITIATED after this many minutes are expired.
	ConversionExpiryMinutes int  `yaml:"conversionExpiryMinutes"`
	Enabled                 bool `yaml:"enabled"`
}

// AdminConfig admin API access configuration
type AdminConfig struct {
	JWTSecret  string `yaml:"jwtSecret"`
	TOTPSecret string `yaml:"totpSecret"`
	Username   string `yaml:"username"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

var AppConfig *Config

// LoadConfig loads the configuration file and applies env overrides.
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	AppConfig = &config
	return nil
}

func applyDefaults(config *Config) {
	if config.NATS.EventsSubject == "" {
		config.NATS.EventsSubject = "converter.events"
	}
	if config.NATS.CompletionsSubject == "" {
		config.NATS.CompletionsSubject = "converter.bridge.completed"
	}
	if config.NATS.BridgeSubject == "" {
		config.NATS.BridgeSubject = "converter.bridge"
	}
	for name, network := range config.Blockchain.Networks {
		if network.ConfirmationRetrySeconds == 0 {
			network.ConfirmationRetrySeconds = 10
		}
		if network.ConfirmationMaxRetries == 0 {
			network.ConfirmationMaxRetries = 6
		}
		if network.ConversionExpiryMinutes == 0 {
			network.ConversionExpiryMinutes = 24 * 60
		}
		if network.SignatureExpiryBlocks == 0 {
			network.SignatureExpiryBlocks = 500
		}
		config.Blockchain.Networks[name] = network
	}
}

// overrideFromEnv applies environment variable overrides.
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if jwtSecret := os.Getenv("ADMIN_JWT_SECRET"); jwtSecret != "" {
		config.Admin.JWTSecret = jwtSecret
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}

	for networkName, networkConfig := range config.Blockchain.Networks {
		prefix := strings.ToUpper(networkName)
		if rpc := os.Getenv(prefix + "_RPC_ENDPOINT"); rpc != "" {
			networkConfig.RPCEndpoint = rpc
		}
		if key := os.Getenv(prefix + "_PRIVATE_KEY"); key != "" {
			networkConfig.PrivateKey = key
		} else if key := os.Getenv("PRIVATE_KEY"); key != "" && networkConfig.PrivateKey == "" {
			networkConfig.PrivateKey = key
		}
		if contract := os.Getenv(prefix + "_BRIDGE_CONTRACT"); contract != "" {
			networkConfig.BridgeContract = contract
		}
		if walletAPI := os.Getenv(prefix + "_WALLET_API_URL"); walletAPI != "" {
			networkConfig.WalletAPIURL = walletAPI
		}
		config.Blockchain.Networks[networkName] = networkConfig
	}
}

// GetNetworkConfig returns the configuration of one enabled network.
func GetNetworkConfig(networkName string) (*NetworkConfig, error) {
	if AppConfig == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	network, exists := AppConfig.Blockchain.Networks[networkName]
	if !exists {
		return nil, fmt.Errorf("network %s not found in config", networkName)
	}
	if !network.Enabled {
		return nil, fmt.Errorf("network %s is disabled", networkName)
	}
	return &network, nil
}
