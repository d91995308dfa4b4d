package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"creditbridge/crypto"
)

const (
	DefaultRPCAddress  = ":8645"
	DefaultChainID     = "shido-local"
	DefaultEnvironment = "dev"
)

// Config is the bridge node configuration file.
type Config struct {
	DataDir         string `toml:"DataDir"`
	RPCAddress      string `toml:"RPCAddress"`
	Environment     string `toml:"Environment"`
	LogLevel        string `toml:"LogLevel"`
	LogFile         string `toml:"LogFile"`
	LogMaxSizeMB    int    `toml:"LogMaxSizeMB"`
	LogMaxBackups   int    `toml:"LogMaxBackups"`
	Bech32Prefix    string `toml:"Bech32Prefix"`
	ChainID         string `toml:"ChainID"`
	ContractAddress string `toml:"ContractAddress"`

	Bridge    Bridge    `toml:"Bridge"`
	Genesis   Genesis   `toml:"Genesis"`
	RPC       RPC       `toml:"RPC"`
	Telemetry Telemetry `toml:"Telemetry"`
}

// Load loads the configuration from the given path, writing a default file
// first when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}

	for _, undecoded := range meta.Undecoded() {
		if len(undecoded) == 2 && undecoded[0] == "Bridge" && undecoded[1] == "OracleKey" {
			return nil, fmt.Errorf("config file %s embeds an oracle private key; keep oracle keys in a keystore used by bridge-cli", path)
		}
	}

	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalise() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./bridge-data"
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = DefaultRPCAddress
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = DefaultEnvironment
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups <= 0 {
		c.LogMaxBackups = 5
	}
	c.Bech32Prefix = strings.ToLower(strings.TrimSpace(c.Bech32Prefix))
	if c.Bech32Prefix == "" {
		c.Bech32Prefix = string(crypto.DefaultPrefix)
	}
	if strings.TrimSpace(c.ChainID) == "" {
		c.ChainID = DefaultChainID
	}
	if strings.TrimSpace(c.ContractAddress) == "" {
		c.ContractAddress = DefaultContractAddress(crypto.AddressPrefix(c.Bech32Prefix))
	}
	if c.Genesis.Balances == nil {
		c.Genesis.Balances = map[string]string{}
	}
	if c.RPC.RequestsPerMinute == 0 {
		c.RPC.RequestsPerMinute = 600
	}
	if c.RPC.Burst == 0 {
		c.RPC.Burst = 60
	}
	if strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
		c.RPC.JWTSecretEnv = "BRIDGE_RPC_JWT_SECRET"
	}
	if c.RPC.ReadHeaderTimeout <= 0 {
		c.RPC.ReadHeaderTimeout = 5
	}
	if c.RPC.ShutdownTimeout <= 0 {
		c.RPC.ShutdownTimeout = 10
	}
}

// Prefix returns the configured bech32 human readable part.
func (c *Config) Prefix() crypto.AddressPrefix { return crypto.AddressPrefix(c.Bech32Prefix) }

// DefaultContractAddress derives the bridge account from its contract name
// so every node on a network agrees on it without coordination.
func DefaultContractAddress(prefix crypto.AddressPrefix) string {
	hash := ethcrypto.Keccak256([]byte("creditbridge/bridge"))
	return crypto.NewAddress(prefix, hash[12:]).String()
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.normalise()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
