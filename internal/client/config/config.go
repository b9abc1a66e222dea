package config

import "time"

// Config holds runtime settings for the wallet tool.
type Config struct {
	ServerEndpointAddr string
	DatabaseDSN        string
	KeyFile            string
	Currency           string
	SyncInterval       time.Duration
	BatchSize          int
	LogFile            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.DatabaseDSN = "wallet.db"
	c.KeyFile = "wallet.key"
	c.Currency = "NGN"
	c.SyncInterval = 30 * time.Second
	c.BatchSize = 100
}

// LoadConfig applies defaults and then the JSON file named by -c/-config.
// Command-line flags are bound on top of the result by the command tree.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	return cfg
}
