package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/offpay/internal/flagx"
	"github.com/dmitrijs2005/offpay/internal/timex"
)

// JsonConfig is the file form of Config. Absent fields keep their defaults.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	DatabaseDSN        string         `json:"database_dsn"`
	KeyFile            string         `json:"key_file"`
	Currency           string         `json:"currency"`
	SyncInterval       timex.Duration `json:"sync_interval"`
	BatchSize          int            `json:"batch_size"`
	LogFile            string         `json:"log_file"`
}

// parseJson overlays cfg with the file passed as -c or -config. It panics
// when the file cannot be read or parsed.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.KeyFile, jc.KeyFile)
	setString(&cfg.Currency, jc.Currency)
	if jc.SyncInterval.Duration != 0 {
		cfg.SyncInterval = jc.SyncInterval.Duration
	}
	if jc.BatchSize != 0 {
		cfg.BatchSize = jc.BatchSize
	}
	setString(&cfg.LogFile, jc.LogFile)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
