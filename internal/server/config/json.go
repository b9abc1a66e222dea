package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/offpay/internal/flagx"
	"github.com/dmitrijs2005/offpay/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations use timex.Duration so
// both "5m" and integer nanoseconds are accepted. Pointer fields distinguish
// "absent" from an explicit zero/false.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`

	RedisAddr     *string `json:"redis_addr"`
	RedisPassword string  `json:"redis_password"`
	RedisDB       int     `json:"redis_db"`

	S3RootUser     string  `json:"s3_root_user"`
	S3RootPassword string  `json:"s3_root_password"`
	S3Bucket       *string `json:"s3_bucket"`
	S3Region       string  `json:"s3_region"`
	S3BaseEndpoint string  `json:"s3_base_endpoint"`

	KeySealingSecret  string `json:"key_sealing_secret"`
	StorePrivateKeys  *bool  `json:"store_private_keys"`
	RequireSignatures *bool  `json:"require_signatures"`
	Currency          string `json:"currency"`

	PaymentRequestTTL  timex.Duration `json:"payment_request_ttl"`
	TimestampSkew      timex.Duration `json:"timestamp_skew"`
	MaxOfflineAge      timex.Duration `json:"max_offline_age"`
	NonceRetention     timex.Duration `json:"nonce_retention"`
	NonceSweepInterval timex.Duration `json:"nonce_sweep_interval"`
	DoubleSpendWindow  timex.Duration `json:"double_spend_window"`

	RateLimitRPS   float64 `json:"rate_limit_rps"`
	RateLimitBurst int     `json:"rate_limit_burst"`

	LogFile       string `json:"log_file"`
	LogMaxSizeMB  int    `json:"log_max_size_mb"`
	LogMaxBackups int    `json:"log_max_backups"`
	LogMaxAgeDays int    `json:"log_max_age_days"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flag; without it
// nothing is loaded. Only fields present in the file override the current
// values. If the file cannot be read or contains invalid JSON, the function
// panics.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)

	if c.RedisAddr != nil {
		config.RedisAddr = *c.RedisAddr
	}
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.RedisDB, c.RedisDB)

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	if c.S3Bucket != nil {
		config.S3Bucket = *c.S3Bucket
	}
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&config.KeySealingSecret, c.KeySealingSecret)
	if c.StorePrivateKeys != nil {
		config.StorePrivateKeys = *c.StorePrivateKeys
	}
	if c.RequireSignatures != nil {
		config.RequireSignatures = *c.RequireSignatures
	}
	setString(&config.Currency, c.Currency)

	setDuration(&config.PaymentRequestTTL, c.PaymentRequestTTL)
	setDuration(&config.TimestampSkew, c.TimestampSkew)
	setDuration(&config.MaxOfflineAge, c.MaxOfflineAge)
	setDuration(&config.NonceRetention, c.NonceRetention)
	setDuration(&config.NonceSweepInterval, c.NonceSweepInterval)
	setDuration(&config.DoubleSpendWindow, c.DoubleSpendWindow)

	if c.RateLimitRPS != 0 {
		config.RateLimitRPS = c.RateLimitRPS
	}
	setInt(&config.RateLimitBurst, c.RateLimitBurst)

	setString(&config.LogFile, c.LogFile)
	setInt(&config.LogMaxSizeMB, c.LogMaxSizeMB)
	setInt(&config.LogMaxBackups, c.LogMaxBackups)
	setInt(&config.LogMaxAgeDays, c.LogMaxAgeDays)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
