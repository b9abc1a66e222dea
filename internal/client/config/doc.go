// Package config loads runtime configuration for the wallet tool.
//
// Values come from built-in defaults, then an optional JSON file selected
// with -c or -config, then command-line flags registered by the command
// tree. Later sources win.
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "database_dsn": "wallet.db",
//	  "key_file": "wallet.key",
//	  "currency": "NGN",
//	  "sync_interval": "30s",
//	  "batch_size": 100
//	}
//
// Identity and session tokens are not configuration; they live in the
// wallet database once the device is registered.
package config
