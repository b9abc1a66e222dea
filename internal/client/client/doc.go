// Package client contains the device side transport and storage bootstrap
// for the offline wallet.
//
// GRPCClient talks to offpay.v1.OfflinePay over the JSON codec. It attaches
// the access token to every call, refreshes it once when the server reports
// it expired, and hands the new pair to a TokenSink so the wallet can persist
// it. gRPC status codes are mapped to the sentinel errors in errors.go.
//
// InitDatabase opens the SQLite wallet file and applies the embedded goose
// migrations; NewRepositories wires the metadata and outbox repositories on
// top of it.
package client
