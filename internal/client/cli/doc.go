// Package cli is the wallet command line.
//
// Each command opens the device database, dials the server lazily and
// loads the sealed signing key only when it has to sign. Payments are
// signed and queued while offline; "sync" pushes the outbox to the server
// once it is reachable.
package cli
