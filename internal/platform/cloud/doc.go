// Package cloud wraps the provider instance-lifecycle API behind a small
// interface: create, describe and terminate, all keyed by a stable request
// token. The bootstrap state machine only ever sees this interface; the
// Hetzner Cloud implementation lives in hcloud.go and tests substitute
// fakes.
package cloud
