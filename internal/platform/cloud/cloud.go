package cloud

import (
	"context"
	"errors"
)

// TokenLabel is the label key that carries the stable request token on
// every instance the controller creates. Create and Describe are keyed by
// it, which is what makes instance creation idempotent.
const TokenLabel = "nodeboot/token"

// Status is the provider-independent instance lifecycle status.
type Status string

const (
	// StatusProvisioning covers every pre-running provider state
	// (initializing, starting, powering on).
	StatusProvisioning Status = "provisioning"
	// StatusRunning means the instance is up; an address may still be pending.
	StatusRunning Status = "running"
	// StatusOff means the instance exists but is powered down.
	StatusOff Status = "off"
	// StatusTerminated means the instance is gone or being deleted.
	StatusTerminated Status = "terminated"
	// StatusUnknown is reported for provider states with no mapping.
	StatusUnknown Status = "unknown"
)

// Instance is a provider instance as seen by the bootstrap controller.
type Instance struct {
	ID      string
	Name    string
	Address string // public IPv4, empty until assigned
	Status  Status
}

// CreateSpec describes the instance to create. Token must be stable for
// the lifetime of the node so repeated Create calls converge on the same
// instance.
type CreateSpec struct {
	Token      string
	Name       string
	ServerType string
	Image      string
	Location   string
	SSHKeys    []string
	Labels     map[string]string
}

// ErrNotFound is returned by Describe when no instance carries the token.
var ErrNotFound = errors.New("cloud: instance not found")

// InstanceAPI is the provider instance-lifecycle interface consumed by the
// bootstrap controller. All three operations are idempotent given a stable
// request token.
type InstanceAPI interface {
	// Create requests an instance for the token. If one already exists it
	// is returned as-is (powered on first if the provider reports it off).
	Create(ctx context.Context, spec CreateSpec) (*Instance, error)
	// Describe returns the current instance for the token, or ErrNotFound.
	Describe(ctx context.Context, token string) (*Instance, error)
	// Stop powers the instance off without deleting it. A later Create
	// with the same token powers it back on. Missing or already stopped
	// instances are not an error.
	Stop(ctx context.Context, token string) error
	// Terminate deletes the instance for the token. Missing instances are
	// not an error.
	Terminate(ctx context.Context, token string) error
}
