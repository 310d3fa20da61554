package bootstrap

import (
	"context"
	"sync"
)

// ClusterAddressBarrier is the write-once rendezvous value carrying the
// head node's address. The node holding the head role publishes exactly
// once; every worker blocks on Wait until the value exists. A second
// publish is rejected, never overwritten, so a racing double
// head-assignment cannot produce a torn read.
type ClusterAddressBarrier struct {
	mu    sync.Mutex
	addr  string
	set   bool
	ready chan struct{}
}

// NewClusterAddressBarrier creates an empty barrier.
func NewClusterAddressBarrier() *ClusterAddressBarrier {
	return &ClusterAddressBarrier{ready: make(chan struct{})}
}

// Publish sets the head address. The first call wins; all later calls
// return ErrBarrierAlreadySet.
func (b *ClusterAddressBarrier) Publish(addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.set {
		return ErrBarrierAlreadySet
	}
	b.addr = addr
	b.set = true
	close(b.ready)
	return nil
}

// Wait blocks until the barrier is populated or the context ends.
func (b *ClusterAddressBarrier) Wait(ctx context.Context) (string, error) {
	select {
	case <-b.ready:
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.addr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Address returns the published value without blocking.
func (b *ClusterAddressBarrier) Address() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addr, b.set
}
