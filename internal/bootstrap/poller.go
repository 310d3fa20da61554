package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/skyward-cloud/nodeboot/internal/platform/cloud"
)

// PollerConfig tunes the instance lifecycle poller.
type PollerConfig struct {
	// Interval is the base wait between describe calls.
	Interval time.Duration
	// MaxBootTime is the budget for the instance to surface a reachable
	// address.
	MaxBootTime time.Duration
	// ErrorThreshold is the number of consecutive provider errors after
	// which the effective wait doubles.
	ErrorThreshold int
	// MaxInterval caps the stretched wait. Zero means 4x Interval.
	MaxInterval time.Duration
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval == 0 {
		c.Interval = 5 * time.Second
	}
	if c.MaxBootTime == 0 {
		c.MaxBootTime = 10 * time.Minute
	}
	if c.ErrorThreshold == 0 {
		c.ErrorThreshold = 3
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 4 * c.Interval
	}
	return c
}

// Poller drives an instance from "requested" to "network reachable" by
// read-only polling of the provider's describe interface. Provider errors
// are transient: every ErrorThreshold consecutive errors the effective
// wait doubles (capped); a successful describe resets the error counter
// only, the stretched wait is kept.
type Poller struct {
	api cloud.InstanceAPI
	cfg PollerConfig
	obs Observer
}

// NewPoller creates a poller over the given provider API.
func NewPoller(api cloud.InstanceAPI, cfg PollerConfig, obs Observer) *Poller {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Poller{api: api, cfg: cfg.withDefaults(), obs: obs}
}

// WaitReady polls until the instance for token reports a running state
// with an assigned address, or the boot time budget is exhausted.
func (p *Poller) WaitReady(ctx context.Context, node, token string) (*cloud.Instance, error) {
	deadline := time.Now().Add(p.cfg.MaxBootTime)
	interval := p.cfg.Interval
	consecutive := 0

	for {
		if time.Now().After(deadline) {
			return nil, &BootTimeoutError{Node: node, Waited: p.cfg.MaxBootTime}
		}

		inst, err := p.api.Describe(ctx, token)
		switch {
		case err != nil:
			consecutive++
			p.obs.Event(Event{
				Type:    EventAttempt,
				Node:    node,
				Phase:   PhaseBooting,
				Attempt: consecutive,
				Message: fmt.Sprintf("describe failed: %v", err),
			})
			if consecutive%p.cfg.ErrorThreshold == 0 {
				interval *= 2
				if interval > p.cfg.MaxInterval {
					interval = p.cfg.MaxInterval
				}
				p.obs.Event(Event{
					Type:    EventAttempt,
					Node:    node,
					Phase:   PhaseBooting,
					Message: fmt.Sprintf("%d consecutive provider errors, stretching poll wait to %v", consecutive, interval),
				})
			}
		case inst.Status == cloud.StatusRunning && inst.Address != "":
			return inst, nil
		default:
			// Provider answered; reset the error counter. The stretched
			// wait is kept deliberately (counter-reset-only policy).
			consecutive = 0
		}

		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}
