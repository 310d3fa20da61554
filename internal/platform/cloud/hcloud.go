package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/skyward-cloud/nodeboot/internal/util/retry"
)

const defaultAPIRetryDelay = 2 * time.Second

// HCloudClient implements InstanceAPI using the Hetzner Cloud API.
type HCloudClient struct {
	client      *hcloud.Client
	retryBudget int
	retryDelay  time.Duration
}

// HCloudOption configures an HCloudClient.
type HCloudOption func(*HCloudClient)

// WithHCloudClient sets a custom hcloud client (useful for testing).
func WithHCloudClient(hc *hcloud.Client) HCloudOption {
	return func(c *HCloudClient) {
		c.client = hc
	}
}

// NewHCloudClient creates a client authenticated with the given API token.
func NewHCloudClient(token string, opts ...HCloudOption) *HCloudClient {
	c := &HCloudClient{
		client:      hcloud.NewClient(hcloud.WithToken(token), hcloud.WithApplication("nodeboot", "")),
		retryBudget: 5,
		retryDelay:  defaultAPIRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create implements InstanceAPI. A server already carrying the token label
// is reused; re-requesting a create is a no-op apart from powering on a
// stopped server.
func (c *HCloudClient) Create(ctx context.Context, spec CreateSpec) (*Instance, error) {
	existing, err := c.findByToken(ctx, spec.Token)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == hcloud.ServerStatusOff {
			if _, _, err := c.client.Server.Poweron(ctx, existing); err != nil {
				return nil, fmt.Errorf("failed to power on server %s: %w", existing.Name, err)
			}
		}
		return instanceFromServer(existing), nil
	}

	opts, err := c.buildCreateOpts(ctx, spec)
	if err != nil {
		return nil, err
	}

	var result hcloud.ServerCreateResult
	err = retry.Do(ctx, func() error {
		res, _, err := c.client.Server.Create(ctx, opts)
		if err != nil {
			if isInvalidParameter(err) {
				return retry.Fatal(err)
			}
			return err
		}
		result = res
		return nil
	}, retry.WithMaxAttempts(c.retryBudget), retry.WithDelay(c.retryDelay))
	if err != nil {
		return nil, fmt.Errorf("failed to create server %s: %w", spec.Name, err)
	}

	if err := c.client.Action.WaitFor(ctx, result.Action); err != nil {
		return nil, fmt.Errorf("failed to wait for server creation: %w", err)
	}

	return instanceFromServer(result.Server), nil
}

// Describe implements InstanceAPI.
func (c *HCloudClient) Describe(ctx context.Context, token string) (*Instance, error) {
	server, err := c.findByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if server == nil {
		return nil, ErrNotFound
	}
	return instanceFromServer(server), nil
}

// Stop implements InstanceAPI.
func (c *HCloudClient) Stop(ctx context.Context, token string) error {
	server, err := c.findByToken(ctx, token)
	if err != nil {
		return err
	}
	if server == nil || server.Status == hcloud.ServerStatusOff {
		return nil
	}
	action, _, err := c.client.Server.Poweroff(ctx, server)
	if err != nil {
		return fmt.Errorf("failed to power off server %s: %w", server.Name, err)
	}
	if err := c.client.Action.WaitFor(ctx, action); err != nil {
		return fmt.Errorf("failed to wait for power off of %s: %w", server.Name, err)
	}
	return nil
}

// Terminate implements InstanceAPI.
func (c *HCloudClient) Terminate(ctx context.Context, token string) error {
	server, err := c.findByToken(ctx, token)
	if err != nil {
		return err
	}
	if server == nil {
		return nil
	}
	if _, _, err := c.client.Server.DeleteWithResult(ctx, server); err != nil {
		return fmt.Errorf("failed to delete server %s: %w", server.Name, err)
	}
	return nil
}

func (c *HCloudClient) findByToken(ctx context.Context, token string) (*hcloud.Server, error) {
	selector := fmt.Sprintf("%s=%s", TokenLabel, token)
	servers, err := c.client.Server.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: selector},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list servers for token %s: %w", token, err)
	}
	if len(servers) == 0 {
		return nil, nil
	}
	return servers[0], nil
}

func (c *HCloudClient) buildCreateOpts(ctx context.Context, spec CreateSpec) (hcloud.ServerCreateOpts, error) {
	serverType, _, err := c.client.ServerType.Get(ctx, spec.ServerType)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get server type: %w", err)
	}
	if serverType == nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("server type not found: %s", spec.ServerType)
	}

	image, _, err := c.client.Image.GetForArchitecture(ctx, spec.Image, serverType.Architecture)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get image: %w", err)
	}
	if image == nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("image not found: %s", spec.Image)
	}

	location, _, err := c.client.Location.Get(ctx, spec.Location)
	if err != nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get location: %w", err)
	}
	if location == nil {
		return hcloud.ServerCreateOpts{}, fmt.Errorf("location not found: %s", spec.Location)
	}

	var sshKeys []*hcloud.SSHKey
	for _, name := range spec.SSHKeys {
		key, _, err := c.client.SSHKey.Get(ctx, name)
		if err != nil {
			return hcloud.ServerCreateOpts{}, fmt.Errorf("failed to get ssh key %s: %w", name, err)
		}
		if key == nil {
			return hcloud.ServerCreateOpts{}, fmt.Errorf("ssh key not found: %s", name)
		}
		sshKeys = append(sshKeys, key)
	}

	labels := map[string]string{TokenLabel: spec.Token}
	for k, v := range spec.Labels {
		labels[k] = v
	}

	return hcloud.ServerCreateOpts{
		Name:       spec.Name,
		ServerType: serverType,
		Image:      image,
		Location:   location,
		SSHKeys:    sshKeys,
		Labels:     labels,
	}, nil
}

// instanceFromServer maps a provider server to the controller's view.
func instanceFromServer(s *hcloud.Server) *Instance {
	inst := &Instance{
		ID:     fmt.Sprintf("%d", s.ID),
		Name:   s.Name,
		Status: statusFromServer(s.Status),
	}
	if s.PublicNet.IPv4.IP != nil && !s.PublicNet.IPv4.IP.IsUnspecified() {
		inst.Address = s.PublicNet.IPv4.IP.String()
	}
	return inst
}

// statusFromServer maps provider statuses onto the controller's coarser
// lifecycle states. Unmapped states report StatusUnknown and are treated
// as transient by the poller.
func statusFromServer(status hcloud.ServerStatus) Status {
	switch status {
	case hcloud.ServerStatusRunning:
		return StatusRunning
	case hcloud.ServerStatusInitializing, hcloud.ServerStatusStarting:
		return StatusProvisioning
	case hcloud.ServerStatusOff, hcloud.ServerStatusStopping:
		return StatusOff
	case hcloud.ServerStatusDeleting:
		return StatusTerminated
	default:
		return StatusUnknown
	}
}
