package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentSpec configures the cluster coordination agent launched on every
// node. Command templates may reference {node_ip}, {head_ip} and {port}.
type AgentSpec struct {
	Port          int    `yaml:"port"`
	HeadCommand   string `yaml:"headCommand"`
	WorkerCommand string `yaml:"workerCommand"`
	StatusCommand string `yaml:"statusCommand"`
}

// SSHSpec configures the remote command-execution transport.
type SSHSpec struct {
	User    string `yaml:"user"`
	KeyPath string `yaml:"keyPath"`
	// Keys are provider-side key names injected at instance creation.
	Keys []string `yaml:"keys"`
}

// Request is a provisioning request: the desired node set and how to turn
// each node into a running cluster member. It is immutable once submitted;
// the first node is assigned the head role, the rest are workers.
type Request struct {
	Name       string `yaml:"name"`
	Count      int    `yaml:"count"`
	ServerType string `yaml:"serverType"`
	Image      string `yaml:"image"`
	Location   string `yaml:"location"`

	// AllowPartialWorkers reports the request as satisfied when the head
	// is running even if some workers failed. Default is all-or-nothing.
	AllowPartialWorkers bool `yaml:"allowPartialWorkers"`

	SSH   SSHSpec   `yaml:"ssh"`
	Agent AgentSpec `yaml:"agent"`
}

// LoadRequest reads and parses a provisioning request from a YAML file,
// applies defaults and validates it.
func LoadRequest(path string) (*Request, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}

	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	req.ApplyDefaults()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("request validation failed: %w", err)
	}

	return &req, nil
}

// ApplyDefaults fills unset fields with working defaults.
func (r *Request) ApplyDefaults() {
	if r.Image == "" {
		r.Image = "ubuntu-22.04"
	}
	if r.SSH.User == "" {
		r.SSH.User = "root"
	}
	if r.Agent.Port == 0 {
		r.Agent.Port = 6379
	}
	if r.Agent.HeadCommand == "" {
		r.Agent.HeadCommand = "$HOME/miniconda3/bin/ray start --head --node-ip-address={node_ip} --port={port}"
	}
	if r.Agent.WorkerCommand == "" {
		r.Agent.WorkerCommand = "$HOME/miniconda3/bin/ray start --address={head_ip}:{port}"
	}
	if r.Agent.StatusCommand == "" {
		r.Agent.StatusCommand = "$HOME/miniconda3/bin/ray status"
	}
}

// Validate rejects malformed requests before any node task starts.
func (r *Request) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("request name is required")
	}
	if r.Count < 1 {
		return fmt.Errorf("request must ask for at least one node (the head), got %d", r.Count)
	}
	if r.ServerType == "" {
		return fmt.Errorf("serverType is required")
	}
	if r.Location == "" {
		return fmt.Errorf("location is required")
	}
	if r.SSH.KeyPath == "" {
		return fmt.Errorf("ssh.keyPath is required")
	}
	if len(r.SSH.Keys) == 0 {
		return fmt.Errorf("at least one provider ssh key name is required")
	}
	return nil
}

// NodeName returns the deterministic name of the i-th node. Node 0 carries
// the head role.
func (r *Request) NodeName(i int) string {
	return fmt.Sprintf("%s-%d", r.Name, i)
}
