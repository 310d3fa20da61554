// Package config loads provisioning requests from YAML and the
// controller's timing knobs from the environment. Requests are validated
// up front: a request that could never succeed (zero nodes, no transport
// credentials) is rejected before any node task starts.
package config
