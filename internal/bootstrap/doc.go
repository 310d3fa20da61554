// Package bootstrap drives a node from "requested" to "cluster agent
// running" despite reboots, network blips and partial command failures.
//
// Each node is owned by exactly one state machine run by the Orchestrator.
// Components (instance poller, stability detector, setup executor, agent
// launcher) never mutate node state directly; they return outcomes which
// the orchestrator applies. The only state shared between node tasks is
// the write-once ClusterAddressBarrier carrying the head node's address.
package bootstrap
