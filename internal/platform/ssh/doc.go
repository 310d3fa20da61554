// Package ssh implements the remote session manager: command-execution
// channels to nodes tuned for unreliable links. Channels keep-alive every
// minute, tolerate ten missed probes before being declared dead, and dials
// run inside a bounded retry budget that surfaces ErrUnavailable when
// exhausted.
package ssh
