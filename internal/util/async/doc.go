// Package async provides utilities for parallel task execution.
//
// The bootstrap orchestrator runs one independent task per node and needs
// every task's outcome, not just the first failure, so Run collects a
// Result per task.
package async
