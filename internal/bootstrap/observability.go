package bootstrap

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
)

// Observer receives structured events for every phase transition and
// attempt, for external observability tooling.
type Observer interface {
	Event(event Event)
	Printf(format string, v ...interface{})
}

// EventType classifies a bootstrap event.
type EventType string

const (
	// EventPhaseEntered marks a forward transition into a phase.
	EventPhaseEntered EventType = "phase.entered"
	// EventPhaseRollback marks a backward transition (instability or a
	// lost command channel).
	EventPhaseRollback EventType = "phase.rollback"
	// EventNodeFailed marks a node reaching the terminal Failed phase.
	EventNodeFailed EventType = "node.failed"
	// EventNodeCompleted marks a node reaching AgentRunning.
	EventNodeCompleted EventType = "node.completed"
	// EventAttempt reports a single failed attempt inside a component's
	// retry budget.
	EventAttempt EventType = "attempt"
	// EventProbe reports one stability probe result.
	EventProbe EventType = "stability.probe"
	// EventBarrierPublished reports the head address hitting the barrier.
	EventBarrierPublished EventType = "barrier.published"
)

// Event is one structured bootstrap event.
type Event struct {
	Type      EventType
	Node      string
	Phase     Phase
	Attempt   int
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// ConsoleObserver implements Observer using the standard log package.
type ConsoleObserver struct{}

// NewConsoleObserver creates a console-based observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{}
}

// Printf implements Observer.
func (o *ConsoleObserver) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	log.Print(formatEvent(event))
}

func formatEvent(event Event) string {
	parts := []string{string(event.Type)}

	if event.Node != "" {
		parts = append(parts, fmt.Sprintf("node=%s", event.Node))
	}
	parts = append(parts, fmt.Sprintf("phase=%s", event.Phase))
	if event.Attempt > 0 {
		parts = append(parts, fmt.Sprintf("attempt=%d", event.Attempt))
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}

	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for k := range event.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fieldParts := make([]string, 0, len(keys))
		for _, k := range keys {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, event.Fields[k]))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}

	return strings.Join(parts, " ")
}

// NopObserver discards all events. Useful in tests.
type NopObserver struct{}

func (NopObserver) Event(Event)                   {}
func (NopObserver) Printf(string, ...interface{}) {}
