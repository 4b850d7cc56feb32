package monitor

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/swarmroute/swarmroute/internal/swarm"
)

// ConsoleReporter is a Sink that prints run progress to a terminal.
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter writes to stdout.
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo writes to the given writer (for testing).
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// Observe implements Sink.
func (r *ConsoleReporter) Observe(event swarm.SwarmEvent) {
	switch event.Type {
	case swarm.EventSwarmStarted:
		r.printStatus("▶", "swarm started", color.FgCyan)
	case swarm.EventSwarmCompleted:
		r.printStatus("✓", "swarm completed", color.FgCyan)
	case swarm.EventSwarmPaused:
		r.printStatus("⏸", "swarm paused", color.FgYellow)
	case swarm.EventSwarmResumed:
		r.printStatus("▶", "swarm resumed", color.FgCyan)
	case swarm.EventTaskQueued:
		r.printStatus("+", fmt.Sprintf("%s queued", event.TaskTitle), color.FgWhite)
	case swarm.EventTaskStarted:
		r.printStatus("→", fmt.Sprintf("%s started on %s", event.TaskTitle, event.AgentName), color.FgWhite)
	case swarm.EventTaskCompleted:
		r.printStatus("✓", fmt.Sprintf("%s completed by %s in %s", event.TaskTitle, event.AgentName, event.Duration.Round(time.Millisecond)), color.FgGreen)
	case swarm.EventTaskFailed:
		r.printStatus("✗", fmt.Sprintf("%s failed: %v", event.TaskTitle, event.Error), color.FgRed)
	case swarm.EventTaskRetrying:
		r.printStatus("↻", fmt.Sprintf("%s retrying (%s)", event.TaskTitle, event.Message), color.FgYellow)
	case swarm.EventTaskDeferred:
		r.printStatus("⏳", fmt.Sprintf("%s deferred: %s", event.TaskTitle, event.Message), color.FgYellow)
	case swarm.EventTaskBlocked:
		r.printStatus("⊘", fmt.Sprintf("%s blocked: %s", event.TaskTitle, event.Message), color.FgRed)
	}
}

// printStatus prints a status line with a colored symbol.
func (r *ConsoleReporter) printStatus(symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	fmt.Fprintf(r.out, "%s %s\n", c.Sprint(symbol), message)
}
