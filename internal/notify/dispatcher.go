package notify

import (
	"context"
	"log"
)

// Dispatcher is the monitor's sink: it prints the summary line and forwards to the
// configured delivery sinks.
type Dispatcher struct {
	logger *log.Logger
	sinks  Fanout
}

// NewDispatcher drops nil sinks. A nil logger uses the standard logger.
func NewDispatcher(logger *log.Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	d.logger.Print(SummaryLine(n))
	return d.sinks.Notify(ctx, n)
}

// Sinks reports how many delivery sinks are attached.
func (d *Dispatcher) Sinks() int { return len(d.sinks) }
