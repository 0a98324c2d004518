// Package notify formats qualifying spots and hands them to delivery sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rimio/sota-notifier/internal/sota"
)

// Notification is one qualifying spot with its resolved summit.
type Notification struct {
	Spot       sota.Spot   `json:"spot"`
	Summit     sota.Summit `json:"summit"`
	DistanceKm float64     `json:"distance_km"`
}

// Sink delivers a notification. Implementations must not block the caller for long;
// slow transports should queue.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Fanout delivers to every sink and joins their failures.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sinkName(s), err))
		}
	}
	return errors.Join(errs...)
}

type named interface{ Name() string }

func sinkName(s Sink) string {
	if n, ok := s.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// SummaryLine is the one-line console form:
//
//	[12345] YO9XYZ at 0930z on YO/EC-001 @ 2505m, 152km away, 14.285MHz SSB
func SummaryLine(n Notification) string {
	return fmt.Sprintf("[%d] %s at %s on %s @ %dm, %.0fkm away, %sMHz %s",
		n.Spot.ID, n.Spot.Callsign, clock(n), n.Spot.Summit, n.Summit.AltitudeM,
		n.DistanceKm, frequency(n.Spot), mode(n.Spot.Mode))
}

// Body is the desktop notification text.
func Body(n Notification) string {
	return fmt.Sprintf("%s at %s\n\nOn %s, %.0fkm away\n\n%sMHz %s",
		n.Spot.Callsign, clock(n), n.Spot.Summit, n.DistanceKm,
		frequency(n.Spot), mode(n.Spot.Mode))
}

func clock(n Notification) string {
	return n.Spot.Timestamp.UTC().Format("1504") + "z"
}

func frequency(s sota.Spot) string {
	if s.FrequencyText != "" {
		return s.FrequencyText
	}
	return strconv.FormatFloat(s.FrequencyMHz, 'f', -1, 64)
}

func mode(m string) string {
	return strings.ToUpper(strings.TrimSpace(m))
}
