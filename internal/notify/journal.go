package notify

import (
	"context"

	"github.com/rimio/sota-notifier/internal/events"
	"github.com/rimio/sota-notifier/internal/store"
)

// Recorder is the slice of the journal the sink needs.
type Recorder interface {
	RecordNotification(ctx context.Context, e store.Entry) (int64, error)
}

// Journal appends every notification to the store.
type Journal struct {
	rec Recorder
}

func NewJournal(rec Recorder) *Journal { return &Journal{rec: rec} }

func (j *Journal) Name() string { return "journal" }

func (j *Journal) Notify(ctx context.Context, n Notification) error {
	_, err := j.rec.RecordNotification(ctx, Entry(n))
	return err
}

// Entry maps a notification to a journal row.
func Entry(n Notification) store.Entry {
	return store.Entry{
		SpotID:       n.Spot.ID,
		Callsign:     n.Spot.Callsign,
		Association:  n.Spot.Summit.Association,
		Summit:       n.Spot.Summit.Code,
		SummitName:   n.Summit.Name,
		DistanceKm:   n.DistanceKm,
		FrequencyMHz: n.Spot.FrequencyMHz,
		Mode:         mode(n.Spot.Mode),
		SpottedAt:    n.Spot.Timestamp,
	}
}

// BusSink publishes each notification as an events.KindNotified event.
type BusSink struct {
	bus *events.Bus
}

func NewBusSink(bus *events.Bus) *BusSink { return &BusSink{bus: bus} }

func (b *BusSink) Name() string { return "events" }

func (b *BusSink) Notify(_ context.Context, n Notification) error {
	b.bus.Publish(events.Event{Kind: events.KindNotified, Data: map[string]any{
		"spot_id":     n.Spot.ID,
		"summary":     SummaryLine(n),
		"distance_km": n.DistanceKm,
	}})
	return nil
}
