// Package spots tracks which feed spots have already been seen using a high-water mark
// over the feed's strictly increasing spot ids.
package spots

import (
	"sort"

	"github.com/rimio/sota-notifier/internal/sota"
)

// Tracker holds the largest spot id already processed. Ids need not be contiguous; a gap
// is not a missed spot. The zero value is an unprimed tracker with mark 0.
type Tracker struct {
	mark   int64
	primed bool
}

// Prime sets the mark from the startup read. Nothing in the priming batch is ever new.
func (t *Tracker) Prime(batch []sota.Spot) {
	if id, ok := maxID(batch); ok && id > t.mark {
		t.mark = id
	}
	t.primed = true
}

// Primed reports whether Prime has run.
func (t *Tracker) Primed() bool { return t.primed }

// Mark returns the current high-water mark.
func (t *Tracker) Mark() int64 { return t.mark }

// Classify returns the spots above the mark in ascending id order, so notifications go
// out oldest first even though the feed is newest first. The mark is not changed.
func (t *Tracker) Classify(batch []sota.Spot) []sota.Spot {
	var fresh []sota.Spot
	for _, s := range batch {
		if s.ID > t.mark {
			fresh = append(fresh, s)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })
	return fresh
}

// Advance moves the mark to the largest id in a non-empty batch, even when nothing in it
// was new. An empty batch, or one holding only lower ids, leaves the mark where it is.
func (t *Tracker) Advance(batch []sota.Spot) {
	if id, ok := maxID(batch); ok && id > t.mark {
		t.mark = id
	}
}

// ClassifyAndAdvance is Classify followed by Advance.
func (t *Tracker) ClassifyAndAdvance(batch []sota.Spot) []sota.Spot {
	fresh := t.Classify(batch)
	t.Advance(batch)
	return fresh
}

func maxID(batch []sota.Spot) (int64, bool) {
	if len(batch) == 0 {
		return 0, false
	}
	id := batch[0].ID
	for _, s := range batch[1:] {
		if s.ID > id {
			id = s.ID
		}
	}
	return id, true
}
