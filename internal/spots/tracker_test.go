package spots

import (
	"reflect"
	"testing"

	"github.com/rimio/sota-notifier/internal/sota"
)

func batch(ids ...int64) []sota.Spot {
	out := make([]sota.Spot, 0, len(ids))
	for _, id := range ids {
		out = append(out, sota.Spot{ID: id})
	}
	return out
}

func ids(spots []sota.Spot) []int64 {
	out := make([]int64, 0, len(spots))
	for _, s := range spots {
		out = append(out, s.ID)
	}
	return out
}

func TestPrimeSuppressesPrimingBatch(t *testing.T) {
	var tr Tracker
	if tr.Primed() {
		t.Fatalf("zero tracker should not be primed")
	}
	tr.Prime(batch(42))
	if !tr.Primed() || tr.Mark() != 42 {
		t.Fatalf("expected primed at 42, got primed=%v mark=%d", tr.Primed(), tr.Mark())
	}
	if fresh := tr.ClassifyAndAdvance(batch(42)); len(fresh) != 0 {
		t.Fatalf("priming spot must never be new, got %v", ids(fresh))
	}
}

func TestPrimeEmptyBatch(t *testing.T) {
	var tr Tracker
	tr.Prime(nil)
	if !tr.Primed() || tr.Mark() != 0 {
		t.Fatalf("expected primed at 0, got primed=%v mark=%d", tr.Primed(), tr.Mark())
	}
}

func TestClassifyOrdersOldestFirst(t *testing.T) {
	var tr Tracker
	tr.Prime(batch(4))
	got := tr.ClassifyAndAdvance(batch(5, 7, 6))
	if want := []int64{5, 6, 7}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
	if tr.Mark() != 7 {
		t.Fatalf("expected mark 7, got %d", tr.Mark())
	}
}

func TestClassifyReversesNewestFirstFeed(t *testing.T) {
	var tr Tracker
	tr.Prime(batch(10))
	got := tr.ClassifyAndAdvance(batch(20, 15, 12, 10, 9))
	if want := []int64{12, 15, 20}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("expected %v, got %v", want, ids(got))
	}
}

func TestClassifyDoesNotMoveMark(t *testing.T) {
	var tr Tracker
	tr.Prime(batch(1))
	_ = tr.Classify(batch(3, 2))
	if tr.Mark() != 1 {
		t.Fatalf("Classify must not change mark, got %d", tr.Mark())
	}
}

func TestEmptyBatchLeavesMarkUnchanged(t *testing.T) {
	var tr Tracker
	tr.Prime(batch(100))
	if fresh := tr.ClassifyAndAdvance(nil); len(fresh) != 0 {
		t.Fatalf("expected no new spots")
	}
	if tr.Mark() != 100 {
		t.Fatalf("expected mark 100, got %d", tr.Mark())
	}
}

func TestMarkIsMonotonic(t *testing.T) {
	var tr Tracker
	tr.Prime(batch(50))
	polls := [][]sota.Spot{
		batch(55, 53),
		batch(40, 30),
		nil,
		batch(54),
		batch(80, 70, 60),
		batch(10),
	}
	prev := tr.Mark()
	for i, b := range polls {
		tr.ClassifyAndAdvance(b)
		if tr.Mark() < prev {
			t.Fatalf("poll %d: mark decreased from %d to %d", i, prev, tr.Mark())
		}
		prev = tr.Mark()
	}
	if tr.Mark() != 80 {
		t.Fatalf("expected final mark 80, got %d", tr.Mark())
	}
}

func TestNoRepeatAcrossOverlappingPolls(t *testing.T) {
	var tr Tracker
	tr.Prime(batch(1))
	polls := [][]sota.Spot{
		batch(3, 2, 1),
		batch(5, 4, 3, 2),
		batch(5, 4),
		batch(9, 7, 5),
	}
	seen := map[int64]int{}
	for _, b := range polls {
		for _, s := range tr.ClassifyAndAdvance(b) {
			seen[s.ID]++
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("spot %d emitted %d times", id, n)
		}
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 distinct new spots, got %d", len(seen))
	}
}

func TestLateLowerIDIsSkipped(t *testing.T) {
	var tr Tracker
	tr.Prime(batch(10))
	tr.ClassifyAndAdvance(batch(12))
	if fresh := tr.ClassifyAndAdvance(batch(11)); len(fresh) != 0 {
		t.Fatalf("late lower id should be skipped, got %v", ids(fresh))
	}
}
