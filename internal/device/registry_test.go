package device

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func testIdentity(imei string) Identity {
	return Identity{IMEI: imei, ICCID: "iccid-" + imei, FirmwareVersion: "1.0"}
}

func TestRegistry_InsertAndList(t *testing.T) {
	r := NewRegistry()

	if err := r.Insert(testIdentity("A")); err != nil {
		t.Fatalf("Insert(A) error = %v", err)
	}
	if err := r.Insert(testIdentity("B")); err != nil {
		t.Fatalf("Insert(B) error = %v", err)
	}

	got := r.List()
	if len(got) != 2 || got[0].IMEI != "A" || got[1].IMEI != "B" {
		t.Fatalf("List() = %+v, want [A B] in order", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestRegistry_InsertDuplicate(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert(testIdentity("A"))

	second := testIdentity("A")
	second.FirmwareVersion = "2.0"
	err := r.Insert(second)
	if !errors.Is(err, ErrAlreadyOnline) {
		t.Fatalf("Insert(duplicate) error = %v, want ErrAlreadyOnline", err)
	}

	got, ok := r.Find("A")
	if !ok || got.FirmwareVersion != "1.0" {
		t.Errorf("Find(A) = %+v, %v; duplicate insert must not replace the entry", got, ok)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert(testIdentity("A"))
	_ = r.Insert(testIdentity("B"))

	if !r.Remove("A") {
		t.Error("Remove(A) = false, want true")
	}
	if r.Remove("A") {
		t.Error("second Remove(A) = true, want false")
	}
	if r.Remove("missing") {
		t.Error("Remove(missing) = true, want false")
	}

	got := r.List()
	if len(got) != 1 || got[0].IMEI != "B" {
		t.Errorf("List() = %+v, want [B]", got)
	}
}

func TestRegistry_ListIsSnapshot(t *testing.T) {
	r := NewRegistry()
	_ = r.Insert(testIdentity("A"))

	snap := r.List()
	snap[0].IMEI = "mutated"
	_ = r.Insert(testIdentity("B"))

	if _, ok := r.Find("A"); !ok {
		t.Error("mutating a snapshot changed the registry")
	}
	if len(snap) != 1 {
		t.Errorf("snapshot length changed to %d", len(snap))
	}
}

// TestRegistry_ConcurrentUniqueness races many inserters per IMEI and
// checks that exactly one wins and no listing ever shows a duplicate.
func TestRegistry_ConcurrentUniqueness(t *testing.T) {
	r := NewRegistry()
	const imeis, contenders, rounds = 8, 6, 50

	var dup atomic.Bool
	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			seen := make(map[string]bool)
			for _, id := range r.List() {
				if seen[id.IMEI] {
					dup.Store(true)
				}
				seen[id.IMEI] = true
			}
		}
	}()

	for round := range rounds {
		var wg sync.WaitGroup
		var wins atomic.Int32
		for i := range imeis {
			imei := fmt.Sprintf("dev-%d", i)
			for range contenders {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if r.Insert(testIdentity(imei)) == nil {
						wins.Add(1)
					}
				}()
			}
		}
		wg.Wait()

		if got := wins.Load(); got != imeis {
			t.Fatalf("round %d: %d successful inserts, want %d", round, got, imeis)
		}

		for i := range imeis {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.Remove(fmt.Sprintf("dev-%d", i))
			}()
		}
		wg.Wait()
	}

	close(stop)
	readers.Wait()

	if dup.Load() {
		t.Error("List() observed a duplicate IMEI")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d after removing everything", r.Len())
	}
}
