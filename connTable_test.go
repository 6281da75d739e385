package cmdserver

import (
	"sync"
	"testing"
)

func TestConnTableMonotonicIds(t *testing.T) {
	ct := newConnTable()

	id1 := ct.register("127.0.0.1:5001")
	id2 := ct.register("127.0.0.1:5002")
	if id2 <= id1 {
		t.Fatalf("ids not increasing: %d then %d", id1, id2)
	}

	ct.remove(id1)
	ct.remove(id2)

	// removed ids are never reused
	id3 := ct.register("127.0.0.1:5003")
	if id3 <= id2 {
		t.Fatalf("id reused after removal: %d", id3)
	}
}

func TestConnTableLifecycle(t *testing.T) {
	ct := newConnTable()

	id := ct.register("127.0.0.1:5001")
	if ct.active() != 1 {
		t.Fatal("registered connection not tracked")
	}

	infos := ct.snapshot()
	if len(infos) != 1 || infos[0].Id != id || infos[0].Status != "active" || infos[0].Addr != "127.0.0.1:5001" {
		t.Fatalf("unexpected snapshot: %+v", infos)
	}

	before := infos[0].LastActivity
	ct.touch(id)
	after := ct.snapshot()[0].LastActivity
	if after.Before(before) {
		t.Error("touch moved last activity backward")
	}

	ct.markDisconnected(id)
	if ct.snapshot()[0].Status != "disconnected" {
		t.Error("disconnect not recorded")
	}

	ct.remove(id)
	if ct.active() != 0 {
		t.Error("removed connection still tracked")
	}
}

func TestConnTableIgnoresUnknownIds(t *testing.T) {
	ct := newConnTable()

	// operations on an id that was already removed must be harmless
	ct.touch(42)
	ct.markDisconnected(42)
	ct.remove(42)

	if ct.active() != 0 {
		t.Error("phantom entry created")
	}
}

func TestConnTableConcurrentChurn(t *testing.T) {
	ct := newConnTable()

	const workers = 50
	const rounds = 200

	var mu sync.Mutex
	seen := map[uint64]bool{}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				id := ct.register("127.0.0.1:9000")

				mu.Lock()
				if seen[id] {
					t.Errorf("id %d assigned twice", id)
				}
				seen[id] = true
				mu.Unlock()

				ct.touch(id)
				ct.markDisconnected(id)
				ct.remove(id)
			}
		}()
	}
	wg.Wait()

	if ct.active() != 0 {
		t.Errorf("%d connections leaked", ct.active())
	}
	if len(seen) != workers*rounds {
		t.Errorf("expected %d distinct ids, saw %d", workers*rounds, len(seen))
	}
}
