package audio

import (
	"fmt"
	"testing"
)

func chunk(i int) []byte {
	return []byte(fmt.Sprintf("chunk-%03d", i))
}

func TestChunkRing_FIFO(t *testing.T) {
	r := newChunkRing(4)
	for i := 0; i < 3; i++ {
		if dropped := r.push(chunk(i)); dropped {
			t.Fatalf("push %d reported a drop in a non-full ring", i)
		}
	}
	if r.len() != 3 {
		t.Fatalf("len = %d, want 3", r.len())
	}

	for i := 0; i < 3; i++ {
		got, ok := r.pop()
		if !ok {
			t.Fatalf("pop %d failed", i)
		}
		if string(got) != string(chunk(i)) {
			t.Errorf("pop %d = %q, want %q", i, got, chunk(i))
		}
	}
	if _, ok := r.pop(); ok {
		t.Error("pop from an empty ring succeeded")
	}
}

func TestChunkRing_DropOldestWhenFull(t *testing.T) {
	r := newChunkRing(4)
	for i := 0; i < 10; i++ {
		r.push(chunk(i))
	}

	if r.len() != 4 {
		t.Fatalf("len = %d, want capacity 4", r.len())
	}
	if r.totalPushed != 10 || r.totalDropped != 6 {
		t.Errorf("counters pushed=%d dropped=%d, want 10/6", r.totalPushed, r.totalDropped)
	}

	// The survivors are the newest four, still in order.
	for i := 6; i < 10; i++ {
		got, ok := r.pop()
		if !ok || string(got) != string(chunk(i)) {
			t.Errorf("pop = %q (ok=%v), want %q", got, ok, chunk(i))
		}
	}
}

func TestChunkRing_WrapAround(t *testing.T) {
	r := newChunkRing(3)
	r.push(chunk(0))
	r.push(chunk(1))
	r.pop()
	r.push(chunk(2))
	r.push(chunk(3)) // tail wraps

	want := []int{1, 2, 3}
	for _, i := range want {
		got, ok := r.pop()
		if !ok || string(got) != string(chunk(i)) {
			t.Errorf("pop = %q (ok=%v), want %q", got, ok, chunk(i))
		}
	}
}

func TestChunkRing_Clear(t *testing.T) {
	r := newChunkRing(4)
	for i := 0; i < 4; i++ {
		r.push(chunk(i))
	}
	r.clear()

	if r.len() != 0 {
		t.Errorf("len after clear = %d, want 0", r.len())
	}
	if _, ok := r.pop(); ok {
		t.Error("pop after clear succeeded")
	}

	// The ring stays usable.
	r.push(chunk(9))
	got, ok := r.pop()
	if !ok || string(got) != string(chunk(9)) {
		t.Errorf("pop after clear+push = %q (ok=%v), want %q", got, ok, chunk(9))
	}
}

func TestChunkRing_MinimumCapacity(t *testing.T) {
	r := newChunkRing(0)
	r.push(chunk(0))
	if dropped := r.push(chunk(1)); !dropped {
		t.Error("second push into capacity-1 ring should evict")
	}
	got, _ := r.pop()
	if string(got) != string(chunk(1)) {
		t.Errorf("pop = %q, want the newest chunk", got)
	}
}
