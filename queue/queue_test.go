package queue

import "testing"

func TestEnqueueDequeueFIFOOrder(t *testing.T) {
	q := NewInterior(8)
	for i := uint32(1); i <= 3; i++ {
		if !q.Enqueue(Element{Kind: Plus, Timestamp: i}) {
			t.Fatalf("Enqueue(%d) failed", i)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}
	for i := uint32(1); i <= 3; i++ {
		e, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Dequeue %d: not ok", i)
		}
		if e.Timestamp != i {
			t.Fatalf("Dequeue order: got ts %d, want %d", e.Timestamp, i)
		}
		if e.Timestamp < i-1 {
			t.Fatalf("timestamps must be non-decreasing")
		}
	}
	if !q.IsEmpty() {
		t.Fatalf("expected queue empty after draining")
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	q := NewInterior(4)
	q.Enqueue(Element{Kind: Plus, Timestamp: 5})

	peeked, ok := q.Peek()
	if !ok || peeked.Timestamp != 5 {
		t.Fatalf("Peek = (%v, %v), want (ts=5, true)", peeked, ok)
	}
	if q.Len() != 1 {
		t.Fatalf("Peek must not consume: Len = %d, want 1", q.Len())
	}
	deq, ok := q.Dequeue()
	if !ok || deq.Timestamp != 5 {
		t.Fatalf("Dequeue after Peek = (%v, %v), want (ts=5, true)", deq, ok)
	}
	if !q.IsEmpty() {
		t.Fatalf("expected empty after Dequeue")
	}
}

func TestIsFull(t *testing.T) {
	q := NewInterior(2)
	if q.IsFull() {
		t.Fatalf("fresh queue reported full")
	}
	q.Enqueue(Element{Kind: Plus, Timestamp: 1})
	q.Enqueue(Element{Kind: Plus, Timestamp: 2})
	if !q.IsFull() {
		t.Fatalf("queue at capacity should report full")
	}
	if q.Enqueue(Element{Kind: Plus, Timestamp: 3}) {
		t.Fatalf("Enqueue on a full queue should fail")
	}
}

// TestCapacityOneStallsAfterOneElement covers spec.md §8 scenario 5's
// capacity-1 queue: lfq.NewSPSC panics below capacity 2 and otherwise
// rounds up to a power of two, so a requested capacity of 1 must
// still stall after exactly one element rather than panicking at
// construction or silently accepting two.
func TestCapacityOneStallsAfterOneElement(t *testing.T) {
	q := NewInterior(1)
	if q.IsFull() {
		t.Fatalf("fresh capacity-1 queue reported full")
	}
	if !q.Enqueue(Element{Kind: Plus, Timestamp: 1}) {
		t.Fatalf("first Enqueue on a capacity-1 queue should succeed")
	}
	if !q.IsFull() {
		t.Fatalf("capacity-1 queue should report full after one element")
	}
	if q.Enqueue(Element{Kind: Plus, Timestamp: 2}) {
		t.Fatalf("second Enqueue on a capacity-1 queue should fail")
	}
}

func TestHeartbeatElement(t *testing.T) {
	hb := Element{Kind: Heartbeat, Timestamp: 10}
	if !hb.IsHeartbeat() {
		t.Fatalf("expected IsHeartbeat true for a Heartbeat element")
	}
	plus := Element{Kind: Plus, Timestamp: 10}
	if plus.IsHeartbeat() {
		t.Fatalf("expected IsHeartbeat false for a Plus element")
	}
}

func TestLastTimestampAndElementCount(t *testing.T) {
	q := NewInterior(8)
	if _, ok := q.LastTimestamp(); ok {
		t.Fatalf("LastTimestamp on a fresh queue should report ok=false")
	}
	q.Enqueue(Element{Kind: Plus, Timestamp: 7})
	ts, ok := q.LastTimestamp()
	if !ok || ts != 7 {
		t.Fatalf("LastTimestamp = (%d, %v), want (7, true)", ts, ok)
	}
	if q.ElementCount() != 1 {
		t.Fatalf("ElementCount = %d, want 1", q.ElementCount())
	}
}

func TestCrossBoundaryQueueOccupancy(t *testing.T) {
	q := New(4)
	q.Enqueue(Element{Kind: Plus, Timestamp: 1})
	q.Enqueue(Element{Kind: Plus, Timestamp: 2})
	if q.Len() != 2 {
		t.Fatalf("cross-boundary Len = %d, want 2", q.Len())
	}
	if _, ok := q.Dequeue(); !ok {
		t.Fatalf("Dequeue failed on cross-boundary queue")
	}
	if q.Len() != 1 {
		t.Fatalf("cross-boundary Len after Dequeue = %d, want 1", q.Len())
	}
}
