package queue

import (
	"container/heap"

	"github.com/pavetrack/field-sync/models"
)

// entryHeap orders entries by priority tier, then FIFO by enqueue time,
// then by outbox sequence. It implements heap.Interface; Manager methods
// drive it under the manager's lock.
type entryHeap struct {
	items []*models.QueueEntry
}

func newEntryHeap() *entryHeap {
	h := &entryHeap{}
	heap.Init(h)
	return h
}

func (h *entryHeap) Len() int { return len(h.items) }

func (h *entryHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.Seq < b.Seq
}

func (h *entryHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *entryHeap) Push(x any) { h.items = append(h.items, x.(*models.QueueEntry)) }

func (h *entryHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}

func (h *entryHeap) pushEntry(e models.QueueEntry) {
	heap.Push(h, &e)
}

// popWhere removes and returns the best entry satisfying admissible,
// leaving skipped entries queued. Entry order among skipped entries is
// preserved because they are pushed back with their original keys.
func (h *entryHeap) popWhere(admissible func(*models.QueueEntry) bool) *models.QueueEntry {
	var skipped []*models.QueueEntry
	var picked *models.QueueEntry

	for h.Len() > 0 {
		candidate := heap.Pop(h).(*models.QueueEntry)
		if admissible(candidate) {
			picked = candidate
			break
		}
		skipped = append(skipped, candidate)
	}

	for _, e := range skipped {
		heap.Push(h, e)
	}
	return picked
}

// minSeqs returns the smallest queued outbox sequence per record. Computed
// before popWhere starts, so entries temporarily popped during the scan
// still count. Linear scan: the queue is device-local and small.
func (h *entryHeap) minSeqs() map[string]uint64 {
	mins := make(map[string]uint64, len(h.items))
	for _, e := range h.items {
		if cur, ok := mins[e.RecordID]; !ok || e.Seq < cur {
			mins[e.RecordID] = e.Seq
		}
	}
	return mins
}

func (h *entryHeap) forEach(fn func(*models.QueueEntry)) {
	for _, e := range h.items {
		fn(e)
	}
}
