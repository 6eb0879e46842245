package wfgraph

import "container/heap"

// intHeap is a deterministic min-heap of canonical node indices, used
// wherever a ready-queue needs a stable pop order (lowest canonical index
// first) regardless of insertion order.
type intHeap struct{ data []int }

func newIntHeap() *intHeap {
	h := &intHeap{}
	heap.Init(h)
	return h
}

func (h *intHeap) Len() int            { return len(h.data) }
func (h *intHeap) Less(i, j int) bool  { return h.data[i] < h.data[j] }
func (h *intHeap) Swap(i, j int)       { h.data[i], h.data[j] = h.data[j], h.data[i] }
func (h *intHeap) Push(x interface{})  { h.data = append(h.data, x.(int)) }
func (h *intHeap) Pop() interface{} {
	old := h.data
	n := len(old)
	v := old[n-1]
	h.data = old[:n-1]
	return v
}

func (h *intHeap) push(v int) { heap.Push(h, v) }
func (h *intHeap) pop() int   { return heap.Pop(h).(int) }
func (h *intHeap) len() int   { return h.Len() }
