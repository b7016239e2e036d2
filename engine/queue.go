package engine

import "container/heap"

// keyHeap is a min-heap of distinct event times.
type keyHeap []int64

func (h keyHeap) Len() int           { return len(h) }
func (h keyHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h keyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *keyHeap) Push(x any) { *h = append(*h, x.(int64)) }

func (h *keyHeap) Pop() any {
	old := *h
	n := len(old)
	key := old[n-1]
	*h = old[0 : n-1]
	return key
}

// KeyedQueue is a multimap ordered by key. Values pushed under the same key
// come back in insertion order.
type KeyedQueue[V any] struct {
	keys   keyHeap
	values map[int64][]V
	size   int
}

// NewKeyedQueue builds an empty queue.
func NewKeyedQueue[V any]() *KeyedQueue[V] {
	return &KeyedQueue[V]{values: make(map[int64][]V)}
}

// Push appends v to the values stored under key.
func (q *KeyedQueue[V]) Push(key int64, v V) {
	vals, ok := q.values[key]
	if !ok {
		heap.Push(&q.keys, key)
	}
	q.values[key] = append(vals, v)
	q.size++
}

// MinKey returns the lowest key, or NoTime when the queue is empty.
func (q *KeyedQueue[V]) MinKey() int64 {
	if len(q.keys) == 0 {
		return NoTime
	}
	return q.keys[0]
}

// PopMin removes the lowest key and returns it with all of its values.
// ok is false when the queue is empty.
func (q *KeyedQueue[V]) PopMin() (key int64, vals []V, ok bool) {
	if len(q.keys) == 0 {
		return NoTime, nil, false
	}
	key = heap.Pop(&q.keys).(int64)
	vals = q.values[key]
	delete(q.values, key)
	q.size -= len(vals)
	return key, vals, true
}

// Len is the number of values across all keys.
func (q *KeyedQueue[V]) Len() int { return q.size }

// Keys is the number of distinct keys.
func (q *KeyedQueue[V]) Keys() int { return len(q.keys) }
