// Package queue provides the ordered FIFO used for the success and failure
// queues of a run.
package queue

import "sync"

// Queue はスレッドセーフな FIFO キュー
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New は新しいキューを作成する
func New[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Enqueue は末尾に要素を追加する
func (q *Queue[T]) Enqueue(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, v)
}

// Dequeue は先頭の要素を取り出す
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Peek は先頭の要素を取り出さずに返す
func (q *Queue[T]) Peek() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// IsEmpty はキューが空かどうかを返す
func (q *Queue[T]) IsEmpty() bool {
	return q.Size() == 0
}

// Size は要素数を返す
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Elements は現在の要素のコピーを返す
func (q *Queue[T]) Elements() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}
