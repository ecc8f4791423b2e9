// Package readiness implements the FIFO of worker identities that can accept
// work.
//
// Unlike a plain queue, an identity can be present at most once, and callers
// can block until an identity is available or until the queue reaches a
// given occupancy. Waiters are woken on every change instead of polling.
package readiness

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed はキューが閉じられたことを示す
var ErrClosed = errors.New("readiness queue closed")

// Queue はディスパッチ可能なワーカーIDの FIFO
type Queue struct {
	mu      sync.Mutex
	ids     []int
	members map[int]struct{}
	changed chan struct{}
	closed  bool
}

// New は新しい Readiness Queue を作成する
func New() *Queue {
	return &Queue{
		members: make(map[int]struct{}),
		changed: make(chan struct{}),
	}
}

// notify は待機中のゴルーチンを起こす（mu を保持して呼ぶこと）
func (q *Queue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Enqueue はワーカーIDを末尾に追加する
// 既にキュー内にある場合は何もせず false を返す
func (q *Queue) Enqueue(id int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.members[id]; exists || q.closed {
		return false
	}
	q.ids = append(q.ids, id)
	q.members[id] = struct{}{}
	q.notify()
	return true
}

// Dequeue は先頭のワーカーIDを取り出す
func (q *Queue) Dequeue() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dequeueLocked()
}

func (q *Queue) dequeueLocked() (int, bool) {
	if len(q.ids) == 0 {
		return 0, false
	}
	id := q.ids[0]
	q.ids = q.ids[1:]
	delete(q.members, id)
	q.notify()
	return id, true
}

// Acquire はワーカーIDが利用可能になるまでブロックし、取り出して返す
// キューが空のまま閉じられると ErrClosed を返す
func (q *Queue) Acquire(ctx context.Context) (int, error) {
	for {
		q.mu.Lock()
		if id, ok := q.dequeueLocked(); ok {
			q.mu.Unlock()
			return id, nil
		}
		if q.closed {
			q.mu.Unlock()
			return 0, ErrClosed
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-changed:
		}
	}
}

// Remove はワーカーIDをキューから削除する
// 待機者には常に通知する（ライブワーカー数の変化を伝えるため）
func (q *Queue) Remove(id int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, exists := q.members[id]
	if exists {
		delete(q.members, id)
		for i, v := range q.ids {
			if v == id {
				q.ids = append(q.ids[:i], q.ids[i+1:]...)
				break
			}
		}
	}
	q.notify()
	return exists
}

// Close は以降の Enqueue を拒否し、待機中の Acquire を起こす
// 既にキュー内にあるIDは引き続き取り出せる
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notify()
}

// Closed はキューが閉じられているかどうかを返す
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Contains はワーカーIDがキュー内にあるかどうかを返す
func (q *Queue) Contains(id int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, exists := q.members[id]
	return exists
}

// Len はキュー内のワーカー数を返す
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

// Snapshot はキューの内容を先頭から順に返す
func (q *Queue) Snapshot() []int {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]int, len(q.ids))
	copy(out, q.ids)
	return out
}

// WaitUntil は cond がキュー長に対して true を返すまでブロックする
// cond は変化のたびに再評価される
func (q *Queue) WaitUntil(ctx context.Context, cond func(size int) bool) error {
	for {
		q.mu.Lock()
		size := len(q.ids)
		changed := q.changed
		q.mu.Unlock()

		if cond(size) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// WaitLen はキュー長が n 以上になるまでブロックする
func (q *Queue) WaitLen(ctx context.Context, n int) error {
	return q.WaitUntil(ctx, func(size int) bool { return size >= n })
}
