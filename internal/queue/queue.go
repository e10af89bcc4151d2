package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyDone は取り出した件数を超えて Done が呼ばれたことを示す
var ErrTooManyDone = errors.New("queue: Done called more times than items were taken")

// Queue は完了数を追跡する FIFO キュー
//
// unfinished は Put で増え、Done と Drain で減る。
// unfinished - len(items) が実行中の件数になる。
type Queue[T any] struct {
	mu         sync.Mutex
	items      []T
	unfinished int

	// notEmpty は Put のたびに close して作り直す（待機中の Get を起こす）
	notEmpty chan struct{}
	// allDone は unfinished が 0 になった時点で close される
	allDone chan struct{}
}

// New は空のキューを作成する
func New[T any]() *Queue[T] {
	allDone := make(chan struct{})
	close(allDone)
	return &Queue[T]{
		notEmpty: make(chan struct{}),
		allDone:  allDone,
	}
}

// Put は要素を末尾に追加し、未完了数を増やす
func (q *Queue[T]) Put(items ...T) {
	if len(items) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished == 0 {
		q.allDone = make(chan struct{})
	}
	q.items = append(q.items, items...)
	q.unfinished += len(items)

	close(q.notEmpty)
	q.notEmpty = make(chan struct{})
}

// Get は先頭の要素を取り出す
// 空の場合は timeout まで待ち、それでも空なら false を返す（エラーではない）
// ctx が終了した場合も false を返す
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, bool) {
	var zero T

	if item, ok := q.TryGet(); ok {
		return item, true
	}
	if timeout <= 0 {
		return zero, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.pop()
			q.mu.Unlock()
			return item, true
		}
		wake := q.notEmpty
		q.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return zero, false
		case <-ctx.Done():
			return zero, false
		}
	}
}

// TryGet は待たずに先頭の要素を取り出す
func (q *Queue[T]) TryGet() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// pop は q.mu を保持した状態で呼ぶこと
func (q *Queue[T]) pop() T {
	var zero T
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	return item
}

// Done は取り出した要素の処理完了を通知する
func (q *Queue[T]) Done() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished-len(q.items) <= 0 {
		return ErrTooManyDone
	}
	q.unfinished--
	if q.unfinished == 0 {
		close(q.allDone)
	}
	return nil
}

// Join は未完了数が 0 になるまでブロックする
func (q *Queue[T]) Join() {
	_ = q.JoinContext(context.Background())
}

// JoinContext は未完了数が 0 になるか ctx が終了するまでブロックする
func (q *Queue[T]) JoinContext(ctx context.Context) error {
	q.mu.Lock()
	done := q.allDone
	q.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain は待機中の要素をすべて取り除き、それぞれを完了扱いにする
// 取り除いた要素を投入順で返す
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	drained := make([]T, len(q.items))
	copy(drained, q.items)
	clear(q.items)
	q.items = nil

	q.unfinished -= len(drained)
	if q.unfinished == 0 {
		close(q.allDone)
	}
	return drained
}

// Len は待機中の要素数を返す
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished は完了していない要素数（待機中 + 実行中）を返す
func (q *Queue[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}
