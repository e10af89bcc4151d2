// Package gate provides a broadcast open/closed signal.
//
// A Gate starts open. Close makes every subsequent Wait block until Open is
// called; Open releases all blocked waiters at once. Waiters that are already
// past the gate are not affected.
package gate

import (
	"context"
	"sync"
)

// Gate は多数の待機者に開閉を一斉通知するゲート
type Gate struct {
	mu     sync.Mutex
	closed bool
	ch     chan struct{} // close 済み = 開いている
}

// New は開いた状態のゲートを作成する
func New() *Gate {
	ch := make(chan struct{})
	close(ch)
	return &Gate{ch: ch}
}

// Wait はゲートが開いていれば即座に戻り、閉じていれば開くまでブロックする
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close はゲートを閉じる（冪等）
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true
	g.ch = make(chan struct{})
}

// Open はゲートを開き、待機中の全員を解放する（冪等）
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		return
	}
	g.closed = false
	close(g.ch)
}

// IsOpen はゲートが開いているかを返す
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed
}
