package worker

import (
	"fmt"
	"strings"
)

// StopStrategy は Abort 時に実行中のジョブをどう扱うかを決める
//
// Cooperative: Abort はジョブの合間にだけ効く。実行中のジョブは最後まで
// 実行され、完了が記録される。Abort は完了を待たずに戻る。
//
// Forceful: Abort は実行中のジョブを即座に見捨て、ジョブ用コンテキストを
// キャンセルし、全ワーカーの終了を待ってから戻る。見捨てたジョブの完了は
// 記録されない。goroutine は外部から停止できないため、Pool.Context() を
// 見ないジョブは裏で最後まで走り続け、副作用が部分的に残ることがある。
type StopStrategy interface {
	String() string

	// run はジョブを実行する。finished が false なら abort により見捨てた
	run(abort <-chan struct{}, exec func() error) (finished bool, err error)
	// cancelJobs は Abort 時にジョブ用コンテキストを即座にキャンセルするか
	cancelJobs() bool
	// joinOnAbort は Abort がワーカーの終了を待つか
	joinOnAbort() bool
}

var (
	// Cooperative は実行中のジョブを最後まで実行させる
	Cooperative StopStrategy = cooperative{}
	// Forceful は実行中のジョブを見捨てて即座に停止する
	Forceful StopStrategy = forceful{}
)

type cooperative struct{}

func (cooperative) String() string { return "cooperative" }

func (cooperative) run(_ <-chan struct{}, exec func() error) (bool, error) {
	return true, exec()
}

func (cooperative) cancelJobs() bool  { return false }
func (cooperative) joinOnAbort() bool { return false }

type forceful struct{}

func (forceful) String() string { return "forceful" }

func (forceful) run(abort <-chan struct{}, exec func() error) (bool, error) {
	done := make(chan error, 1)
	go func() {
		done <- exec()
	}()

	select {
	case err := <-done:
		return true, err
	case <-abort:
		// 同時に終わっていた場合は完了扱いにする
		select {
		case err := <-done:
			return true, err
		default:
			return false, nil
		}
	}
}

func (forceful) cancelJobs() bool  { return true }
func (forceful) joinOnAbort() bool { return true }

// ParseStopStrategy は文字列から停止戦略を解析する
func ParseStopStrategy(s string) (StopStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cooperative", "thread", "threads":
		return Cooperative, nil
	case "forceful", "process", "processes":
		return Forceful, nil
	default:
		return nil, fmt.Errorf("unknown stop strategy: %q", s)
	}
}
