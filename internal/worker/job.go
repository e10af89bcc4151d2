package worker

import (
	"errors"
	"fmt"
)

// Job はワーカーが実行するジョブを表す
// 戻り値のエラーは失敗の通知のみに使われ、結果値は持たない
type Job func() error

// Func は戻り値のない関数を Job に変換する
func Func(fn func()) Job {
	if fn == nil {
		return nil
	}
	return func() error {
		fn()
		return nil
	}
}

var (
	// ErrInvalidArgument は実行できないジョブが投入されたことを示す
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidState は停止済みのプールが操作されたことを示す
	ErrInvalidState = errors.New("invalid state")
	// ErrJobPanicked はジョブが panic したことを示す
	ErrJobPanicked = errors.New("job panicked")
)

// JobError はジョブの失敗をワーカーIDとともに表す
type JobError struct {
	WorkerID string
	Err      error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("worker %s: %v", e.WorkerID, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// entryKind はキュー要素の種類
type entryKind uint8

const (
	entryWork entryKind = iota
	entryStop           // グレースフルシャットダウン用の停止マーカー
)

// entry はキューに積まれる要素（ジョブか停止マーカー）
type entry struct {
	kind entryKind
	job  Job
}

func workEntry(job Job) entry {
	return entry{kind: entryWork, job: job}
}

func stopEntry() entry {
	return entry{kind: entryStop}
}

// invoke はジョブを実行し、panic をエラーに変換する
func invoke(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job()
}
