// Package queue provides a FIFO queue that tracks how many of its items are
// still unfinished.
//
// Every item added with Put counts as unfinished until a consumer that took
// it with Get calls Done. Join blocks until the unfinished count reaches zero,
// which makes the queue usable as an "all work done" barrier.
//
//	q := queue.New[func()]()
//	q.Put(job)
//
//	// consumer
//	if job, ok := q.Get(ctx, 2*time.Second); ok {
//	    job()
//	    _ = q.Done()
//	}
//
//	// producer
//	q.Join()
//
// Get returns false instead of an error when nothing arrives within the
// timeout so that consumers can re-check their own control state.
package queue
