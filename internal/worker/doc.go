// Package worker provides a pausable, abortable goroutine pool with
// completion tracking.
//
// The Pool runs a fixed number of workers that take jobs from a shared
// FIFO queue. Every dequeued job is marked done exactly once, so Wait
// returns as soon as nothing is pending or executing.
//
// # Basic Usage
//
//	pool, err := worker.NewPool(ctx, 4)
//	if err != nil {
//	    return err
//	}
//
//	for _, file := range files {
//	    pool.Submit(func() error {
//	        return process(file)
//	    })
//	}
//
//	pool.Wait()
//	pool.Shutdown(ctx)
//
// # Pause and Abort
//
// Pause stops workers from starting new jobs; jobs already executing run
// to completion. Resume lets them continue. Abort is permanent: Submit
// fails with ErrInvalidState afterwards and AbortAndClear also discards
// every job that has not started.
//
// # Stop Strategies
//
// Cooperative (the default) lets an in-flight job finish before its
// worker stops, and Abort returns without waiting. Forceful abandons
// in-flight jobs, cancels Pool.Context and waits for every worker to stop.
// An abandoned job keeps running in the background unless it watches
// Pool.Context, so it may leave partial side effects behind. Jobs that
// need atomicity must be idempotent.
//
// # Graceful Shutdown
//
// Shutdown enqueues one stop marker per worker behind the pending jobs,
// waits until all of them are done and every worker has terminated.
package worker
