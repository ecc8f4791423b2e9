// Package coordinator runs the coordinator side of a run.
//
// A Coordinator spawns a fixed pool of workers through a transport.Spawner,
// completes the SYN / ACK / SYN_ACK handshake with each of them, hands out
// work items to idle workers and files every reply into a Success or
// Failure queue.
//
// # Lifecycle
//
//	STARTING -> RUNNING -> DRAINING -> STOPPED
//
// Start blocks until every live worker has completed the handshake.
// Dispatch is only accepted while RUNNING. Drain waits until every live
// worker is idle again, which means every dispatched item has been filed.
// Shutdown disconnects the workers one by one, staggered by
// Config.ShutdownStagger, and stops the message handler.
//
// # Basic Usage
//
//	c := coordinator.New(coordinator.Config{
//	    NumWorkers: 4,
//	    Spawner:    spawner,
//	})
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	for _, item := range items {
//	    if _, err := c.Dispatch(ctx, item); err != nil {
//	        return err
//	    }
//	}
//	_ = c.Drain(ctx)
//	_ = c.Shutdown(ctx)
//
//	for !c.Success().IsEmpty() {
//	    env, _ := c.Success().Dequeue()
//	    // ...
//	}
//
// # Worker Failures
//
// A worker whose connection drops is marked disconnected and never receives
// work again. The item it was processing is filed in the Failure queue with
// ErrWorkerLost. Items are never retried.
//
// # Concurrency
//
// One reader goroutine per worker feeds a single handler goroutine, which
// is the only writer of the result queues. Dispatch may be called from many
// goroutines at once; the readiness queue hands each idle worker to exactly
// one caller.
package coordinator
