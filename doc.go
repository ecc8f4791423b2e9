// Package distribute runs a map/reduce style job over a pool of worker
// processes.
//
// A single call to Run plays one of two roles. In the coordinator role it
// spawns the pool by re-executing the current binary, waits for every worker
// to complete the handshake, calls the driver to submit work items, drains
// the pool, disconnects the workers and hands the Success and Failure queues
// to the reducer. In the worker role, detected through the SONIC_WORKER_ID
// environment variable, it serves items through the stage pipeline until the
// coordinator disconnects.
//
// # Basic Usage
//
//	func main() {
//	    stages := []distribute.Stage{countWords}
//	    result, err := distribute.Run(ctx, driver, stages, reduce, distribute.DefaultOptions())
//	    if !distribute.IsCoordinator() {
//	        return
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(result)
//	}
//
// Both roles must build the same stage list, since workers run the same
// binary with the same arguments.
//
// # Goroutine Mode
//
// Options.InProcess runs the workers as goroutines connected by in-memory
// pipes. The message flow is identical, which makes it suitable for tests
// and small inputs.
//
// # Quiet Mode
//
// Setting the QUIET environment variable to any non-empty value suppresses
// all log output in both roles.
package distribute
