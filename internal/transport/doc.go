// Package transport carries protocol messages between the coordinator and a
// worker.
//
// Two Spawner implementations are provided:
//
//   - Process re-executes the current binary. The child inherits two pipes
//     (fd 3 for coordinator->worker, fd 4 for worker->coordinator) and learns
//     its identity from the SONIC_WORKER_ID environment variable. Stdout and
//     stderr stay free for user output and logs.
//   - InProcess runs the worker as a goroutine connected through an
//     in-memory Pipe. Message semantics are identical, which makes it the
//     transport of choice for tests.
//
// # Disconnect
//
// Closing the coordinator side of a Conn is the graceful disconnect: the
// worker's Recv returns io.EOF once pending messages are drained, and the
// worker exits. For a Process the coordinator's Close waits for the child to
// exit.
package transport
