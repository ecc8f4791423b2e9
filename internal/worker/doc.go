// Package worker implements the worker side of a run.
//
// A Runtime owns one connection to the coordinator. It registers with a SYN,
// completes the handshake with a SYN_ACK once the coordinator's ACK arrives,
// and from then on answers every DATA message with exactly one REPLY.
//
// # Pipelines
//
// A pipeline is an ordered list of Stage functions. Execute feeds the item
// to the first stage and each stage's output to the next one:
//
//	stages := []worker.Stage{parse, count}
//	out, err := worker.Execute(ctx, stages, worker.Event{Data: raw}, args)
//
// The first stage error aborts the pipeline. Panics are recovered and
// reported as ErrStagePanic. Stage output must be JSON encodable since it is
// sent back to the coordinator.
//
// # Decoding
//
// Event.Decode binds the stage input to a typed value. The first stage sees
// the raw JSON of the dispatched item; later stages usually receive the
// previous stage's Go value, which is assigned directly when the types match.
//
//	var path string
//	if err := ev.Decode(&path); err != nil {
//	    return nil, err
//	}
package worker
