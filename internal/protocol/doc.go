// Package protocol defines the messages exchanged between the coordinator
// and its workers.
//
// Each message kind is its own type implementing Message, so handlers use an
// exhaustive type switch instead of checking which flags are present:
//
//	switch m := msg.(type) {
//	case protocol.Syn:
//	    // worker registered, answer with Ack
//	case protocol.SynAck:
//	    // worker ready for dispatch
//	case protocol.Reply:
//	    // file m.Outcome into the success or failure queue
//	}
//
// # Handshake
//
// A freshly spawned worker sends Syn, the coordinator answers with exactly
// one Ack, and the worker confirms with SynAck. Only after SynAck does the
// worker identity enter the readiness queue.
//
// # Wire Format
//
// On a byte stream every message travels as one JSON Frame per line. Frame
// decoding rejects control frames that carry a payload and failed replies
// that carry a response.
package protocol
