// Package cluster provides the coordinator's table of worker nodes.
//
// A Cluster maps worker identities to node.Node values. It answers liveness
// questions for the dispatcher and tears the pool down at the end of a run.
//
// # Basic Usage
//
//	c := cluster.New()
//	if err := c.AddNode(node.New(1, conn)); err != nil {
//	    log.Fatal(err)
//	}
//
//	if c.IsLive(1) {
//	    // safe to dispatch
//	}
//
//	// Disconnect every live worker, 100ms apart
//	_ = c.DisconnectAll(ctx, 100*time.Millisecond)
//
// # Shutdown
//
// DisconnectAll walks the workers in identity order and staggers the
// disconnect requests so teardown events do not arrive all at once. It
// returns once every connection has closed.
//
// # Thread Safety
//
// All cluster operations are thread-safe and can be called concurrently.
package cluster
