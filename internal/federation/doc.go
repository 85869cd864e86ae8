// Package federation provides the value-federate wrapper used by both sides
// of the co-simulation.
//
// A [Federate] talks to the co-simulation runtime through the [Core]
// interface. The runtime can live in the same process (broker.Broker) or
// behind a TCP connection (transport.Client); the wrapper does not care.
//
// # Lifecycle
//
//	fed, _ := federation.NewValueFederate(ctx, core, info)
//	pub, _ := fed.RegisterGlobalPublication(ctx, "a/b", "double", "W")
//	in, _ := fed.RegisterSubscription(ctx, "c/d", "C")
//	_ = fed.EnterExecutingMode(ctx)
//	for granted < total {
//		granted, _ = fed.RequestNextStep(ctx)
//		_ = pub.PublishDouble(ctx, v)
//		if in.IsUpdated() { x = in.GetDouble() }
//	}
//	_ = fed.Finalize(ctx)
//
// A Federate is not safe for concurrent use; each federate runs its time
// loop on a single goroutine.
package federation
