// Package broker is a small in-process co-simulation core.
//
// It coordinates a fixed number of value federates with a conservative
// lock-step rule: a federate's time request R is granted, exactly, once every
// other active federate has either been granted or requested a time of at
// least R. Federates that set WaitForCurrentTimeUpdate are held back until
// the others have been granted R and requested past it, so they observe
// every value published at R.
//
// Values are last-value-wins per publication. On each grant a federate
// receives the values of its subscribed publications that changed since its
// previous grant.
//
// [Broker] implements federation.Core and is safe for concurrent use; the
// transport package serves it over TCP.
package broker
