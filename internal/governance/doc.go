// Package governance holds the gateway's abuse controls: fixed-window rate
// limiting keyed by client and route, the per-route policy table, and the
// rules for deriving a client key from an inbound request.
//
// The in-memory limiter serves a single process. The Redis limiter shares
// counters across instances and degrades to the in-memory limiter when Redis
// cannot be reached, so enforcement keeps running through a Redis outage.
package governance
