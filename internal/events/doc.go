// Package events carries the board's change feed.
//
// Every successful mutation of the board produces one Event describing the
// widget written or removed and every widget the write shifted. Events flow
// through a Publisher:
//
//	board.Service ──► Publisher ──┬──► Hub ──► websocket subscribers
//	                              │
//	                              └──► RedisPublisher ──► redis channel
//	                                                        │
//	                                   Relay ◄──────────────┘
//	                                     │
//	                                     └──► Hub (every instance)
//
// With Redis configured, each instance publishes to the shared channel and
// relays that channel into its local Hub, so subscribers of any instance see
// changes made through all of them. Without Redis the Service publishes
// straight into the Hub.
//
// Delivery is best effort. A slow subscriber has events dropped rather than
// stalling the writer, and a publish failure never fails the mutation that
// produced it.
package events
