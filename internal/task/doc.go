// Package task runs long-running work off the request path. It provides a
// bounded priority queue that applies backpressure to submitters, a fixed
// pool of symmetric workers, a retry policy with constant or exponential
// backoff, and a Processor facade that tracks every submitted record through
// pending, running, retrying and its terminal status until it is swept away.
//
// State is held in memory only; records do not survive a restart.
package task
