// Package aggregator fetches data from many independent sources at once,
// caching each source's result, so that a consumer gets fresh-enough results
// for every source without waiting on the slowest one.
//
// ## Independent Sources
//
// FetchAll starts a separate fetch for each requested source and delivers
// each source's outcome on the returned channel as soon as that source
// resolves. A source that is slow, hung, or failing never delays the outcome
// of another source. Source failures are delivered as Failure outcomes, never
// as errors from FetchAll.
//
// ## Caching
//
// Successful and failed results are both cached, each with its own
// time-to-live. A source whose result is cached and not expired is reported
// immediately with Outcome.Cached set, and the provider is not called. A
// failure is cached for a short time so that a broken source is not queried
// by every request, yet is retried soon once it recovers. Either time-to-live
// can be disabled with a non-positive value.
//
// ## Shared Fetches
//
// Concurrent requests for the same uncached source share one provider call.
// If a requester stops waiting, the call continues for the others. If all
// requesters stop waiting, the call is canceled.
//
// ## Refresh
//
// Refresh discards the cached result for one source and fetches it again. It
// is the explicit "retry this source" operation. Nothing is ever retried
// automatically.
//
// ## Expired Entries
//
// Expired results are never served. They are removed from memory by a
// periodic prune. A timer sets a flag when a prune is due, and the next fetch
// starts the prune. This avoids a background goroutine that must be stopped
// when the engine is no longer used.
package aggregator
