// Package cache provides the per-source result store used by the aggregation
// engine, and the policy that decides how long a fetch result is kept.
//
// ## Lazy Expiry
//
// Every entry carries an expiration time computed when it is stored. Entries
// are not removed when they expire. Instead, a read checks the expiration and
// reports an expired entry as missing. Expired values are never served.
// Expired entries are physically removed by Prune, or overwritten by the next
// Put for the same key.
//
// ## Failure Entries
//
// Failed fetches are stored too, so that a broken source is not queried on
// every request. The Policy gives failures their own, normally much shorter,
// time-to-live, so that a source that recovers is seen again soon. A
// non-positive time-to-live disables caching of that kind of result.
package cache
