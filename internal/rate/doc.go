// Package rate enforces per-client attempt budgets with Redis fixed-window
// counters.
//
// Windows use INCR with a TTL set on the first hit, so concurrent attempts
// are counted atomically and a race can never undercount past the cap. The
// attempt is counted before the guarded operation runs; failed and malformed
// requests spend budget like successful ones.
package rate
