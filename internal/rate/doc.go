// Package rate enforces fixed-window attempt budgets over Redis.
//
// The limiter has no opinion about what a key identifies (challenge token,
// email, IP); callers choose the key. Counting is a single atomic Lua
// INCR+PEXPIRE, so two concurrent calls for the same key are both counted.
package rate
