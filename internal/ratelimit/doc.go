// Package ratelimit provides per-IP rate limiting with background
// eviction of stale entries.
//
// This is a single-node, in-memory limiter for basic abuse prevention
// on the public listener: the /auth endpoint invites brute-forcing of
// the access key, and content routes can trigger site activations.
// It does not protect against distributed attacks or anything that
// stays under the limit.
package ratelimit
