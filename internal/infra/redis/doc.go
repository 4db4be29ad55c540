// Package redis holds the Redis-backed pieces of the service: the plan cache,
// the daily scan quota counter and the login rate limiter.
//
// All keys are namespaced by a caller-supplied prefix so several components
// can share one database.
package redis
