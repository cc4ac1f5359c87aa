// Package looper runs recurring jobs against a resource.Provider.
//
// Two loop kinds share one wait-and-fire primitive (Looper.Run):
//   - cron loops fire at the instants of a six-field cron schedule
//   - poll loops fire immediately and then after whatever delay the handler returns
//
// Every iteration first checks the shared Signal, then fires if due, then sleeps for
// at most the loop's wake interval. A set Signal is therefore observed within one wake
// interval (plus any in-flight acquisition), and the shutdown callback runs exactly once.
//
// Failure policy:
//   - a failed acquisition skips the iteration with a warning; the loop keeps going
//   - a handler error or panic terminates that loop only (ErrHandler); others are unaffected
package looper
