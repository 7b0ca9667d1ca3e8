// Package scheduler triggers named background jobs on cron expressions or
// fixed intervals. A job never overlaps with itself: a trigger that fires
// while the previous run is still going is skipped.
package scheduler
