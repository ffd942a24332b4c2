// Package reconnect computes retry delays per failure class and owns the single retry timer.
//
// Delays grow as base * multiplier^(attempt-1), capped per class. The attempt counter is shared by
// every class; the class of the failure being retried selects the bucket.
package reconnect
