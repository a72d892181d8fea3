package api

import "context"

// runContext returns a fresh background context for work that must outlive
// the HTTP request that kicked it off (StartRun, RetryTask, RetryStep all
// run as detached background workers per spec.md §5).
func runContext() context.Context { return context.Background() }
