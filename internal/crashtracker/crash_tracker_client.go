// Package crashtracker reports panics and unexpected errors raised while a
// project sandbox is running, so a crash in one sandbox's background jobs
// doesn't go unnoticed.
package crashtracker

import (
	"context"
	"time"
)

// Client is implemented by both the Sentry-backed client used in production
// and the dry-run client used in local development and tests.
type Client interface {
	LogAndReportErrors(ctx context.Context, err error, msg string)
	LogAndReportMessages(ctx context.Context, msg string)
	FlushEvents(waitTime time.Duration) bool
	Recover()
	Clone() Client
}
