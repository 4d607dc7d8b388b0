package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global sentry client. A blank DSN disables reporting.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// FlushSentry drains pending events before shutdown.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
