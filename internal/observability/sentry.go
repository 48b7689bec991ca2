package observability

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures error reporting. A blank DSN disables it; the
// returned flush function is then a no-op.
func InitSentry(dsn, serverName string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:           dsn,
		ServerName:    serverName,
		SampleRate:    1.0,
		EnableTracing: false,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}

	return func() { sentry.Flush(2 * time.Second) }, nil
}

// CaptureError forwards err to Sentry. Without a configured client this is
// a no-op, so callers never need to guard it.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}
