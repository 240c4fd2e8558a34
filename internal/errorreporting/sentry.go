package errorreporting

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
)

// Patterns scrubbed from messages before they leave the process
var sensitivePatterns = []*regexp.Regexp{
	// Email addresses
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_-]{20,}`),
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret)["\s:=]+[a-zA-Z0-9_-]{16,}`),
	// IP addresses
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

// Options configures Sentry.
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

var enabled bool

// Init initializes Sentry error reporting. An empty DSN leaves reporting off.
func Init(opts Options) error {
	if opts.DSN == "" {
		enabled = false
		return nil
	}

	release := opts.Release
	if release == "" {
		release = "dev"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      opts.Environment,
		Release:          release,
		SampleRate:       opts.SampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}

	enabled = true
	return nil
}

// beforeSend scrubs sensitive data from outgoing events.
func beforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = scrub(event.Exception[i].Value)
	}
	if event.Message != "" {
		event.Message = scrub(event.Message)
	}
	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = scrub(str)
		}
	}

	if event.Request != nil {
		if event.Request.Headers != nil {
			delete(event.Request.Headers, "Authorization")
			delete(event.Request.Headers, "Cookie")
			delete(event.Request.Headers, "X-Api-Key")
		}
		event.Request.QueryString = ""
	}

	return event
}

func scrub(text string) string {
	result := text
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// CaptureError captures an error and sends it to Sentry
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CaptureErrorWithContext captures an error with additional context
func CaptureErrorWithContext(err error, tags map[string]string, extras map[string]interface{}) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		// Extras are scrubbed by beforeSend
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CaptureRunFailure reports a failed simulation run.
func CaptureRunFailure(err error, runID, algorithm string, particles, steps int) {
	CaptureErrorWithContext(err,
		map[string]string{
			"component": "runs",
			"algorithm": algorithm,
		},
		map[string]interface{}{
			"run_id":    runID,
			"particles": strconv.Itoa(particles),
			"steps":     strconv.Itoa(steps),
		},
	)
}

// AddBreadcrumb adds a breadcrumb for debugging context
func AddBreadcrumb(category, message string, level sentry.Level) {
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	})
}

// Flush waits for all events to be sent to Sentry
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// Scrub exposes the scrubbing function for log messages.
func Scrub(text string) string {
	return scrub(text)
}

// IsSentryEnabled returns true if Sentry was initialized with a DSN
func IsSentryEnabled() bool {
	return enabled
}
