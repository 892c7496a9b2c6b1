package bluetooth

import (
	"context"
	"time"
)

// isTransientInProgress reports whether err is a *Error tagged with
// backendCodeInProgress, the shape the client retries transparently
// instead of surfacing to the caller. Only the Linux backend tags errors
// this way, and only for BlueZ org.bluez.Error.InProgress; other transient
// failures (le-connection-abort-by-local, WinRT "object closed" races) are
// not tagged and are not retried.
//
// Each backend is responsible for classifying its own native errors into
// this shape before handing them to withInProgressRetry; this function
// only recognizes the *Error wrapper, never inspects dbus.Error/ole.OleError
// directly (that would violate the backend boundary).
func isTransientInProgress(err error) bool {
	bleErr, ok := err.(*Error)
	if !ok {
		return false
	}
	return bleErr.Kind == KindBackendError && bleErr.Code == backendCodeInProgress
}

// backendCodeInProgress is the Code value a backend sets on a
// KindBackendError to mark it as the BlueZ org.bluez.Error.InProgress case,
// so withInProgressRetry can recognize it without
// string-matching a platform-specific message.
const backendCodeInProgress uint32 = 1

// withInProgressRetry runs op, retrying with bounded exponential backoff
// (starting at 20ms, doubling, capped at 8 attempts total) while op fails
// with the transient InProgress shape, and returning immediately on any
// other outcome (success or a different error) or when ctx is done.
//
// On OSes that return InProgress errors, the client retries transparently
// with bounded backoff instead of surfacing a spurious failure.
func withInProgressRetry(ctx context.Context, op func() error) error {
	const maxAttempts = 8
	delay := 20 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = op()
		if !isTransientInProgress(lastErr) {
			return lastErr
		}

		Log.WithField("attempt", attempt+1).Debug("bluetooth: retrying operation after transient InProgress error")

		select {
		case <-ctx.Done():
			return wrapError(KindCancelled, "operation cancelled while retrying after InProgress", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}
