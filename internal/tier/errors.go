package tier

import "github.com/akidb/akidb/internal/akierr"

// recoveredPanicError converts a recovered panic value into a KindTransient
// error carrying enough context to diagnose, without re-panicking (I11):
// the operation that panicked failed, but the guarded structure itself is
// adopted as-is and remains usable for the next call, so this is retryable
// rather than fatal. Only a caller-level decision that the adopted data is
// unrecoverable should escalate to KindFatal.
func recoveredPanicError(op string, r any) error {
	return akierr.New(akierr.KindTransient, op, "recovered panic under lock, state adopted: "+toString(r))
}

func toString(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "non-string panic value"
}
