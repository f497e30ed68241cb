package types

import "errors"

// Error taxonomy for remote calls and transitions. Callers classify with
// errors.Is; detail is attached at the call site via fmt.Errorf wrapping.
var (
	// ErrTransport means the remote endpoint was unreachable or returned a
	// non-success HTTP status. Issue state is unchanged; safe to retry.
	ErrTransport = errors.New("transport error")

	// ErrRemoteExecution means the agent session itself reported an error
	// state. Issue state is unchanged.
	ErrRemoteExecution = errors.New("remote session reported an error state")

	// ErrTimeout means the wait ceiling passed without a terminal state.
	// The remote session may still complete but is no longer tracked.
	ErrTimeout = errors.New("wait ceiling exceeded")

	// ErrValidation means the caller's input was rejected before any
	// remote call was made.
	ErrValidation = errors.New("validation failed")

	// ErrMaxRetries means the auto-heal ceiling was reached. Terminal for
	// the automatic path; manual intervention required.
	ErrMaxRetries = errors.New("auto-heal retry limit reached")

	// ErrSessionActive means a transition is already in flight for the
	// issue. The second request is rejected, not queued.
	ErrSessionActive = errors.New("a session is already in flight for this issue")

	// ErrPermissionDenied is classified from HTTP 403 on tracker writes.
	// Usually a token scope problem.
	ErrPermissionDenied = errors.New("permission denied by remote tracker")

	// ErrNotFound is classified from HTTP 404 on the remote tracker.
	ErrNotFound = errors.New("not found on remote tracker")
)
