// Package apperrors provides chained application errors that carry an HTTP
// status code. Errors built from a common root remain matchable with
// errors.Is at every level of the chain, which lets the client layers expose
// a small taxonomy of sentinel errors while still attaching causes.
package apperrors

// Error extends the standard error interface with chaining and status codes.
// All methods return a new Error; the receiver is never mutated.
type Error interface {
	error
	Unwrap() error

	New(msg string) Error                  // new message, current error as base
	Msg(msg string) Error                  // new message, wraps current error
	MsgErr(msg string, err ...error) Error // new message, wraps current and extra errors
	Err(err ...error) Error                // same message, attaches extra errors
	SetExpandError(bool) Error             // ErrorAll includes wrapped errors when set
	SetStatusCode(int) Error
	StatusCode() int
	ErrorAll() string
	UnwrapAll() []error
}
