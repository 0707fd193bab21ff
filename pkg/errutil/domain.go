package errutil

// Domain error constructors. Every command-path failure maps onto one of
// these so callers can classify with errors.As/IsStatus without importing the
// package that produced it.

// Concurrency signals a stale expected-sequence on an event-store append. The
// store never retries; reload-and-retry is the caller's call.
func Concurrency(msg string, options ...Option) error {
	return New(StatusConflict, msg, options...)
}

// InsufficientBalance signals a spend larger than the active balance.
func InsufficientBalance(msg string, options ...Option) error {
	return New(StatusUnprocessableEntity, msg, options...)
}

// InvalidPointsValue signals a non-positive transfer value.
func InvalidPointsValue(msg string, options ...Option) error {
	return New(StatusUnprocessableEntity, msg, options...)
}

// AlreadyCanceled signals a second cancel of the same points transfer.
func AlreadyCanceled(msg string, options ...Option) error {
	return New(StatusConflict, msg, options...)
}

// TransferNotFound signals an operation against an unknown points transfer.
func TransferNotFound(msg string, options ...Option) error {
	return New(StatusNotFound, msg, options...)
}
