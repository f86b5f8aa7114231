package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable.
// The core never retries on its own; the flag only tells operators whether
// restarting the process is likely to help.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "dial", "read", "fetch klines")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable).
// It matches ErrInvalidConfiguration with errors.Is.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

var (
	// ErrInvalidConfiguration is returned when a required settings section is missing
	// or a value is out of range. Fatal at startup.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrMissingSection is wrapped by ConfigError when a required section is absent.
	ErrMissingSection = errors.New("section missing")

	// ErrDataUnavailable is returned when the bootstrap history cannot be fetched. Fatal at startup.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrStreamFault is returned by a live source on a malformed or error frame.
	// It terminates only the listener that produced it.
	ErrStreamFault = errors.New("stream fault")

	// ErrInvalidOrder is returned when normalization rejects an order quantity or price.
	// The decision cycle is skipped.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrExchangeRejected is returned when the exchange call itself fails.
	ErrExchangeRejected = errors.New("exchange rejected")

	// ErrInsufficientHistory is returned when an analyzer is invoked before bootstrap.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrUnknownSymbol is returned when the exchange has no trading filters for a symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")
)
