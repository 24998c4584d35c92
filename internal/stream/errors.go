package stream

import (
	"fmt"
	"time"
)

// LoaderTimeout is returned when a provider does not produce its stream
// within the simulation's configured loader timeout (§4.B, §7).
type LoaderTimeout struct {
	Input   string
	Timeout time.Duration
}

func (e LoaderTimeout) Error() string {
	return fmt.Sprintf("stream: loader for %s did not respond within %s", e.Input, e.Timeout)
}

// LoaderIoFailure wraps an error a provider's Load returned (§7).
type LoaderIoFailure struct {
	Input string
	Err   error
}

func (e LoaderIoFailure) Error() string {
	return fmt.Sprintf("stream: loader for %s failed: %v", e.Input, e.Err)
}

func (e LoaderIoFailure) Unwrap() error {
	return e.Err
}
