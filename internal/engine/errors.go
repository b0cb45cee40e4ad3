package engine

import (
	"errors"
	"fmt"
)

// ErrRobotsDisallowed marks a fetch rejected by the robots policy. It is
// terminal: retrying will not change the answer within the rules' TTL.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// HTTPError reports a client or server error status from the transport.
// The engine treats every error status as retryable.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
}

// InvalidTargetError marks a URL that could not be parsed or grouped by
// origin. It is terminal and consumes no transport attempt.
type InvalidTargetError struct {
	URL string
	Err error
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("invalid target %q: %v", e.URL, e.Err)
}

func (e *InvalidTargetError) Unwrap() error {
	return e.Err
}
