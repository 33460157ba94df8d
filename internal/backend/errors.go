package backend

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("resource not found")
	ErrBadResponse = errors.New("unexpected backend response")
)

// RequestError describes a failed backend call.
// The API layer maps it to a status code via errors.Is / errors.As.
type RequestError struct {
	Op         string
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("backend %s: %s %s: status=%d, body=%s", e.Op, e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("backend %s: %s %s: %v", e.Op, e.Method, e.Path, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusCode extracts the HTTP status of a backend failure, 0 if there was none.
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
