package objectstore

import "errors"

var (
	// ErrConnectionFailed is returned when the endpoint or bucket is unusable.
	ErrConnectionFailed = errors.New("objectstore: connection failed")
)
