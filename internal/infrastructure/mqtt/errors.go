package mqtt

import "errors"

// Errors returned by the client. Failures from the broker are wrapped, so
// compare with errors.Is.
var (
	ErrNotConnected     = errors.New("mqtt: not connected to broker")
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish rejected")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe rejected")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe rejected")

	// ErrInvalidQoS means a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic covers empty topics and wildcards in a publish topic.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
