package mqtt

import "errors"

// Connection errors.
var (
	// ErrNotConnected is returned for any broker operation while the link is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the first connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrTLSConfig is returned when certificates cannot be loaded.
	ErrTLSConfig = errors.New("mqtt: invalid TLS configuration")
)

// Request errors. Broker-side failures wrap the paho error; check with errors.Is.
var (
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidTopic covers empty topics and misplaced wildcards.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidQoS is returned for a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrPayloadTooLarge is returned for payloads above the broker limit.
	ErrPayloadTooLarge = errors.New("mqtt: payload too large")
)
