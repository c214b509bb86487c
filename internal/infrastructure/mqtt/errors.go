package mqtt

import "errors"

// Sentinel errors for MQTT operations. Use errors.Is to test for them.
var (
	// ErrConnectionFailed indicates the initial broker connection failed.
	ErrConnectionFailed = errors.New("mqtt connection failed")

	// ErrNotConnected indicates an operation was attempted while disconnected.
	ErrNotConnected = errors.New("mqtt client not connected")

	// ErrPublishFailed indicates a publish operation failed or timed out.
	ErrPublishFailed = errors.New("mqtt publish failed")

	// ErrSubscribeFailed indicates a subscribe or unsubscribe failed or timed out.
	ErrSubscribeFailed = errors.New("mqtt subscribe failed")

	// ErrInvalidTopic indicates an empty or malformed topic.
	ErrInvalidTopic = errors.New("invalid mqtt topic")

	// ErrInvalidHandler indicates a nil message handler.
	ErrInvalidHandler = errors.New("invalid mqtt handler")
)
