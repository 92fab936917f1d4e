package kafkax

import (
	"errors"
	"fmt"
)

var (
	// ErrBrokerUnavailable is returned by Initialize once every attempt to reach
	// the brokers has failed. The producer stays uninitialized.
	ErrBrokerUnavailable = errors.New("kafka broker unavailable")

	// ErrNotInitialized is returned by Publish before a successful Initialize.
	ErrNotInitialized = errors.New("kafka producer is not initialized")

	// ErrBrokerSend matches every *BrokerSendError via errors.Is.
	ErrBrokerSend = errors.New("kafka send failed")
)

// BrokerSendError reports a publish that timed out or was rejected by the broker.
// The message must be treated as not accepted.
type BrokerSendError struct {
	Topic string
	Err   error
}

func (e *BrokerSendError) Error() string {
	return fmt.Sprintf("kafka send to %s: %v", e.Topic, e.Err)
}

func (e *BrokerSendError) Unwrap() []error {
	return []error{ErrBrokerSend, e.Err}
}
