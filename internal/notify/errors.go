package notify

import "errors"

var (
	// ErrInvalidRecipient is returned when a chat id or phone number is unusable.
	ErrInvalidRecipient = errors.New("invalid recipient")
	// ErrEmptyMessage is returned when there is nothing to send.
	ErrEmptyMessage = errors.New("empty message")
	// ErrNotAcknowledged is returned when the provider answered 2xx without confirming delivery.
	ErrNotAcknowledged = errors.New("delivery not acknowledged")
)
