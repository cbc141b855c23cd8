package newsletter

import "errors"

var (
	// ErrNotFound is returned when a newsletter or subscriber does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadySent is returned when dispatching a newsletter in status sent
	ErrAlreadySent = errors.New("newsletter already sent")

	// ErrNoRecipients is returned when the target audience resolves to nobody
	ErrNoRecipients = errors.New("no recipients found for target audience")

	// ErrDispatchInProgress is returned when the same newsletter is already being dispatched
	ErrDispatchInProgress = errors.New("newsletter dispatch already in progress")

	// ErrInvalidEventType is returned for event types outside the accepted set
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrInvalidInput is returned for malformed newsletters or subscriptions
	ErrInvalidInput = errors.New("invalid input")

	// ErrSubscriberExists is returned when subscribing an already active address
	ErrSubscriberExists = errors.New("subscriber already exists")
)

// IsValidation reports whether err was raised before any send was attempted
// and left no state behind.
func IsValidation(err error) bool {
	return errors.Is(err, ErrAlreadySent) ||
		errors.Is(err, ErrNoRecipients) ||
		errors.Is(err, ErrDispatchInProgress)
}
