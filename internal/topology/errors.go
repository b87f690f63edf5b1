package topology

import "errors"

// Domain errors for the topology package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, topology.ErrStorageTimeout) {
//	    // storage did not answer within the per-call budget
//	}
var (
	// ErrEmptyIdentifier is returned when parsing an empty component identifier.
	ErrEmptyIdentifier = errors.New("topology: empty identifier")

	// ErrMalformedSegment is returned when an identifier segment lacks the PREFIX_LOCALID form.
	ErrMalformedSegment = errors.New("topology: malformed identifier segment")

	// ErrInvalidNode is returned when a node in a registration payload has no unique id.
	ErrInvalidNode = errors.New("topology: invalid node")

	// ErrRegistration wraps every failure of a registration operation.
	ErrRegistration = errors.New("topology: registration failed")

	// ErrNotFound is returned by LookupID when no row carries the unique id.
	ErrNotFound = errors.New("topology: not found")

	// ErrUnknownKind is returned when a kind has no backing table.
	ErrUnknownKind = errors.New("topology: unknown kind")

	// ErrStorageTimeout is returned when a storage call exceeds its time budget.
	ErrStorageTimeout = errors.New("topology: storage timeout")
)
