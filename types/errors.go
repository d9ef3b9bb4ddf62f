package types

import "errors"

// Sentinel errors shared across the service. Callers match with
// errors.Is; the HTTP layer maps them to status codes.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means the request is valid but collides with current
	// state: a non-terminal run already exists, or a cancel arrived
	// after the run reached a terminal state.
	ErrConflict = errors.New("conflict")

	// ErrProviderDisabled means collection was requested for a
	// disabled provider. Surfaced as a conflict at admission.
	ErrProviderDisabled = errors.New("provider is disabled")

	// ErrNoPlugin means no collector plugin is registered for the
	// provider's vendor:provider_type. A configuration error, surfaced
	// before any run is created.
	ErrNoPlugin = errors.New("no collector plugin registered")

	// ErrBadAsset means a collector reported an asset that violates the
	// discovery contract, like a missing native ref.
	ErrBadAsset = errors.New("malformed discovered asset")
)
