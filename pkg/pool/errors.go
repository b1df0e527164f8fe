package pool

import "errors"

var (
	// ErrProviderNotFound means the catalog has no entry for the
	// requested provider id.
	ErrProviderNotFound = errors.New("provider not found in catalog")

	// ErrProbeTimeout means a spawned sandbox never answered its
	// readiness probe and was torn down.
	ErrProbeTimeout = errors.New("sandbox never became ready")

	// ErrManagerClosed means the manager has been stopped and will not
	// serve new sandboxes.
	ErrManagerClosed = errors.New("pool manager is closed")
)
