package sandbox

import "errors"

var (
	// ErrInvalidProvider indicates a provider with a missing id or source
	ErrInvalidProvider = errors.New("invalid provider: id and source are required")

	// ErrInvalidProviderType indicates a provider type outside the allowed set
	ErrInvalidProviderType = errors.New("invalid provider type: must be module or script")

	// ErrInvalidPort indicates a non-positive sandbox port
	ErrInvalidPort = errors.New("invalid sandbox port")

	// ErrInvalidHostRPCURL indicates an unparseable host RPC address
	ErrInvalidHostRPCURL = errors.New("invalid host RPC URL")
)
