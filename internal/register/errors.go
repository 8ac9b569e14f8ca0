package register

import "errors"

// Domain errors for the register package.
//
// Validation errors (ErrInvalidAddress, ErrInvalidValue, ErrAddressOverflow)
// are always returned before any device I/O is attempted.
var (
	// ErrInvalidAddress is returned for an unknown bank or an address outside 0x00-0xFF.
	ErrInvalidAddress = errors.New("register: invalid address")

	// ErrInvalidValue is returned for a value or mask outside 0-255.
	ErrInvalidValue = errors.New("register: invalid value")

	// ErrAddressOverflow is returned when a range would run past 0xFF.
	ErrAddressOverflow = errors.New("register: address overflow")

	// ErrStaleBaseUnavailable is returned when a masked write needs the
	// current register value and it could not be read from the device.
	ErrStaleBaseUnavailable = errors.New("register: stale base unavailable")

	// ErrDeviceUnreachable is returned when the primary device cannot be
	// read or written (transport failure or timeout).
	ErrDeviceUnreachable = errors.New("register: device unreachable")

	// ErrInvalidCatalog is returned when a catalog document cannot be parsed.
	ErrInvalidCatalog = errors.New("register: invalid catalog")
)
