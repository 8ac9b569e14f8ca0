// Package link provides transports to a device's register interface.
//
// A Link reads and writes single registers. Every call takes a context whose
// deadline bounds the round trip; implementations never leave a call pending
// past that deadline. Two implementations are provided:
//
//   - Simulated: an in-memory OV2640 model with fault injection, used for the
//     bench (no hardware) mode and throughout the tests
//   - HTTPLink: a peer regsync instance reached over its REST API, used for
//     the Secondary device
package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/regsync/internal/register"
)

// Transport errors. Callers use errors.Is to classify failures.
var (
	// ErrUnreachable is returned when the device cannot be contacted.
	ErrUnreachable = errors.New("link: device unreachable")

	// ErrTimeout is returned when the call deadline expires.
	ErrTimeout = errors.New("link: timeout")

	// ErrRejected is returned when the device answered but refused the request.
	ErrRejected = errors.New("link: request rejected")

	// ErrOffline is returned by a simulated device that has been taken offline.
	ErrOffline = errors.New("link: device offline")
)

// Link is the register interface of one physical device.
type Link interface {
	ReadRegister(ctx context.Context, bank register.Bank, addr register.Address) (register.Value, error)
	WriteRegister(ctx context.Context, bank register.Bank, addr register.Address, value register.Value) error
}

// Prober is implemented by links that support an explicit health check.
type Prober interface {
	Probe(ctx context.Context) error
}

// Targeter is implemented by links that can describe their remote endpoint.
type Targeter interface {
	Target() string
}

// classifyContext converts a context error into a link error.
func classifyContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}

// IsTimeout reports whether err is a link timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
