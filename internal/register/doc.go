// Package register models the OV2640 register address space.
//
// The sensor exposes two 256-byte banks (DSP and Sensor) selected through the
// bank-select register 0xFF. Every operation in regsync is keyed by an
// explicit (Bank, Address) pair; nothing in this package tracks a "current"
// bank.
//
// # Key Types
//
//   - Bank, Address, Value, Mask: the 8-bit building blocks
//   - Catalog: read-only metadata (symbolic name, description, power-on default)
//   - Store: a per-device cache of register values with per-key locking
//
// # Masked writes
//
// ComputeWrite implements the masked-write rule
//
//	new = (old &^ mask) | (requested & mask)
//
// An absent mask is FullMask (0xFF). A mask of 0x00 leaves the register
// unchanged. A narrow mask against an unknown base is refused with
// ErrStaleBaseUnavailable; the caller is expected to resolve the base from the
// device first.
//
// # Thread Safety
//
// Catalog is immutable after construction. Store is safe for concurrent use.
package register
