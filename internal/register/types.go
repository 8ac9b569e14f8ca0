package register

import (
	"fmt"
	"strconv"
	"strings"
)

// Bank identifies one of the sensor's register address spaces.
type Bank uint8

// Register banks.
const (
	BankDSP    Bank = 0
	BankSensor Bank = 1
)

// Banks lists every bank in dump order.
var Banks = []Bank{BankDSP, BankSensor}

// Valid reports whether b is a known bank.
func (b Bank) Valid() bool {
	return b == BankDSP || b == BankSensor
}

// String returns the lower-case bank name used in JSON documents.
func (b Bank) String() string {
	switch b {
	case BankDSP:
		return "dsp"
	case BankSensor:
		return "sensor"
	default:
		return fmt.Sprintf("bank(%d)", uint8(b))
	}
}

// ParseBank accepts a numeric bank ("0", "1") or its name ("dsp", "sensor").
func ParseBank(s string) (Bank, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "dsp":
		return BankDSP, nil
	case "1", "sensor":
		return BankSensor, nil
	}
	return 0, fmt.Errorf("%w: unknown bank %q", ErrInvalidAddress, s)
}

// BankFromInt validates an integer bank number.
func BankFromInt(n int) (Bank, error) {
	b := Bank(n) //nolint:gosec // range checked below
	if n < 0 || n > 255 || !b.Valid() {
		return 0, fmt.Errorf("%w: unknown bank %d", ErrInvalidAddress, n)
	}
	return b, nil
}

// Address is a register address within a bank.
type Address uint8

// Value is a register value.
type Value uint8

// Mask selects which bits of a requested value are written.
type Mask uint8

const (
	// FullMask overwrites every bit; it is the mask used when none is given.
	FullMask Mask = 0xFF

	// MaxAddress is the last address of each bank.
	MaxAddress = 0xFF

	// BankCount is the number of addresses per bank.
	BankCount = MaxAddress + 1

	// BankSelect is the register that switches the active bank on the sensor.
	BankSelect Address = 0xFF
)

// Hex formats an address the way the firmware API reports it ("0x1A").
func (a Address) Hex() string {
	return fmt.Sprintf("0x%02X", uint8(a))
}

// Hex formats a value as "0xAF".
func (v Value) Hex() string {
	return fmt.Sprintf("0x%02X", uint8(v))
}

// Key uniquely identifies a register.
type Key struct {
	Bank    Bank
	Address Address
}

func (k Key) String() string {
	return k.Bank.String() + ":" + k.Address.Hex()
}

// parseByte parses decimal, 0x-hex or 0-octal text, as strtol(s, NULL, 0) does.
func parseByte(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ParseAddress parses an address such as "0xC0" or "192".
func ParseAddress(s string) (Address, error) {
	n, err := parseByte(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return AddressFromInt(n)
}

// AddressFromInt validates an integer address.
func AddressFromInt(n int64) (Address, error) {
	if n < 0 || n > MaxAddress {
		return 0, fmt.Errorf("%w: %d is outside 0x00-0xFF", ErrInvalidAddress, n)
	}
	return Address(n), nil
}

// ParseValue parses a value such as "0x3F" or "63".
func ParseValue(s string) (Value, error) {
	n, err := parseByte(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return ValueFromInt(n)
}

// ValueFromInt validates an integer value.
func ValueFromInt(n int64) (Value, error) {
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("%w: %d is outside 0-255", ErrInvalidValue, n)
	}
	return Value(n), nil
}

// MaskFromInt validates an integer mask.
func MaskFromInt(n int64) (Mask, error) {
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("%w: mask %d is outside 0-255", ErrInvalidValue, n)
	}
	return Mask(n), nil
}

// CheckRange verifies that count consecutive registers starting at start fit
// in the bank.
func CheckRange(start Address, count int) error {
	if count < 1 {
		return fmt.Errorf("%w: empty range", ErrInvalidValue)
	}
	if last := int(start) + count - 1; last > MaxAddress {
		return fmt.Errorf("%w: %s + %d ends at 0x%X", ErrAddressOverflow, start.Hex(), count-1, last)
	}
	return nil
}
