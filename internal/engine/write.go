package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/regsync/internal/mirror"
	"github.com/nerrad567/regsync/internal/register"
)

// WriteRequest is a single-register write.
type WriteRequest struct {
	Bank    register.Bank
	Address register.Address
	Value   register.Value

	// Mask selects the bits taken from Value. Nil means FullMask.
	Mask *register.Mask

	// Sync mirrors the write to the Secondary. Nil follows Config.AutoSync.
	Sync *bool
}

// WriteResult reports a completed single-register write.
type WriteResult struct {
	Bank     register.Bank     `json:"bank"`
	Address  register.Address  `json:"addr"`
	Value    register.Value    `json:"value"`
	Previous *register.Value   `json:"previous,omitempty"`
	Written  bool              `json:"written"`
	Sync     *mirror.Operation `json:"sync,omitempty"`
}

// Write applies a (possibly masked) write to the Primary.
//
// With a mask narrower than 0xFF and no cached base value, the register is
// read first; if that read fails the write is abandoned with
// register.ErrStaleBaseUnavailable. A mask of 0x00 is a successful no-op that
// touches neither the device nor the store. Device failures return register.ErrDeviceUnreachable
// and leave the store unchanged.
func (e *Engine) Write(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	if !req.Bank.Valid() {
		return nil, fmt.Errorf("%w: unknown bank %d", register.ErrInvalidAddress, req.Bank)
	}
	mask := register.FullMask
	if req.Mask != nil {
		mask = *req.Mask
	}

	res, ticket, err := e.writePrimary(ctx, req.Bank, req.Address, req.Value, mask)
	if err != nil {
		return nil, err
	}
	if !res.Written {
		return res, nil
	}

	sync := e.cfg.AutoSync
	if req.Sync != nil {
		sync = *req.Sync
	}
	if sync {
		op := e.mirror.DispatchTicket(ctx, ticket, res.Value)
		res.Sync = &op
	}

	e.notify(Change{
		Bank:     res.Bank,
		Address:  res.Address,
		Value:    res.Value,
		Previous: res.Previous,
		Source:   SourceWrite,
		Sync:     res.Sync,
		At:       time.Now().UTC(),
	})
	e.logger.Debug("register written",
		"bank", req.Bank.String(),
		"addr", req.Address.Hex(),
		"value", res.Value.Hex(),
		"mask", fmt.Sprintf("0x%02X", uint8(mask)),
	)
	return res, nil
}

// writePrimary performs the locked read-modify-write on the Primary. The
// mirror ticket is reserved before the key lock is released.
func (e *Engine) writePrimary(ctx context.Context, bank register.Bank, addr register.Address, requested register.Value, mask register.Mask) (*WriteResult, mirror.Ticket, error) {
	unlock := e.store.Lock(bank, addr)
	defer unlock()

	old, known := e.store.Get(bank, addr)
	if mask == 0 {
		res := &WriteResult{Bank: bank, Address: addr, Value: old}
		if known {
			res.Previous = &old
		}
		return res, mirror.Ticket{}, nil
	}
	if !known && register.NeedsBase(mask) {
		v, err := e.readLocked(ctx, bank, addr)
		if err != nil {
			return nil, mirror.Ticket{}, fmt.Errorf("%w: %w", register.ErrStaleBaseUnavailable, err)
		}
		old, known = v, true
	}

	next, err := register.ComputeWrite(old, known, requested, mask)
	if err != nil {
		return nil, mirror.Ticket{}, err
	}

	res := &WriteResult{Bank: bank, Address: addr, Value: next}
	if known {
		prev := old
		res.Previous = &prev
	}

	if err := e.writeLocked(ctx, bank, addr, next); err != nil {
		return nil, mirror.Ticket{}, err
	}
	res.Written = true
	return res, e.mirror.Reserve(bank, addr), nil
}

// IsValidation reports whether err was raised before any device I/O.
func IsValidation(err error) bool {
	return errors.Is(err, register.ErrInvalidAddress) ||
		errors.Is(err, register.ErrInvalidValue) ||
		errors.Is(err, register.ErrAddressOverflow)
}
