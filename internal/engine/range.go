package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/regsync/internal/mirror"
	"github.com/nerrad567/regsync/internal/register"
)

// Scope selects which devices a batch is applied to.
type Scope string

// Batch scopes.
const (
	ScopeLocal Scope = "local"
	ScopeBoth  Scope = "both"
)

// ParseScope accepts "local" (default when empty) or "both".
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "local", "local_only":
		return ScopeLocal, nil
	case "both", "mirrored":
		return ScopeBoth, nil
	}
	return "", fmt.Errorf("%w: unknown scope %q", register.ErrInvalidValue, s)
}

// Outcome statuses.
const (
	StatusWritten = "written"
	StatusFailed  = "failed"
)

// Outcome is the result for one address of a range.
type Outcome struct {
	Address register.Address `json:"addr"`
	Value   register.Value   `json:"value"`
	Status  string           `json:"status"`
	Reason  string           `json:"reason,omitempty"`

	// Sync is set for scope "both" when the local write succeeded.
	Sync *mirror.Operation `json:"sync,omitempty"`
}

// RangeRequest is a batch of writes to consecutive addresses.
type RangeRequest struct {
	Bank   register.Bank
	Start  register.Address
	Values []register.Value
	Scope  Scope

	// Source labels the change notifications (default SourceRange).
	Source string
}

// RangeResult reports every address of a range in ascending order.
type RangeResult struct {
	Bank     register.Bank    `json:"bank"`
	Start    register.Address `json:"start"`
	Scope    Scope            `json:"scope"`
	Outcomes []Outcome        `json:"outcomes"`
	Written  int              `json:"written"`
	Failed   int              `json:"failed"`
}

// Complete reports whether every local write succeeded.
func (r *RangeResult) Complete() bool {
	return r.Failed == 0
}

// ApplyRange writes values to consecutive registers starting at Start.
//
// The range is validated before any I/O: an unknown bank or a range running
// past 0xFF fails with no writes issued. After that each address is written
// independently in ascending order. A failing address is recorded and the
// batch continues; earlier writes are not rolled back. With scope "both",
// each successful write is mirrored in the same order and the mirror outcome
// is attached to that address without changing its local status.
func (e *Engine) ApplyRange(ctx context.Context, req RangeRequest) (*RangeResult, error) {
	if !req.Bank.Valid() {
		return nil, fmt.Errorf("%w: unknown bank %d", register.ErrInvalidAddress, req.Bank)
	}
	if err := register.CheckRange(req.Start, len(req.Values)); err != nil {
		return nil, err
	}
	if req.Scope == "" {
		req.Scope = ScopeLocal
	}
	if req.Scope != ScopeLocal && req.Scope != ScopeBoth {
		return nil, fmt.Errorf("%w: unknown scope %q", register.ErrInvalidValue, req.Scope)
	}
	if req.Source == "" {
		req.Source = SourceRange
	}

	result := &RangeResult{
		Bank:     req.Bank,
		Start:    req.Start,
		Scope:    req.Scope,
		Outcomes: make([]Outcome, 0, len(req.Values)),
	}

	for i, v := range req.Values {
		addr := register.Address(int(req.Start) + i) //nolint:gosec // bounded by CheckRange
		out := Outcome{Address: addr, Value: v}

		prev, ticket, err := e.writeFull(ctx, req.Bank, addr, v)
		if err != nil {
			out.Status = StatusFailed
			out.Reason = err.Error()
			result.Failed++
			result.Outcomes = append(result.Outcomes, out)
			e.logger.Warn("range write failed",
				"bank", req.Bank.String(),
				"addr", addr.Hex(),
				"error", err,
			)
			continue
		}

		out.Status = StatusWritten
		result.Written++
		if req.Scope == ScopeBoth {
			op := e.mirror.DispatchTicket(ctx, ticket, v)
			out.Sync = &op
		}
		result.Outcomes = append(result.Outcomes, out)

		e.notify(Change{
			Bank:     req.Bank,
			Address:  addr,
			Value:    v,
			Previous: prev,
			Source:   req.Source,
			Sync:     out.Sync,
			At:       time.Now().UTC(),
		})
	}

	e.logger.Info("range applied",
		"bank", req.Bank.String(),
		"start", req.Start.Hex(),
		"count", len(req.Values),
		"scope", string(req.Scope),
		"written", result.Written,
		"failed", result.Failed,
	)
	return result, nil
}

// writeFull performs one locked full-byte write and returns the previous
// cached value, if any, with a mirror ticket reserved under the lock.
func (e *Engine) writeFull(ctx context.Context, bank register.Bank, addr register.Address, v register.Value) (*register.Value, mirror.Ticket, error) {
	unlock := e.store.Lock(bank, addr)
	defer unlock()

	var prev *register.Value
	if old, ok := e.store.Get(bank, addr); ok {
		prev = &old
	}
	if err := e.writeLocked(ctx, bank, addr, v); err != nil {
		return nil, mirror.Ticket{}, err
	}
	return prev, e.mirror.Reserve(bank, addr), nil
}
