// Package preset manages named, durable snapshots of Primary register values.
//
// A preset is captured from the Primary (Save), inspected without touching
// any device (Load), written back through the range engine (Apply) and
// removed explicitly (Delete). Presets never contain Unknown values: a save
// that cannot resolve every register in scope persists nothing.
package preset

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/regsync/internal/register"
)

// Domain errors for the preset package.
var (
	// ErrNotFound is returned when no preset has the requested name.
	ErrNotFound = errors.New("preset: not found")

	// ErrIncompleteSnapshot is returned when a save could not read every
	// register in scope. Nothing is persisted.
	ErrIncompleteSnapshot = errors.New("preset: incomplete snapshot")

	// ErrInvalidName is returned for names outside [A-Za-z0-9_.-]{1,64}.
	ErrInvalidName = errors.New("preset: invalid name")

	// ErrInvalidScope is returned for an unknown bank scope.
	ErrInvalidScope = errors.New("preset: invalid scope")
)

// MaxNameLength is the longest accepted preset name.
const MaxNameLength = 64

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidateName checks a preset name. Names are case-sensitive.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength || !namePattern.MatchString(name) ||
		name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Scope selects the banks a preset covers.
type Scope string

// Bank scopes.
const (
	ScopeDSP    Scope = "dsp"
	ScopeSensor Scope = "sensor"
	ScopeBoth   Scope = "both"
)

// ParseScope parses a bank scope; empty means both banks.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeBoth:
		return ScopeBoth, nil
	case ScopeDSP:
		return ScopeDSP, nil
	case ScopeSensor:
		return ScopeSensor, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

// Banks returns the banks covered by the scope, DSP first.
func (s Scope) Banks() []register.Bank {
	switch s {
	case ScopeDSP:
		return []register.Bank{register.BankDSP}
	case ScopeSensor:
		return []register.Bank{register.BankSensor}
	case ScopeBoth:
		return []register.Bank{register.BankDSP, register.BankSensor}
	}
	return nil
}

// Entry is one stored register value.
type Entry struct {
	Bank    register.Bank    `json:"bank"`
	Address register.Address `json:"addr"`
	Value   register.Value   `json:"value"`
}

// Preset is a named register snapshot.
type Preset struct {
	Name      string    `json:"name"`
	Scope     Scope     `json:"scope"`
	Entries   []Entry   `json:"entries"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Values returns the preset as a (bank, address) to value map.
func (p *Preset) Values() map[register.Key]register.Value {
	out := make(map[register.Key]register.Value, len(p.Entries))
	for _, e := range p.Entries {
		out[register.Key{Bank: e.Bank, Address: e.Address}] = e.Value
	}
	return out
}

// Summary is a preset without its values, for listings.
type Summary struct {
	Name      string    `json:"name"`
	Scope     Scope     `json:"scope"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// sortEntries orders entries by bank, then address.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Bank != entries[j].Bank {
			return entries[i].Bank < entries[j].Bank
		}
		return entries[i].Address < entries[j].Address
	})
}

// Run is a contiguous block of addresses in one bank.
type Run struct {
	Bank   register.Bank
	Start  register.Address
	Values []register.Value
}

// Runs groups the preset into contiguous runs per bank, DSP first and
// ascending within a bank.
func (p *Preset) Runs() []Run {
	entries := make([]Entry, len(p.Entries))
	copy(entries, p.Entries)
	sortEntries(entries)

	var runs []Run
	for _, e := range entries {
		if n := len(runs); n > 0 {
			last := &runs[n-1]
			next := int(last.Start) + len(last.Values)
			if last.Bank == e.Bank && int(e.Address) == next {
				last.Values = append(last.Values, e.Value)
				continue
			}
		}
		runs = append(runs, Run{Bank: e.Bank, Start: e.Address, Values: []register.Value{e.Value}})
	}
	return runs
}
