package engine

import (
	"context"

	"github.com/nerrad567/regsync/internal/register"
)

// DumpEntry is one register in a bulk dump. Value is nil when the register
// is Unknown; no placeholder value is ever reported.
type DumpEntry struct {
	Address register.Address `json:"addr" cbor:"1,keyasint"`
	Value   *register.Value  `json:"value" cbor:"2,keyasint"`
	Known   bool             `json:"known" cbor:"3,keyasint"`
}

// Dump is the full Primary register map.
type Dump struct {
	DSP        []DumpEntry `json:"dsp" cbor:"1,keyasint"`
	Sensor     []DumpEntry `json:"sensor" cbor:"2,keyasint"`
	Known      int         `json:"known" cbor:"3,keyasint"`
	Unresolved int         `json:"unresolved" cbor:"4,keyasint"`
}

// Dump returns every register of both banks. With resolve, Unknown entries
// are read from the device first; entries whose read fails stay flagged as
// unknown.
func (e *Engine) Dump(ctx context.Context, resolve bool) *Dump {
	d := &Dump{}
	for _, b := range register.Banks {
		entries := e.dumpBank(ctx, b, resolve)
		for _, en := range entries {
			if en.Known {
				d.Known++
			} else {
				d.Unresolved++
			}
		}
		if b == register.BankDSP {
			d.DSP = entries
		} else {
			d.Sensor = entries
		}
	}
	return d
}

func (e *Engine) dumpBank(ctx context.Context, bank register.Bank, resolve bool) []DumpEntry {
	out := make([]DumpEntry, register.BankCount)
	for a := 0; a < register.BankCount; a++ {
		addr := register.Address(a) //nolint:gosec // a < 256
		out[a] = DumpEntry{Address: addr}

		v, ok := e.store.Get(bank, addr)
		if !ok && resolve {
			read, err := e.Resolve(ctx, bank, addr)
			if err == nil {
				v, ok = read, true
			}
		}
		if ok {
			val := v
			out[a].Value = &val
			out[a].Known = true
		}
	}
	return out
}

// ReadRange returns count registers from the store starting at start. With
// resolve, Unknown entries are read from the device; failed reads stay
// Unknown.
func (e *Engine) ReadRange(ctx context.Context, bank register.Bank, start register.Address, count int, resolve bool) ([]register.Entry, error) {
	entries, err := e.store.GetRange(bank, start, count)
	if err != nil {
		return nil, err
	}
	if !resolve {
		return entries, nil
	}
	for i := range entries {
		if entries[i].Known {
			continue
		}
		if v, err := e.Resolve(ctx, bank, entries[i].Address); err == nil {
			entries[i].Value = v
			entries[i].Known = true
		}
	}
	return entries, nil
}
