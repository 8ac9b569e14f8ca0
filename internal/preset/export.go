package preset

import (
	"fmt"
	"time"

	"github.com/nerrad567/regsync/internal/register"
)

// DocumentEntry is one register in an exported preset.
type DocumentEntry struct {
	Addr int `json:"addr" cbor:"1,keyasint"`
	Val  int `json:"val" cbor:"2,keyasint"`
}

// Document is the portable preset format: one array per bank, each entry
// {addr, val}. It is the same layout the camera firmware writes to its
// preset files, so exports can be copied onto a device and back.
type Document struct {
	DSP    []DocumentEntry `json:"dsp" cbor:"1,keyasint"`
	Sensor []DocumentEntry `json:"sensor" cbor:"2,keyasint"`
}

// Document converts the preset to its portable form. A bank outside the
// preset's scope is exported as an empty array.
func (p *Preset) Document() *Document {
	doc := &Document{DSP: []DocumentEntry{}, Sensor: []DocumentEntry{}}
	entries := make([]Entry, len(p.Entries))
	copy(entries, p.Entries)
	sortEntries(entries)

	for _, e := range entries {
		de := DocumentEntry{Addr: int(e.Address), Val: int(e.Value)}
		if e.Bank == register.BankDSP {
			doc.DSP = append(doc.DSP, de)
		} else {
			doc.Sensor = append(doc.Sensor, de)
		}
	}
	return doc
}

// Preset validates the document and converts it to a preset named name.
// The scope is derived from the banks that carry values.
func (d *Document) Preset(name string) (*Preset, error) {
	p := &Preset{Name: name}
	seen := make(map[register.Key]bool)

	add := func(bank register.Bank, list []DocumentEntry) error {
		for _, de := range list {
			addr, err := register.AddressFromInt(int64(de.Addr))
			if err != nil {
				return err
			}
			v, err := register.ValueFromInt(int64(de.Val))
			if err != nil {
				return err
			}
			k := register.Key{Bank: bank, Address: addr}
			if seen[k] {
				return fmt.Errorf("%w: duplicate entry %s", register.ErrInvalidAddress, k)
			}
			seen[k] = true
			p.Entries = append(p.Entries, Entry{Bank: bank, Address: addr, Value: v})
		}
		return nil
	}
	if err := add(register.BankDSP, d.DSP); err != nil {
		return nil, err
	}
	if err := add(register.BankSensor, d.Sensor); err != nil {
		return nil, err
	}

	switch {
	case len(d.DSP) > 0 && len(d.Sensor) > 0:
		p.Scope = ScopeBoth
	case len(d.DSP) > 0:
		p.Scope = ScopeDSP
	case len(d.Sensor) > 0:
		p.Scope = ScopeSensor
	default:
		return nil, fmt.Errorf("%w: document has no registers", register.ErrInvalidValue)
	}

	sortEntries(p.Entries)
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return p, nil
}
