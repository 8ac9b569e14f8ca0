package register

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Descriptor is the documented meaning of one register.
type Descriptor struct {
	Bank        Bank    `json:"bank"`
	Address     Address `json:"addr"`
	Name        string  `json:"name"`
	Description string  `json:"desc"`
	// Default is the power-on value, nil when undocumented.
	Default *Value `json:"default,omitempty"`
}

type catalogEntry struct {
	Addr    int    `yaml:"addr"`
	Name    string `yaml:"name"`
	Desc    string `yaml:"desc"`
	Default *int   `yaml:"default"`
}

type catalogDocument struct {
	DSP    []catalogEntry `yaml:"dsp"`
	Sensor []catalogEntry `yaml:"sensor"`
}

// Catalog maps (bank, address) to register metadata. It is immutable once
// built and safe for concurrent use.
type Catalog struct {
	entries map[Key]Descriptor
}

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(builtinCatalog)
}

// LoadCatalog reads a catalog document from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses a YAML catalog document with "dsp" and "sensor" lists.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	c := &Catalog{entries: make(map[Key]Descriptor, len(doc.DSP)+len(doc.Sensor))}
	if err := c.add(BankDSP, doc.DSP); err != nil {
		return nil, err
	}
	if err := c.add(BankSensor, doc.Sensor); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) add(bank Bank, list []catalogEntry) error {
	for _, e := range list {
		addr, err := AddressFromInt(int64(e.Addr))
		if err != nil {
			return fmt.Errorf("%w: %s entry %q: %w", ErrInvalidCatalog, bank, e.Name, err)
		}
		if e.Name == "" {
			return fmt.Errorf("%w: %s %s has no name", ErrInvalidCatalog, bank, addr.Hex())
		}
		key := Key{Bank: bank, Address: addr}
		if _, dup := c.entries[key]; dup {
			return fmt.Errorf("%w: duplicate entry %s", ErrInvalidCatalog, key)
		}

		d := Descriptor{Bank: bank, Address: addr, Name: e.Name, Description: e.Desc}
		if e.Default != nil {
			v, err := ValueFromInt(int64(*e.Default))
			if err != nil {
				return fmt.Errorf("%w: %s default: %w", ErrInvalidCatalog, key, err)
			}
			d.Default = &v
		}
		c.entries[key] = d
	}
	return nil
}

// Lookup returns the descriptor for a register. A false result means the
// register is undocumented, which is not an error: it can still be read and
// written.
func (c *Catalog) Lookup(bank Bank, addr Address) (Descriptor, bool) {
	d, ok := c.entries[Key{Bank: bank, Address: addr}]
	return d, ok
}

// Bank returns the documented registers of bank in address order.
func (c *Catalog) Bank(bank Bank) []Descriptor {
	var out []Descriptor
	for k, d := range c.entries {
		if k.Bank == bank {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Defaults returns the documented power-on values of bank.
func (c *Catalog) Defaults(bank Bank) map[Address]Value {
	out := make(map[Address]Value)
	for k, d := range c.entries {
		if k.Bank == bank && d.Default != nil {
			out[k.Address] = *d.Default
		}
	}
	return out
}

// Len returns the number of documented registers.
func (c *Catalog) Len() int {
	return len(c.entries)
}
