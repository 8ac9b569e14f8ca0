package link

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/regsync/internal/register"
)

// Simulated is an in-memory OV2640 register file.
//
// The sensor multiplexes its two banks behind the bank-select register 0xFF:
// every access first selects the bank, exactly as the SCCB driver does on
// hardware, so BankSwitches reflects the bus traffic a real device would see.
// Writing 0xFF directly selects a bank as a side effect.
//
// Fault injection (SetOffline, FailRead, FailWrite, SetLatency) lets tests and
// bench setups reproduce unreachable or slow devices.
type Simulated struct {
	mu       sync.Mutex
	banks    [2][register.BankCount]register.Value
	selected register.Bank
	offline  bool
	latency  time.Duration

	failReads  map[register.Key]error
	failWrites map[register.Key]error

	reads        int
	writes       int
	bankSwitches int
}

// NewSimulated returns a device seeded with the catalog's power-on defaults.
// A nil catalog leaves every register at zero.
func NewSimulated(catalog *register.Catalog) *Simulated {
	s := &Simulated{
		selected:   register.BankDSP,
		failReads:  make(map[register.Key]error),
		failWrites: make(map[register.Key]error),
	}
	if catalog != nil {
		for _, b := range register.Banks {
			for addr, v := range catalog.Defaults(b) {
				s.banks[b][addr] = v
			}
		}
	}
	return s
}

// ReadRegister returns the current value of a register.
func (s *Simulated) ReadRegister(ctx context.Context, bank register.Bank, addr register.Address) (register.Value, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline {
		return 0, ErrOffline
	}
	if !bank.Valid() {
		return 0, register.ErrInvalidAddress
	}
	if err, ok := s.failReads[register.Key{Bank: bank, Address: addr}]; ok {
		return 0, err
	}
	s.selectBank(bank)
	s.reads++
	return s.banks[bank][addr], nil
}

// WriteRegister sets a register.
func (s *Simulated) WriteRegister(ctx context.Context, bank register.Bank, addr register.Address, value register.Value) error {
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline {
		return ErrOffline
	}
	if !bank.Valid() {
		return register.ErrInvalidAddress
	}
	if err, ok := s.failWrites[register.Key{Bank: bank, Address: addr}]; ok {
		return err
	}
	s.selectBank(bank)
	s.writes++

	if addr == register.BankSelect {
		// The select register is shared by both banks.
		s.banks[register.BankDSP][addr] = value
		s.banks[register.BankSensor][addr] = value
		s.selected = register.Bank(value & 0x01)
		return nil
	}
	s.banks[bank][addr] = value
	return nil
}

// Probe succeeds unless the device is offline.
func (s *Simulated) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return classifyContext(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return ErrOffline
	}
	return nil
}

// Target describes the device.
func (s *Simulated) Target() string {
	return "simulated"
}

func (s *Simulated) selectBank(bank register.Bank) {
	if s.selected == bank {
		return
	}
	s.selected = bank
	s.banks[register.BankDSP][register.BankSelect] = register.Value(bank)
	s.banks[register.BankSensor][register.BankSelect] = register.Value(bank)
	s.bankSwitches++
}

// wait applies the configured latency, honouring the context deadline.
func (s *Simulated) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.latency
	s.mu.Unlock()

	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return classifyContext(err)
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return classifyContext(ctx.Err())
	}
}

// SetOffline makes every subsequent call fail with ErrOffline.
func (s *Simulated) SetOffline(offline bool) {
	s.mu.Lock()
	s.offline = offline
	s.mu.Unlock()
}

// SetLatency delays every call by d.
func (s *Simulated) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// FailRead makes reads of one register return err.
func (s *Simulated) FailRead(bank register.Bank, addr register.Address, err error) {
	s.mu.Lock()
	s.failReads[register.Key{Bank: bank, Address: addr}] = err
	s.mu.Unlock()
}

// FailWrite makes writes to one register return err.
func (s *Simulated) FailWrite(bank register.Bank, addr register.Address, err error) {
	s.mu.Lock()
	s.failWrites[register.Key{Bank: bank, Address: addr}] = err
	s.mu.Unlock()
}

// ClearFaults removes every injected read and write failure.
func (s *Simulated) ClearFaults() {
	s.mu.Lock()
	s.failReads = make(map[register.Key]error)
	s.failWrites = make(map[register.Key]error)
	s.mu.Unlock()
}

// Peek returns a register without counting as a bus access.
func (s *Simulated) Peek(bank register.Bank, addr register.Address) register.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banks[bank][addr]
}

// Poke changes a register behind regsync's back, as an external tool would.
func (s *Simulated) Poke(bank register.Bank, addr register.Address, v register.Value) {
	s.mu.Lock()
	s.banks[bank][addr] = v
	s.mu.Unlock()
}

// Counters returns the number of reads, writes and bank switches served.
func (s *Simulated) Counters() (reads, writes, bankSwitches int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.writes, s.bankSwitches
}
