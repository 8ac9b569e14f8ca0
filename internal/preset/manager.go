package preset

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/regsync/internal/engine"
	"github.com/nerrad567/regsync/internal/register"
)

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ApplyResult reports a preset application, one RangeResult per run.
type ApplyResult struct {
	Name    string                `json:"name"`
	Scope   engine.Scope          `json:"scope"`
	Runs    []*engine.RangeResult `json:"runs"`
	Written int                   `json:"written"`
	Failed  int                   `json:"failed"`
}

// Manager saves, loads, applies and deletes presets against the Primary.
type Manager struct {
	engine *engine.Engine
	repo   Repository
	logger Logger
	hooks  []func(*ApplyResult)
}

// NewManager creates a preset manager.
func NewManager(eng *engine.Engine, repo Repository) *Manager {
	return &Manager{engine: eng, repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// OnApply registers a callback run after every Apply. Register callbacks
// before serving requests.
func (m *Manager) OnApply(fn func(*ApplyResult)) {
	m.hooks = append(m.hooks, fn)
}

// Save snapshots every register of the banks in scope and stores it under
// name, replacing any preset of that name. Cached values are used as they
// are; Unknown registers are read from the Primary. If any read fails the
// save is abandoned with ErrIncompleteSnapshot and nothing is stored.
func (m *Manager) Save(ctx context.Context, name string, scope Scope) (*Preset, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	banks := scope.Banks()
	if banks == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	entries := make([]Entry, 0, len(banks)*register.BankCount)
	for _, bank := range banks {
		for a := 0; a < register.BankCount; a++ {
			addr := register.Address(a) //nolint:gosec // a < 256
			v, err := m.engine.Resolve(ctx, bank, addr)
			if err != nil {
				m.logger.Warn("preset snapshot incomplete",
					"name", name,
					"bank", bank.String(),
					"addr", addr.Hex(),
					"error", err,
				)
				return nil, fmt.Errorf("%w: %s %s: %w", ErrIncompleteSnapshot, bank, addr.Hex(), err)
			}
			entries = append(entries, Entry{Bank: bank, Address: addr, Value: v})
		}
	}

	now := time.Now().UTC()
	p := &Preset{Name: name, Scope: scope, Entries: entries, CreatedAt: now, UpdatedAt: now}
	if existing, err := m.repo.Get(ctx, name); err == nil {
		p.CreatedAt = existing.CreatedAt
	}
	if err := m.repo.Save(ctx, p); err != nil {
		return nil, err
	}

	m.logger.Info("preset saved", "name", name, "scope", string(scope), "registers", len(entries))
	return p, nil
}

// Load returns a stored preset without touching any device.
func (m *Manager) Load(ctx context.Context, name string) (*Preset, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return m.repo.Get(ctx, name)
}

// List returns all preset summaries ordered by name.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	return m.repo.List(ctx)
}

// Apply writes a stored preset to the Primary, and to the Secondary as well
// when scope is engine.ScopeBoth. The preset is split into contiguous runs
// per bank and each run goes through Engine.ApplyRange, so failures are
// reported per address and never stop the remaining registers.
func (m *Manager) Apply(ctx context.Context, name string, scope engine.Scope) (*ApplyResult, error) {
	if scope == "" {
		scope = engine.ScopeLocal
	}
	if scope != engine.ScopeLocal && scope != engine.ScopeBoth {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	p, err := m.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	result := &ApplyResult{Name: name, Scope: scope, Runs: []*engine.RangeResult{}}
	for _, run := range p.Runs() {
		rr, err := m.engine.ApplyRange(ctx, engine.RangeRequest{
			Bank:   run.Bank,
			Start:  run.Start,
			Values: run.Values,
			Scope:  scope,
			Source: engine.SourcePreset,
		})
		if err != nil {
			// Stored runs are always valid; a failure here means a corrupt row.
			return nil, fmt.Errorf("applying preset %q at %s %s: %w", name, run.Bank, run.Start.Hex(), err)
		}
		result.Runs = append(result.Runs, rr)
		result.Written += rr.Written
		result.Failed += rr.Failed
	}

	m.logger.Info("preset applied",
		"name", name,
		"scope", string(scope),
		"written", result.Written,
		"failed", result.Failed,
	)
	for _, fn := range m.hooks {
		fn(result)
	}
	return result, nil
}

// Delete removes a stored preset. Deleting an absent name returns
// ErrNotFound.
func (m *Manager) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err := m.repo.Delete(ctx, name); err != nil {
		return err
	}
	m.logger.Info("preset deleted", "name", name)
	return nil
}

// Import stores a preset from an exported document without touching any
// device.
func (m *Manager) Import(ctx context.Context, name string, doc *Document) (*Preset, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	p, err := doc.Preset(name)
	if err != nil {
		return nil, err
	}
	if existing, err := m.repo.Get(ctx, name); err == nil {
		p.CreatedAt = existing.CreatedAt
	}
	if err := m.repo.Save(ctx, p); err != nil {
		return nil, err
	}
	m.logger.Info("preset imported", "name", name, "registers", len(p.Entries))
	return p, nil
}
