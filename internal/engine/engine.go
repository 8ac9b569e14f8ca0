// Package engine executes register operations against the Primary device.
//
// It combines the Primary's Link and register Store with the masked-write
// rule and, when asked, hands confirmed writes to the mirror Coordinator. The
// store is only updated after the device confirms a read or write.
//
// Operation order for a single write:
//
//	validate ──▶ lock key ──▶ resolve base (narrow mask, Unknown base only)
//	         ──▶ compute ──▶ device write ──▶ store update ──▶ mirror ticket
//	         ──▶ unlock ──▶ mirror
//
// Mirroring happens after the Primary key lock is released, so a slow or
// unreachable Secondary never holds up other Primary writes, and its outcome
// never changes the Primary result. The ticket taken under the lock keeps
// concurrent mirrors of one register in Primary order.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/regsync/internal/link"
	"github.com/nerrad567/regsync/internal/mirror"
	"github.com/nerrad567/regsync/internal/register"
)

// defaultDeviceTimeout bounds each Primary device call.
const defaultDeviceTimeout = 2 * time.Second

// Change sources reported to hooks.
const (
	SourceWrite  = "write"
	SourceRange  = "range"
	SourcePreset = "preset"
)

// Logger defines the logging interface used by the Engine.
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

// Config holds Engine settings.
type Config struct {
	// DeviceTimeout bounds each Primary read or write. Default: 2s.
	DeviceTimeout time.Duration

	// AutoSync mirrors single-register writes that do not say otherwise.
	AutoSync bool
}

// Change describes a confirmed register write on the Primary.
type Change struct {
	Bank     register.Bank     `json:"bank"`
	Address  register.Address  `json:"addr"`
	Value    register.Value    `json:"value"`
	Previous *register.Value   `json:"previous,omitempty"`
	Source   string            `json:"source"`
	Sync     *mirror.Operation `json:"sync,omitempty"`
	At       time.Time         `json:"at"`
}

// Engine runs register operations on the Primary device.
//
// Thread Safety: All methods are safe for concurrent use. Writes to the same
// register are serialised through the store's per-key locks.
type Engine struct {
	link    link.Link
	store   *register.Store
	mirror  *mirror.Coordinator
	catalog *register.Catalog
	cfg     Config

	hooksMu sync.RWMutex
	hooks   []func(Change)

	logger Logger
}

// New creates an Engine. coordinator and catalog may be nil: without a
// coordinator every mirrored write is reported as skipped, without a catalog
// every register is undocumented.
func New(primary link.Link, store *register.Store, coordinator *mirror.Coordinator, catalog *register.Catalog, cfg Config) *Engine {
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = defaultDeviceTimeout
	}
	if store == nil {
		store = register.NewStore()
	}
	if coordinator == nil {
		coordinator = mirror.New(nil, nil, mirror.Config{})
	}
	return &Engine{
		link:    primary,
		store:   store,
		mirror:  coordinator,
		catalog: catalog,
		cfg:     cfg,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// OnChange registers a callback for every confirmed Primary write.
// Callbacks run synchronously and must not block.
func (e *Engine) OnChange(fn func(Change)) {
	e.hooksMu.Lock()
	e.hooks = append(e.hooks, fn)
	e.hooksMu.Unlock()
}

// Store returns the Primary register store.
func (e *Engine) Store() *register.Store {
	return e.store
}

// Mirror returns the coordinator used for mirrored writes.
func (e *Engine) Mirror() *mirror.Coordinator {
	return e.mirror
}

// Catalog returns the register catalog (may be nil).
func (e *Engine) Catalog() *register.Catalog {
	return e.catalog
}

// Describe returns the catalog entry for a register, if documented.
func (e *Engine) Describe(bank register.Bank, addr register.Address) (register.Descriptor, bool) {
	if e.catalog == nil {
		return register.Descriptor{}, false
	}
	return e.catalog.Lookup(bank, addr)
}

// Read reads a register from the device and caches the result.
func (e *Engine) Read(ctx context.Context, bank register.Bank, addr register.Address) (register.Value, error) {
	if !bank.Valid() {
		return 0, fmt.Errorf("%w: unknown bank %d", register.ErrInvalidAddress, bank)
	}
	unlock := e.store.Lock(bank, addr)
	defer unlock()
	return e.readLocked(ctx, bank, addr)
}

// Resolve returns the cached value, reading the device only when Unknown.
func (e *Engine) Resolve(ctx context.Context, bank register.Bank, addr register.Address) (register.Value, error) {
	if !bank.Valid() {
		return 0, fmt.Errorf("%w: unknown bank %d", register.ErrInvalidAddress, bank)
	}
	unlock := e.store.Lock(bank, addr)
	defer unlock()

	if v, ok := e.store.Get(bank, addr); ok {
		return v, nil
	}
	return e.readLocked(ctx, bank, addr)
}

// readLocked reads through the link; the caller holds the key lock.
func (e *Engine) readLocked(ctx context.Context, bank register.Bank, addr register.Address) (register.Value, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.DeviceTimeout)
	defer cancel()

	v, err := e.link.ReadRegister(callCtx, bank, addr)
	if err != nil {
		return 0, fmt.Errorf("%w: reading %s %s: %w", register.ErrDeviceUnreachable, bank, addr.Hex(), err)
	}
	e.store.Set(bank, addr, v)
	return v, nil
}

// writeLocked writes through the link and updates the store on success; the
// caller holds the key lock.
func (e *Engine) writeLocked(ctx context.Context, bank register.Bank, addr register.Address, v register.Value) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.DeviceTimeout)
	defer cancel()

	if err := e.link.WriteRegister(callCtx, bank, addr, v); err != nil {
		return fmt.Errorf("%w: writing %s %s: %w", register.ErrDeviceUnreachable, bank, addr.Hex(), err)
	}
	e.store.Set(bank, addr, v)
	return nil
}

// Reset forgets every cached Primary value.
func (e *Engine) Reset() {
	e.store.InvalidateAll()
	e.logger.Info("primary register cache reset")
}

func (e *Engine) notify(c Change) {
	e.hooksMu.RLock()
	defer e.hooksMu.RUnlock()
	for _, fn := range e.hooks {
		fn(c)
	}
}
