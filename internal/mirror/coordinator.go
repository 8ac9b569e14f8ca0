package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/regsync/internal/link"
	"github.com/nerrad567/regsync/internal/register"
)

// Defaults follow the camera firmware's heartbeat (10 s period, 3 s timeout)
// and its 4 s budget for master-to-slave requests.
const (
	defaultProbeInterval = 10 * time.Second
	defaultProbeTimeout  = 3 * time.Second
	defaultWriteTimeout  = 4 * time.Second
	defaultHistorySize   = 256
)

// Logger defines the logging interface used by the Coordinator.
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

// Connectivity is the Secondary's last probed reachability.
type Connectivity struct {
	Connected   bool      `json:"connected"`
	LastChecked time.Time `json:"last_checked"`
	Target      string    `json:"target,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Config holds Coordinator settings.
type Config struct {
	// ProbeInterval is the health probe period. Default: 10s.
	ProbeInterval time.Duration

	// ProbeTimeout bounds each probe. Default: 3s.
	ProbeTimeout time.Duration

	// WriteTimeout bounds each Secondary write. Default: 4s.
	WriteTimeout time.Duration

	// HistorySize is the number of recent operations kept. Default: 256.
	HistorySize int
}

// Hooks receive notifications. Either field may be nil.
// Hooks run synchronously on the dispatching or probing goroutine and must not block.
// OnConnectivity fires on the first check and then only when Connected flips.
type Hooks struct {
	OnOperation    func(Operation)
	OnConnectivity func(Connectivity)
}

// Coordinator mirrors Primary writes onto the Secondary.
//
// Thread Safety: All methods are safe for concurrent use. The connectivity
// state has its own lock, independent of dispatch.
type Coordinator struct {
	secondary link.Link
	store     *register.Store
	cfg       Config

	connMu  sync.RWMutex
	conn    Connectivity
	checked bool

	seqMu   sync.Mutex
	seq     uint64
	applied map[register.Key]uint64

	histMu  sync.Mutex
	history []Operation
	histPos int
	histLen int

	hooksMu sync.RWMutex
	hooks   []Hooks

	logger   Logger
	loggerMu sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Coordinator for the given Secondary link and its register
// store. A nil link yields a Coordinator that skips every operation.
//
// The Secondary is considered disconnected until the first successful probe.
func New(secondary link.Link, store *register.Store, cfg Config) *Coordinator {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = defaultProbeInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	if store == nil {
		store = register.NewStore()
	}

	c := &Coordinator{
		secondary: secondary,
		store:     store,
		cfg:       cfg,
		history:   make([]Operation, cfg.HistorySize),
		applied:   make(map[register.Key]uint64),
		logger:    noopLogger{},
		done:      make(chan struct{}),
	}
	if t, ok := secondary.(link.Targeter); ok {
		c.conn.Target = t.Target()
	}
	return c
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Coordinator) log() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// AddHooks registers notification callbacks.
func (c *Coordinator) AddHooks(h Hooks) {
	c.hooksMu.Lock()
	c.hooks = append(c.hooks, h)
	c.hooksMu.Unlock()
}

// Store returns the Secondary's register store.
func (c *Coordinator) Store() *register.Store {
	return c.store
}

// Configured reports whether a Secondary link is present.
func (c *Coordinator) Configured() bool {
	return c.secondary != nil
}

// Ticket orders mirror writes to one register. Take it with Reserve while
// the Primary key lock is still held so ticket order is Primary write order.
type Ticket struct {
	Bank    register.Bank
	Address register.Address
	seq     uint64
}

// Reserve issues the next ordering ticket for a register.
func (c *Coordinator) Reserve(bank register.Bank, addr register.Address) Ticket {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	c.seq++
	return Ticket{Bank: bank, Address: addr, seq: c.seq}
}

// Dispatch copies one register value to the Secondary, reserving a fresh
// ticket. Callers racing other writers to the same register should use
// Reserve under their own lock and DispatchTicket instead.
func (c *Coordinator) Dispatch(ctx context.Context, bank register.Bank, addr register.Address, value register.Value) Operation {
	return c.DispatchTicket(ctx, c.Reserve(bank, addr), value)
}

// DispatchTicket copies value to the register named by t.
//
// The returned Operation is always in a terminal state. An operation whose
// ticket is older than one already applied to the same register is skipped
// as superseded, so the Secondary never regresses to a stale value. The call
// is bounded by the write timeout and is not cut short by cancellation of
// ctx once the write has been handed to the link.
func (c *Coordinator) DispatchTicket(ctx context.Context, t Ticket, value register.Value) Operation {
	op := newOperation(t.Bank, t.Address, value)

	switch {
	case c.secondary == nil:
		c.skip(&op, ReasonNotConfigured)
	case !c.Status().Connected:
		c.skip(&op, ReasonDisconnected)
	default:
		c.send(ctx, t, &op)
	}

	c.record(op)
	c.notifyOperation(op)
	return op
}

func (c *Coordinator) skip(op *Operation, reason string) {
	_ = op.transition(StateSkipped) //nolint:errcheck // created -> skipped is always valid
	op.Reason = reason
}

func (c *Coordinator) send(ctx context.Context, t Ticket, op *Operation) {
	unlock := c.store.Lock(op.Bank, op.Address)
	defer unlock()

	key := register.Key{Bank: t.Bank, Address: t.Address}
	c.seqMu.Lock()
	stale := c.applied[key] > t.seq
	c.seqMu.Unlock()
	if stale {
		c.skip(op, ReasonSuperseded)
		c.log().Debug("secondary sync superseded",
			"op_id", op.ID,
			"bank", op.Bank.String(),
			"addr", op.Address.Hex(),
		)
		return
	}

	_ = op.transition(StateDispatched) //nolint:errcheck // created -> dispatched is always valid

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.WriteTimeout)
	defer cancel()

	if err := c.secondary.WriteRegister(callCtx, op.Bank, op.Address, op.Value); err != nil {
		_ = op.transition(StateFailed) //nolint:errcheck // dispatched -> failed is always valid
		op.Reason = failureReason(err)
		op.Error = err.Error()
		c.log().Warn("secondary sync failed",
			"op_id", op.ID,
			"bank", op.Bank.String(),
			"addr", op.Address.Hex(),
			"reason", op.Reason,
			"error", err,
		)
		return
	}

	_ = op.transition(StateApplied) //nolint:errcheck // dispatched -> applied is always valid
	c.store.Set(op.Bank, op.Address, op.Value)
	c.seqMu.Lock()
	c.applied[key] = t.seq
	c.seqMu.Unlock()
	c.log().Debug("secondary sync applied",
		"op_id", op.ID,
		"bank", op.Bank.String(),
		"addr", op.Address.Hex(),
		"value", op.Value.Hex(),
	)
}

// Status returns the last probed connectivity.
func (c *Coordinator) Status() Connectivity {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// Probe checks the Secondary now and updates the connectivity flag.
// Links implementing link.Prober are probed directly; others are probed by
// reading the bank-select register.
func (c *Coordinator) Probe(ctx context.Context) Connectivity {
	if c.secondary == nil {
		return c.setConnectivity(false, nil)
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	var err error
	if p, ok := c.secondary.(link.Prober); ok {
		err = p.Probe(probeCtx)
	} else {
		_, err = c.secondary.ReadRegister(probeCtx, register.BankDSP, register.BankSelect)
	}
	return c.setConnectivity(err == nil, err)
}

func (c *Coordinator) setConnectivity(connected bool, probeErr error) Connectivity {
	c.connMu.Lock()
	was := c.conn.Connected
	first := !c.checked
	c.checked = true
	c.conn.Connected = connected
	c.conn.LastChecked = time.Now().UTC()
	c.conn.LastError = ""
	if probeErr != nil {
		c.conn.LastError = probeErr.Error()
	}
	if t, ok := c.secondary.(link.Targeter); ok {
		c.conn.Target = t.Target()
	}
	snapshot := c.conn
	c.connMu.Unlock()

	switch {
	case was && !connected:
		c.log().Warn("secondary disconnected", "target", snapshot.Target, "error", snapshot.LastError)
	case !was && connected:
		c.log().Info("secondary connected", "target", snapshot.Target)
	}
	if !first && was == connected {
		return snapshot
	}

	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	for _, h := range c.hooks {
		if h.OnConnectivity != nil {
			h.OnConnectivity(snapshot)
		}
	}
	return snapshot
}

// Start launches the periodic probe loop. The first probe runs immediately.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.probeLoop(ctx)
}

// Stop ends the probe loop and waits for it to exit. Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
	})
}

func (c *Coordinator) probeLoop(ctx context.Context) {
	defer c.wg.Done()

	c.Probe(ctx)

	ticker := time.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.Probe(ctx)
		}
	}
}

// record appends op to the history ring.
func (c *Coordinator) record(op Operation) {
	c.histMu.Lock()
	c.history[c.histPos] = op
	c.histPos = (c.histPos + 1) % len(c.history)
	if c.histLen < len(c.history) {
		c.histLen++
	}
	c.histMu.Unlock()
}

// Recent returns up to n operations, newest first. n <= 0 returns all kept.
func (c *Coordinator) Recent(n int) []Operation {
	c.histMu.Lock()
	defer c.histMu.Unlock()

	if n <= 0 || n > c.histLen {
		n = c.histLen
	}
	out := make([]Operation, 0, n)
	for i := 1; i <= n; i++ {
		idx := (c.histPos - i + len(c.history)) % len(c.history)
		out = append(out, c.history[idx])
	}
	return out
}

func (c *Coordinator) notifyOperation(op Operation) {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	for _, h := range c.hooks {
		if h.OnOperation != nil {
			h.OnOperation(op)
		}
	}
}
