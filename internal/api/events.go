package api

import (
	"github.com/nerrad567/regsync/internal/audit"
	"github.com/nerrad567/regsync/internal/engine"
	"github.com/nerrad567/regsync/internal/mirror"
	"github.com/nerrad567/regsync/internal/preset"
)

// registerEvent is the payload of register.changed.
type registerEvent struct {
	Bank     string `json:"bank"`
	Addr     string `json:"addr"`
	Value    int    `json:"value"`
	Previous *int   `json:"previous,omitempty"`
	Source   string `json:"source"`
	Sync     string `json:"sync,omitempty"`
}

// subscribeEvents relays engine, mirror and preset notifications to the
// WebSocket hub and the audit trail. Hooks run on the caller's goroutine, so
// both sinks are non-blocking.
func (s *Server) subscribeEvents() {
	s.engine.OnChange(func(c engine.Change) {
		ev := registerEvent{
			Bank:   c.Bank.String(),
			Addr:   c.Address.Hex(),
			Value:  int(c.Value),
			Source: c.Source,
		}
		if c.Previous != nil {
			prev := int(*c.Previous)
			ev.Previous = &prev
		}
		if c.Sync != nil {
			ev.Sync = string(c.Sync.State)
		}
		s.hub.Broadcast(ChannelRegisterChanged, ev)
	})

	s.engine.Mirror().AddHooks(mirror.Hooks{
		OnOperation: func(op mirror.Operation) {
			s.hub.Broadcast(ChannelSyncCompleted, op)
			if op.State == mirror.StateFailed {
				s.enqueueAudit(&audit.AuditLog{
					Action:     audit.ActionSync,
					EntityType: audit.EntityRegister,
					EntityID:   audit.RegisterID(op.Bank, op.Address),
					Source:     audit.SourceMirror,
					Details: map[string]any{
						"operation_id": op.ID,
						"value":        op.Value.Hex(),
						"reason":       op.Reason,
					},
				})
			}
		},
		OnConnectivity: func(c mirror.Connectivity) {
			s.hub.Broadcast(ChannelSyncConnectivity, c)
			details := map[string]any{"connected": c.Connected}
			if c.LastError != "" {
				details["error"] = c.LastError
			}
			s.enqueueAudit(&audit.AuditLog{
				Action:     audit.ActionProbe,
				EntityType: audit.EntitySecondary,
				EntityID:   c.Target,
				Source:     audit.SourceMirror,
				Details:    details,
			})
		},
	})

	s.presets.OnApply(func(res *preset.ApplyResult) {
		s.hub.Broadcast(ChannelPresetApplied, map[string]any{
			"name":    res.Name,
			"scope":   res.Scope,
			"written": res.Written,
			"failed":  res.Failed,
		})
	})
}
