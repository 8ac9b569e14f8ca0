package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/regsync/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	need := s.requirePermission

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required); also the peer liveness probe
		r.Get("/health", s.handleHealth)

		r.Post("/auth/login", s.handleLogin)

		// WebSocket authenticates with a ticket, not a bearer header
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/registers", func(r chi.Router) {
				r.With(need(auth.PermRegisterRead)).Get("/single", s.handleReadSingle)
				r.With(need(auth.PermRegisterWrite)).Post("/single", s.handleWriteSingle)
				r.With(need(auth.PermRegisterRead)).Get("/range", s.handleReadRange)
				r.With(need(auth.PermRegisterWrite)).Post("/range", s.handleWriteRange)
				r.With(need(auth.PermRegisterWrite)).Post("/apply_range", s.handleApplyRange)
				r.With(need(auth.PermRegisterRead)).Get("/dump", s.handleDump)
				r.With(need(auth.PermRegisterRead)).Get("/catalog", s.handleCatalog)
				r.With(need(auth.PermSystemAdmin)).Post("/reset", s.handleReset)
			})

			r.Route("/presets", func(r chi.Router) {
				r.With(need(auth.PermPresetRead)).Get("/", s.handleListPresets)
				r.With(need(auth.PermPresetManage)).Post("/save", s.handleSavePreset)
				r.With(need(auth.PermPresetApply)).Post("/apply", s.handleApplyPreset)

				r.Route("/{name}", func(r chi.Router) {
					r.With(need(auth.PermPresetRead)).Get("/", s.handleGetPreset)
					r.With(need(auth.PermPresetManage)).Delete("/", s.handleDeletePreset)
					r.With(need(auth.PermPresetRead)).Get("/export", s.handleExportPreset)
					r.With(need(auth.PermPresetManage)).Post("/import", s.handleImportPreset)
				})
			})

			r.Route("/sync", func(r chi.Router) {
				r.With(need(auth.PermSyncRead)).Get("/status", s.handleSyncStatus)
				r.With(need(auth.PermSyncManage)).Post("/probe", s.handleSyncProbe)
				r.With(need(auth.PermSyncRead)).Get("/operations", s.handleSyncOperations)
			})

			r.With(need(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
		})
	})

	// Camera-compatible routes, so one regsync node can drive another the
	// way the camera firmware drives its peer.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/api/registers", func(r chi.Router) {
			r.With(need(auth.PermRegisterRead)).Get("/single", s.handleReadSingle)
			r.With(need(auth.PermRegisterWrite)).Post("/single", s.handleWriteSingle)
			r.With(need(auth.PermRegisterRead)).Get("/range", s.handleReadRange)
			r.With(need(auth.PermRegisterWrite)).Post("/range", s.handleWriteRange)
			r.With(need(auth.PermRegisterWrite)).Post("/apply_range", s.handleApplyRange)
			r.With(need(auth.PermRegisterRead)).Get("/dump", s.handleDump)

			r.With(need(auth.PermPresetRead)).Get("/preset", s.handleFirmwarePresetList)
			r.With(need(auth.PermPresetManage)).Post("/preset/save", s.handleSavePreset)
			r.With(need(auth.PermPresetApply)).Post("/preset/load", s.handleFirmwarePresetLoad)
			r.With(need(auth.PermPresetApply)).Post("/apply_preset", s.handleFirmwareApplyPreset)
		})

		r.With(need(auth.PermSyncRead)).Get("/api/slave/status", s.handleSyncStatus)
	})

	return r
}
