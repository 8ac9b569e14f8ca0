package api

import (
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/regsync/internal/archive"
	"github.com/nerrad567/regsync/internal/audit"
	"github.com/nerrad567/regsync/internal/engine"
	"github.com/nerrad567/regsync/internal/preset"
)

// maxImportSize caps an uploaded preset document. A full two-bank document
// is well under 32 KB in either encoding.
const maxImportSize = 64 * 1024

// presetRequest is the body of the save, apply and firmware preset routes.
type presetRequest struct {
	Name  string `json:"name"`
	Scope string `json:"scope"`
}

// handleListPresets returns every stored preset without its values.
func (s *Server) handleListPresets(w http.ResponseWriter, r *http.Request) {
	list, err := s.presets.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if list == nil {
		list = []preset.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": list, "count": len(list)})
}

// handleSavePreset snapshots the Primary into a named preset.
func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var body presetRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	scope := preset.ScopeBoth
	if body.Scope != "" {
		var err error
		if scope, err = preset.ParseScope(body.Scope); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}

	p, err := s.presets.Save(r.Context(), body.Name, scope)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.auditLog(r, audit.ActionSave, audit.EntityPreset, p.Name, map[string]any{
		"scope": string(p.Scope),
		"count": len(p.Entries),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"status": "ok",
		"name":   p.Name,
		"scope":  p.Scope,
		"count":  len(p.Entries),
	})
}

// handleGetPreset returns a stored preset with its values.
func (s *Server) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.presets.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// handleApplyPreset writes a stored preset, locally or to both devices.
func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	var body presetRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	scope := engine.ScopeLocal
	if body.Scope != "" {
		var err error
		if scope, err = engine.ParseScope(body.Scope); err != nil {
			s.writeDomainError(w, r, err)
			return
		}
	}
	s.applyPreset(w, r, body.Name, scope)
}

func (s *Server) applyPreset(w http.ResponseWriter, r *http.Request, name string, scope engine.Scope) {
	res, err := s.presets.Apply(r.Context(), name, scope)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.auditLog(r, audit.ActionApply, audit.EntityPreset, res.Name, map[string]any{
		"scope":   string(res.Scope),
		"written": res.Written,
		"failed":  res.Failed,
	})
	writeJSON(w, http.StatusOK, res)
}

// handleDeletePreset removes a stored preset.
func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.presets.Delete(r.Context(), name); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.auditLog(r, audit.ActionDelete, audit.EntityPreset, name, nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ok"})
}

// handleExportPreset returns a preset in the camera's document shape,
// as JSON or as CBOR with format=cbor.
func (s *Server) handleExportPreset(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "cbor" {
		writeBadRequest(w, "format must be json or cbor")
		return
	}

	p, err := s.presets.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	doc := p.Document()

	if format != "cbor" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, p.Name))
		writeJSON(w, http.StatusOK, doc)
		return
	}
	data, err := archive.Marshal(doc)
	if err != nil {
		s.writeDomainError(w, r, fmt.Errorf("encoding preset: %w", err))
		return
	}
	w.Header().Set("Content-Type", archive.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.cbor"`, p.Name))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // best-effort write; connection may be closed
}

// handleImportPreset stores an uploaded document under the URL name. The
// body is decoded as CBOR when sent as application/cbor, JSON otherwise.
func (s *Server) handleImportPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var doc preset.Document

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")) //nolint:errcheck // empty or malformed means JSON
	if ct == archive.ContentType {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
		if err != nil {
			writeBadRequest(w, "reading body: "+err.Error())
			return
		}
		if err := archive.Unmarshal(data, &doc); err != nil {
			writeBadRequest(w, "invalid CBOR document: "+err.Error())
			return
		}
	} else if err := decodeJSON(r, &doc); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	p, err := s.presets.Import(r.Context(), name, &doc)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	s.auditLog(r, audit.ActionImport, audit.EntityPreset, p.Name, map[string]any{
		"scope": string(p.Scope),
		"count": len(p.Entries),
	})
	writeJSON(w, http.StatusCreated, p)
}

// Camera-compatible preset routes. The camera lists bare names and applies
// a loaded preset locally, while apply_preset drives both devices.

func (s *Server) handleFirmwarePresetList(w http.ResponseWriter, r *http.Request) {
	list, err := s.presets.List(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	names := make([]string, 0, len(list))
	for _, p := range list {
		names = append(names, p.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{"presets": names})
}

func (s *Server) handleFirmwarePresetLoad(w http.ResponseWriter, r *http.Request) {
	var body presetRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.applyPreset(w, r, body.Name, engine.ScopeLocal)
}

func (s *Server) handleFirmwareApplyPreset(w http.ResponseWriter, r *http.Request) {
	var body presetRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	s.applyPreset(w, r, body.Name, engine.ScopeBoth)
}
