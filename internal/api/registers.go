package api

import (
	"fmt"
	"net/http"

	"github.com/nerrad567/regsync/internal/archive"
	"github.com/nerrad567/regsync/internal/audit"
	"github.com/nerrad567/regsync/internal/engine"
	"github.com/nerrad567/regsync/internal/mirror"
	"github.com/nerrad567/regsync/internal/register"
)

// singleResponse is the body of GET /registers/single.
type singleResponse struct {
	Bank  int    `json:"bank"`
	Addr  string `json:"addr"`
	Value int    `json:"value"`
	Name  string `json:"name,omitempty"`
	Desc  string `json:"desc,omitempty"`
}

// writeRequest is the body of POST /registers/single.
type writeRequest struct {
	Bank  bankField `json:"bank"`
	Addr  hexByte   `json:"addr"`
	Value hexByte   `json:"value"`
	Mask  hexByte   `json:"mask"`
	Sync  *bool     `json:"sync"`
}

// writeResponse is the body of a successful POST /registers/single.
type writeResponse struct {
	OK       bool              `json:"ok"`
	Status   string            `json:"status"`
	Bank     int               `json:"bank"`
	Addr     string            `json:"addr"`
	Value    int               `json:"value"`
	Previous *int              `json:"previous,omitempty"`
	Written  bool              `json:"written"`
	Sync     *mirror.Operation `json:"sync,omitempty"`
}

// rangeWriteRequest is the body of POST /registers/range and /apply_range.
type rangeWriteRequest struct {
	Bank   bankField `json:"bank"`
	Start  hexByte   `json:"start"`
	Values []hexByte `json:"values"`
}

// rangeEntry is one register of GET /registers/range.
type rangeEntry struct {
	Addr  int  `json:"addr"`
	Value *int `json:"value"`
	Known bool `json:"known"`
}

// rangeResponse is the body of GET /registers/range.
type rangeResponse struct {
	Bank    int          `json:"bank"`
	Start   string       `json:"start"`
	End     string       `json:"end"`
	Entries []rangeEntry `json:"entries"`
}

// handleReadSingle reads one register from the Primary device.
func (s *Server) handleReadSingle(w http.ResponseWriter, r *http.Request) {
	bank, err := queryBank(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	addr, err := queryAddress(r, "addr")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	v, err := s.engine.Read(r.Context(), bank, addr)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := singleResponse{Bank: int(bank), Addr: addr.Hex(), Value: int(v)}
	if d, ok := s.engine.Describe(bank, addr); ok {
		resp.Name = d.Name
		resp.Desc = d.Description
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWriteSingle applies a (possibly masked) write to the Primary.
func (s *Server) handleWriteSingle(w http.ResponseWriter, r *http.Request) {
	var body writeRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	req := engine.WriteRequest{Sync: body.Sync}
	var err error
	if req.Bank, err = body.Bank.get(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if req.Address, err = body.Addr.address(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if req.Value, err = body.Value.value(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if body.Mask.set {
		m, err := register.MaskFromInt(body.Mask.n)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		req.Mask = &m
	}

	res, err := s.engine.Write(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := writeResponse{
		OK:      true,
		Status:  "ok",
		Bank:    int(res.Bank),
		Addr:    res.Address.Hex(),
		Value:   int(res.Value),
		Written: res.Written,
		Sync:    res.Sync,
	}
	if res.Previous != nil {
		prev := int(*res.Previous)
		resp.Previous = &prev
	}

	if res.Written {
		details := map[string]any{"value": res.Value.Hex()}
		if req.Mask != nil {
			details["mask"] = fmt.Sprintf("0x%02X", uint8(*req.Mask))
		}
		if res.Sync != nil {
			details["sync"] = string(res.Sync.State)
		}
		s.auditLog(r, audit.ActionWrite, audit.EntityRegister, audit.RegisterID(res.Bank, res.Address), details)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReadRange returns cached values for start..end inclusive; with
// resolve=true Unknown registers are read from the device first.
func (s *Server) handleReadRange(w http.ResponseWriter, r *http.Request) {
	bank, err := queryBank(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	start, err := queryAddress(r, "start")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	end, err := queryAddress(r, "end")
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if end < start {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidAddress, "end must not be before start")
		return
	}

	entries, err := s.engine.ReadRange(r.Context(), bank, start, int(end-start)+1, queryBool(r, "resolve"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := rangeResponse{
		Bank:    int(bank),
		Start:   start.Hex(),
		End:     end.Hex(),
		Entries: make([]rangeEntry, len(entries)),
	}
	for i, e := range entries {
		resp.Entries[i] = rangeEntry{Addr: int(e.Address), Known: e.Known}
		if e.Known {
			v := int(e.Value)
			resp.Entries[i].Value = &v
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWriteRange writes consecutive registers on the Primary only.
func (s *Server) handleWriteRange(w http.ResponseWriter, r *http.Request) {
	s.applyRange(w, r, engine.ScopeLocal)
}

// handleApplyRange writes consecutive registers on both devices.
func (s *Server) handleApplyRange(w http.ResponseWriter, r *http.Request) {
	s.applyRange(w, r, engine.ScopeBoth)
}

func (s *Server) applyRange(w http.ResponseWriter, r *http.Request, scope engine.Scope) {
	var body rangeWriteRequest
	if err := decodeJSON(r, &body); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	req := engine.RangeRequest{Scope: scope, Values: make([]register.Value, len(body.Values))}
	var err error
	if req.Bank, err = body.Bank.get(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if req.Start, err = body.Start.address(); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	for i, v := range body.Values {
		if req.Values[i], err = v.value(); err != nil {
			s.writeDomainError(w, r, fmt.Errorf("values[%d]: %w", i, err))
			return
		}
	}

	res, err := s.engine.ApplyRange(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.auditLog(r, audit.ActionRange, audit.EntityRegister, audit.RegisterID(res.Bank, res.Start), map[string]any{
		"count":   len(req.Values),
		"scope":   string(scope),
		"written": res.Written,
		"failed":  res.Failed,
	})
	writeJSON(w, http.StatusOK, res)
}

// handleDump returns both banks as JSON, or as CBOR with format=cbor.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "cbor" {
		writeBadRequest(w, "format must be json or cbor")
		return
	}

	dump := s.engine.Dump(r.Context(), queryBool(r, "resolve"))

	if format == "cbor" {
		data, err := archive.Marshal(dump)
		if err != nil {
			s.writeDomainError(w, r, fmt.Errorf("encoding dump: %w", err))
			return
		}
		w.Header().Set("Content-Type", archive.ContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="registers.cbor"`)
		w.WriteHeader(http.StatusOK)
		w.Write(data) //nolint:errcheck // best-effort write; connection may be closed
		return
	}
	writeJSON(w, http.StatusOK, dump)
}

// handleCatalog lists documented registers, optionally for one bank.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	cat := s.engine.Catalog()
	if cat == nil {
		writeJSON(w, http.StatusOK, map[string]any{"registers": []register.Descriptor{}})
		return
	}

	banks := register.Banks
	if v := r.URL.Query().Get("bank"); v != "" {
		b, err := register.ParseBank(v)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		banks = []register.Bank{b}
	}

	out := []register.Descriptor{}
	for _, b := range banks {
		out = append(out, cat.Bank(b)...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"registers": out, "count": len(out)})
}

// handleReset forgets every cached Primary value.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	s.auditLog(r, audit.ActionReset, audit.EntityCache, "primary", nil)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ok"})
}
