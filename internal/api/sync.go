package api

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/nerrad567/regsync/internal/audit"
	"github.com/nerrad567/regsync/internal/mirror"
)

// Sync history limits for GET /sync/operations.
const (
	defaultOperationsLimit = 20
	maxOperationsLimit     = 100
)

// syncStatus is the body of GET /sync/status. IP carries the host part of
// the target the way the camera's status page reports it.
type syncStatus struct {
	Configured  bool       `json:"configured"`
	Connected   bool       `json:"connected"`
	IP          string     `json:"ip,omitempty"`
	Target      string     `json:"target,omitempty"`
	LastChecked *time.Time `json:"last_checked,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

func (s *Server) syncStatus() syncStatus {
	c := s.engine.Mirror().Status()
	st := syncStatus{
		Configured: s.engine.Mirror().Configured(),
		Connected:  c.Connected,
		Target:     c.Target,
		IP:         targetHost(c.Target),
		LastError:  c.LastError,
	}
	if !c.LastChecked.IsZero() {
		t := c.LastChecked
		st.LastChecked = &t
	}
	return st
}

// targetHost returns the host of a URL target, or the target itself.
func targetHost(target string) string {
	if target == "" {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	if host, _, err := net.SplitHostPort(u.Host); err == nil {
		return host
	}
	return u.Host
}

// handleSyncStatus reports the Secondary's last probed reachability.
func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.syncStatus())
}

// handleSyncProbe probes the Secondary now and returns the fresh status.
func (s *Server) handleSyncProbe(w http.ResponseWriter, r *http.Request) {
	c := s.engine.Mirror().Probe(r.Context())
	details := map[string]any{"connected": c.Connected}
	if c.LastError != "" {
		details["error"] = c.LastError
	}
	s.auditLog(r, audit.ActionProbe, audit.EntitySecondary, c.Target, details)
	writeJSON(w, http.StatusOK, s.syncStatus())
}

// handleSyncOperations lists recent mirror operations, newest first.
func (s *Server) handleSyncOperations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultOperationsLimit)
	if limit <= 0 {
		limit = defaultOperationsLimit
	}
	if limit > maxOperationsLimit {
		limit = maxOperationsLimit
	}
	ops := s.engine.Mirror().Recent(limit)
	if ops == nil {
		ops = []mirror.Operation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops, "count": len(ops)})
}
