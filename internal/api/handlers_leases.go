// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orionhq/orion/internal/alloc"
)

type rentRequest struct {
	Count  int     `json:"count"`
	Hours  float64 `json:"hours"`
	Secret string  `json:"secret,omitempty"`
}

type allocationResponse struct {
	LeaseID     int64     `json:"lease_id"`
	NodeID      int64     `json:"node_id"`
	Hostname    string    `json:"hostname"`
	Endpoint    string    `json:"endpoint"`
	SSHPort     int       `json:"ssh_port"`
	User        string    `json:"user"`
	Secret      string    `json:"secret"`
	LeasedFrom  time.Time `json:"leased_from"`
	LeasedUntil time.Time `json:"leased_until"`
}

func (s *Server) handleRent(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	var req rentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Count < 1 {
		writeBadRequest(w, "count must be at least 1")
		return
	}
	if req.Hours <= 0 {
		writeBadRequest(w, "hours must be positive")
		return
	}

	duration := time.Duration(req.Hours * float64(time.Hour))
	allocs, err := s.alloc.Rent(r.Context(), p, req.Count, duration, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]allocationResponse, 0, len(allocs))
	for _, a := range allocs {
		out = append(out, allocationResponse{
			LeaseID:     a.LeaseID,
			NodeID:      a.NodeID,
			Hostname:    a.Hostname,
			Endpoint:    a.Endpoint,
			SSHPort:     a.SSHPort,
			User:        a.User,
			Secret:      a.Secret,
			LeasedFrom:  a.LeasedFrom,
			LeasedUntil: a.LeasedUntil,
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{"allocations": out})
}

func leaseIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	id, ok := leaseIDParam(r)
	if !ok {
		writeBadRequest(w, "invalid lease id")
		return
	}
	if err := s.alloc.Release(r.Context(), p, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	id, ok := leaseIDParam(r)
	if !ok {
		writeBadRequest(w, "invalid lease id")
		return
	}
	var req struct {
		Hours float64 `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Hours <= 0 {
		writeBadRequest(w, "hours must be positive")
		return
	}

	newEnd, err := s.alloc.Extend(r.Context(), p, id, time.Duration(req.Hours*float64(time.Hour)))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lease_id": id, "leased_until": newEnd})
}

type nodeResponse struct {
	ID           int64      `json:"id"`
	Hostname     string     `json:"hostname"`
	Endpoint     string     `json:"endpoint"`
	SSHPort      int        `json:"ssh_port"`
	Status       string     `json:"status"`
	Allocated    bool       `json:"allocated"`
	NeedsCleanup bool       `json:"needs_cleanup"`
	LeaseID      int64      `json:"lease_id,omitempty"`
	Tenant       string     `json:"tenant,omitempty"`
	LeasedUntil  *time.Time `json:"leased_until,omitempty"`
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	views, err := s.alloc.ListNodes(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]nodeResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toNodeResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": out})
}

func toNodeResponse(v alloc.NodeView) nodeResponse {
	return nodeResponse{
		ID:           v.Node.ID,
		Hostname:     v.Node.Hostname,
		Endpoint:     v.Endpoint,
		SSHPort:      v.Node.SSHPort,
		Status:       string(v.Node.Status),
		Allocated:    v.Node.Allocated,
		NeedsCleanup: v.Node.NeedsCleanup,
		LeaseID:      v.LeaseID,
		Tenant:       v.Tenant,
		LeasedUntil:  v.LeasedUntil,
	}
}

func (s *Server) handleLeaseSecret(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	id, ok := leaseIDParam(r)
	if !ok {
		writeBadRequest(w, "invalid lease id")
		return
	}
	secret, err := s.alloc.LeaseSecret(r.Context(), p, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}
