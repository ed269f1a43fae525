// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
)

type registerWorkerRequest struct {
	Hostname string `json:"hostname"`
	IP       string `json:"ip"`
	SSHPort  int    `json:"ssh_port"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Hostname == "" || req.IP == "" {
		writeBadRequest(w, "hostname and ip are required")
		return
	}
	if req.SSHPort < 1 || req.SSHPort > 65535 {
		writeBadRequest(w, "ssh_port out of range")
		return
	}

	node, err := s.alloc.RegisterNode(r.Context(), req.Hostname, req.IP, req.SSHPort)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node_id": node.ID})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFrom(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}
	if err := s.alloc.Reset(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
