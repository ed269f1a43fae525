// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/orionhq/orion/internal/auth"
	"github.com/orionhq/orion/internal/catalog"
	"github.com/orionhq/orion/internal/core"
	"github.com/orionhq/orion/internal/log"
)

// handlePattern constrains handles to names the provisioner can create as OS
// users verbatim.
var handlePattern = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !handlePattern.MatchString(req.Username) {
		writeBadRequest(w, "username must be a valid unix user name")
		return
	}
	if len(req.Password) < 8 {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	var id int64
	err = s.cat.WithTx(r.Context(), func(tx catalog.Tx) error {
		id, err = tx.CreateTenant(r.Context(), req.Username, hash, core.RoleUser)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info().
		Str(log.FieldEvent, "tenant_created").
		Int64(log.FieldTenantID, id).
		Msg("tenant signed up")
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "username": req.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var tenant core.Tenant
	err := s.cat.WithTx(r.Context(), func(tx catalog.Tx) error {
		var err error
		tenant, err = tx.TenantByHandle(r.Context(), req.Username)
		return err
	})
	// A missing tenant and a wrong password are indistinguishable on the wire.
	if err != nil || !auth.CheckPassword(tenant.PasswordHash, req.Password) {
		writeUnauthorized(w)
		return
	}

	token, err := s.issuer.Issue(core.Principal{ID: tenant.ID, Handle: tenant.Handle, Role: tenant.Role})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
