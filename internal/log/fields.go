// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldTenantID  = "tenant_id"
	FieldLeaseID   = "lease_id"
	FieldNodeID    = "node_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldLoop      = "loop"

	// State fields
	FieldOldStatus = "old_status"
	FieldNewStatus = "new_status"

	// Network fields
	FieldHost    = "host"
	FieldSSHPort = "ssh_port"
)
