// Package requests owns the material request lifecycle.
package requests

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/shared"
)

// Status enumerates request lifecycle states.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusSent     Status = "sent"
	StatusReceived Status = "received"
)

// transitions is the adjacency table of the request state machine. Transition
// is the single place allowed to move a status; anything not listed here is
// rejected.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusSent},
	StatusSent:     {StatusReceived},
}

// CanTransition reports whether from → to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change on the request.
func (r *MaterialRequest) Transition(to Status) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("requests: %s -> %s: %w", r.Status, to, shared.ErrInvalidState)
	}
	r.Status = to
	return nil
}

// MaterialRequest is a single ask for a quantity of one material on one
// project. Requests are never physically deleted; rejected and received ones
// remain as the audit trail.
type MaterialRequest struct {
	ID           string
	ProjectID    string
	MaterialID   string
	MaterialName string
	Qty          decimal.Decimal
	Unit         string
	Reason       string
	RequestedBy  string
	Status       Status

	// Anomaly fields are set by the external usage-anomaly detector and are
	// read-only to this package.
	AnomalyFlag   bool
	AnomalyReason string

	ApprovedBy      string
	ApprovedAt      *time.Time
	RejectedBy      string
	RejectedAt      *time.Time
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}
