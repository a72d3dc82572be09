// Package dispatch implements the purchase send/receive handshake that
// bridges an approved material request to a stock ledger entry and an
// invoice. Dispatch and physical confirmation happen at different times, in
// different places, by different actors; the two-step split keeps "goods in
// transit" representable and captures the GRN evidence.
package dispatch

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sitestock/sitestock/internal/shared"
)

// Status enumerates purchase history states.
type Status string

const (
	// StatusPendingGRN marks goods dispatched and awaiting receipt.
	StatusPendingGRN Status = "PENDING_GRN"
	// StatusSent is a legacy synonym of PENDING_GRN still present in old
	// rows; both mean "dispatched, awaiting GRN". New rows are always
	// created as PENDING_GRN.
	StatusSent Status = "SENT"
	// StatusReceived is terminal.
	StatusReceived Status = "RECEIVED"
)

// AwaitingGRN reports whether a history still waits for its goods receipt.
func (s Status) AwaitingGRN() bool {
	return s == StatusPendingGRN || s == StatusSent
}

// PurchaseHistory is one dispatch-and-delivery transaction derived from
// exactly one approved material request. At most one row exists per request;
// the unique index on request_id enforces it. Never deleted.
type PurchaseHistory struct {
	ID           string
	ProjectID    string
	RequestID    string
	MaterialID   string
	MaterialName string
	Qty          decimal.Decimal
	Unit         string

	UnitPrice decimal.Decimal
	GSTRate   decimal.Decimal
	BasePrice decimal.Decimal
	GSTAmount decimal.Decimal
	TotalCost decimal.Decimal

	Status Status
	SentBy string
	SentAt time.Time

	ReceivedBy     string
	ReceivedAt     *time.Time
	ProofPhotoURL  string
	Latitude       *float64
	Longitude      *float64
	GeoLocation    string
	GRNGenerated   bool
	GRNGeneratedAt *time.Time
}

// Receive validates and applies the GRN transition on the history.
func (h *PurchaseHistory) Receive() error {
	if h.Status == StatusReceived {
		return fmt.Errorf("dispatch: history %s: %w", h.ID, shared.ErrAlreadyReceived)
	}
	if !h.Status.AwaitingGRN() {
		return fmt.Errorf("dispatch: history %s is %s: %w", h.ID, h.Status, shared.ErrInvalidState)
	}
	h.Status = StatusReceived
	return nil
}

// ValidEvidence checks the mandatory GRN proof: a photo reference and GPS
// coordinates within range. The GRN cannot exist without photographic and
// positional proof.
func ValidEvidence(proofPhotoURL string, latitude, longitude *float64) error {
	if proofPhotoURL == "" {
		return fmt.Errorf("dispatch: proof photo required: %w", shared.ErrMissingEvidence)
	}
	if latitude == nil || longitude == nil {
		return fmt.Errorf("dispatch: gps coordinates required: %w", shared.ErrMissingEvidence)
	}
	if *latitude < -90 || *latitude > 90 {
		return fmt.Errorf("dispatch: latitude %v out of range: %w", *latitude, shared.ErrMissingEvidence)
	}
	if *longitude < -180 || *longitude > 180 {
		return fmt.Errorf("dispatch: longitude %v out of range: %w", *longitude, shared.ErrMissingEvidence)
	}
	return nil
}
