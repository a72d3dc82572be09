package requests

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateRequestDTO is the JSON payload for opening a request.
type CreateRequestDTO struct {
	ProjectID  string  `json:"project_id" validate:"required"`
	MaterialID string  `json:"material_id" validate:"required"`
	Qty        float64 `json:"qty" validate:"required,gt=0"`
	Unit       string  `json:"unit" validate:"max=20"`
	Reason     string  `json:"reason" validate:"max=500"`
}

// RejectRequestDTO carries the mandatory rejection reason.
type RejectRequestDTO struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RequestResponse is the JSON shape of a material request.
type RequestResponse struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"project_id"`
	MaterialID      string     `json:"material_id"`
	MaterialName    string     `json:"material_name"`
	Qty             string     `json:"qty"`
	Unit            string     `json:"unit"`
	Reason          string     `json:"reason,omitempty"`
	RequestedBy     string     `json:"requested_by"`
	Status          string     `json:"status"`
	AnomalyFlag     bool       `json:"anomaly_flag"`
	AnomalyReason   string     `json:"anomaly_reason,omitempty"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedBy      string     `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toResponse(req MaterialRequest) RequestResponse {
	return RequestResponse{
		ID:              req.ID,
		ProjectID:       req.ProjectID,
		MaterialID:      req.MaterialID,
		MaterialName:    req.MaterialName,
		Qty:             req.Qty.String(),
		Unit:            req.Unit,
		Reason:          req.Reason,
		RequestedBy:     req.RequestedBy,
		Status:          string(req.Status),
		AnomalyFlag:     req.AnomalyFlag,
		AnomalyReason:   req.AnomalyReason,
		ApprovedBy:      req.ApprovedBy,
		ApprovedAt:      req.ApprovedAt,
		RejectedBy:      req.RejectedBy,
		RejectedAt:      req.RejectedAt,
		RejectionReason: req.RejectionReason,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
}

func qtyFromFloat(qty float64) decimal.Decimal {
	return decimal.NewFromFloat(qty)
}
