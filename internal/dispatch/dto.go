package dispatch

import "time"

// SendDTO is the JSON payload for dispatching an approved request.
type SendDTO struct {
	RequestID string  `json:"request_id" validate:"required"`
	GSTRate   float64 `json:"gst_rate" validate:"gte=0,lte=100"`
}

// ReceiveDTO is the JSON payload for confirming a GRN.
type ReceiveDTO struct {
	ProofPhotoURL string   `json:"proof_photo_url"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	GeoLocation   string   `json:"geo_location" validate:"max=200"`
}

// HistoryResponse is the JSON shape of a purchase history.
type HistoryResponse struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	RequestID      string     `json:"request_id"`
	MaterialID     string     `json:"material_id"`
	MaterialName   string     `json:"material_name"`
	Qty            string     `json:"qty"`
	Unit           string     `json:"unit"`
	UnitPrice      string     `json:"unit_price"`
	GSTRate        string     `json:"gst_rate"`
	BasePrice      string     `json:"base_price"`
	GSTAmount      string     `json:"gst_amount"`
	TotalCost      string     `json:"total_cost"`
	Status         string     `json:"status"`
	SentBy         string     `json:"sent_by"`
	SentAt         time.Time  `json:"sent_at"`
	ReceivedBy     string     `json:"received_by,omitempty"`
	ReceivedAt     *time.Time `json:"received_at,omitempty"`
	ProofPhotoURL  string     `json:"proof_photo_url,omitempty"`
	Latitude       *float64   `json:"latitude,omitempty"`
	Longitude      *float64   `json:"longitude,omitempty"`
	GeoLocation    string     `json:"geo_location,omitempty"`
	GRNGenerated   bool       `json:"grn_generated"`
	GRNGeneratedAt *time.Time `json:"grn_generated_at,omitempty"`
}

func toResponse(h PurchaseHistory) HistoryResponse {
	return HistoryResponse{
		ID:             h.ID,
		ProjectID:      h.ProjectID,
		RequestID:      h.RequestID,
		MaterialID:     h.MaterialID,
		MaterialName:   h.MaterialName,
		Qty:            h.Qty.String(),
		Unit:           h.Unit,
		UnitPrice:      h.UnitPrice.String(),
		GSTRate:        h.GSTRate.String(),
		BasePrice:      h.BasePrice.String(),
		GSTAmount:      h.GSTAmount.String(),
		TotalCost:      h.TotalCost.String(),
		Status:         string(h.Status),
		SentBy:         h.SentBy,
		SentAt:         h.SentAt,
		ReceivedBy:     h.ReceivedBy,
		ReceivedAt:     h.ReceivedAt,
		ProofPhotoURL:  h.ProofPhotoURL,
		Latitude:       h.Latitude,
		Longitude:      h.Longitude,
		GeoLocation:    h.GeoLocation,
		GRNGenerated:   h.GRNGenerated,
		GRNGeneratedAt: h.GRNGeneratedAt,
	}
}
