// Package notify implements the best-effort notification dispatcher as an
// outbox: the caller's transaction commits state, the outbox row is written
// and enqueued afterwards, and a worker drains it. A delivery outage can
// therefore never roll back or fail the state transition that triggered it.
package notify

import "time"

// Status enumerates outbox delivery states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusEnqueued  Status = "ENQUEUED"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// Notification types pushed to project members.
const (
	TypeRequestCreated  = "material_request_created"
	TypeRequestApproved = "material_request_approved"
	TypeRequestRejected = "material_request_rejected"
	TypeMaterialSent    = "material_sent"
	TypeGRNConfirmed    = "grn_confirmed"
	TypeStockAnomaly    = "stock_anomaly"
)

// Notification is one message for one recipient.
type Notification struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Data    map[string]any
}

// OutboxRow is the persisted form of a notification awaiting delivery.
type OutboxRow struct {
	ID          string
	UserID      string
	Type        string
	Title       string
	Message     string
	Data        map[string]any
	Status      Status
	Attempts    int
	CreatedAt   time.Time
	DeliveredAt *time.Time
}
