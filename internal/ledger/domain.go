// Package ledger keeps the append-only stock movement log and derives
// balances and anomaly alerts from it. Entries are never updated or deleted;
// balances are always derived, which keeps the ledger auditable and removes
// drift between a stored balance and the transaction history.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Movement enumerates stock movement directions.
type Movement string

const (
	MovementIn  Movement = "IN"
	MovementOut Movement = "OUT"
)

// Source enumerates what caused a movement.
type Source string

const (
	SourcePurchase   Source = "purchase"
	SourceUsage      Source = "usage"
	SourceAdjustment Source = "adjustment"
)

// RefKind tags the polymorphic back-reference of an entry.
type RefKind string

const (
	RefNone            RefKind = "none"
	RefMaterialRequest RefKind = "material_request"
	RefUsageReport     RefKind = "usage_report"
)

// Entry is one immutable stock movement.
type Entry struct {
	ID           string
	ProjectID    string
	MaterialID   string
	MaterialName string
	Movement     Movement
	Qty          decimal.Decimal
	Unit         string
	Source       Source
	RefKind      RefKind
	RefID        string
	ActorID      string
	CreatedAt    time.Time
}

// MaterialBalance summarises movements of one material on a project.
// Balance = TotalIn − TotalOut and may legitimately go negative; negativity
// signals a process anomaly and is surfaced, not prevented.
type MaterialBalance struct {
	MaterialID   string          `json:"material_id"`
	MaterialName string          `json:"material_name"`
	Unit         string          `json:"unit"`
	TotalIn      decimal.Decimal `json:"total_in"`
	TotalOut     decimal.Decimal `json:"total_out"`
	Balance      decimal.Decimal `json:"balance"`
}

// Alert flags a suspicious material balance. Advisory only; alerts never
// block ledger writes.
type Alert struct {
	MaterialID   string          `json:"material_id"`
	MaterialName string          `json:"material_name"`
	Reason       string          `json:"reason"`
	TotalIn      decimal.Decimal `json:"total_in"`
	TotalOut     decimal.Decimal `json:"total_out"`
	Balance      decimal.Decimal `json:"balance"`
}

const (
	// AlertNegativeBalance means more was consumed than ever received.
	AlertNegativeBalance = "negative_balance"
	// AlertUsageExceedsSupply means usage is more than 20% over supply. The
	// threshold tolerates normal measurement slack while catching real
	// anomalies.
	AlertUsageExceedsSupply = "usage_exceeds_supply"
)

// overageFactor is the usage-over-supply alert threshold.
var overageFactor = decimal.RequireFromString("1.2")
