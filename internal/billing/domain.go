package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is the financial artifact produced exactly once per confirmed GRN.
// Amounts are copied from the purchase history row, never recomputed, so the
// invoice always matches what the GRN recorded. Immutable after creation.
type Invoice struct {
	ID           string
	Number       string
	ProjectID    string
	HistoryID    string
	MaterialID   string
	MaterialName string
	Qty          decimal.Decimal
	Unit         string
	BasePrice    decimal.Decimal
	GSTRate      decimal.Decimal
	GSTAmount    decimal.Decimal
	TotalAmount  decimal.Decimal
	GeneratedBy  string
	GeneratedAt  time.Time
}
