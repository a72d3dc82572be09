// Package billing computes GST splits and issues purchase invoices.
package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	oneHundred = decimal.NewFromInt(100)
	two        = decimal.NewFromInt(2)
)

// GSTBreakup is the tax split for one taxable amount. Amounts are rounded to
// two decimal places, half away from zero, on the rupee-paise boundary.
type GSTBreakup struct {
	CGSTAmount decimal.Decimal `json:"cgst_amount"`
	SGSTAmount decimal.Decimal `json:"sgst_amount"`
	IGSTAmount decimal.Decimal `json:"igst_amount"`
	TotalGST   decimal.Decimal `json:"total_gst"`
	InterState bool            `json:"inter_state"`
}

// ComputeGST splits the tax on a taxable amount between CGST+SGST (supplier
// and client in the same state) or IGST (inter-state supply). TotalGST is
// rounded from the unsplit amount rather than summed from the rounded halves,
// so it never compounds rounding error.
func ComputeGST(taxableAmount, gstRate decimal.Decimal, supplierState, clientState string) GSTBreakup {
	gross := taxableAmount.Mul(gstRate).Div(oneHundred)
	total := gross.Round(2)

	if normalizeState(supplierState) == normalizeState(clientState) {
		half := gross.Div(two).Round(2)
		return GSTBreakup{
			CGSTAmount: half,
			SGSTAmount: half,
			IGSTAmount: decimal.Zero,
			TotalGST:   total,
		}
	}
	return GSTBreakup{
		CGSTAmount: decimal.Zero,
		SGSTAmount: decimal.Zero,
		IGSTAmount: total,
		TotalGST:   total,
		InterState: true,
	}
}

func normalizeState(state string) string {
	return strings.ToUpper(strings.TrimSpace(state))
}
