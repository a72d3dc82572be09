// Package catalog holds material master data and unit-price lookup.
package catalog

import (
	"github.com/shopspring/decimal"
)

// Material describes one purchasable material.
type Material struct {
	ID        string
	Name      string
	Unit      string
	UnitPrice decimal.Decimal
	GSTRate   decimal.Decimal
	Active    bool
}
