package model

import "github.com/shopspring/decimal"

// feeRate is the trading post cut taken on every sale. All fee math runs
// on decimals, never float64, and truncates toward zero per unit.
var (
	feeRate = decimal.RequireFromString("0.15")
	feeKeep = decimal.NewFromInt(1).Sub(feeRate)
)

// ItemDetail carries the catalog and market data a report keeps for one
// item. Offer fields are nil when the trading post holds no such offer.
// Items that cannot be sold to a vendor carry a vendor value of 0. The
// icon path is local state and stays out of the serialized form.
type ItemDetail struct {
	ID          ItemID `json:"id"`
	Name        string `json:"name"`
	VendorValue int64  `json:"vendor_value"`
	HighestBuy  *int64 `json:"highest_buy"`
	LowestSell  *int64 `json:"lowest_sell"`
	IconPath    string `json:"-"`
}

// afterFee discounts a unit price by the trading post fee.
func afterFee(price int64) int64 {
	return feeKeep.Mul(decimal.NewFromInt(price)).IntPart()
}

// FastLiquidValue is the per-unit return of selling instantly into the
// highest buy offer, or false when nobody is buying.
func (d ItemDetail) FastLiquidValue() (int64, bool) {
	if d.HighestBuy == nil {
		return 0, false
	}
	return afterFee(*d.HighestBuy), true
}

// FastValue is the best per-unit value obtainable immediately, from the
// trading post or a vendor.
func (d ItemDetail) FastValue() int64 {
	v, _ := d.FastLiquidValue()
	return max(v, d.VendorValue)
}

// SlowLiquidValue is the per-unit return of undercutting the lowest sell
// offer and waiting. Without sell offers it falls back to an instant
// sale, and reports false when the item has no market at all.
func (d ItemDetail) SlowLiquidValue() (int64, bool) {
	switch {
	case d.LowestSell != nil:
		return afterFee(*d.LowestSell), true
	case d.HighestBuy != nil:
		return afterFee(*d.HighestBuy), true
	}
	return 0, false
}

// SlowValue is the best assured per-unit value when selling patiently,
// or the vendor price when no market exists.
func (d ItemDetail) SlowValue() int64 {
	v, _ := d.SlowLiquidValue()
	return max(v, d.VendorValue)
}

// Value is the canonical per-unit value used in reports.
func (d ItemDetail) Value() int64 { return d.SlowValue() }

// Equal reports whether both details carry the same data, icon included.
func (d ItemDetail) Equal(other ItemDetail) bool {
	return d.ID == other.ID &&
		d.Name == other.Name &&
		d.VendorValue == other.VendorValue &&
		d.IconPath == other.IconPath &&
		eqOffer(d.HighestBuy, other.HighestBuy) &&
		eqOffer(d.LowestSell, other.LowestSell)
}

func eqOffer(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
