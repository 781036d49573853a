package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// CoinID is the wallet entry holding plain coins.
const CoinID ItemID = "1"

// ErrReportIntegrity marks a report whose inventory delta references an
// item with no detail entry. Correct orchestration never produces one.
var ErrReportIntegrity = errors.New("report integrity violated")

// Report stores the computed gains over one tracking period. It is
// immutable once built: the valuation methods derive everything from the
// deltas and the per-item details.
type Report struct {
	StartedAt      time.Time             `json:"started_at"`
	EndedAt        time.Time             `json:"ended_at"`
	InventoryDelta Inventory             `json:"inventory_delta"`
	WalletDelta    Inventory             `json:"wallet_delta"`
	ItemDetails    map[ItemID]ItemDetail `json:"item_details"`
}

// Diff returns the inventory and wallet changes from start to end.
func Diff(start, end Snapshot) (inventory, wallet Inventory) {
	return end.Inventory.Sub(start.Inventory), end.Wallet.Sub(start.Wallet)
}

// NewReport builds a report from two snapshots and the details fetched
// for the items that changed. Construction fails with ErrReportIntegrity
// unless every changed item has a detail entry.
func NewReport(start, end Snapshot, details map[ItemID]ItemDetail) (Report, error) {
	invDelta, walletDelta := Diff(start, end)
	r := Report{
		StartedAt:      start.TakenAt,
		EndedAt:        end.TakenAt,
		InventoryDelta: invDelta,
		WalletDelta:    walletDelta,
		ItemDetails:    details,
	}
	if missing := r.missingDetails(); len(missing) > 0 {
		return Report{}, fmt.Errorf("%w: no item details for ids %s", ErrReportIntegrity, joinIDs(missing))
	}
	return r, nil
}

func (r Report) missingDetails() []ItemID {
	var missing []ItemID
	for _, id := range r.InventoryDelta.IDs() {
		if _, ok := r.ItemDetails[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// CoinGain is the raw change in coins over the period. The delta drops
// zero entries, so an absent coin id means no change.
func (r Report) CoinGain() int64 {
	return r.WalletDelta.Get(CoinID)
}

// ItemGain values every inventory change at its canonical per-unit value.
func (r Report) ItemGain() int64 {
	var total int64
	for id, count := range r.InventoryDelta.items {
		total += count * r.ItemDetails[id].Value()
	}
	return total
}

// TotalGain is the overall coin-equivalent gain for the period.
func (r Report) TotalGain() int64 {
	return r.CoinGain() + r.ItemGain()
}

// Equal reports whether both reports describe the same period and data.
func (r Report) Equal(other Report) bool {
	if !r.StartedAt.Equal(other.StartedAt) ||
		!r.EndedAt.Equal(other.EndedAt) ||
		!r.InventoryDelta.Equal(other.InventoryDelta) ||
		!r.WalletDelta.Equal(other.WalletDelta) ||
		len(r.ItemDetails) != len(other.ItemDetails) {
		return false
	}
	for id, d := range r.ItemDetails {
		if o, ok := other.ItemDetails[id]; !ok || !d.Equal(o) {
			return false
		}
	}
	return true
}

func joinIDs(ids []ItemID) string {
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = string(id)
	}
	return strings.Join(ss, ", ")
}
