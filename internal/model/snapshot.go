package model

import "time"

// Snapshot is an immutable capture of an account's holdings at one
// instant: everything the account owns across shared inventory, bank,
// material storage and character bags, plus the wallet balances.
type Snapshot struct {
	Key       APIKey    `json:"key"`
	Inventory Inventory `json:"inventory"`
	Wallet    Inventory `json:"wallet"`
	TakenAt   time.Time `json:"taken_at"`
	Label     string    `json:"label,omitempty"`
}

// NewSnapshot stamps a capture with the current time.
func NewSnapshot(key APIKey, inventory, wallet Inventory) Snapshot {
	return Snapshot{
		Key:       key,
		Inventory: inventory,
		Wallet:    wallet,
		TakenAt:   time.Now().UTC(),
	}
}

// Equal reports whether both snapshots describe the same capture.
func (s Snapshot) Equal(other Snapshot) bool {
	return s.Key == other.Key &&
		s.Label == other.Label &&
		s.TakenAt.Equal(other.TakenAt) &&
		s.Inventory.Equal(other.Inventory) &&
		s.Wallet.Equal(other.Wallet)
}
