package model

import (
	"encoding/json"
	"sort"
)

// ItemID identifies an item or a wallet currency in the remote game API.
// IDs are numeric on the wire but opaque here.
type ItemID string

// APIKey is an account API token pasted by the user.
type APIKey string

// Inventory is an immutable mapping from item id to a non-zero signed
// count. Construction drops zero entries, so a missing id always means
// "no change" and two inventories with the same holdings compare equal.
// The zero value is an empty inventory, usable as-is.
type Inventory struct {
	items map[ItemID]int64
}

// NewInventory copies items into an Inventory, dropping zero counts.
func NewInventory(items map[ItemID]int64) Inventory {
	m := make(map[ItemID]int64, len(items))
	for id, n := range items {
		if n != 0 {
			m[id] = n
		}
	}
	return Inventory{items: m}
}

// Get returns the count for id, 0 when absent.
func (inv Inventory) Get(id ItemID) int64 { return inv.items[id] }

// Len returns the number of non-zero entries.
func (inv Inventory) Len() int { return len(inv.items) }

// IDs returns the item ids in sorted order.
func (inv Inventory) IDs() []ItemID {
	ids := make([]ItemID, 0, len(inv.items))
	for id := range inv.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Add returns the entry-wise sum over the union of keys.
func (inv Inventory) Add(other Inventory) Inventory {
	m := make(map[ItemID]int64, len(inv.items)+len(other.items))
	for id, n := range inv.items {
		m[id] = n
	}
	for id, n := range other.items {
		m[id] += n
	}
	return NewInventory(m)
}

// Sub returns the entry-wise difference over the union of keys.
func (inv Inventory) Sub(other Inventory) Inventory {
	m := make(map[ItemID]int64, len(inv.items)+len(other.items))
	for id, n := range inv.items {
		m[id] = n
	}
	for id, n := range other.items {
		m[id] -= n
	}
	return NewInventory(m)
}

// Equal reports whether both inventories hold exactly the same counts.
func (inv Inventory) Equal(other Inventory) bool {
	if len(inv.items) != len(other.items) {
		return false
	}
	for id, n := range inv.items {
		if other.items[id] != n {
			return false
		}
	}
	return true
}

// AllBelow reports whether every count is strictly below n. Vacuously true
// for an empty inventory, as are the other scalar comparisons.
func (inv Inventory) AllBelow(n int64) bool {
	for _, v := range inv.items {
		if v >= n {
			return false
		}
	}
	return true
}

// AllAtMost reports whether every count is at most n.
func (inv Inventory) AllAtMost(n int64) bool {
	for _, v := range inv.items {
		if v > n {
			return false
		}
	}
	return true
}

// AllAtLeast reports whether every count is at least n.
func (inv Inventory) AllAtLeast(n int64) bool {
	for _, v := range inv.items {
		if v < n {
			return false
		}
	}
	return true
}

// AllAbove reports whether every count is strictly above n.
func (inv Inventory) AllAbove(n int64) bool {
	for _, v := range inv.items {
		if v <= n {
			return false
		}
	}
	return true
}

// Less reports whether other strictly dominates inv: the two differ and
// every differing count is higher in other. Inventories whose difference
// mixes signs are incomparable (Less, LessEq, Greater and GreaterEq all
// report false), so these comparisons form a partial order only.
func (inv Inventory) Less(other Inventory) bool {
	d := other.Sub(inv)
	return d.Len() > 0 && d.AllAbove(0)
}

// LessEq reports whether no count is higher in inv than in other.
func (inv Inventory) LessEq(other Inventory) bool {
	return other.Sub(inv).AllAtLeast(0)
}

// Greater reports whether inv strictly dominates other.
func (inv Inventory) Greater(other Inventory) bool {
	d := inv.Sub(other)
	return d.Len() > 0 && d.AllAbove(0)
}

// GreaterEq reports whether no count is lower in inv than in other.
func (inv Inventory) GreaterEq(other Inventory) bool {
	return inv.Sub(other).AllAtLeast(0)
}

// MarshalJSON encodes the inventory as a plain id-to-count object.
func (inv Inventory) MarshalJSON() ([]byte, error) {
	if inv.items == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(inv.items)
}

// UnmarshalJSON decodes an id-to-count object, dropping zero counts.
func (inv *Inventory) UnmarshalJSON(data []byte) error {
	var m map[ItemID]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*inv = NewInventory(m)
	return nil
}
