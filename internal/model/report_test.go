package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSnapshots(t *testing.T) (Snapshot, Snapshot) {
	t.Helper()
	start := Snapshot{
		Key:       "key-1",
		Inventory: NewInventory(map[ItemID]int64{"A": 5}),
		Wallet:    NewInventory(map[ItemID]int64{CoinID: 1000}),
		TakenAt:   time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC),
	}
	end := Snapshot{
		Key:       "key-1",
		Inventory: NewInventory(map[ItemID]int64{"A": 8, "B": 2}),
		Wallet:    NewInventory(map[ItemID]int64{CoinID: 1500}),
		TakenAt:   time.Date(2026, 3, 14, 20, 30, 0, 0, time.UTC),
	}
	return start, end
}

func TestDiff(t *testing.T) {
	t.Parallel()

	start, end := testSnapshots(t)
	inv, wallet := Diff(start, end)

	require.True(t, inv.Equal(NewInventory(map[ItemID]int64{"A": 3, "B": 2})))
	require.Equal(t, int64(500), wallet.Get(CoinID))
}

func TestReportGains(t *testing.T) {
	t.Parallel()

	start, end := testSnapshots(t)
	// vendor-only values: A at 10 per unit, B at 20 per unit
	details := map[ItemID]ItemDetail{
		"A": {ID: "A", Name: "Copper Ore", VendorValue: 10},
		"B": {ID: "B", Name: "Iron Ingot", VendorValue: 20},
	}

	r, err := NewReport(start, end, details)
	require.NoError(t, err)

	require.Equal(t, int64(500), r.CoinGain())
	require.Equal(t, int64(3*10+2*20), r.ItemGain())
	require.Equal(t, int64(570), r.TotalGain())
	require.True(t, r.StartedAt.Equal(start.TakenAt))
	require.True(t, r.EndedAt.Equal(end.TakenAt))
}

func TestReportGainsUseMarketValues(t *testing.T) {
	t.Parallel()

	start, end := testSnapshots(t)
	details := map[ItemID]ItemDetail{
		// slow value floor(0.85*120) = 102 beats the vendor
		"A": {ID: "A", VendorValue: 10, HighestBuy: offer(100), LowestSell: offer(120)},
		"B": {ID: "B", VendorValue: 20},
	}

	r, err := NewReport(start, end, details)
	require.NoError(t, err)
	require.Equal(t, int64(3*102+2*20), r.ItemGain())
}

func TestNewReportRejectsMissingDetails(t *testing.T) {
	t.Parallel()

	start, end := testSnapshots(t)
	details := map[ItemID]ItemDetail{
		"A": {ID: "A", VendorValue: 10},
		// B missing on purpose
	}

	_, err := NewReport(start, end, details)
	require.ErrorIs(t, err, ErrReportIntegrity)
	require.Contains(t, err.Error(), "B")
}

func TestReportLostItems(t *testing.T) {
	t.Parallel()

	// consuming items counts as a negative gain
	start := Snapshot{
		Key:       "key-1",
		Inventory: NewInventory(map[ItemID]int64{"A": 10}),
		TakenAt:   time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC),
	}
	end := Snapshot{
		Key:       "key-1",
		Inventory: NewInventory(map[ItemID]int64{"A": 4}),
		TakenAt:   time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC),
	}

	r, err := NewReport(start, end, map[ItemID]ItemDetail{"A": {ID: "A", VendorValue: 10}})
	require.NoError(t, err)
	require.Equal(t, int64(-60), r.ItemGain())
	require.Equal(t, int64(0), r.CoinGain())
	require.Equal(t, int64(-60), r.TotalGain())
}

func TestSnapshotJSONRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewSnapshot("key-1",
		NewInventory(map[ItemID]int64{"19721": 250}),
		NewInventory(map[ItemID]int64{CoinID: 12345}))
	s.Label = "before farming"

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got Snapshot
	require.NoError(t, json.Unmarshal(data, &got))
	require.True(t, got.Equal(s))
}

func TestReportJSONRoundTrip(t *testing.T) {
	t.Parallel()

	start, end := testSnapshots(t)
	details := map[ItemID]ItemDetail{
		"A": {ID: "A", Name: "Copper Ore", VendorValue: 10, HighestBuy: offer(100), LowestSell: offer(120)},
		"B": {ID: "B", Name: "Iron Ingot", VendorValue: 20},
	}
	r, err := NewReport(start, end, details)
	require.NoError(t, err)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	require.True(t, got.Equal(r))
	require.Equal(t, r.TotalGain(), got.TotalGain())
}

func TestItemDetailIconPathStaysLocal(t *testing.T) {
	t.Parallel()

	d := ItemDetail{ID: "A", Name: "Copper Ore", VendorValue: 10, IconPath: "/cache/A.png"}
	data, err := json.Marshal(d)
	require.NoError(t, err)
	require.NotContains(t, string(data), "cache")

	var got ItemDetail
	require.NoError(t, json.Unmarshal(data, &got))
	require.Empty(t, got.IconPath)
}
