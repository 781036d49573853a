package control

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/krashnark/gw2gains/internal/guest"
	"github.com/krashnark/gw2gains/internal/gw2"
	"github.com/krashnark/gw2gains/internal/model"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeClient struct {
	mu          sync.Mutex
	validateErr error
	snapshots   []model.Snapshot
	snapErr     error
	snapCalls   int
	catalog     map[model.ItemID]gw2.CatalogEntry
	catalogErr  error
	prices      map[model.ItemID]gw2.Price
	pricesErr   error
}

func (c *fakeClient) ValidateKey(_ context.Context, _ model.APIKey) (gw2.Permissions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.validateErr != nil {
		return gw2.Permissions{}, c.validateErr
	}
	return gw2.Permissions{Wallet: true, Inventories: true, Characters: true}, nil
}

func (c *fakeClient) FetchSnapshot(_ context.Context, _ model.APIKey) (model.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapCalls++
	if c.snapErr != nil {
		return model.Snapshot{}, c.snapErr
	}
	if len(c.snapshots) == 0 {
		return model.Snapshot{}, fmt.Errorf("no snapshot configured")
	}
	snap := c.snapshots[0]
	if len(c.snapshots) > 1 {
		c.snapshots = c.snapshots[1:]
	}
	return snap, nil
}

func (c *fakeClient) FetchItemCatalog(_ context.Context, _ []model.ItemID) (map[model.ItemID]gw2.CatalogEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog, c.catalogErr
}

func (c *fakeClient) FetchItemPrices(_ context.Context, _ []model.ItemID) (map[model.ItemID]gw2.Price, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prices, c.pricesErr
}

func (c *fakeClient) snapshotCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapCalls
}

type fakeView struct {
	mu      sync.Mutex
	working []string
	success []string
	errs    []string
	states  []model.State
	reports []model.Report
	enabled int
}

func (v *fakeView) ShowWorking(text string) { v.mu.Lock(); defer v.mu.Unlock(); v.working = append(v.working, text) }
func (v *fakeView) ShowSuccess(text string) { v.mu.Lock(); defer v.mu.Unlock(); v.success = append(v.success, text) }
func (v *fakeView) ShowError(text string)   { v.mu.Lock(); defer v.mu.Unlock(); v.errs = append(v.errs, text) }
func (v *fakeView) ShowReport(r model.Report) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reports = append(v.reports, r)
}
func (v *fakeView) StateChanged(s model.State, _ model.APIKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states = append(v.states, s)
}
func (v *fakeView) EnableKeyInput() { v.mu.Lock(); defer v.mu.Unlock(); v.enabled++ }

func (v *fakeView) hasSuccess(substr string) bool { return contains(v, &v.success, substr) }
func (v *fakeView) hasError(substr string) bool   { return contains(v, &v.errs, substr) }

func contains(v *fakeView, msgs *[]string, substr string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range *msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func (v *fakeView) lastState() (model.State, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.states) == 0 {
		return 0, false
	}
	return v.states[len(v.states)-1], true
}

func (v *fakeView) reportCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.reports)
}

func (v *fakeView) lastReport(t *testing.T) model.Report {
	t.Helper()
	v.mu.Lock()
	defer v.mu.Unlock()
	require.NotEmpty(t, v.reports)
	return v.reports[len(v.reports)-1]
}

func (v *fakeView) inputEnables() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.enabled
}

type fakeIcons struct {
	mu      sync.Mutex
	ensured []map[model.ItemID]string
	paths   map[model.ItemID]string
	err     error
}

func newFakeIcons() *fakeIcons {
	return &fakeIcons{paths: make(map[model.ItemID]string)}
}

func (f *fakeIcons) Ensure(_ context.Context, urls map[model.ItemID]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, urls)
	if f.err != nil {
		return f.err
	}
	for id, u := range urls {
		if u != "" {
			f.paths[id] = "/icons/" + string(id) + ".png"
		}
	}
	return nil
}

func (f *fakeIcons) Lookup(id model.ItemID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path, ok := f.paths[id]
	return path, ok
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	t      *testing.T
	model  *model.Model
	client *fakeClient
	view   *fakeView
	icons  *fakeIcons
	ctrl   *Controller
	done   chan error
	once   sync.Once
}

// start attaches a controller over m to a headless run loop pumping on
// its own goroutine.
func start(t *testing.T, m *model.Model, client *fakeClient) *fixture {
	t.Helper()
	fx := &fixture{
		t:      t,
		model:  m,
		client: client,
		view:   &fakeView{},
		icons:  newFakeIcons(),
		done:   make(chan error, 1),
	}
	sched := guest.New(zerolog.Nop())
	fx.ctrl = New(sched, client, fx.icons, fx.view, m, zerolog.Nop())
	loop := guest.NewLoop()
	go func() { fx.done <- loop.Run() }()
	require.NoError(t, fx.ctrl.Attach(loop))
	// Spawn is only legal once the host has pumped the attach handshake;
	// wait for it so intents issued right after start are not dropped.
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		return sched.OnHost(ctx, func() {}) == nil
	}, time.Second, 2*time.Millisecond, "handshake never completed")
	t.Cleanup(fx.stop)
	return fx
}

// stop shuts the run down and waits for every task to drain, making
// model state and the state file safe to inspect.
func (fx *fixture) stop() {
	fx.once.Do(func() {
		fx.ctrl.Shutdown()
		select {
		case err := <-fx.done:
			require.NoError(fx.t, err)
		case <-time.After(5 * time.Second):
			fx.t.Error("run loop did not stop")
		}
	})
}

func (fx *fixture) waitFor(cond func() bool) {
	fx.t.Helper()
	require.Eventually(fx.t, cond, 2*time.Second, 5*time.Millisecond)
}

func statePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "state.json")
}

func snapshotOf(key model.APIKey, inv, wallet map[model.ItemID]int64) model.Snapshot {
	return model.NewSnapshot(key, model.NewInventory(inv), model.NewInventory(wallet))
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAttachAnnouncesRestoredState(t *testing.T) {
	t.Parallel()
	m := model.New(statePath(t))
	m.SetKey("key-A")
	start0 := snapshotOf("key-A", map[model.ItemID]int64{"1": 5}, map[model.ItemID]int64{"1": 100})
	end0 := snapshotOf("key-A", map[model.ItemID]int64{"1": 6}, map[model.ItemID]int64{"1": 150})
	_, err := m.SetStartSnapshot(start0)
	require.NoError(t, err)
	_, err = m.SetEndSnapshot(end0)
	require.NoError(t, err)
	report, err := model.NewReport(start0, end0, map[model.ItemID]model.ItemDetail{
		"1": {ID: "1", Name: "Iron Ore", VendorValue: 10},
	})
	require.NoError(t, err)
	_, err = m.SetReport(report)
	require.NoError(t, err)

	fx := start(t, m, &fakeClient{})

	fx.waitFor(func() bool { return fx.view.reportCount() == 1 })
	st, ok := fx.view.lastState()
	require.True(t, ok)
	require.Equal(t, model.ReportSet, st)
	require.True(t, fx.view.lastReport(t).Equal(report))
	fx.waitFor(func() bool { return fx.view.inputEnables() == 1 })
}

func TestUseKeyValidatesAndPersists(t *testing.T) {
	t.Parallel()
	path := statePath(t)
	fx := start(t, model.New(path), &fakeClient{})

	fx.ctrl.UseKey("key-A")
	fx.waitFor(func() bool { return fx.view.hasSuccess("Key validated") })
	fx.stop()

	require.Equal(t, model.KeySet, fx.model.State())
	require.Equal(t, model.APIKey("key-A"), fx.model.Key())
	st, _ := fx.view.lastState()
	require.Equal(t, model.KeySet, st)
	require.GreaterOrEqual(t, fx.view.inputEnables(), 2) // announce + re-enable

	loaded, err := model.Load(path)
	require.NoError(t, err)
	require.Equal(t, model.KeySet, loaded.State())
	require.Equal(t, model.APIKey("key-A"), loaded.Key())
}

func TestUseKeyRejectedLeavesStateAlone(t *testing.T) {
	t.Parallel()
	client := &fakeClient{validateErr: fmt.Errorf("%w: get /tokeninfo: status 401", gw2.ErrInvalidKey)}
	fx := start(t, model.New(statePath(t)), client)

	fx.ctrl.UseKey("bad-key")
	fx.waitFor(func() bool { return fx.view.hasError("rejected this key") })
	fx.stop()

	require.Equal(t, model.Started, fx.model.State())
	require.Empty(t, fx.model.Key())
	require.GreaterOrEqual(t, fx.view.inputEnables(), 2)
}

func TestUseKeyMissingPermissionsNamed(t *testing.T) {
	t.Parallel()
	client := &fakeClient{validateErr: &gw2.PermissionError{Missing: []string{"wallet", "characters"}}}
	fx := start(t, model.New(statePath(t)), client)

	fx.ctrl.UseKey("limited-key")
	fx.waitFor(func() bool { return fx.view.hasError("wallet") && fx.view.hasError("characters") })
	fx.stop()

	require.Equal(t, model.Started, fx.model.State())
}

func TestUseKeyDifferentKeyDiscardsProgress(t *testing.T) {
	t.Parallel()
	m := model.New(statePath(t))
	m.SetKey("key-A")
	_, err := m.SetStartSnapshot(snapshotOf("key-A", map[model.ItemID]int64{"1": 5}, nil))
	require.NoError(t, err)

	fx := start(t, m, &fakeClient{})
	fx.ctrl.UseKey("key-B")
	fx.waitFor(func() bool { return fx.view.hasSuccess("Key validated") })
	fx.stop()

	require.Equal(t, model.KeySet, fx.model.State())
	require.Equal(t, model.APIKey("key-B"), fx.model.Key())
	_, ok := fx.model.StartSnapshot()
	require.False(t, ok)
}

func TestCaptureStartStoresSnapshot(t *testing.T) {
	t.Parallel()
	path := statePath(t)
	m := model.New(path)
	m.SetKey("key-A")
	snap := snapshotOf("key-A", map[model.ItemID]int64{"1": 5, "2": 1}, map[model.ItemID]int64{"1": 1000})
	client := &fakeClient{snapshots: []model.Snapshot{snap}}

	fx := start(t, m, client)
	fx.ctrl.CaptureStart()
	fx.waitFor(func() bool { return fx.view.hasSuccess("Start snapshot captured") })
	fx.stop()

	require.Equal(t, model.StartSnapshotSet, fx.model.State())
	got, ok := fx.model.StartSnapshot()
	require.True(t, ok)
	require.True(t, got.Equal(snap))

	loaded, err := model.Load(path)
	require.NoError(t, err)
	require.Equal(t, model.StartSnapshotSet, loaded.State())
}

func TestCaptureStartWithoutKeyRefused(t *testing.T) {
	t.Parallel()
	client := &fakeClient{}
	fx := start(t, model.New(statePath(t)), client)

	fx.ctrl.CaptureStart()
	fx.waitFor(func() bool { return fx.view.hasError("Set an API key") })
	fx.stop()

	require.Equal(t, model.Started, fx.model.State())
	require.Zero(t, client.snapshotCalls())
}

func TestComputeGainsBuildsReport(t *testing.T) {
	t.Parallel()
	path := statePath(t)
	m := model.New(path)
	m.SetKey("key-A")
	startSnap := snapshotOf("key-A", map[model.ItemID]int64{"1": 5}, map[model.ItemID]int64{"1": 1000})
	_, err := m.SetStartSnapshot(startSnap)
	require.NoError(t, err)

	endSnap := snapshotOf("key-A", map[model.ItemID]int64{"1": 8, "2": 2}, map[model.ItemID]int64{"1": 1500})
	buy, sell := int64(100), int64(120)
	client := &fakeClient{
		snapshots: []model.Snapshot{endSnap},
		catalog: map[model.ItemID]gw2.CatalogEntry{
			"1": {Name: "Iron Ore", VendorValue: 10, IconURL: "http://icons.test/1.png"},
			"2": {Name: "Mithril Sword", VendorValue: 25, IconURL: "http://icons.test/2.png"},
		},
		prices: map[model.ItemID]gw2.Price{
			"2": {HighestBuy: &buy, LowestSell: &sell},
		},
	}

	fx := start(t, m, client)
	fx.ctrl.ComputeGains()
	fx.waitFor(func() bool { return fx.view.reportCount() == 1 })
	fx.stop()

	report := fx.view.lastReport(t)
	// 3 × Iron Ore at vendor 10, 2 × Mithril Sword at floor(0.85 × 120) = 102
	require.Equal(t, int64(30+204), report.ItemGain())
	require.Equal(t, int64(500), report.CoinGain())
	require.Equal(t, int64(734), report.TotalGain())
	require.Equal(t, "/icons/2.png", report.ItemDetails["2"].IconPath)

	require.Equal(t, model.ReportSet, fx.model.State())
	loaded, err := model.Load(path)
	require.NoError(t, err)
	require.Equal(t, model.ReportSet, loaded.State())

	// both changed items had their icons ensured
	require.Len(t, fx.icons.ensured, 1)
	require.Equal(t, map[model.ItemID]string{
		"1": "http://icons.test/1.png",
		"2": "http://icons.test/2.png",
	}, fx.icons.ensured[0])
}

func TestComputeGainsWithoutStartRefused(t *testing.T) {
	t.Parallel()
	m := model.New(statePath(t))
	m.SetKey("key-A")
	client := &fakeClient{}

	fx := start(t, m, client)
	fx.ctrl.ComputeGains()
	fx.waitFor(func() bool { return fx.view.hasError("start snapshot") })
	fx.stop()

	require.Equal(t, model.KeySet, fx.model.State())
	require.Zero(t, client.snapshotCalls())
}

func TestComputeGainsRemoteFailureKeepsState(t *testing.T) {
	t.Parallel()
	m := model.New(statePath(t))
	m.SetKey("key-A")
	_, err := m.SetStartSnapshot(snapshotOf("key-A", map[model.ItemID]int64{"1": 5}, nil))
	require.NoError(t, err)
	client := &fakeClient{snapErr: &gw2.RemoteError{Endpoint: "/account/inventory", Status: 503}}

	fx := start(t, m, client)
	fx.ctrl.ComputeGains()
	fx.waitFor(func() bool { return fx.view.hasError("could not be reached") })
	fx.stop()

	require.Equal(t, model.StartSnapshotSet, fx.model.State())
	require.Zero(t, fx.view.reportCount())
}

func TestComputeGainsMissingCatalogEntryAborts(t *testing.T) {
	t.Parallel()
	m := model.New(statePath(t))
	m.SetKey("key-A")
	startSnap := snapshotOf("key-A", map[model.ItemID]int64{"1": 5}, nil)
	_, err := m.SetStartSnapshot(startSnap)
	require.NoError(t, err)

	endSnap := snapshotOf("key-A", map[model.ItemID]int64{"1": 5, "2": 2}, nil)
	client := &fakeClient{
		snapshots: []model.Snapshot{endSnap},
		catalog:   map[model.ItemID]gw2.CatalogEntry{}, // id 2 unknown to the API
		prices:    map[model.ItemID]gw2.Price{},
	}

	fx := start(t, m, client)
	fx.ctrl.ComputeGains()
	fx.waitFor(func() bool { return fx.view.hasError("Gain computation failed") })
	fx.stop()

	// the end snapshot transition stood; the report never landed
	require.Equal(t, model.EndSnapshotSet, fx.model.State())
	require.Zero(t, fx.view.reportCount())
	_, ok := fx.model.Report()
	require.False(t, ok)
}

func TestIntentBeforeAttachDropped(t *testing.T) {
	t.Parallel()
	sched := guest.New(zerolog.Nop())
	view := &fakeView{}
	c := New(sched, &fakeClient{}, newFakeIcons(), view, model.New(statePath(t)), zerolog.Nop())

	c.UseKey("key-A") // never attached; must not panic
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, view.inputEnables())
}
