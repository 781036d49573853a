// Package control orchestrates the tracker. The Controller turns user
// intents into scheduler tasks that call the remote API, advance the
// application state on the host loop and keep the view informed.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/krashnark/gw2gains/internal/guest"
	"github.com/krashnark/gw2gains/internal/gw2"
	"github.com/krashnark/gw2gains/internal/model"
)

// Client is the remote API surface the controller drives. All calls may
// block on the network and honor context cancellation.
type Client interface {
	ValidateKey(ctx context.Context, key model.APIKey) (gw2.Permissions, error)
	FetchSnapshot(ctx context.Context, key model.APIKey) (model.Snapshot, error)
	FetchItemCatalog(ctx context.Context, ids []model.ItemID) (map[model.ItemID]gw2.CatalogEntry, error)
	FetchItemPrices(ctx context.Context, ids []model.ItemID) (map[model.ItemID]gw2.Price, error)
}

// IconCache keeps item icons on local disk.
type IconCache interface {
	Ensure(ctx context.Context, urls map[model.ItemID]string) error
	Lookup(id model.ItemID) (string, bool)
}

// View is the user surface the controller notifies. Calls always come
// from task goroutines, never from the host loop itself, so an
// implementation may block until the loop picks the notification up.
type View interface {
	ShowWorking(text string)
	ShowSuccess(text string)
	ShowError(text string)
	StateChanged(state model.State, key model.APIKey)
	ShowReport(r model.Report)
	EnableKeyInput()
}

// Controller owns the Model and runs one scheduler task per user
// intent. Intents are safe to call from any goroutine and return
// immediately; outcomes arrive through the View.
type Controller struct {
	sched  *guest.Scheduler
	client Client
	icons  IconCache
	view   View
	model  *model.Model
	log    zerolog.Logger
}

func New(sched *guest.Scheduler, client Client, icons IconCache, view View, m *model.Model, log zerolog.Logger) *Controller {
	return &Controller{
		sched:  sched,
		client: client,
		icons:  icons,
		view:   view,
		model:  m,
		log:    log,
	}
}

// Attach begins the guest run inside host and announces the restored
// state to the view. The announcement task is spawned from a host
// callback queued behind the attach handshake, so by the time it fires
// the scheduler accepts spawns.
func (c *Controller) Attach(host guest.Host) error {
	if err := c.sched.Attach(host); err != nil {
		return err
	}
	host.Schedule(func() { c.spawn("announce", c.announce) })
	return nil
}

// Shutdown ends the guest run; outstanding tasks are cancelled and the
// host's Finished callback fires once they drain.
func (c *Controller) Shutdown() {
	c.sched.Shutdown()
}

// announce pushes the state restored from disk to a freshly started
// view.
func (c *Controller) announce(ctx context.Context) error {
	var (
		st        model.State
		key       model.APIKey
		report    model.Report
		hasReport bool
	)
	if err := c.onHost(ctx, func() {
		st, key = c.model.State(), c.model.Key()
		report, hasReport = c.model.Report()
	}); err != nil {
		return err
	}
	c.view.StateChanged(st, key)
	if hasReport {
		c.view.ShowReport(report)
	}
	c.view.ShowSuccess(guidance(st))
	c.view.EnableKeyInput()
	return nil
}

// guidance tells the user what to do next in the given stage.
func guidance(s model.State) string {
	switch s {
	case model.Started:
		return "Paste an account API key to begin tracking."
	case model.KeySet:
		return "Key on file. Capture a start snapshot when ready."
	case model.StartSnapshotSet:
		return "Start snapshot on file. Play, then compute gains."
	case model.EndSnapshotSet:
		return "Snapshots on file. Compute gains to build the report."
	case model.ReportSet:
		return "Report restored. Compute gains again to refresh it."
	}
	return ""
}

// UseKey validates key against the remote API and makes it the tracked
// account.
func (c *Controller) UseKey(key model.APIKey) {
	c.spawn("use key", func(ctx context.Context) error {
		defer c.view.EnableKeyInput()

		c.view.ShowWorking("Validating API key...")
		if _, err := c.client.ValidateKey(ctx, key); err != nil {
			return c.fail(err, "Key validation")
		}

		var (
			saved model.Model
			st    model.State
		)
		if err := c.onHost(ctx, func() {
			saved = c.model.SetKey(key)
			st = c.model.State()
		}); err != nil {
			return err
		}
		c.view.StateChanged(st, key)
		c.saveState(saved)
		c.view.ShowSuccess("Key validated. Capture a start snapshot when ready.")
		return nil
	})
}

// CaptureStart fetches a full account snapshot and makes it the
// reference point gains are measured from.
func (c *Controller) CaptureStart() {
	c.spawn("capture start snapshot", func(ctx context.Context) error {
		var (
			key model.APIKey
			st  model.State
		)
		if err := c.onHost(ctx, func() { key, st = c.model.Key(), c.model.State() }); err != nil {
			return err
		}
		if st < model.KeySet {
			c.view.ShowError("Set an API key before capturing a snapshot.")
			return nil
		}

		c.view.ShowWorking("Capturing start snapshot...")
		snap, err := c.client.FetchSnapshot(ctx, key)
		if err != nil {
			return c.fail(err, "Snapshot capture")
		}

		saved, err := c.setOnHost(ctx, func() (model.Model, error) { return c.model.SetStartSnapshot(snap) })
		if err != nil {
			return c.fail(err, "Snapshot capture")
		}
		c.saveState(saved)
		c.view.ShowSuccess(fmt.Sprintf("Start snapshot captured: %d items, %d currencies. Play, then compute gains.",
			snap.Inventory.Len(), snap.Wallet.Len()))
		return nil
	})
}

// ComputeGains fetches a closing snapshot, prices everything that
// changed since the start snapshot and publishes the resulting report.
func (c *Controller) ComputeGains() {
	c.spawn("compute gains", func(ctx context.Context) error {
		var (
			key   model.APIKey
			start model.Snapshot
			ok    bool
		)
		if err := c.onHost(ctx, func() {
			key = c.model.Key()
			start, ok = c.model.StartSnapshot()
		}); err != nil {
			return err
		}
		if !ok {
			c.view.ShowError("Capture a start snapshot before computing gains.")
			return nil
		}

		c.view.ShowWorking("Capturing end snapshot...")
		end, err := c.client.FetchSnapshot(ctx, key)
		if err != nil {
			return c.fail(err, "Gain computation")
		}
		saved, err := c.setOnHost(ctx, func() (model.Model, error) { return c.model.SetEndSnapshot(end) })
		if err != nil {
			return c.fail(err, "Gain computation")
		}
		c.saveState(saved)

		c.view.ShowWorking("Pricing changed items...")
		invDelta, _ := model.Diff(start, end)
		details, err := c.fetchDetails(ctx, invDelta.IDs())
		if err != nil {
			return c.fail(err, "Gain computation")
		}
		report, err := model.NewReport(start, end, details)
		if err != nil {
			return c.fail(err, "Gain computation")
		}

		saved, err = c.setOnHost(ctx, func() (model.Model, error) { return c.model.SetReport(report) })
		if err != nil {
			return c.fail(err, "Gain computation")
		}
		c.saveState(saved)
		c.view.ShowReport(report)
		c.view.ShowSuccess(fmt.Sprintf("Gains computed over %d changed items.", invDelta.Len()))
		return nil
	})
}

// fetchDetails assembles the ItemDetail for every changed item:
// catalog data and prices fetched concurrently, icons ensured on disk.
func (c *Controller) fetchDetails(ctx context.Context, ids []model.ItemID) (map[model.ItemID]model.ItemDetail, error) {
	var (
		catalog map[model.ItemID]gw2.CatalogEntry
		prices  map[model.ItemID]gw2.Price
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		catalog, err = c.client.FetchItemCatalog(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		prices, err = c.client.FetchItemPrices(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	urls := make(map[model.ItemID]string, len(catalog))
	for id, entry := range catalog {
		urls[id] = entry.IconURL
	}
	if err := c.icons.Ensure(ctx, urls); err != nil {
		return nil, err
	}

	details := make(map[model.ItemID]model.ItemDetail, len(catalog))
	for id, entry := range catalog {
		d := model.ItemDetail{
			ID:          id,
			Name:        entry.Name,
			VendorValue: entry.VendorValue,
		}
		if p, ok := prices[id]; ok {
			d.HighestBuy, d.LowestSell = p.HighestBuy, p.LowestSell
		}
		if path, ok := c.icons.Lookup(id); ok {
			d.IconPath = path
		}
		details[id] = d
	}
	return details, nil
}

// spawn hands an intent to the scheduler. Before attach or after
// shutdown the intent is dropped; that is only reachable through a UI
// race and worth a log line, not a crash.
func (c *Controller) spawn(name string, task guest.Task) {
	if err := c.sched.Spawn(name, task); err != nil {
		c.log.Warn().Err(err).Str("intent", name).Msg("intent dropped")
	}
}

func (c *Controller) onHost(ctx context.Context, fn func()) error {
	return c.sched.OnHost(ctx, fn)
}

// setOnHost runs a model transition on the host loop and notifies the
// view when it succeeds, returning the transition copy for saving. The
// notification happens back on the task goroutine; the host callback
// only captures what it needs.
func (c *Controller) setOnHost(ctx context.Context, set func() (model.Model, error)) (model.Model, error) {
	var (
		saved  model.Model
		setErr error
		st     model.State
		key    model.APIKey
	)
	if err := c.onHost(ctx, func() {
		saved, setErr = set()
		if setErr == nil {
			st, key = c.model.State(), c.model.Key()
		}
	}); err != nil {
		return model.Model{}, err
	}
	if setErr != nil {
		return model.Model{}, setErr
	}
	c.view.StateChanged(st, key)
	return saved, nil
}

// saveState persists a transition copy without holding up the task that
// produced it.
func (c *Controller) saveState(saved model.Model) {
	if err := c.sched.Spawn("save state", saved.Save); err != nil {
		c.log.Error().Err(err).Msg("state save not scheduled")
	}
}

// fail converts an operation's failure into a user-visible status
// message. Expected operational errors get a tailored message;
// cancellation propagates so the task logs as cancelled, not failed.
func (c *Controller) fail(err error, what string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var perm *gw2.PermissionError
	switch {
	case errors.As(err, &perm):
		c.view.ShowError("Key lacks required permissions: " + strings.Join(perm.Missing, ", ") + ".")
	case errors.Is(err, gw2.ErrInvalidKey):
		c.view.ShowError("The API rejected this key. Check it and try again.")
	case errors.Is(err, gw2.ErrRemoteUnavailable):
		c.view.ShowError(what + " failed: the API could not be reached. Try again in a moment.")
	default:
		c.view.ShowError(what + " failed: " + err.Error())
	}
	c.log.Warn().Err(err).Str("op", what).Msg("operation failed")
	return nil
}
