// Package gw2 is a typed client for the Guild Wars 2 v2 HTTP API,
// covering the endpoints the tracker needs: token introspection, the
// account-wide inventories and wallet, per-character bags, the item
// catalog and current trading post prices.
package gw2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/krashnark/gw2gains/internal/guest"
	"github.com/krashnark/gw2gains/internal/model"
)

// DefaultBaseURL is the official API endpoint.
const DefaultBaseURL = "https://api.guildwars2.com/v2"

// flagNoSell marks catalog items that vendors refuse to buy.
const flagNoSell = "NoSell"

// Permissions are the access scopes of an API key that the tracker
// cares about. All three are required to capture a snapshot.
type Permissions struct {
	Wallet      bool
	Inventories bool
	Characters  bool
}

// MissingScopes lists the required scopes the key does not grant.
func (p Permissions) MissingScopes() []string {
	var missing []string
	if !p.Wallet {
		missing = append(missing, "wallet")
	}
	if !p.Inventories {
		missing = append(missing, "inventories")
	}
	if !p.Characters {
		missing = append(missing, "characters")
	}
	return missing
}

// CatalogEntry is the item catalog data kept per item id.
type CatalogEntry struct {
	Name        string
	VendorValue int64
	IconURL     string
}

// Price holds the current trading post offers for one item. A nil
// field means the trading post holds no such offer.
type Price struct {
	HighestBuy *int64
	LowestSell *int64
}

// Client calls the GW2 API over a shared HTTP client. The transport's
// default pooling services the snapshot fan-out (character count + 3
// concurrent requests).
type Client struct {
	base string
	http *http.Client
	log  zerolog.Logger
}

// NewClient returns a client rooted at baseURL. A nil httpClient uses
// http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		base: strings.TrimSuffix(baseURL, "/"),
		http: httpClient,
		log:  log,
	}
}

// tokenInfo is the wire form of /tokeninfo.
type tokenInfo struct {
	Permissions []string `json:"permissions"`
}

// ValidateKey checks that key is accepted by the API and grants every
// scope the tracker needs. A key the remote rejects, or an API that
// cannot be reached at all, reports ErrInvalidKey; a valid key lacking
// scopes reports a *PermissionError naming them.
func (c *Client) ValidateKey(ctx context.Context, key model.APIKey) (Permissions, error) {
	var info tokenInfo
	if err := c.getJSON(ctx, "/tokeninfo", key, nil, &info); err != nil {
		return Permissions{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	var perms Permissions
	for _, p := range info.Permissions {
		switch p {
		case "wallet":
			perms.Wallet = true
		case "inventories":
			perms.Inventories = true
		case "characters":
			perms.Characters = true
		}
	}
	if missing := perms.MissingScopes(); len(missing) > 0 {
		return perms, &PermissionError{Missing: missing}
	}
	return perms, nil
}

// FetchSnapshot captures everything the account holds right now: the
// shared inventory, bank, material storage and every character's bags
// summed into one inventory, plus the wallet. All sources are fetched
// concurrently.
func (c *Client) FetchSnapshot(ctx context.Context, key model.APIKey) (model.Snapshot, error) {
	parts, err := guest.Gather(ctx,
		func(ctx context.Context) (model.Inventory, error) { return c.fetchAggregatedInventory(ctx, key) },
		func(ctx context.Context) (model.Inventory, error) { return c.fetchWallet(ctx, key) },
	)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap := model.NewSnapshot(key, parts[0], parts[1])
	c.log.Debug().
		Int("items", snap.Inventory.Len()).
		Int("currencies", snap.Wallet.Len()).
		Msg("snapshot fetched")
	return snap, nil
}

func (c *Client) fetchAggregatedInventory(ctx context.Context, key model.APIKey) (model.Inventory, error) {
	parts, err := guest.Gather(ctx,
		func(ctx context.Context) (model.Inventory, error) { return c.fetchSlots(ctx, "/account/inventory", key) },
		func(ctx context.Context) (model.Inventory, error) { return c.fetchSlots(ctx, "/account/bank", key) },
		func(ctx context.Context) (model.Inventory, error) { return c.fetchSlots(ctx, "/account/materials", key) },
		func(ctx context.Context) (model.Inventory, error) { return c.fetchCharacterInventories(ctx, key) },
	)
	if err != nil {
		return model.Inventory{}, err
	}
	total := model.Inventory{}
	for _, inv := range parts {
		total = total.Add(inv)
	}
	return total, nil
}

func (c *Client) fetchWallet(ctx context.Context, key model.APIKey) (model.Inventory, error) {
	return c.fetchSlots(ctx, "/account/wallet", key)
}

// fetchSlots reads any endpoint returning a flat list of slots
// (account inventory, bank, materials, wallet).
func (c *Client) fetchSlots(ctx context.Context, endpoint string, key model.APIKey) (model.Inventory, error) {
	var slots []*slot
	if err := c.getJSON(ctx, endpoint, key, nil, &slots); err != nil {
		return model.Inventory{}, err
	}
	inv, err := slotsInventory(slots)
	if err != nil {
		return model.Inventory{}, &RemoteError{Endpoint: endpoint, Cause: err}
	}
	return inv, nil
}

func (c *Client) fetchCharacterInventories(ctx context.Context, key model.APIKey) (model.Inventory, error) {
	var names []string
	if err := c.getJSON(ctx, "/characters", key, nil, &names); err != nil {
		return model.Inventory{}, err
	}
	fns := make([]func(context.Context) (model.Inventory, error), len(names))
	for i, name := range names {
		fns[i] = func(ctx context.Context) (model.Inventory, error) {
			return c.fetchCharacterInventory(ctx, key, name)
		}
	}
	parts, err := guest.Gather(ctx, fns...)
	if err != nil {
		return model.Inventory{}, err
	}
	total := model.Inventory{}
	for _, inv := range parts {
		total = total.Add(inv)
	}
	return total, nil
}

func (c *Client) fetchCharacterInventory(ctx context.Context, key model.APIKey, name string) (model.Inventory, error) {
	endpoint := "/characters/" + url.PathEscape(name) + "/inventory"
	// empty bag slots and whole missing bags come through as null
	var payload struct {
		Bags []*struct {
			Inventory []*slot `json:"inventory"`
		} `json:"bags"`
	}
	if err := c.getJSON(ctx, endpoint, key, nil, &payload); err != nil {
		return model.Inventory{}, err
	}
	counts := make(map[model.ItemID]int64)
	for _, bag := range payload.Bags {
		if bag == nil {
			continue
		}
		for _, s := range bag.Inventory {
			if s == nil {
				continue
			}
			n, err := s.amount()
			if err != nil {
				return model.Inventory{}, &RemoteError{Endpoint: endpoint, Cause: err}
			}
			counts[s.itemID()] += n
		}
	}
	return model.NewInventory(counts), nil
}

// FetchItemCatalog looks up name, vendor value and icon for the given
// ids. Items the API no longer knows are absent from the result. Items
// flagged NoSell carry a vendor value of 0.
func (c *Client) FetchItemCatalog(ctx context.Context, ids []model.ItemID) (map[model.ItemID]CatalogEntry, error) {
	if len(ids) == 0 {
		return map[model.ItemID]CatalogEntry{}, nil
	}
	var rows []struct {
		ID          int64    `json:"id"`
		Name        string   `json:"name"`
		Icon        string   `json:"icon"`
		VendorValue int64    `json:"vendor_value"`
		Flags       []string `json:"flags"`
	}
	if err := c.getJSON(ctx, "/items", "", idsQuery(ids), &rows); err != nil {
		return nil, err
	}
	catalog := make(map[model.ItemID]CatalogEntry, len(rows))
	for _, row := range rows {
		entry := CatalogEntry{
			Name:        row.Name,
			VendorValue: row.VendorValue,
			IconURL:     row.Icon,
		}
		for _, f := range row.Flags {
			if f == flagNoSell {
				entry.VendorValue = 0
				break
			}
		}
		catalog[model.ItemID(strconv.FormatInt(row.ID, 10))] = entry
	}
	return catalog, nil
}

// FetchItemPrices looks up the highest buy and lowest sell offers for
// the given ids. Ids the trading post does not list are absent from the
// result; a zero unit price decodes as no offer.
func (c *Client) FetchItemPrices(ctx context.Context, ids []model.ItemID) (map[model.ItemID]Price, error) {
	if len(ids) == 0 {
		return map[model.ItemID]Price{}, nil
	}
	type listing struct {
		UnitPrice int64 `json:"unit_price"`
	}
	var rows []struct {
		ID    int64    `json:"id"`
		Buys  *listing `json:"buys"`
		Sells *listing `json:"sells"`
	}
	if err := c.getJSON(ctx, "/commerce/prices", "", idsQuery(ids), &rows); err != nil {
		return nil, err
	}
	prices := make(map[model.ItemID]Price, len(rows))
	for _, row := range rows {
		var p Price
		if row.Buys != nil && row.Buys.UnitPrice > 0 {
			v := row.Buys.UnitPrice
			p.HighestBuy = &v
		}
		if row.Sells != nil && row.Sells.UnitPrice > 0 {
			v := row.Sells.UnitPrice
			p.LowestSell = &v
		}
		prices[model.ItemID(strconv.FormatInt(row.ID, 10))] = p
	}
	return prices, nil
}

// DownloadIcons streams a URL to each destination path, all
// concurrently. files maps destination path to source URL; the first
// failure cancels the remaining downloads.
func (c *Client) DownloadIcons(ctx context.Context, files map[string]string) error {
	if len(files) == 0 {
		return nil
	}
	fns := make([]func(context.Context) (struct{}, error), 0, len(files))
	for path, rawURL := range files {
		fns = append(fns, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.downloadFile(ctx, rawURL, path)
		})
	}
	_, err := guest.Gather(ctx, fns...)
	return err
}

func (c *Client) downloadFile(ctx context.Context, rawURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &RemoteError{Endpoint: rawURL, Cause: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &RemoteError{Endpoint: rawURL, Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &RemoteError{Endpoint: rawURL, Status: resp.StatusCode}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	c.log.Debug().Str("url", rawURL).Str("path", path).Msg("icon downloaded")
	return nil
}

// getJSON performs one authenticated GET and decodes the JSON body.
// The API answers range queries with 206, which is as good as 200.
func (c *Client) getJSON(ctx context.Context, endpoint string, key model.APIKey, query url.Values, out any) error {
	u := c.base + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &RemoteError{Endpoint: endpoint, Cause: err}
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+string(key))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &RemoteError{Endpoint: endpoint, Cause: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return &RemoteError{Endpoint: endpoint, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Endpoint: endpoint, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// slot is one wire-format position in an inventory, bank, material
// storage or wallet listing. Which amount field is present depends on
// the endpoint.
type slot struct {
	ID      int64  `json:"id"`
	Charges *int64 `json:"charges"`
	Count   *int64 `json:"count"`
	Value   *int64 `json:"value"`
}

func (s slot) itemID() model.ItemID {
	return model.ItemID(strconv.FormatInt(s.ID, 10))
}

// amount prefers charges over count over value, matching how the API
// reports consumables, stacks and currencies.
func (s slot) amount() (int64, error) {
	switch {
	case s.Charges != nil:
		return *s.Charges, nil
	case s.Count != nil:
		return *s.Count, nil
	case s.Value != nil:
		return *s.Value, nil
	}
	return 0, fmt.Errorf("slot for item %d has no amount", s.ID)
}

// slotsInventory folds a slot listing into an Inventory, skipping the
// null entries the API uses for empty positions.
func slotsInventory(slots []*slot) (model.Inventory, error) {
	counts := make(map[model.ItemID]int64, len(slots))
	for _, s := range slots {
		if s == nil {
			continue
		}
		n, err := s.amount()
		if err != nil {
			return model.Inventory{}, err
		}
		counts[s.itemID()] += n
	}
	return model.NewInventory(counts), nil
}

func idsQuery(ids []model.ItemID) url.Values {
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = string(id)
	}
	return url.Values{"ids": {strings.Join(ss, ",")}}
}
