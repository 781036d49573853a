// Package cache keeps item icons on local disk so reports can point at
// them without refetching. Icons live as <item-id>.png files under a
// single directory; the directory itself is the durable index and is
// rescanned on open.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/krashnark/gw2gains/internal/model"
)

// Downloader fetches remote files. files maps destination path to
// source URL.
type Downloader interface {
	DownloadIcons(ctx context.Context, files map[string]string) error
}

// Cache maps item ids to locally stored icon files. Safe for
// concurrent use: Ensure runs inside tasks while lookups happen on the
// host loop.
type Cache struct {
	dir string
	dl  Downloader
	log zerolog.Logger

	mu    sync.Mutex
	paths map[model.ItemID]string
}

// Open creates dir if needed and indexes the icons already in it.
func Open(dir string, dl Downloader, log zerolog.Logger) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan cache dir: %w", err)
	}
	paths := make(map[model.ItemID]string, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := strings.CutSuffix(e.Name(), ".png")
		if !ok {
			continue
		}
		paths[model.ItemID(id)] = filepath.Join(dir, e.Name())
	}
	log.Debug().Str("dir", dir).Int("icons", len(paths)).Msg("icon cache opened")
	return &Cache{dir: dir, dl: dl, log: log, paths: paths}, nil
}

// Lookup returns the local path of the icon for id.
func (c *Cache) Lookup(id model.ItemID) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	path, ok := c.paths[id]
	return path, ok
}

// Ensure makes the icons for all given ids available locally. urls maps
// item id to remote icon URL; ids already cached or without a URL are
// skipped and the rest download concurrently. On error nothing is
// registered, so a retry redoes the whole missing set.
func (c *Cache) Ensure(ctx context.Context, urls map[model.ItemID]string) error {
	files := make(map[string]string, len(urls))
	fetched := make(map[model.ItemID]string, len(urls))
	c.mu.Lock()
	for id, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := c.paths[id]; ok {
			continue
		}
		path := filepath.Join(c.dir, string(id)+".png")
		files[path] = u
		fetched[id] = path
	}
	c.mu.Unlock()

	if len(files) == 0 {
		return nil
	}
	if err := c.dl.DownloadIcons(ctx, files); err != nil {
		return fmt.Errorf("download icons: %w", err)
	}

	c.mu.Lock()
	for id, path := range fetched {
		c.paths[id] = path
	}
	c.mu.Unlock()
	c.log.Debug().Int("downloaded", len(fetched)).Msg("icons fetched")
	return nil
}
