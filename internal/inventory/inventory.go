// Package inventory persists the ephemeral inventory attributes announced on
// the ASSETS stream. A local cache of the last written values keeps
// unchanged attributes from reaching the database.
package inventory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"

	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/bus"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/ftyproto"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/internal/repository"
	appErr "github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/errors"
	"github.com/FrancoisRegisDegott-eaton/fty-asset/pkg/logger"
)

// DefaultTTL is the lifetime of a cached value.
const DefaultTTL = 24 * time.Hour

// NewCache builds the value cache. Entries older than ttl are written again.
// The cleanup goroutine stops with ctx.
func NewCache(ctx context.Context, ttl time.Duration) (*bigcache.BigCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 64
	cfg.HardMaxCacheSize = 64
	c, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "failed to initialize inventory cache")
	}
	return c, nil
}

type Inventory struct {
	repo  repository.AssetRepository
	cache *bigcache.BigCache
	log   *zap.Logger
}

func New(repo repository.AssetRepository, cache *bigcache.BigCache) *Inventory {
	return &Inventory{repo: repo, cache: cache, log: logger.Named("inventory")}
}

func cacheKey(iname, keytag string) string { return iname + ":" + keytag }

// Run consumes the ASSETS stream until ctx is done.
func (i *Inventory) Run(ctx context.Context, stream <-chan *bus.Message) error {
	i.log.Info("inventory started")
	for {
		select {
		case <-ctx.Done():
			i.log.Info("inventory stopped")
			return nil
		case m, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("inventory: assets stream closed")
			}
			i.Handle(ctx, m)
		}
	}
}

// Handle applies one stream entry: inventory announcements are written,
// deletions evict the cached values of the asset.
func (i *Inventory) Handle(ctx context.Context, m *bus.Message) {
	if m.Len() == 0 || !ftyproto.IsFtyProto(m.Frames[0]) {
		return
	}
	msg, err := ftyproto.Decode(m.Frames[0])
	if err != nil || msg.ID != ftyproto.AssetID {
		return
	}
	switch msg.Operation {
	case ftyproto.OpInventory:
		if err := i.Update(ctx, msg.Name, msg.Ext); err != nil {
			i.log.Error("inventory not stored", zap.String("asset", msg.Name), zap.Error(err))
		}
	case ftyproto.OpDelete, ftyproto.OpRetire:
		n := i.Evict(msg.Name)
		i.log.Debug("inventory evicted", zap.String("asset", msg.Name), zap.Int("entries", n))
	}
}

// Update writes the attributes of ext whose value differs from the cache,
// read-only, then caches them.
func (i *Inventory) Update(ctx context.Context, iname string, ext map[string]string) error {
	keys := make([]string, 0, len(ext))
	for k, v := range ext {
		cached, err := i.cache.Get(cacheKey(iname, k))
		if err == nil && string(cached) == v {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	e, err := i.repo.GetByName(ctx, iname)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := i.repo.UpsertExt(ctx, e.ID, k, ext[k], true); err != nil {
			return err
		}
		if err := i.cache.Set(cacheKey(iname, k), []byte(ext[k])); err != nil {
			i.log.Warn("inventory value not cached", zap.String("key", cacheKey(iname, k)), zap.Error(err))
		}
	}
	i.log.Debug("inventory stored", zap.String("asset", iname), zap.Strings("keys", keys))
	return nil
}

// Evict drops every cached value of iname and returns how many were dropped.
func (i *Inventory) Evict(iname string) int {
	prefix := iname + ":"
	var keys []string
	it := i.cache.Iterator()
	for it.SetNext() {
		entry, err := it.Value()
		if err != nil {
			continue
		}
		// the iterator reuses its buffers
		if key := strings.Clone(entry.Key()); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	n := 0
	for _, k := range keys {
		switch err := i.cache.Delete(k); {
		case err == nil:
			n++
		case errors.Is(err, bigcache.ErrEntryNotFound):
		default:
			i.log.Warn("inventory value not evicted", zap.String("key", k), zap.Error(err))
		}
	}
	return n
}
