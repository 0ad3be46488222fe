package datasets

import (
	"context"
	"fmt"
	"time"

	"github.com/karlseguin/ccache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// LoadFunc loads one dataset by id.
type LoadFunc func(ctx context.Context, id string, sampleLimit int) (*Dataset, error)

// Cache memoizes loaded datasets by id and sample limit. Concurrent requests
// for the same key share one load; failed loads are not kept.
type Cache struct {
	Datasets    *ccache.Cache
	ExpiredTime time.Duration

	load  LoadFunc
	group singleflight.Group
}

func NewCache(load LoadFunc, maxSize int64, expiredTime time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if expiredTime <= 0 {
		expiredTime = time.Hour
	}
	return &Cache{
		Datasets:    ccache.New(ccache.Configure().MaxSize(maxSize).ItemsToPrune(uint32(maxSize/10 + 1))),
		ExpiredTime: expiredTime,
		load:        load,
	}
}

// CatalogLoader loads datasets listed in c.
func CatalogLoader(c *Catalog) LoadFunc {
	return func(ctx context.Context, id string, sampleLimit int) (*Dataset, error) {
		entry, err := c.Lookup(id)
		if err != nil {
			return nil, err
		}
		return Load(ctx, entry, sampleLimit)
	}
}

func cacheKey(id string, sampleLimit int) string {
	return fmt.Sprintf("%s:%d", id, sampleLimit)
}

func (r *Cache) Get(ctx context.Context, id string, sampleLimit int) (*Dataset, error) {
	key := cacheKey(id, sampleLimit)
	cacheItem := r.Datasets.Get(key)
	if cacheItem != nil && !cacheItem.Expired() {
		return cacheItem.Value().(*Dataset), nil
	}

	v, err, shared := r.group.Do(key, func() (interface{}, error) {
		log.Debugf("load dataset %s", key)
		ds, err := r.load(ctx, id, sampleLimit)
		if err != nil {
			return nil, err
		}
		r.Datasets.Set(key, ds, r.ExpiredTime)
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debugf("dataset %s shared an in-flight load", key)
	}
	return v.(*Dataset), nil
}

// Purge drops every cached dataset.
func (r *Cache) Purge() {
	log.Info("purge dataset cache")
	r.Datasets.Clear()
}

func (r *Cache) Stop() {
	r.Datasets.Stop()
}

type LoadResult struct {
	ID      string
	Dataset *Dataset
	Err     error
}

// LoadAll loads ids concurrently. A failed dataset is reported in its result
// and does not cancel the others.
func (r *Cache) LoadAll(ctx context.Context, ids []string, sampleLimit int) []LoadResult {
	results := make([]LoadResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			ds, err := r.Get(gctx, id, sampleLimit)
			if err != nil {
				log.Warnf("load dataset %s: %v", id, err)
			}
			results[i] = LoadResult{ID: id, Dataset: ds, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
