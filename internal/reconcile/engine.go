// Package reconcile keeps the local authoritative store and the remote
// mirror eventually consistent. Divergence is expected, not exceptional:
// both sides accept writes independently, and this engine settles them by
// set-union for the visitor sets and last-write-wins for everything else.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/WilliamCarlos132/site4me/internal/stats"
	"github.com/WilliamCarlos132/site4me/internal/store"
)

// Engine synchronizes aggregate documents between two stores. It reads the
// local side through the raw store, not the cache, so comparisons always
// see live values; the invalidate hook evicts cache entries it overwrites.
type Engine struct {
	local      store.Store
	mirror     store.Store
	invalidate func(key string)
	timeout    time.Duration
}

// New returns an engine over the raw local store and the mirror.
// invalidate may be nil when no cache fronts the local store.
func New(local, mirror store.Store, invalidate func(string), timeout time.Duration) *Engine {
	return &Engine{
		local:      local,
		mirror:     mirror,
		invalidate: invalidate,
		timeout:    timeout,
	}
}

// PushAsync mirrors the local value of each key outward without blocking
// the caller. Failures are logged; the periodic pass will catch up.
func (e *Engine) PushAsync(keys ...string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		for _, key := range keys {
			doc, err := e.local.Get(ctx, key)
			if err != nil {
				log.Printf("mirror push: read %s failed: %v", key, err)
				continue
			}
			if err := e.mirror.Set(ctx, key, doc.Data); err != nil {
				log.Printf("mirror push: write %s failed: %v", key, err)
			}
		}
	}()
}

// ReconcileAll runs one reconciliation pass over every aggregate key.
// Per-key failures are isolated: one key's error never aborts the others,
// and the joined error is retried on the next scheduled tick.
func (e *Engine) ReconcileAll(ctx context.Context) error {
	if reconcileRuns != nil {
		reconcileRuns.Inc()
	}

	var errs []error
	for _, key := range stats.AllKeys {
		if err := e.reconcileKey(ctx, key); err != nil {
			log.Printf("reconcile %s failed: %v", key, err)
			errs = append(errs, err)
		}
	}
	if err := e.settleUniqueVisitors(ctx); err != nil {
		log.Printf("reconcile uniqueVisitors settle failed: %v", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) reconcileKey(ctx context.Context, key string) error {
	local, lerr := e.local.Get(ctx, key)
	if lerr != nil && !errors.Is(lerr, store.ErrNotFound) {
		return lerr
	}
	remote, rerr := e.mirror.Get(ctx, key)
	if rerr != nil && !errors.Is(rerr, store.ErrNotFound) {
		return rerr
	}

	switch {
	case local == nil && remote == nil:
		return nil
	case local == nil:
		return e.applyLocal(ctx, key, remote.Data)
	case remote == nil:
		return e.mirror.Set(ctx, key, local.Data)
	}

	if store.Equal(local.Data, remote.Data) {
		return nil
	}
	if divergenceTotal != nil {
		divergenceTotal.WithLabelValues(key).Inc()
	}

	if stats.SetKeys[key] {
		return e.mergeSets(ctx, key, local.Data, remote.Data)
	}

	// Last-write-wins; ties go to the mirror, which both the server and
	// the client fallback path write to.
	if remote.UpdatedAt.Before(local.UpdatedAt) {
		return e.mirror.Set(ctx, key, local.Data)
	}
	return e.applyLocal(ctx, key, remote.Data)
}

// mergeSets resolves a set-valued key by union. Sets grow monotonically:
// neither side ever shrinks, whichever side saw a visitor first.
func (e *Engine) mergeSets(ctx context.Context, key string, localData, remoteData json.RawMessage) error {
	var localSet, remoteSet stats.VisitorSet
	if err := json.Unmarshal(localData, &localSet); err != nil {
		localSet = nil
	}
	if err := json.Unmarshal(remoteData, &remoteSet); err != nil {
		remoteSet = nil
	}

	union := localSet.Union(remoteSet)
	merged, err := json.Marshal(union)
	if err != nil {
		return err
	}

	if len(union) != len(localSet) {
		if err := e.applyLocal(ctx, key, merged); err != nil {
			return err
		}
	}
	if len(union) != len(remoteSet) {
		return e.mirror.Set(ctx, key, merged)
	}
	return nil
}

// settleUniqueVisitors re-derives siteStats.uniqueVisitors from the merged
// visitor set on both sides, so the count matches the set once a pass
// completes.
func (e *Engine) settleUniqueVisitors(ctx context.Context) error {
	doc, err := e.local.Get(ctx, stats.KeyKnownVisitors)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var visitors stats.VisitorSet
	if err := json.Unmarshal(doc.Data, &visitors); err != nil {
		return nil
	}
	count := len(visitors)

	if err := e.patchUniqueVisitors(ctx, e.local, count, true); err != nil {
		return err
	}
	return e.patchUniqueVisitors(ctx, e.mirror, count, false)
}

func (e *Engine) patchUniqueVisitors(ctx context.Context, s store.Store, count int, isLocal bool) error {
	doc, err := s.Get(ctx, stats.KeySiteStats)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var site stats.SiteStats
	if err := json.Unmarshal(doc.Data, &site); err != nil {
		return nil
	}
	if site.UniqueVisitors == count {
		return nil
	}
	site.UniqueVisitors = count
	data, err := json.Marshal(site)
	if err != nil {
		return err
	}
	if err := s.Set(ctx, stats.KeySiteStats, data); err != nil {
		return err
	}
	if isLocal && e.invalidate != nil {
		e.invalidate(stats.KeySiteStats)
	}
	return nil
}

// ApplyRemote overwrites the local document with a remote value if they
// differ. Idempotent: applying the same value twice is a no-op, so the
// change-stream listener and the periodic pass can run concurrently.
func (e *Engine) ApplyRemote(ctx context.Context, key string, data json.RawMessage) error {
	local, err := e.local.Get(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if local != nil && store.Equal(local.Data, data) {
		return nil
	}
	return e.applyLocal(ctx, key, data)
}

func (e *Engine) applyLocal(ctx context.Context, key string, data json.RawMessage) error {
	if err := e.local.Set(ctx, key, data); err != nil {
		return err
	}
	if e.invalidate != nil {
		e.invalidate(key)
	}
	return nil
}
