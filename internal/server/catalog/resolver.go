package catalog

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Resolver serves descriptors and registry entries from the current snapshot.
// It is safe for concurrent use.
type Resolver struct {
	src    Source
	ttl    time.Duration
	logger logging.Logger
	now    func() time.Time

	snap  atomic.Pointer[Catalog]
	group singleflight.Group
}

// NewResolver performs the initial load; a service must not start with an
// empty catalog. A zero ttl disables expiry.
func NewResolver(ctx context.Context, src Source, ttl time.Duration, logger logging.Logger) (*Resolver, error) {
	r := &Resolver{
		src:    src,
		ttl:    ttl,
		logger: logger.With("module", "catalog"),
		now:    time.Now,
	}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the snapshot with a fresh load. On failure the previous
// snapshot stays in place.
func (r *Resolver) Reload(ctx context.Context) error {
	_, err, _ := r.group.Do("reload", func() (any, error) {
		cat, err := r.src.Load(ctx)
		if err != nil {
			return nil, err
		}
		cat.LoadedAt = r.now()
		r.snap.Store(cat)
		r.logger.Info(ctx, "catalog loaded", "configs", len(cat.Configs), "document_types", len(cat.DocumentTypes))
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("catalog reload: %w", err)
	}
	return nil
}

// Snapshot returns the current catalog, refreshing it first when the TTL has
// passed. A failed refresh is logged and the stale snapshot is served.
func (r *Resolver) Snapshot(ctx context.Context) *Catalog {
	cat := r.snap.Load()
	if r.ttl > 0 && r.now().Sub(cat.LoadedAt) > r.ttl {
		if err := r.Reload(ctx); err != nil {
			r.logger.Warn(ctx, "catalog refresh failed, serving previous snapshot", "error", err)
		}
		cat = r.snap.Load()
	}
	return cat
}

// Resolve maps a configuration identifier to its descriptor.
func (r *Resolver) Resolve(ctx context.Context, configID string) (*SchemaDescriptor, error) {
	d, ok := r.Snapshot(ctx).Configs[configID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownConfig, configID)
	}
	if !d.Enabled {
		return nil, fmt.Errorf("%w: %q", common.ErrConfigDisabled, configID)
	}
	return d, nil
}

// DocumentType resolves a registry entry.
func (r *Resolver) DocumentType(ctx context.Context, tag string) (*DocumentType, error) {
	t, ok := r.Snapshot(ctx).DocumentTypes[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrUnknownDocumentType, tag)
	}
	return t, nil
}
