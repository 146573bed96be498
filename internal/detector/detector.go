package detector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vaibhav2408/config-manager/internal/store"
)

// DefaultInterval is the poll interval used when Options.Interval is unset.
const DefaultInterval = 20 * time.Second

// Source is the read side of the config service that the detector polls.
type Source interface {
	GetAllServiceConfig(ctx context.Context, serviceID string) ([]store.Record, error)
}

// Notifier receives every detected change. Errors are logged by the
// detector and never stop the loop.
type Notifier interface {
	Notify(ctx context.Context, c Change) error
}

// Change describes a detected difference between two consecutive snapshots
// of a service.
type Change struct {
	ServiceID  string         `json:"service_id"`
	DetectedAt time.Time      `json:"detected_at"`
	Changed    []string       `json:"changed"`
	Removed    []string       `json:"removed,omitempty"`
	Configs    []store.Record `json:"configs"`
}

// Result is the outcome of a single Check.
type Result struct {
	ServiceID string
	// Bootstrap is set when no snapshot existed and the fetched configs
	// became the baseline. No change is reported on bootstrap.
	Bootstrap bool
	Changed   bool
	Change    *Change
}

// Options configures a Detector.
type Options struct {
	ServiceIDs     []string
	Interval       time.Duration
	DetectRemovals bool
	Notifiers      []Notifier
}

// Detector polls the configs of a set of services and reports when they
// change between polls. It keeps the last snapshot of every service it has
// seen in memory.
type Detector struct {
	source         Source
	serviceIDs     []string
	interval       time.Duration
	detectRemovals bool
	notifiers      []Notifier
	logger         *slog.Logger
	metrics        *detectorMetrics
	now            func() time.Time

	mu        sync.Mutex
	snapshots map[string][]store.Record
}

// New creates a Detector reading from src.
func New(src Source, opts Options, logger *slog.Logger) *Detector {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Detector{
		source:         src,
		serviceIDs:     append([]string(nil), opts.ServiceIDs...),
		interval:       interval,
		detectRemovals: opts.DetectRemovals,
		notifiers:      opts.Notifiers,
		logger:         logger,
		metrics:        newDetectorMetrics(),
		now:            time.Now,
		snapshots:      make(map[string][]store.Record),
	}
}

// Run polls every configured service once immediately and then on every
// interval. It blocks until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("change detector starting",
		"service_ids", d.serviceIDs,
		"interval", d.interval,
		"detect_removals", d.detectRemovals,
	)

	d.tick(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("change detector shutting down")
			return ctx.Err()
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick checks every service sequentially. A failed check is logged and
// leaves the previous snapshot of that service in place.
func (d *Detector) tick(ctx context.Context) {
	d.logger.Debug("change detection tick starting")
	for _, id := range d.serviceIDs {
		if ctx.Err() != nil {
			return
		}
		if _, err := d.Check(ctx, id); err != nil {
			d.logger.Error("config change check failed", "service_id", id, "error", err)
		}
	}
}

// Check fetches the current configs of serviceID and compares them with the
// previous snapshot. The snapshot is replaced by the fetched configs whether
// or not a change was found. A fetch error leaves the snapshot untouched.
func (d *Detector) Check(ctx context.Context, serviceID string) (Result, error) {
	res := Result{ServiceID: serviceID}
	start := time.Now()

	curr, err := d.source.GetAllServiceConfig(ctx, serviceID)
	if err != nil {
		d.metrics.observeCheck(serviceID, time.Since(start), true, false, d.now())
		return res, fmt.Errorf("fetching configs of service %s: %w", serviceID, err)
	}
	if curr == nil {
		curr = []store.Record{}
	}

	d.mu.Lock()
	prev, seen := d.snapshots[serviceID]
	d.snapshots[serviceID] = curr
	d.mu.Unlock()

	if !seen {
		res.Bootstrap = true
		d.metrics.observeCheck(serviceID, time.Since(start), false, false, d.now())
		d.logger.Info("stored baseline config snapshot", "service_id", serviceID, "configs", len(curr))
		return res, nil
	}

	changed := changedNames(prev, curr)
	var removed []string
	if d.detectRemovals {
		removed = removedNames(prev, curr)
	}

	if len(changed) == 0 && len(removed) == 0 {
		d.metrics.observeCheck(serviceID, time.Since(start), false, false, d.now())
		d.logger.Info("no changes to the config", "service_id", serviceID)
		return res, nil
	}

	change := Change{
		ServiceID:  serviceID,
		DetectedAt: d.now().UTC(),
		Changed:    changed,
		Removed:    removed,
		Configs:    curr,
	}
	res.Changed = true
	res.Change = &change

	d.metrics.observeCheck(serviceID, time.Since(start), false, true, d.now())
	d.logger.Info("config changed",
		"service_id", serviceID,
		"changed", changed,
		"removed", removed,
	)

	d.notify(ctx, change)
	return res, nil
}

func (d *Detector) notify(ctx context.Context, c Change) {
	for _, n := range d.notifiers {
		if err := n.Notify(ctx, c); err != nil {
			d.metrics.recordNotifyError(c.ServiceID)
			d.logger.Warn("change notification failed",
				"service_id", c.ServiceID,
				"notifier", fmt.Sprintf("%T", n),
				"error", err,
			)
		}
	}
}

// Snapshot returns a copy of the last snapshot of serviceID.
func (d *Detector) Snapshot(serviceID string) ([]store.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	snap, ok := d.snapshots[serviceID]
	if !ok {
		return nil, false
	}
	return append([]store.Record(nil), snap...), true
}

// Status returns a summary of the detector state.
func (d *Detector) Status() map[string]any {
	d.mu.Lock()
	ids := make([]string, 0, len(d.snapshots))
	sizes := make(map[string]int, len(d.snapshots))
	for id, snap := range d.snapshots {
		ids = append(ids, id)
		sizes[id] = len(snap)
	}
	d.mu.Unlock()
	sort.Strings(ids)

	services := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		services = append(services, map[string]any{
			"service_id": id,
			"configs":    sizes[id],
			"last_check": d.metrics.lastCheck(id),
		})
	}

	return map[string]any{
		"service_ids":     d.serviceIDs,
		"interval":        d.interval.String(),
		"detect_removals": d.detectRemovals,
		"services":        services,
	}
}

// MetricsText returns the Prometheus text exposition of detector metrics.
func (d *Detector) MetricsText() string {
	return d.metrics.render()
}

// Changed reports whether curr contains a record whose updated_at does not
// appear anywhere in prev. Records that disappeared from curr are not
// considered.
func Changed(prev, curr []store.Record) bool {
	return len(changedNames(prev, curr)) > 0
}

func changedNames(prev, curr []store.Record) []string {
	seen := make(map[int64]struct{}, len(prev))
	for _, r := range prev {
		seen[r.UpdatedAt] = struct{}{}
	}
	var names []string
	for _, r := range curr {
		if _, ok := seen[r.UpdatedAt]; !ok {
			names = append(names, r.ConfigName)
		}
	}
	return names
}

func removedNames(prev, curr []store.Record) []string {
	present := make(map[string]struct{}, len(curr))
	for _, r := range curr {
		present[r.ConfigName] = struct{}{}
	}
	var names []string
	for _, r := range prev {
		if _, ok := present[r.ConfigName]; !ok {
			names = append(names, r.ConfigName)
		}
	}
	return names
}
