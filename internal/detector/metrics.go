package detector

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// detectorMetrics keeps in-memory counters and gauges exposed via /metrics.
type detectorMetrics struct {
	mu sync.RWMutex

	checkDurationSum  float64
	checkDurationLast float64
	checks            map[string]uint64
	checkErrors       map[string]uint64
	changes           map[string]uint64
	notifyErrors      map[string]uint64
	lastCheckAt       map[string]float64
	lastChangeAt      map[string]float64
}

func newDetectorMetrics() *detectorMetrics {
	return &detectorMetrics{
		checks:       make(map[string]uint64),
		checkErrors:  make(map[string]uint64),
		changes:      make(map[string]uint64),
		notifyErrors: make(map[string]uint64),
		lastCheckAt:  make(map[string]float64),
		lastChangeAt: make(map[string]float64),
	}
}

func (m *detectorMetrics) observeCheck(serviceID string, duration time.Duration, failed, changed bool, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[serviceID]++
	sec := duration.Seconds()
	m.checkDurationLast = sec
	m.checkDurationSum += sec
	if failed {
		m.checkErrors[serviceID]++
		return
	}
	ts := float64(t.UTC().Unix())
	m.lastCheckAt[serviceID] = ts
	if changed {
		m.changes[serviceID]++
		m.lastChangeAt[serviceID] = ts
	}
}

func (m *detectorMetrics) recordNotifyError(serviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyErrors[serviceID]++
}

// lastCheck returns the time of the last successful check of serviceID, or
// the zero time.
func (m *detectorMetrics) lastCheck(serviceID string) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ts, ok := m.lastCheckAt[serviceID]
	if !ok {
		return time.Time{}
	}
	return time.Unix(int64(ts), 0).UTC()
}

func (m *detectorMetrics) render() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder

	writeHelpType(&b, "config_manager_detector_checks_total", "Total config change checks per service.", "counter")
	for _, id := range sortedKeys(m.checks) {
		fmt.Fprintf(&b, "config_manager_detector_checks_total{service_id=%q} %d\n", id, m.checks[id])
	}

	writeHelpType(&b, "config_manager_detector_check_errors_total", "Total failed config change checks per service.", "counter")
	for _, id := range sortedKeys(m.checkErrors) {
		fmt.Fprintf(&b, "config_manager_detector_check_errors_total{service_id=%q} %d\n", id, m.checkErrors[id])
	}

	writeHelpType(&b, "config_manager_detector_changes_total", "Total detected config changes per service.", "counter")
	for _, id := range sortedKeys(m.changes) {
		fmt.Fprintf(&b, "config_manager_detector_changes_total{service_id=%q} %d\n", id, m.changes[id])
	}

	writeHelpType(&b, "config_manager_detector_notify_errors_total", "Total failed change notifications per service.", "counter")
	for _, id := range sortedKeys(m.notifyErrors) {
		fmt.Fprintf(&b, "config_manager_detector_notify_errors_total{service_id=%q} %d\n", id, m.notifyErrors[id])
	}

	writeHelpType(&b, "config_manager_detector_check_duration_seconds_sum", "Total time spent in config change checks.", "counter")
	fmt.Fprintf(&b, "config_manager_detector_check_duration_seconds_sum %.6f\n", m.checkDurationSum)

	writeHelpType(&b, "config_manager_detector_check_duration_seconds_last", "Duration of the last config change check.", "gauge")
	fmt.Fprintf(&b, "config_manager_detector_check_duration_seconds_last %.6f\n", m.checkDurationLast)

	writeHelpType(&b, "config_manager_detector_last_check_timestamp_seconds", "Unix timestamp of the last successful check per service.", "gauge")
	for _, id := range sortedFloatKeys(m.lastCheckAt) {
		fmt.Fprintf(&b, "config_manager_detector_last_check_timestamp_seconds{service_id=%q} %.0f\n", id, m.lastCheckAt[id])
	}

	writeHelpType(&b, "config_manager_detector_last_change_timestamp_seconds", "Unix timestamp of the last detected change per service.", "gauge")
	for _, id := range sortedFloatKeys(m.lastChangeAt) {
		fmt.Fprintf(&b, "config_manager_detector_last_change_timestamp_seconds{service_id=%q} %.0f\n", id, m.lastChangeAt[id])
	}

	return b.String()
}

func writeHelpType(b *strings.Builder, metric, help, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", metric, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", metric, typ)
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
