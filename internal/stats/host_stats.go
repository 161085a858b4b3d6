// Package stats tracks per-host cleaning statistics.
package stats

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/darkpattern-remover/internal/engine"
)

// DefaultMaxHosts is used when NewManager is given a non-positive limit.
const DefaultMaxHosts = 1000

// evictionBatchSize is the number of hosts evicted at once when full.
const evictionBatchSize = 10

// maxCounterValue bounds counters before they are reset.
const maxCounterValue int64 = 1 << 62

// HostStats tracks cleaning runs for a single host.
type HostStats struct {
	mu sync.RWMutex

	Runs         int64
	ExcludedRuns int64
	FailedRuns   int64
	Removed      int64
	Hidden       int64
	ByReason     map[string]int64
	ByPattern    map[string]int64

	totalLatencyMs int64

	LastRun    time.Time
	LastAccess time.Time
}

// HostStatsJSON is the JSON-serializable representation of HostStats.
type HostStatsJSON struct {
	Runs         int64            `json:"runs"`
	ExcludedRuns int64            `json:"excludedRuns"`
	FailedRuns   int64            `json:"failedRuns"`
	Removed      int64            `json:"removed"`
	Hidden       int64            `json:"hidden"`
	AvgLatencyMs int64            `json:"avgLatencyMs"`
	ByReason     map[string]int64 `json:"byReason,omitempty"`
	TopPatterns  []PatternCount   `json:"topPatterns,omitempty"`
	LastRun      time.Time        `json:"lastRun,omitempty"`
}

// PatternCount is one entry of the most frequently matched patterns.
type PatternCount struct {
	Pattern string `json:"pattern"`
	Count   int64  `json:"count"`
}

// ToJSON converts HostStats to its JSON-serializable form.
func (s *HostStats) ToJSON() HostStatsJSON {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avg int64
	if s.Runs > 0 {
		avg = s.totalLatencyMs / s.Runs
	}

	out := HostStatsJSON{
		Runs:         s.Runs,
		ExcludedRuns: s.ExcludedRuns,
		FailedRuns:   s.FailedRuns,
		Removed:      s.Removed,
		Hidden:       s.Hidden,
		AvgLatencyMs: avg,
		LastRun:      s.LastRun,
	}
	if len(s.ByReason) > 0 {
		out.ByReason = make(map[string]int64, len(s.ByReason))
		for k, v := range s.ByReason {
			out.ByReason[k] = v
		}
	}
	out.TopPatterns = topPatterns(s.ByPattern, 5)
	return out
}

func topPatterns(counts map[string]int64, n int) []PatternCount {
	if len(counts) == 0 {
		return nil
	}
	all := make([]PatternCount, 0, len(counts))
	for p, c := range counts {
		all = append(all, PatternCount{Pattern: p, Count: c})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Pattern < all[j].Pattern
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Manager manages statistics for all hosts.
type Manager struct {
	mu       sync.RWMutex
	hosts    map[string]*HostStats
	maxHosts int

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a stats manager bounded to maxHosts entries and starts
// the background cleanup of stale entries.
func NewManager(maxHosts int) *Manager {
	if maxHosts <= 0 {
		maxHosts = DefaultMaxHosts
	}
	m := &Manager{
		hosts:    make(map[string]*HostStats),
		maxHosts: maxHosts,
		stopCh:   make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupRoutine()

	return m
}

func (m *Manager) cleanupRoutine() {
	defer m.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupStale(24 * time.Hour)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) cleanupStale(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var removed int
	for host, s := range m.hosts {
		s.mu.RLock()
		lastAccess := s.LastAccess
		s.mu.RUnlock()

		if now.Sub(lastAccess) > maxAge {
			delete(m.hosts, host)
			removed++
		}
	}

	if removed > 0 {
		log.Debug().
			Int("removed", removed).
			Int("remaining", len(m.hosts)).
			Msg("Cleaned up stale host stats")
	}
}

// Close stops the background cleanup routine.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
	})
}

// ExtractHost returns the lower-cased hostname of a URL.
func ExtractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func (m *Manager) getOrCreate(host string) *HostStats {
	m.mu.Lock()

	s, ok := m.hosts[host]
	if !ok {
		if len(m.hosts) >= m.maxHosts {
			m.evictOldestBatchLocked(evictionBatchSize)
		}
		s = &HostStats{
			ByReason:   make(map[string]int64),
			ByPattern:  make(map[string]int64),
			LastAccess: time.Now(),
		}
		m.hosts[host] = s
		m.mu.Unlock()
		return s
	}
	m.mu.Unlock()

	s.mu.Lock()
	s.LastAccess = time.Now()
	s.mu.Unlock()
	return s
}

// evictOldestBatchLocked removes the count least recently used hosts.
// Must be called with m.mu held.
func (m *Manager) evictOldestBatchLocked(count int) {
	type hostTime struct {
		host       string
		lastAccess time.Time
	}
	candidates := make([]hostTime, 0, len(m.hosts))
	for host, s := range m.hosts {
		s.mu.RLock()
		candidates = append(candidates, hostTime{host, s.LastAccess})
		s.mu.RUnlock()
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})
	for i := 0; i < count && i < len(candidates); i++ {
		delete(m.hosts, candidates[i].host)
	}
}

// Get returns the stats for host, or nil if it is not tracked.
func (m *Manager) Get(host string) *HostStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hosts[host]
}

// Len returns the number of tracked hosts.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hosts)
}

// RecordReport folds one engine run into the host's statistics.
func (m *Manager) RecordReport(report *engine.Report, latency time.Duration) {
	if report == nil || report.Host == "" {
		return
	}

	s := m.getOrCreate(report.Host)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Runs >= maxCounterValue {
		log.Warn().
			Str("host", report.Host).
			Int64("runs", s.Runs).
			Msg("Counter overflow protection triggered, resetting stats")
		*s = HostStats{
			ByReason:   make(map[string]int64),
			ByPattern:  make(map[string]int64),
			LastAccess: s.LastAccess,
		}
	}

	s.Runs++
	s.totalLatencyMs += latency.Milliseconds()
	s.LastRun = time.Now()

	if report.Excluded {
		s.ExcludedRuns++
	}
	if report.Error != "" {
		s.FailedRuns++
	}
	for _, r := range report.Removals {
		s.Removed++
		if r.Hidden {
			s.Hidden++
		}
		s.ByReason[string(r.Reason)]++
		if r.Pattern != "" {
			s.ByPattern[r.Pattern]++
		}
	}
}

// AllStats returns a copy of all host statistics.
func (m *Manager) AllStats() map[string]HostStatsJSON {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]HostStatsJSON, len(m.hosts))
	for host, s := range m.hosts {
		out[host] = s.ToJSON()
	}
	return out
}
