package health

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/vellum-dev/vellum/pkg/logging"
)

// MemoryHealthChecker monitors process memory usage.
type MemoryHealthChecker struct {
	logger logging.Logger
	config MemoryCheckConfig
}

type MemoryCheckConfig struct {
	WarningThreshold  float64
	CriticalThreshold float64
}

func (m *MemoryHealthChecker) Name() string           { return "memory_usage" }
func (m *MemoryHealthChecker) IsCritical() bool       { return true }
func (m *MemoryHealthChecker) Interval() time.Duration { return 30 * time.Second }

func (m *MemoryHealthChecker) Check(ctx context.Context) CheckResult {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	usedMB := float64(memStats.Alloc) / 1024 / 1024
	sysMB := float64(memStats.Sys) / 1024 / 1024
	usagePercentage := usedMB / sysMB

	status := StatusHealthy
	message := fmt.Sprintf("Memory usage: %.1f%% (%.1fMB/%.1fMB)", usagePercentage*100, usedMB, sysMB)

	if usagePercentage >= m.config.CriticalThreshold {
		status = StatusUnhealthy
		message = fmt.Sprintf("Critical memory usage: %.1f%% (%.1fMB/%.1fMB)", usagePercentage*100, usedMB, sysMB)
	} else if usagePercentage >= m.config.WarningThreshold {
		status = StatusDegraded
		message = fmt.Sprintf("High memory usage: %.1f%% (%.1fMB/%.1fMB)", usagePercentage*100, usedMB, sysMB)
	}

	var suggestions []string
	if status != StatusHealthy {
		suggestions = append(suggestions,
			"Monitor memory consumption patterns",
			"Check for memory leaks",
			"Consider increasing available memory")
	}

	return CheckResult{
		Name:     m.Name(),
		Status:   status,
		Message:  message,
		Critical: m.IsCritical(),
		Details: map[string]interface{}{
			"alloc_mb":           usedMB,
			"sys_mb":             sysMB,
			"usage_percentage":   usagePercentage * 100,
			"heap_objects":       memStats.HeapObjects,
			"gc_cycles":          memStats.NumGC,
			"warning_threshold":  m.config.WarningThreshold * 100,
			"critical_threshold": m.config.CriticalThreshold * 100,
		},
		Suggestions: suggestions,
	}
}

// GoroutineHealthChecker monitors goroutine count.
type GoroutineHealthChecker struct {
	logger logging.Logger
	config GoroutineCheckConfig
}

type GoroutineCheckConfig struct {
	WarningThreshold  int
	CriticalThreshold int
}

func (g *GoroutineHealthChecker) Name() string           { return "goroutine_count" }
func (g *GoroutineHealthChecker) IsCritical() bool       { return true }
func (g *GoroutineHealthChecker) Interval() time.Duration { return 15 * time.Second }

func (g *GoroutineHealthChecker) Check(ctx context.Context) CheckResult {
	count := runtime.NumGoroutine()

	status := StatusHealthy
	message := fmt.Sprintf("Goroutines: %d", count)

	if count >= g.config.CriticalThreshold {
		status = StatusUnhealthy
		message = fmt.Sprintf("Critical goroutine count: %d", count)
	} else if count >= g.config.WarningThreshold {
		status = StatusDegraded
		message = fmt.Sprintf("High goroutine count: %d", count)
	}

	var suggestions []string
	if status != StatusHealthy {
		suggestions = append(suggestions, "Check for goroutine leaks", "Review worker pool sizing")
	}

	return CheckResult{
		Name:     g.Name(),
		Status:   status,
		Message:  message,
		Critical: g.IsCritical(),
		Details: map[string]interface{}{
			"count":              count,
			"warning_threshold":  g.config.WarningThreshold,
			"critical_threshold": g.config.CriticalThreshold,
		},
		Suggestions: suggestions,
	}
}

// SystemLoadHealthChecker monitors coarse process resource usage.
type SystemLoadHealthChecker struct {
	logger logging.Logger
}

func (s *SystemLoadHealthChecker) Name() string           { return "system_load" }
func (s *SystemLoadHealthChecker) IsCritical() bool       { return false }
func (s *SystemLoadHealthChecker) Interval() time.Duration { return 60 * time.Second }

func (s *SystemLoadHealthChecker) Check(ctx context.Context) CheckResult {
	cpuCount := runtime.NumCPU()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	memUsedMB := memStats.Alloc / 1024 / 1024
	memTotalMB := memStats.Sys / 1024 / 1024
	memUsagePercent := float64(memUsedMB) / float64(memTotalMB) * 100
	goroutineCount := runtime.NumGoroutine()

	status := StatusHealthy
	var suggestions []string

	if memUsagePercent > 80 {
		status = StatusUnhealthy
		suggestions = append(suggestions, "High memory usage detected")
	} else if memUsagePercent > 60 {
		status = StatusDegraded
		suggestions = append(suggestions, "Memory usage is elevated")
	}

	if goroutineCount > 10000 {
		status = StatusUnhealthy
		suggestions = append(suggestions, "High goroutine count detected")
	} else if goroutineCount > 5000 && status == StatusHealthy {
		status = StatusDegraded
		suggestions = append(suggestions, "Goroutine count is elevated")
	}

	message := fmt.Sprintf("System resources: %d CPUs, %.1f%% memory, %d goroutines",
		cpuCount, memUsagePercent, goroutineCount)

	return CheckResult{
		Name:     s.Name(),
		Status:   status,
		Message:  message,
		Critical: s.IsCritical(),
		Details: map[string]interface{}{
			"cpu_count":             cpuCount,
			"memory_used_mb":        memUsedMB,
			"memory_total_mb":       memTotalMB,
			"memory_usage_percent":  memUsagePercent,
			"goroutine_count":       goroutineCount,
		},
		Suggestions: suggestions,
	}
}

// TrustStoreLoadedChecker reports whether the trust store has been loaded
// successfully (I1/I2: the file either parses and validates, or the
// subsystem has already reset to an empty, usable store).
type TrustStoreLoadedChecker struct {
	logger  logging.Logger
	path    string
	loaded  func() (ok bool, size int, corrupted bool)
}

// NewTrustStoreLoadedChecker wires a checker to a closure reading the
// supervisor's current trust store state; avoids an import cycle between
// pkg/health and pkg/trust.
func NewTrustStoreLoadedChecker(path string, logger logging.Logger, loaded func() (bool, int, bool)) *TrustStoreLoadedChecker {
	return &TrustStoreLoadedChecker{
		path:   path,
		logger: logger.WithComponent("trust_store_health"),
		loaded: loaded,
	}
}

func (t *TrustStoreLoadedChecker) Name() string           { return "trust_store_loaded" }
func (t *TrustStoreLoadedChecker) IsCritical() bool       { return true }
func (t *TrustStoreLoadedChecker) Interval() time.Duration { return 30 * time.Second }

func (t *TrustStoreLoadedChecker) Check(ctx context.Context) CheckResult {
	ok, size, corrupted := t.loaded()

	status := StatusHealthy
	message := fmt.Sprintf("trust store loaded with %d entries", size)
	var suggestions []string

	if corrupted {
		status = StatusDegraded
		message = "trust store was corrupted and has been reset to empty; a .backup copy was written"
		suggestions = append(suggestions, "Inspect the .backup file and re-approve affected plugins")
	}
	if !ok {
		status = StatusUnhealthy
		message = "trust store has not been loaded"
		suggestions = append(suggestions, "Check trust store file permissions", fmt.Sprintf("Verify path %s is reachable", t.path))
	}

	return CheckResult{
		Name:     t.Name(),
		Status:   status,
		Message:  message,
		Critical: t.IsCritical(),
		Details: map[string]interface{}{
			"path":      t.path,
			"entries":   size,
			"corrupted": corrupted,
		},
		Suggestions: suggestions,
	}
}

// DiscoveryRootsReachableChecker reports how many of the configured
// discovery roots currently exist and are readable (spec.md §4.2: a
// missing root is not an error, just an empty contribution — this check
// surfaces that state for operators rather than failing on it).
type DiscoveryRootsReachableChecker struct {
	logger logging.Logger
	roots  []string
}

func NewDiscoveryRootsReachableChecker(roots []string, logger logging.Logger) *DiscoveryRootsReachableChecker {
	return &DiscoveryRootsReachableChecker{
		roots:  roots,
		logger: logger.WithComponent("discovery_health"),
	}
}

func (d *DiscoveryRootsReachableChecker) Name() string           { return "discovery_roots_reachable" }
func (d *DiscoveryRootsReachableChecker) IsCritical() bool       { return false }
func (d *DiscoveryRootsReachableChecker) Interval() time.Duration { return 60 * time.Second }

func (d *DiscoveryRootsReachableChecker) Check(ctx context.Context) CheckResult {
	reachable := 0
	unreachable := []string{}

	for _, root := range d.roots {
		info, err := os.Stat(root)
		if err == nil && info.IsDir() {
			reachable++
		} else {
			unreachable = append(unreachable, root)
		}
	}

	status := StatusHealthy
	if reachable == 0 && len(d.roots) > 0 {
		status = StatusDegraded
	}

	return CheckResult{
		Name:     d.Name(),
		Status:   status,
		Message:  fmt.Sprintf("%d/%d discovery roots reachable", reachable, len(d.roots)),
		Critical: d.IsCritical(),
		Details: map[string]interface{}{
			"configured_roots": d.roots,
			"unreachable":      unreachable,
		},
	}
}
