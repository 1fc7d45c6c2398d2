package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/irfndi/volume-engine/internal/telemetry"
)

// ResourceOptimizer sizes the plan batch worker pool from host resources
// and recent batch performance.
type ResourceOptimizer struct {
	mu                 sync.RWMutex
	config             ResourceOptimizerConfig
	cpuCores           int
	memoryGB           float64
	currentCPUUsage    float64
	currentMemoryUsage float64
	optimalConcurrency OptimalConcurrency
	lastOptimization   time.Time
	performanceHistory []BatchSnapshot
	logger             *slog.Logger
}

// OptimalConcurrency holds the calculated concurrency limits.
type OptimalConcurrency struct {
	MaxWorkers          int     `json:"max_workers"`
	MaxConcurrentWrites int     `json:"max_concurrent_writes"`
	MemoryThreshold     float64 `json:"memory_threshold"`
	CPUThreshold        float64 `json:"cpu_threshold"`
}

// BatchSnapshot captures how one plan batch went.
type BatchSnapshot struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	Goroutines  int       `json:"goroutines"`
	Creators    int       `json:"creators"`
	ErrorRate   float64   `json:"error_rate"`
	DurationMs  float64   `json:"duration_ms"`
}

// ResourceOptimizerConfig holds configuration for the resource optimizer
type ResourceOptimizerConfig struct {
	OptimizationInterval time.Duration
	AdaptiveMode         bool
	MaxHistorySize       int
	CPUThreshold         float64
	MemoryThreshold      float64
	MinWorkers           int
	MaxWorkers           int
}

// NewResourceOptimizer creates a new resource optimizer
func NewResourceOptimizer(config ResourceOptimizerConfig) *ResourceOptimizer {
	// Apply default values if not provided
	if config.OptimizationInterval == 0 {
		config.OptimizationInterval = 5 * time.Minute
	}
	if config.MaxHistorySize == 0 {
		config.MaxHistorySize = 100
	}
	if config.CPUThreshold == 0 {
		config.CPUThreshold = 80.0
	}
	if config.MemoryThreshold == 0 {
		config.MemoryThreshold = 85.0
	}
	if config.MinWorkers == 0 {
		config.MinWorkers = 2
	}
	if config.MaxWorkers == 0 {
		config.MaxWorkers = 16
	}

	// Initialize logger with fallback for tests
	logger := telemetry.GetLogger()
	if logger == nil {
		logger = slog.Default()
	}

	ro := &ResourceOptimizer{
		config:             config,
		cpuCores:           runtime.NumCPU(),
		performanceHistory: make([]BatchSnapshot, 0),
		logger:             logger,
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		ro.memoryGB = float64(memInfo.Total) / (1024 * 1024 * 1024)
	} else {
		ro.logger.Warn("Could not get memory info, using default", "error", err)
		ro.memoryGB = 8.0
	}

	ro.calculateOptimalConcurrency()

	ro.logger.Info("Resource Optimizer initialized",
		"cpu_cores", ro.cpuCores,
		"memory_gb", ro.memoryGB,
		"adaptive_mode", config.AdaptiveMode)

	return ro
}

// calculateOptimalConcurrency derives limits from cores, memory and current load.
func (ro *ResourceOptimizer) calculateOptimalConcurrency() {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	config := ro.config
	baseWorkers := ro.cpuCores * 2
	if baseWorkers < config.MinWorkers {
		baseWorkers = config.MinWorkers
	}
	if baseWorkers > config.MaxWorkers {
		baseWorkers = config.MaxWorkers
	}

	memoryFactor := 1.0
	if ro.memoryGB < 4.0 {
		memoryFactor = 0.5
	} else if ro.memoryGB < 8.0 {
		memoryFactor = 0.75
	}

	loadFactor := 1.0
	if ro.currentCPUUsage > config.CPUThreshold {
		loadFactor = 0.7
	} else if ro.currentMemoryUsage > config.MemoryThreshold {
		loadFactor = 0.8
	}

	maxWorkers := int(float64(baseWorkers) * memoryFactor * loadFactor)
	if maxWorkers < config.MinWorkers {
		maxWorkers = config.MinWorkers
	}

	// Each worker persists one plan at a time; keep writes under the pool size.
	maxWrites := maxWorkers / 2
	if maxWrites < 1 {
		maxWrites = 1
	}

	ro.optimalConcurrency = OptimalConcurrency{
		MaxWorkers:          maxWorkers,
		MaxConcurrentWrites: maxWrites,
		MemoryThreshold:     config.MemoryThreshold,
		CPUThreshold:        config.CPUThreshold,
	}

	ro.logger.Info("Calculated optimal concurrency",
		"max_workers", maxWorkers,
		"max_concurrent_writes", maxWrites)
}

// GetOptimalConcurrency returns the current optimal concurrency settings
func (ro *ResourceOptimizer) GetOptimalConcurrency() OptimalConcurrency {
	ro.mu.RLock()
	defer ro.mu.RUnlock()
	return ro.optimalConcurrency
}

// WorkerLimit is the errgroup limit for a batch of size n: never more workers
// than creators, never fewer than one.
func (ro *ResourceOptimizer) WorkerLimit(n int) int {
	limit := ro.GetOptimalConcurrency().MaxWorkers
	if n < limit {
		limit = n
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// WriteLimit caps concurrent plan writes for a batch running the given number
// of workers.
func (ro *ResourceOptimizer) WriteLimit(workers int) int {
	limit := ro.GetOptimalConcurrency().MaxConcurrentWrites
	if workers < limit {
		limit = workers
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// UpdateSystemMetrics samples current CPU and memory usage.
func (ro *ResourceOptimizer) UpdateSystemMetrics(ctx context.Context) error {
	cpuPercent, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return fmt.Errorf("failed to get CPU usage: %w", err)
	}
	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get memory usage: %w", err)
	}

	ro.mu.Lock()
	if len(cpuPercent) > 0 {
		ro.currentCPUUsage = cpuPercent[0]
	}
	ro.currentMemoryUsage = memInfo.UsedPercent
	ro.mu.Unlock()
	return nil
}

// RecordBatch records how a batch went.
func (ro *ResourceOptimizer) RecordBatch(creators, failed int, duration time.Duration) {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	errorRate := 0.0
	if creators > 0 {
		errorRate = float64(failed) / float64(creators) * 100
	}
	ro.performanceHistory = append(ro.performanceHistory, BatchSnapshot{
		Timestamp:   time.Now(),
		CPUUsage:    ro.currentCPUUsage,
		MemoryUsage: ro.currentMemoryUsage,
		Goroutines:  runtime.NumGoroutine(),
		Creators:    creators,
		ErrorRate:   errorRate,
		DurationMs:  float64(duration.Milliseconds()),
	})
	if len(ro.performanceHistory) > ro.config.MaxHistorySize {
		ro.performanceHistory = ro.performanceHistory[1:]
	}
}

// OptimizeIfNeeded recalculates limits when the interval has passed or, in
// adaptive mode, when recent batches show pressure.
func (ro *ResourceOptimizer) OptimizeIfNeeded() bool {
	ro.mu.RLock()
	lastOpt := ro.lastOptimization
	adaptive := ro.config.AdaptiveMode
	interval := ro.config.OptimizationInterval
	ro.mu.RUnlock()

	due := time.Since(lastOpt) >= interval
	if !due && !(adaptive && ro.shouldOptimize()) {
		return false
	}

	ro.logger.Info("Recalculating worker limits", "adaptive", adaptive && !due)
	ro.calculateOptimalConcurrency()
	ro.mu.Lock()
	ro.lastOptimization = time.Now()
	ro.mu.Unlock()
	return true
}

// shouldOptimize averages the last five batches.
func (ro *ResourceOptimizer) shouldOptimize() bool {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	if len(ro.performanceHistory) < 5 {
		return false
	}

	recent := ro.performanceHistory[len(ro.performanceHistory)-5:]
	var avgCPU, avgMemory, avgErrorRate float64
	for _, snapshot := range recent {
		avgCPU += snapshot.CPUUsage
		avgMemory += snapshot.MemoryUsage
		avgErrorRate += snapshot.ErrorRate
	}
	n := float64(len(recent))
	avgCPU /= n
	avgMemory /= n
	avgErrorRate /= n

	return avgCPU > 85.0 || avgMemory > 90.0 || avgErrorRate > 5.0 || runtime.NumGoroutine() > 1000
}

// GetPerformanceHistory returns up to limit most recent snapshots.
func (ro *ResourceOptimizer) GetPerformanceHistory(limit int) []BatchSnapshot {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	if limit <= 0 || limit > len(ro.performanceHistory) {
		limit = len(ro.performanceHistory)
	}
	out := make([]BatchSnapshot, limit)
	copy(out, ro.performanceHistory[len(ro.performanceHistory)-limit:])
	return out
}

// GetSystemInfo returns current system information
func (ro *ResourceOptimizer) GetSystemInfo() map[string]interface{} {
	ro.mu.RLock()
	defer ro.mu.RUnlock()

	return map[string]interface{}{
		"cpu_cores":         ro.cpuCores,
		"memory_gb":         ro.memoryGB,
		"current_cpu":       ro.currentCPUUsage,
		"current_memory":    ro.currentMemoryUsage,
		"goroutines":        runtime.NumGoroutine(),
		"last_optimization": ro.lastOptimization,
		"adaptive_mode":     ro.config.AdaptiveMode,
		"optimal_config":    ro.optimalConcurrency,
	}
}
