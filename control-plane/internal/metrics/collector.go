package metrics

import (
	"context"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/pilot-net/sdn-balance/control-plane/internal/config"
)

// Pinger is a dependency whose reachability is part of health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProcessHealth describes the coordinator process.
type ProcessHealth struct {
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryMB      float64 `json:"memory_mb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// StatsFunc reports a point-in-time statistic for the health report. The
// value must marshal to JSON.
type StatsFunc func(ctx context.Context) (any, error)

// DependencyHealth is the result of pinging one dependency.
type DependencyHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health is the coordinator's health report.
type Health struct {
	Status       string             `json:"status"`
	Timestamp    time.Time          `json:"timestamp"`
	Process      ProcessHealth      `json:"process"`
	Dependencies []DependencyHealth `json:"dependencies"`
	Stats        map[string]any     `json:"stats,omitempty"`
}

// Collector gathers health with caching.
type Collector struct {
	deps      map[string]Pinger
	stats     map[string]StatsFunc
	startTime time.Time

	mu            sync.RWMutex
	cachedHealth  *Health
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// NewCollector creates a collector that also pings deps. Nil entries are
// skipped.
func NewCollector(deps map[string]Pinger) *Collector {
	c := &Collector{
		deps:          make(map[string]Pinger),
		stats:         make(map[string]StatsFunc),
		startTime:     time.Now(),
		cacheDuration: config.CacheTTLHealth,
	}
	for name, p := range deps {
		if p != nil {
			c.deps[name] = p
		}
	}
	return c
}

// AddStats registers a statistic reported under name. Call before serving.
func (c *Collector) AddStats(name string, fn StatsFunc) {
	c.stats[name] = fn
}

// Health returns the current health report. Results are cached briefly so
// health checks do not ping dependencies on every request.
func (c *Collector) Health(ctx context.Context) Health {
	c.mu.RLock()
	if c.cachedHealth != nil && time.Now().Before(c.cacheExpiry) {
		h := *c.cachedHealth
		c.mu.RUnlock()
		return h
	}
	c.mu.RUnlock()

	h := c.collect(ctx)

	c.mu.Lock()
	c.cachedHealth = &h
	c.cacheExpiry = time.Now().Add(c.cacheDuration)
	c.mu.Unlock()

	return h
}

func (c *Collector) collect(ctx context.Context) Health {
	h := Health{
		Status:       "healthy",
		Timestamp:    time.Now(),
		Process:      c.collectProcess(),
		Dependencies: []DependencyHealth{},
	}

	names := make([]string, 0, len(c.deps))
	for name := range c.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pingCtx, cancel := context.WithTimeout(ctx, config.DatabasePingTimeout)
		err := c.deps[name].Ping(pingCtx)
		cancel()

		dep := DependencyHealth{Name: name, Status: "healthy"}
		if err != nil {
			dep.Status = "unreachable"
			dep.Error = err.Error()
			h.Status = "degraded"
		}
		h.Dependencies = append(h.Dependencies, dep)
	}

	if len(c.stats) > 0 {
		h.Stats = make(map[string]any, len(c.stats))
		for name, fn := range c.stats {
			v, err := fn(ctx)
			if err != nil {
				h.Stats[name] = map[string]string{"error": err.Error()}
				continue
			}
			h.Stats[name] = v
		}
	}

	if h.Process.MemoryPercent > 90 || h.Process.CPUPercent > 90 {
		h.Status = "degraded"
	}
	return h
}

func (c *Collector) collectProcess() ProcessHealth {
	health := ProcessHealth{
		Goroutines:    runtime.NumGoroutine(),
		UptimeSeconds: int64(time.Since(c.startTime).Seconds()),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return health
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		health.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		health.MemoryMB = float64(mem.RSS) / (1024 * 1024)
	}
	if memPct, err := proc.MemoryPercent(); err == nil {
		health.MemoryPercent = float64(memPct)
	}
	return health
}
