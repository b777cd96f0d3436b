package metrics

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const defaultSampleInterval = 5 * time.Second

// Usage is one resource sample for a running script.
type Usage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	SampledAt  time.Time `json:"sampled_at"`
}

// PIDsFunc reports script key -> pid for every currently running script.
type PIDsFunc func() map[string]int32

// Sampler periodically polls gopsutil for the resource usage of running
// scripts, feeding both the Prometheus gauges and an in-memory snapshot the
// API serves.
type Sampler struct {
	pids     PIDsFunc
	interval time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	latest map[string]Usage

	started  atomic.Bool
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewSampler(pids PIDsFunc, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		pids:     pids,
		interval: defaultSampleInterval,
		logger:   logger,
		latest:   make(map[string]Usage),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// SetInterval overrides the sampling period. Call before Start.
func (s *Sampler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start launches the sampling loop. Subsequent calls are no-ops.
func (s *Sampler) Start() {
	if s.started.Swap(true) {
		return
	}
	go s.loop()
}

// Stop halts the loop and waits for it to exit. Stop on a sampler that never
// started returns immediately; there is no loop to join.
func (s *Sampler) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() { close(s.quit) })
	<-s.done
}

// Latest returns the most recent sample for key, if one exists.
func (s *Sampler) Latest(key string) (Usage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.latest[key]
	return u, ok
}

func (s *Sampler) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	pids := s.pids()
	now := time.Now()

	fresh := make(map[string]Usage, len(pids))
	for key, pid := range pids {
		if pid <= 0 {
			continue
		}
		u, err := sampleProcess(pid, now)
		if err != nil {
			s.logger.Debug("resource sample failed", "script", key, "pid", pid, "error", err)
			continue
		}
		fresh[key] = u
		SetResourceUsage(key, u.CPUPercent, u.MemoryMB)
	}

	s.mu.Lock()
	for key := range s.latest {
		if _, ok := fresh[key]; !ok {
			ClearResourceUsage(key)
		}
	}
	s.latest = fresh
	s.mu.Unlock()
}

func sampleProcess(pid int32, now time.Time) (Usage, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return Usage{}, err
	}
	cpuPct, err := proc.CPUPercent()
	if err != nil {
		cpuPct = 0
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return Usage{}, err
	}
	threads, err := proc.NumThreads()
	if err != nil {
		threads = 0
	}
	return Usage{
		PID:        pid,
		CPUPercent: cpuPct,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		NumThreads: threads,
		SampledAt:  now,
	}, nil
}
