package profiler

import (
	"log/slog"
	"runtime"
	"time"
)

// Stats is one reporting interval of frame and memory statistics.
type Stats struct {
	FPS          float64
	Triangles    uint32
	HeapMB       float64
	AllocRateMBs float64
	GCCount      uint32
	LastPauseUs  uint64
	MaxPauseUs   uint64
	SysMB        float64
}

// Profiler tracks frame rate, triangle throughput and memory statistics.
// Outputs stats through slog at a configurable interval.
type Profiler struct {
	log            *slog.Logger
	frameCount     int
	triangles      uint64
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Stats
}

// NewProfiler creates a new Profiler reporting to log once per interval.
//
// Parameters:
//   - log: destination for the periodic report; nil uses slog.Default()
//   - interval: reporting interval; values <= 0 default to one second
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(log *slog.Logger, interval time.Duration) *Profiler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Profiler{
		log:            log,
		lastTime:       time.Now(),
		updateInterval: interval,
	}
}

// Tick should be called once per completed frame with that frame's triangle count.
// Logs performance statistics when the update interval has elapsed.
//
// Parameters:
//   - triangles: the triangle count of the frame just presented
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(triangles uint32) bool {
	p.frameCount++
	p.triangles += uint64(triangles)
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	seconds := max(elapsed.Seconds(), 1e-9)
	s := Stats{
		FPS:          float64(p.frameCount) / seconds,
		Triangles:    uint32(p.triangles / uint64(p.frameCount)),
		HeapMB:       float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRateMBs: float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / seconds,
		GCCount:      p.memStats.NumGC,
		SysMB:        float64(p.memStats.Sys) / 1024 / 1024,
	}

	// PauseNs is a circular buffer of the last 256 GC pauses.
	if gc := s.GCCount; gc > 0 {
		s.LastPauseUs = p.memStats.PauseNs[(gc-1)%256] / 1000
		start := p.lastGCCount
		if gc-start > 256 {
			start = gc - 256
		}
		for i := start; i < gc; i++ {
			s.MaxPauseUs = max(s.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	p.log.Info("profiler",
		slog.Float64("fps", s.FPS),
		slog.Any("triangles", s.Triangles),
		slog.Float64("heapMB", s.HeapMB),
		slog.Float64("allocRateMBs", s.AllocRateMBs),
		slog.Any("gc", s.GCCount),
		slog.Uint64("lastPauseUs", s.LastPauseUs),
		slog.Uint64("maxPauseUs", s.MaxPauseUs),
		slog.Float64("sysMB", s.SysMB),
	)

	p.last = s
	p.frameCount = 0
	p.triangles = 0
	p.lastTime = currentTime
	p.lastGCCount = s.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Last returns the statistics of the most recent report.
func (p *Profiler) Last() Stats {
	return p.last
}
