package loader

import (
	"sync"
	"time"
)

const statsWindow = 100

type loadSample struct {
	elapsed time.Duration
	ok      bool
	cached  bool
}

// Stats summarizes the most recent loads of a kind
type Stats struct {
	Loads       int
	CacheHits   int
	SuccessRate float64
	// AverageLoad covers successful loads that reached the API server
	AverageLoad time.Duration
}

type statsRecorder struct {
	mu      sync.Mutex
	samples map[string][]loadSample
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{samples: make(map[string][]loadSample)}
}

func (s *statsRecorder) record(kind string, sample loadSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	samples := append(s.samples[kind], sample)
	if len(samples) > statsWindow {
		samples = samples[len(samples)-statsWindow:]
	}
	s.samples[kind] = samples
}

func (s *statsRecorder) get(kind string) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	samples := s.samples[kind]
	if len(samples) == 0 {
		return Stats{}
	}
	var ok, hits, timed int
	var total time.Duration
	for _, sm := range samples {
		if sm.cached {
			hits++
		}
		if !sm.ok {
			continue
		}
		ok++
		if !sm.cached {
			timed++
			total += sm.elapsed
		}
	}
	stats := Stats{
		Loads:       len(samples),
		CacheHits:   hits,
		SuccessRate: float64(ok) / float64(len(samples)),
	}
	if timed > 0 {
		stats.AverageLoad = total / time.Duration(timed)
	}
	return stats
}
