package server

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// latencySummary summarises recent render pass durations in milliseconds.
type latencySummary struct {
	Count  int     `json:"count"`
	MeanMs float64 `json:"meanMs"`
	StdMs  float64 `json:"stdMs"`
	P50Ms  float64 `json:"p50Ms"`
	P95Ms  float64 `json:"p95Ms"`
	MaxMs  float64 `json:"maxMs"`
}

type statsResponse struct {
	UptimeSec   float64                `json:"uptimeSec"`
	Status      string                 `json:"status"`
	Passes      uint64                 `json:"passes"`
	BaseRenders int64                  `json:"baseRenders"`
	Overlays    int64                  `json:"overlayRenders"`
	Clients     int                    `json:"clients"`
	RenderTimes latencySummary         `json:"renderTimes"`
	Logging     map[string]interface{} `json:"logging,omitempty"`
}

func summarize(durations []time.Duration) latencySummary {
	if len(durations) == 0 {
		return latencySummary{}
	}
	xs := make([]float64, len(durations))
	for i, d := range durations {
		xs[i] = float64(d) / float64(time.Millisecond)
	}
	sort.Float64s(xs)

	sum := latencySummary{
		Count:  len(xs),
		MeanMs: stat.Mean(xs, nil),
		P50Ms:  stat.Quantile(0.5, stat.Empirical, xs, nil),
		P95Ms:  stat.Quantile(0.95, stat.Empirical, xs, nil),
		MaxMs:  xs[len(xs)-1],
	}
	if len(xs) > 1 {
		if sd := stat.StdDev(xs, nil); !math.IsNaN(sd) {
			sum.StdMs = sd
		}
	}
	return sum
}

func (s *Server) stats() statsResponse {
	base, overlay := s.comp.Renders()
	resp := statsResponse{
		UptimeSec:   time.Since(s.started).Seconds(),
		Status:      string(s.session.State().Status),
		Passes:      s.renderer.Passes(),
		BaseRenders: base,
		Overlays:    overlay,
		Clients:     s.hub.count(),
		RenderTimes: summarize(s.renderer.Durations()),
	}
	if s.logger != nil {
		resp.Logging = s.logger.GetStats()
	}
	return resp
}
