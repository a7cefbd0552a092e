// Package monitor probes an endpoint repeatedly and summarizes latency.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"golang.org/x/time/rate"

	"github.com/naivic/envelope/http"
	"github.com/naivic/envelope/internal/history"
)

// Histogram range in microseconds: 1µs to 1 hour, 3 significant figures.
const (
	histogramMin     = 1
	histogramMax     = 3600000000
	histogramSigFigs = 3
)

// Querier performs one query. *http.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, method, url string, params http.Params, headers []string) (*http.Response, error)
}

// Recorder stores probe results. *history.Store satisfies it.
type Recorder interface {
	Save(ctx context.Context, p *history.Probe) error
}

// Config describes a monitoring run.
type Config struct {
	Method  string
	URL     string
	Params  http.Params
	Headers []string

	// Count is the number of probes; values below 1 mean one probe.
	Count int

	// Rate is the maximum number of probes per second. Zero means no limit.
	Rate float64

	// OnProbe, when set, is called after every probe.
	OnProbe func(history.Probe)
}

// Summary aggregates a monitoring run.
type Summary struct {
	Count  int           `json:"count" yaml:"count"`
	Errors int           `json:"errors" yaml:"errors"`
	Non2xx int           `json:"non_2xx" yaml:"non_2xx"`
	Min    time.Duration `json:"min" yaml:"min"`
	Max    time.Duration `json:"max" yaml:"max"`
	Mean   time.Duration `json:"mean" yaml:"mean"`
	P50    time.Duration `json:"p50" yaml:"p50"`
	P90    time.Duration `json:"p90" yaml:"p90"`
	P99    time.Duration `json:"p99" yaml:"p99"`
}

// Run issues cfg.Count sequential queries through q and returns their
// summary. rec may be nil. Run stops early when ctx is done and returns the
// summary of the probes completed so far together with ctx's error.
func Run(ctx context.Context, cfg Config, q Querier, rec Recorder) (Summary, error) {
	count := cfg.Count
	if count < 1 {
		count = 1
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, 1)

	hist := hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs)
	var summary Summary

	for i := 0; i < count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return finish(summary, hist), ctxErr(ctx, err)
		}

		resp, err := q.Query(ctx, cfg.Method, cfg.URL, cfg.Params, cfg.Headers)
		if err != nil {
			return finish(summary, hist), fmt.Errorf("probe %d: %w", i+1, err)
		}

		probe := history.Probe{
			Method:    cfg.Method,
			URL:       cfg.URL,
			HTTPCode:  resp.StatusCode(),
			TotalTime: resp.Info.Seconds(http.InfoTotalTime),
			Err:       resp.Err,
		}

		summary.Count++
		switch {
		case !resp.OK():
			summary.Errors++
		case !resp.IsSuccess():
			summary.Non2xx++
		}

		us := min(max(resp.TotalTime().Microseconds(), histogramMin), histogramMax)
		_ = hist.RecordValue(us) // in range after clamping

		if rec != nil {
			if err := rec.Save(ctx, &probe); err != nil {
				return finish(summary, hist), err
			}
		}
		if cfg.OnProbe != nil {
			cfg.OnProbe(probe)
		}
	}

	return finish(summary, hist), nil
}

func finish(s Summary, hist *hdrhistogram.Histogram) Summary {
	if hist.TotalCount() == 0 {
		return s
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }

	s.Min = us(hist.Min())
	s.Max = us(hist.Max())
	s.Mean = time.Duration(hist.Mean() * float64(time.Microsecond))
	s.P50 = us(hist.ValueAtQuantile(50))
	s.P90 = us(hist.ValueAtQuantile(90))
	s.P99 = us(hist.ValueAtQuantile(99))
	return s
}

// ctxErr prefers the context's own error over the limiter's wrapping of it.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
