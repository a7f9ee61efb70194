package orchestrator

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Counters tracks the run totals spec.md §7 requires to be printed at
// end of run. They live only for one run; the diagnostic operation
// reads its totals from the index instead. Registered as
// prometheus counters rather than plain integers so a codebase that
// already imports client_golang has one idiomatic counter type instead
// of two; nothing here is served over HTTP in this CLI context.
type Counters struct {
	Processed       prometheus.Counter
	UsablePDFURL    prometheus.Counter
	Failed          prometheus.Counter
	SkippedExisting prometheus.Counter
}

// NewCounters builds a fresh set of counters registered on a new
// registry of their own (each run gets its own registry instance so
// repeated invocations within the same process, as in tests, don't
// collide on metric names).
func NewCounters() (*Counters, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	c := &Counters{
		Processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_processed_total",
			Help: "Total input lines processed.",
		}),
		UsablePDFURL: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_usable_pdf_url_total",
			Help: "Total records with a usable PDF URL.",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_failed_total",
			Help: "Total records that failed to download.",
		}),
		SkippedExisting: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvester_skipped_existing_total",
			Help: "Total records skipped because they were already present in the index.",
		}),
	}
	reg.MustRegister(c.Processed, c.UsablePDFURL, c.Failed, c.SkippedExisting)
	return c, reg
}

// Snapshot reads the current counter values, used by the end-of-run
// summary output.
type Snapshot struct {
	Processed       int
	UsablePDFURL    int
	Failed          int
	SkippedExisting int
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Processed:       counterValue(c.Processed),
		UsablePDFURL:    counterValue(c.UsablePDFURL),
		Failed:          counterValue(c.Failed),
		SkippedExisting: counterValue(c.SkippedExisting),
	}
}

func counterValue(c prometheus.Counter) int {
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		return 0
	}
	return int(metric.GetCounter().GetValue())
}
