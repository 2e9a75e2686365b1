package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/roasbeef/pulljoy/internal/store"
)

// scrapeTimeout bounds the store query made on each scrape.
const scrapeTimeout = 5 * time.Second

// trackedStates are reported even when no pull request is in them.
var trackedStates = []store.StateName{
	store.StateAwaitingManualReview,
	store.StateAwaitingCI,
	store.StateStandingBy,
}

// stateCollector reports the number of tracked pull requests per state.
type stateCollector struct {
	counter store.StateCounter
	desc    *prometheus.Desc
}

func newStateCollector(counter store.StateCounter) *stateCollector {
	return &stateCollector{
		counter: counter,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(
				namespace, "", "tracked_pull_requests",
			),
			"Pull requests tracked by the gate, by state",
			[]string{"state"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *stateCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector. A failing store query reports
// an invalid metric so the scrape shows the error.
func (c *stateCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	counts, err := c.counter.CountByState(ctx)
	if err != nil {
		log.WarnS(ctx, "Unable to count tracked pull requests", err)
		ch <- prometheus.NewInvalidMetric(c.desc, err)

		return
	}

	for _, state := range trackedStates {
		ch <- prometheus.MustNewConstMetric(
			c.desc, prometheus.GaugeValue,
			float64(counts[state]), string(state),
		)
	}
}
