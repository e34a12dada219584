package dataset

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes dataset read statistics as prometheus metrics.
type Collector struct {
	d *Dataset

	samples   *prometheus.Desc
	shards    *prometheus.Desc
	reads     *prometheus.Desc
	cacheHits *prometheus.Desc
}

func NewCollector(d *Dataset) *Collector {
	return &Collector{
		d: d,

		samples: prometheus.NewDesc(
			"dataset_samples",
			"Total number of samples across all shards",
			nil, nil,
		),
		shards: prometheus.NewDesc(
			"dataset_shards",
			"Number of shards backing the dataset",
			nil, nil,
		),
		reads: prometheus.NewDesc(
			"dataset_reads_total",
			"Total number of sample reads",
			nil, nil,
		),
		cacheHits: prometheus.NewDesc(
			"dataset_cache_hits_total",
			"Sample reads served from the record cache",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.samples
	ch <- c.shards
	ch <- c.reads
	ch <- c.cacheHits
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.samples, prometheus.GaugeValue, float64(c.d.Len()))
	ch <- prometheus.MustNewConstMetric(c.shards, prometheus.GaugeValue, float64(c.d.NumShards()))
	ch <- prometheus.MustNewConstMetric(c.reads, prometheus.CounterValue, float64(c.d.reads.Value()))
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(c.d.cacheHits.Value()))
}
