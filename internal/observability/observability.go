// Package observability renders cache statistics as Prometheus text
// exposition format, sourced from the cache's own atomic counters
// rather than a second parallel metrics store.
package observability

import (
	"fmt"
	"strings"

	"github.com/offheap/ohc"
)

// StatsSource is anything that can report cache stats; *ohc.OHCache
// satisfies it without this package importing a concrete cache type
// beyond the Stats/ExtendedStats value types.
type StatsSource interface {
	Stats() ohc.Stats
	ExtendedStats() ohc.ExtendedStats
}

// ExportPrometheusMetrics renders src's extended stats as Prometheus
// text exposition format.
func ExportPrometheusMetrics(src StatsSource) string {
	st := src.ExtendedStats()

	var b strings.Builder
	writeCounter(&b, "ohc_hit_total", "Cache hits", st.Hit)
	writeCounter(&b, "ohc_miss_total", "Cache misses", st.Miss)
	writeCounter(&b, "ohc_load_success_total", "Successful loader invocations", st.LoadSuccess)
	writeCounter(&b, "ohc_load_exception_total", "Failed loader invocations", st.LoadException)
	writeCounter(&b, "ohc_eviction_total", "Entries evicted by cleanup", st.Eviction)

	writeGauge(&b, "ohc_size", "Number of entries currently cached", float64(st.Size))
	writeGauge(&b, "ohc_capacity_bytes", "Configured pool capacity in bytes", float64(st.Capacity))
	writeGauge(&b, "ohc_block_size_bytes", "Configured block size in bytes", float64(st.BlockSize))

	if total := st.Hit + st.Miss; total > 0 {
		writeGauge(&b, "ohc_hit_rate", "Fraction of get() calls that hit", float64(st.Hit)/float64(total))
	}

	for i, n := range st.LRUListLengths {
		fmt.Fprintf(&b, "ohc_partition_lru_length{partition=\"%d\"} %d\n", i, n)
	}
	for i, n := range st.FreeBlockBuckets {
		fmt.Fprintf(&b, "ohc_free_blocks{bucket=\"%d\"} %d\n", i, n)
	}

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, v uint64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
}

func writeGauge(b *strings.Builder, name, help string, v float64) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s gauge\n%s %.4f\n", name, help, name, name, v)
}
