package metrics

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RowsStaged counts rows accepted into staging, labelled by source.
	RowsStaged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platecost_rows_staged_total",
			Help: "Total rows accepted into staging tables",
		},
		[]string{"source"},
	)

	// RowsExcluded counts rows dropped by ingestion exclusion rules.
	RowsExcluded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platecost_rows_excluded_total",
			Help: "Total rows excluded before staging",
		},
		[]string{"source", "reason"},
	)

	// RowsPromoted counts staging rows promoted into authoritative tables.
	RowsPromoted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platecost_rows_promoted_total",
			Help: "Total staging rows promoted to authoritative tables",
		},
		[]string{"kind"},
	)

	// RecipesCosted counts cost resolver runs by outcome.
	RecipesCosted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platecost_recipes_costed_total",
			Help: "Total recipe cost computations",
		},
		[]string{"outcome"},
	)

	// ConversionFailures counts UOM conversion failures by status.
	ConversionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platecost_conversion_failures_total",
			Help: "Total unit conversion failures during costing",
		},
		[]string{"status"},
	)

	// BatchDuration observes staging/promotion/recalculation batch runtimes.
	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platecost_batch_duration_seconds",
			Help:    "Duration of batch operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(
		RowsStaged,
		RowsExcluded,
		RowsPromoted,
		RecipesCosted,
		ConversionFailures,
		BatchDuration,
	)
}

// Serve exposes the prometheus endpoint on its own port.
func Serve(port int) error {
	router := gin.New()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), router)
}
